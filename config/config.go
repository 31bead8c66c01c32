// Package config loads service configuration with precedence
// defaults -> YAML file -> environment variables. Secrets (API keys) are
// env-only and never read from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration. It is read-only after Load returns and
// safe for concurrent reads.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Rubric    RubricConfig    `yaml:"rubric"`
	Limits    LimitsConfig    `yaml:"limits"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	BatchWorkers    int      `yaml:"batch_workers"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of "lexical", "openai", "huggingface", "tei", "ollama".
	Provider string `yaml:"provider"`
	// Model overrides the provider's default model.
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"-"` // env-only, never in YAML
	// Timeout bounds one embedding attempt before falling back.
	Timeout Duration `yaml:"timeout"`
	// LexicalDims sets the vector width of the lexical embedder.
	LexicalDims int `yaml:"lexical_dims"`
}

// FeedbackConfig selects and tunes the LLM feedback provider. An empty
// Provider keeps feedback rubric-only.
type FeedbackConfig struct {
	// Provider is one of "", "openai", "huggingface", "ollama".
	Provider string   `yaml:"provider"`
	Model    string   `yaml:"model"`
	BaseURL  string   `yaml:"base_url"`
	APIKey   string   `yaml:"-"` // env-only, never in YAML
	Timeout  Duration `yaml:"timeout"`
	// MaxLen caps generated feedback length in runes.
	MaxLen int `yaml:"max_len"`
	// MaxRetries retries failed completions with exponential backoff before
	// the rubric fallback takes over.
	MaxRetries int `yaml:"max_retries"`
}

// RubricConfig points at an optional custom rubric file.
type RubricConfig struct {
	Path string `yaml:"path"`
}

// LimitsConfig sets the minimum answer lengths accepted for evaluation.
type LimitsConfig struct {
	MinModelAnswerLen   int `yaml:"min_model_answer_len"`
	MinStudentAnswerLen int `yaml:"min_student_answer_len"`
}

// AnalyticsConfig selects the evaluation record store.
type AnalyticsConfig struct {
	// Store is one of "", "memory", "postgres", "redis". Empty disables
	// recording.
	Store         string `yaml:"store"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"-"` // env-only, never in YAML
	RedisDB       int    `yaml:"redis_db"`
	// MaxRecords bounds the memory store (0 = unbounded).
	MaxRecords int `yaml:"max_records"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Addr returns the listen address for the configured port.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// Duration wraps time.Duration with YAML string parsing ("5s", "1m30s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults -> YAML file -> env
// vars. A .env file in the working directory is read first if present. The
// YAML path comes from ASSAY_CONFIG_PATH (default "config/assay.yaml");
// a missing file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := newDefaults()
	configPath := getEnv("ASSAY_CONFIG_PATH", "config/assay.yaml")
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific path; unlike Load, the
// file must exist. Used for tests and explicit --config flags.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
			BatchWorkers:    4,
		},
		Embedding: EmbeddingConfig{
			Provider: "lexical",
			Timeout:  Duration(5 * time.Second),
		},
		Feedback: FeedbackConfig{
			Timeout: Duration(10 * time.Second),
			MaxLen:  500,
		},
		Limits: LimitsConfig{
			MinModelAnswerLen:   10,
			MinStudentAnswerLen: 5,
		},
		Analytics: AnalyticsConfig{
			Store:      "memory",
			RedisAddr:  "localhost:6379",
			MaxRecords: 10000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides. Only non-empty
// values override.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("ASSAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ASSAY_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("ASSAY_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("ASSAY_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}
	if v := os.Getenv("ASSAY_BATCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.BatchWorkers = n
		}
	}

	// Embedding
	if v := os.Getenv("ASSAY_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("ASSAY_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("ASSAY_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("ASSAY_EMBEDDING_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Embedding.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("ASSAY_LEXICAL_DIMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.LexicalDims = n
		}
	}

	// Feedback
	if v := os.Getenv("ASSAY_FEEDBACK_PROVIDER"); v != "" {
		cfg.Feedback.Provider = v
	}
	if v := os.Getenv("ASSAY_FEEDBACK_MODEL"); v != "" {
		cfg.Feedback.Model = v
	}
	if v := os.Getenv("ASSAY_FEEDBACK_BASE_URL"); v != "" {
		cfg.Feedback.BaseURL = v
	}
	if v := os.Getenv("ASSAY_FEEDBACK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Feedback.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("ASSAY_FEEDBACK_MAX_LEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Feedback.MaxLen = n
		}
	}
	if v := os.Getenv("ASSAY_FEEDBACK_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Feedback.MaxRetries = n
		}
	}

	// Secrets follow provider conventions: OPENAI_API_KEY for OpenAI,
	// HF_API_TOKEN for Hugging Face. The same token serves embedding and
	// feedback.
	cfg.Embedding.APIKey = providerKey(cfg.Embedding.Provider)
	cfg.Feedback.APIKey = providerKey(cfg.Feedback.Provider)

	// Rubric and limits
	if v := os.Getenv("ASSAY_RUBRIC_PATH"); v != "" {
		cfg.Rubric.Path = v
	}
	if v := os.Getenv("ASSAY_MIN_MODEL_ANSWER_LEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MinModelAnswerLen = n
		}
	}
	if v := os.Getenv("ASSAY_MIN_STUDENT_ANSWER_LEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MinStudentAnswerLen = n
		}
	}

	// Analytics
	if v := os.Getenv("ASSAY_ANALYTICS_STORE"); v != "" {
		cfg.Analytics.Store = v
	}
	if v := os.Getenv("ASSAY_POSTGRES_DSN"); v != "" {
		cfg.Analytics.PostgresDSN = v
	}
	if v := os.Getenv("ASSAY_REDIS_ADDR"); v != "" {
		cfg.Analytics.RedisAddr = v
	}
	if v := os.Getenv("ASSAY_REDIS_PASSWORD"); v != "" {
		cfg.Analytics.RedisPassword = v
	}
	if v := os.Getenv("ASSAY_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analytics.RedisDB = n
		}
	}
	if v := os.Getenv("ASSAY_ANALYTICS_MAX_RECORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analytics.MaxRecords = n
		}
	}

	// Log
	if v := os.Getenv("ASSAY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ASSAY_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func providerKey(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "huggingface":
		return os.Getenv("HF_API_TOKEN")
	}
	return ""
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Embedding.Provider {
	case "lexical", "tei", "ollama", "huggingface":
	case "openai":
		if c.Embedding.APIKey == "" {
			return errors.New("OPENAI_API_KEY is required for the openai embedding provider")
		}
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.Feedback.Provider {
	case "", "huggingface", "ollama":
	case "openai":
		if c.Feedback.APIKey == "" {
			return errors.New("OPENAI_API_KEY is required for the openai feedback provider")
		}
	default:
		return fmt.Errorf("unknown feedback provider %q", c.Feedback.Provider)
	}
	if c.Feedback.MaxRetries < 0 {
		return errors.New("feedback.max_retries must not be negative")
	}
	if c.Limits.MinModelAnswerLen < 0 || c.Limits.MinStudentAnswerLen < 0 {
		return errors.New("answer length limits must not be negative")
	}
	switch c.Analytics.Store {
	case "", "memory":
	case "postgres":
		if c.Analytics.PostgresDSN == "" {
			return errors.New("analytics.postgres_dsn is required for the postgres store")
		}
	case "redis":
		if c.Analytics.RedisAddr == "" {
			return errors.New("analytics.redis_addr is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown analytics store %q", c.Analytics.Store)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
