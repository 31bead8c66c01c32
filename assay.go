// Package assay grades free-text answers against reference answers: both are
// embedded with the same provider, compared by cosine similarity, and the
// similarity is mapped to a 0-5 score with rubric-based (optionally
// LLM-worded) feedback.
//
// Quick start:
//
//	eval := evaluator.New()
//	res, err := eval.Evaluate(ctx, core.EvaluationRequest{
//	    ModelAnswer:   "Photosynthesis converts sunlight into chemical energy.",
//	    StudentAnswer: "Plants turn sunlight into energy.",
//	})
//
// Or assemble the full pipeline from configuration:
//
//	cfg, _ := config.Load()
//	logger, _ := assay.NewLogger(cfg.Log)
//	pipe, _ := assay.Open(cfg, logger)
//	defer pipe.Close()
//	res, err := pipe.Evaluator.Evaluate(ctx, req)
package assay

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/klejdi94/assay/analytics"
	"github.com/klejdi94/assay/config"
	"github.com/klejdi94/assay/core"
	"github.com/klejdi94/assay/embedding"
	"github.com/klejdi94/assay/evaluator"
	"github.com/klejdi94/assay/executor"
	"github.com/klejdi94/assay/provider"
)

// NewLogger builds a zap logger from the log configuration. Format "console"
// selects the development encoder, anything else the production JSON one.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zc.Build()
}

// NewEmbedder builds the embedding provider named by the configuration.
func NewEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case "", "lexical":
		lex := embedding.NewLexicalEmbedder()
		if cfg.LexicalDims > 0 {
			lex.Dims = cfg.LexicalDims
		}
		return lex, nil
	case "openai":
		emb := embedding.NewOpenAIEmbedder(cfg.APIKey)
		if cfg.Model != "" {
			emb.ModelName = cfg.Model
		}
		if cfg.BaseURL != "" {
			emb.BaseURL = cfg.BaseURL
		}
		return emb, nil
	case "huggingface":
		emb := embedding.NewHuggingFaceEmbedder(cfg.APIKey)
		emb.WaitForModel = true
		if cfg.Model != "" {
			emb.ModelName = cfg.Model
		}
		if cfg.BaseURL != "" {
			emb.BaseURL = cfg.BaseURL
		}
		return emb, nil
	case "tei":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("tei embedder requires embedding.base_url")
		}
		emb := embedding.NewTEIEmbedder(cfg.BaseURL)
		if cfg.Model != "" {
			emb.ModelName = cfg.Model
		}
		return emb, nil
	case "ollama":
		emb := embedding.NewOllamaEmbedder(cfg.BaseURL)
		if cfg.Model != "" {
			emb.ModelName = cfg.Model
		}
		return emb, nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
}

// NewFeedbackProvider builds the LLM feedback provider named by the
// configuration. An empty provider name returns (nil, nil): feedback stays
// rubric-only.
func NewFeedbackProvider(cfg config.FeedbackConfig) (provider.Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "openai":
		return provider.NewOpenAI(provider.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	case "huggingface":
		return provider.NewHuggingFace(provider.HuggingFaceConfig{
			APIToken:     cfg.APIKey,
			Model:        cfg.Model,
			BaseURL:      cfg.BaseURL,
			WaitForModel: true,
		}), nil
	case "ollama":
		return provider.NewOllama(provider.OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}), nil
	}
	return nil, fmt.Errorf("unknown feedback provider %q", cfg.Provider)
}

// NewStore builds the analytics store named by the configuration. The
// returned closer releases the underlying connection; it is a no-op for the
// memory store. An empty store name returns (nil, nil, nil): recording stays
// disabled.
func NewStore(cfg config.AnalyticsConfig) (analytics.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store {
	case "":
		return nil, noop, nil
	case "memory":
		return analytics.NewMemoryStore(cfg.MaxRecords), noop, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, noop, fmt.Errorf("postgres: %w", err)
		}
		store, err := analytics.NewPostgresStore(db, "")
		if err != nil {
			db.Close()
			return nil, noop, fmt.Errorf("postgres store: %w", err)
		}
		return store, db.Close, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return analytics.NewRedisStore(client, ""), client.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown analytics store %q", cfg.Store)
}

// Pipeline is a fully assembled evaluation pipeline plus the resources
// behind it.
type Pipeline struct {
	Evaluator *evaluator.Evaluator
	// Store is the analytics store the evaluator records to, nil when
	// recording is disabled.
	Store   analytics.Store
	closers []func() error
}

// Open assembles a Pipeline from configuration: embedder, feedback provider,
// rubric, limits, analytics store. Extra evaluator options are applied last
// and win over configuration.
func Open(cfg *config.Config, logger *zap.Logger, extra ...evaluator.Option) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	emb, err := NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	feedback, err := NewFeedbackProvider(cfg.Feedback)
	if err != nil {
		return nil, err
	}
	store, closeStore, err := NewStore(cfg.Analytics)
	if err != nil {
		return nil, err
	}

	opts := []evaluator.Option{
		evaluator.WithTimeout(time.Duration(cfg.Embedding.Timeout)),
		evaluator.WithLimits(core.Limits{
			MinModelAnswerLen:   cfg.Limits.MinModelAnswerLen,
			MinStudentAnswerLen: cfg.Limits.MinStudentAnswerLen,
		}),
		evaluator.WithWorkers(cfg.Server.BatchWorkers),
		evaluator.WithLogf(logger.Sugar().Warnf),
	}
	// A configured lexical embedder serves as the fallback itself, not as a
	// primary with a degradation path behind it.
	if lex, ok := emb.(*embedding.LexicalEmbedder); ok {
		opts = append(opts, evaluator.WithFallback(lex))
	} else {
		opts = append(opts, evaluator.WithEmbedder(emb))
	}

	if cfg.Rubric.Path != "" {
		rubric, err := core.LoadRubric(cfg.Rubric.Path)
		if err != nil {
			closeStore()
			return nil, err
		}
		opts = append(opts, evaluator.WithRubric(rubric))
	}
	if feedback != nil {
		if cfg.Feedback.MaxRetries > 0 {
			feedback = executor.New(feedback, executor.WithRetry(cfg.Feedback.MaxRetries, nil))
		}
		gen := evaluator.NewFeedbackGenerator(feedback)
		if d := time.Duration(cfg.Feedback.Timeout); d > 0 {
			gen.Timeout = d
		}
		if cfg.Feedback.MaxLen > 0 {
			gen.MaxLen = cfg.Feedback.MaxLen
		}
		opts = append(opts, evaluator.WithFeedbackGenerator(gen))
	}
	if store != nil {
		opts = append(opts, evaluator.WithRecorder(store))
	}
	opts = append(opts, extra...)

	return &Pipeline{
		Evaluator: evaluator.New(opts...),
		Store:     store,
		closers:   []func() error{closeStore},
	}, nil
}

// Close releases the pipeline's resources.
func (p *Pipeline) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
