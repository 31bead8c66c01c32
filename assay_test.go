package assay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/klejdi94/assay/config"
	"github.com/klejdi94/assay/core"
	"github.com/klejdi94/assay/embedding"
)

func TestNewEmbedder(t *testing.T) {
	lex, err := NewEmbedder(config.EmbeddingConfig{})
	require.NoError(t, err)
	assert.Equal(t, "lexical-hash", lex.Model())

	wide, err := NewEmbedder(config.EmbeddingConfig{Provider: "lexical", LexicalDims: 128})
	require.NoError(t, err)
	assert.Equal(t, 128, wide.(*embedding.LexicalEmbedder).Dims)

	oa, err := NewEmbedder(config.EmbeddingConfig{
		Provider: "openai",
		APIKey:   "sk-test",
		Model:    "text-embedding-3-large",
		BaseURL:  "http://openai.internal/v1",
	})
	require.NoError(t, err)
	oaEmb := oa.(*embedding.OpenAIEmbedder)
	assert.Equal(t, "text-embedding-3-large", oaEmb.ModelName)
	assert.Equal(t, "http://openai.internal/v1", oaEmb.BaseURL)

	_, err = NewEmbedder(config.EmbeddingConfig{Provider: "tei"})
	assert.Error(t, err, "tei without base_url must fail")

	_, err = NewEmbedder(config.EmbeddingConfig{Provider: "quantum"})
	assert.Error(t, err)
}

func TestNewFeedbackProvider(t *testing.T) {
	p, err := NewFeedbackProvider(config.FeedbackConfig{})
	require.NoError(t, err)
	assert.Nil(t, p, "empty provider keeps feedback rubric-only")

	hf, err := NewFeedbackProvider(config.FeedbackConfig{Provider: "huggingface"})
	require.NoError(t, err)
	assert.Equal(t, "google/flan-t5-base", hf.Model())

	_, err = NewFeedbackProvider(config.FeedbackConfig{Provider: "openai"})
	assert.Error(t, err, "openai without a key must fail")

	_, err = NewFeedbackProvider(config.FeedbackConfig{Provider: "quantum"})
	assert.Error(t, err)
}

func TestNewStore(t *testing.T) {
	s, closer, err := NewStore(config.AnalyticsConfig{})
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.NoError(t, closer())

	s, closer, err = NewStore(config.AnalyticsConfig{Store: "memory", MaxRecords: 10})
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.NoError(t, closer())

	_, _, err = NewStore(config.AnalyticsConfig{Store: "cassandra"})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = NewLogger(config.LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	_, err = NewLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	cfg := &config.Config{
		Embedding: config.EmbeddingConfig{Provider: "lexical", Timeout: config.Duration(time.Second)},
		Limits:    config.LimitsConfig{MinModelAnswerLen: 10, MinStudentAnswerLen: 5},
		Analytics: config.AnalyticsConfig{Store: "memory", MaxRecords: 100},
		Server:    config.ServerConfig{BatchWorkers: 2},
	}

	pipe, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)
	defer pipe.Close()

	assert.Equal(t, "lexical-hash", pipe.Evaluator.EmbedderModel())
	require.NotNil(t, pipe.Store)

	res, err := pipe.Evaluator.Evaluate(context.Background(), core.EvaluationRequest{
		ModelAnswer:   "Photosynthesis converts sunlight into chemical energy.",
		StudentAnswer: "Plants turn sunlight into energy.",
	})
	require.NoError(t, err)
	assert.NotNil(t, res)

	_, err = pipe.Evaluator.Evaluate(context.Background(), core.EvaluationRequest{
		ModelAnswer:   "Photosynthesis converts sunlight into chemical energy.",
		StudentAnswer: "hey",
	})
	assert.Error(t, err, "configured limits must apply")
}
