package evaluator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klejdi94/assay/analytics"
	"github.com/klejdi94/assay/core"
)

// fakeEmbedder serves canned vectors per text and can fail or stall on demand.
type fakeEmbedder struct {
	name      string
	vectors   map[string][]float32
	err       error
	pingErr   error
	delay     time.Duration
	failAfter int32 // fail from the Nth Embed call on (0 = never)
	calls     atomic.Int32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.failAfter > 0 && n >= f.failAfter {
		return nil, errors.New("quota exhausted")
	}
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float32{1, 0}, nil
}

func (f *fakeEmbedder) Model() string {
	if f.name == "" {
		return "fake-embedder"
	}
	return f.name
}

func (f *fakeEmbedder) Ping(ctx context.Context) error { return f.pingErr }

// captureRecorder collects analytics records for assertions.
type captureRecorder struct {
	mu      sync.Mutex
	err     error
	records []analytics.EvalRecord
}

func (c *captureRecorder) Record(ctx context.Context, r analytics.EvalRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.records = append(c.records, r)
	return nil
}

func (c *captureRecorder) last(t *testing.T) analytics.EvalRecord {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.records)
	return c.records[len(c.records)-1]
}

func TestEvaluateValidation(t *testing.T) {
	emb := &fakeEmbedder{}
	e := New(WithEmbedder(emb))

	tests := []struct {
		name string
		req  core.EvaluationRequest
	}{
		{"missing student answer", core.EvaluationRequest{ModelAnswer: "Photosynthesis converts light."}},
		{"missing model answer", core.EvaluationRequest{StudentAnswer: "Plants eat light."}},
		{"model answer too short", core.EvaluationRequest{ModelAnswer: "short", StudentAnswer: "long enough"}},
		{"student answer too short", core.EvaluationRequest{ModelAnswer: "long enough too", StudentAnswer: "hey"}},
		{"whitespace only", core.EvaluationRequest{ModelAnswer: "long enough too", StudentAnswer: "      "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Evaluate(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, res)

			var verr *core.ValidationError
			assert.ErrorAs(t, err, &verr)
			assert.ErrorIs(t, err, core.ErrValidationFailed)
		})
	}
	assert.Zero(t, emb.calls.Load(), "invalid requests must not reach the embedder")
}

func TestEvaluate(t *testing.T) {
	modelAnswer := "Photosynthesis converts sunlight into chemical energy."
	studentAnswer := "Plants turn sunlight into energy."
	emb := &fakeEmbedder{
		name: "test-embedder",
		vectors: map[string][]float32{
			modelAnswer:   {1, 0},
			studentAnswer: {3, 4}, // cosine against [1,0] is exactly 0.6
		},
	}
	rec := &captureRecorder{}
	e := New(WithEmbedder(emb), WithRecorder(rec))

	res, err := e.Evaluate(context.Background(), core.EvaluationRequest{
		ModelAnswer:   modelAnswer,
		StudentAnswer: studentAnswer,
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.InDelta(t, 3.0, res.Score, 1e-9)
	assert.InDelta(t, 0.6, res.Similarity, 1e-9)
	assert.True(t, strings.HasPrefix(res.Feedback, "Your answer captures"), "got %q", res.Feedback)
	assert.Equal(t, int32(2), emb.calls.Load())

	stored := rec.last(t)
	assert.Equal(t, "test-embedder", stored.Embedder)
	assert.False(t, stored.Degraded)
	assert.True(t, stored.Success)
	assert.InDelta(t, 0.6, stored.Similarity, 1e-9)
	assert.InDelta(t, 3.0, stored.Score, 1e-9)
}

func TestEvaluateHighSimilarity(t *testing.T) {
	modelAnswer := "Photosynthesis is the process by which plants convert sunlight into chemical energy."
	studentAnswer := "Plants use sunlight to make their own food through photosynthesis."
	emb := &fakeEmbedder{
		name: "test-embedder",
		vectors: map[string][]float32{
			modelAnswer:   {1, 0},
			studentAnswer: {0.84, 0.5425864}, // cosine against [1,0] rounds to 0.840
		},
	}
	e := New(WithEmbedder(emb))

	res, err := e.Evaluate(context.Background(), core.EvaluationRequest{
		ModelAnswer:   modelAnswer,
		StudentAnswer: studentAnswer,
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.InDelta(t, 4.2, res.Score, 1e-9)
	assert.InDelta(t, 0.84, res.Similarity, 1e-9)
	assert.True(t, strings.HasPrefix(res.Feedback, "Very good answer"), "got %q", res.Feedback)
}

func TestEvaluateNormalizes(t *testing.T) {
	e := New()
	res, err := e.Evaluate(context.Background(), core.EvaluationRequest{
		ModelAnswer:   "  Photosynthesis converts light.  ",
		StudentAnswer: "\t12345\n",
	})
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestEvaluateFallbackOnError(t *testing.T) {
	emb := &fakeEmbedder{name: "down-embedder", err: errors.New("connection refused")}
	llm := &fakeProvider{content: "never delivered"}
	rec := &captureRecorder{}
	e := New(WithEmbedder(emb), WithFeedbackProvider(llm), WithRecorder(rec))

	res, err := e.Evaluate(context.Background(), core.EvaluationRequest{
		ModelAnswer:   "Photosynthesis converts sunlight into chemical energy.",
		StudentAnswer: "Plants turn sunlight into energy.",
	})
	require.NoError(t, err, "primary failures must not surface")
	require.NotNil(t, res)
	assert.NotEmpty(t, res.Feedback)

	stored := rec.last(t)
	assert.True(t, stored.Degraded)
	assert.Equal(t, "lexical-hash", stored.Embedder)
	assert.True(t, stored.Success)
	assert.Zero(t, llm.callCount(), "degraded runs must not spend LLM feedback calls")
}

func TestEvaluateFallbackOnTimeout(t *testing.T) {
	emb := &fakeEmbedder{name: "slow-embedder", delay: 2 * time.Second}
	rec := &captureRecorder{}
	e := New(WithEmbedder(emb), WithRecorder(rec), WithTimeout(50*time.Millisecond))

	start := time.Now()
	res, err := e.Evaluate(context.Background(), core.EvaluationRequest{
		ModelAnswer:   "Photosynthesis converts sunlight into chemical energy.",
		StudentAnswer: "Plants turn sunlight into energy.",
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Less(t, time.Since(start), time.Second, "evaluation must not wait out a stalled embedder")
	assert.True(t, rec.last(t).Degraded)
}

func TestEvaluatePartialFailureReEmbedsBoth(t *testing.T) {
	req := core.EvaluationRequest{
		ModelAnswer:   "Photosynthesis converts sunlight into chemical energy.",
		StudentAnswer: "Plants turn sunlight into energy.",
	}

	// Second Embed call fails, so the primary delivers only one vector of
	// the pair. The comparison must then come from the fallback alone.
	emb := &fakeEmbedder{name: "flaky-embedder", failAfter: 2}
	rec := &captureRecorder{}
	e := New(WithEmbedder(emb), WithRecorder(rec))
	res, err := e.Evaluate(context.Background(), req)
	require.NoError(t, err)

	lexicalOnly, err := New().Evaluate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "lexical-hash", rec.last(t).Embedder)
	assert.True(t, rec.last(t).Degraded)
	assert.InDelta(t, lexicalOnly.Similarity, res.Similarity, 1e-9)
}

func TestEvaluateCustomFallbackFailure(t *testing.T) {
	broken := &fakeEmbedder{name: "broken-fallback", err: errors.New("disk full")}
	e := New(WithFallback(broken))

	res, err := e.Evaluate(context.Background(), core.EvaluationRequest{
		ModelAnswer:   "Photosynthesis converts sunlight into chemical energy.",
		StudentAnswer: "Plants turn sunlight into energy.",
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, core.ErrProviderUnavailable)
}

func TestEvaluateNoPrimaryNotDegraded(t *testing.T) {
	llm := &fakeProvider{content: "Clear answer, expand on the light-dependent reactions."}
	rec := &captureRecorder{}
	e := New(WithFeedbackProvider(llm), WithRecorder(rec))

	res, err := e.Evaluate(context.Background(), core.EvaluationRequest{
		ModelAnswer:   "Photosynthesis converts sunlight into chemical energy.",
		StudentAnswer: "Photosynthesis converts sunlight into chemical energy.",
	})
	require.NoError(t, err)

	stored := rec.last(t)
	assert.False(t, stored.Degraded, "serving from the fallback directly is not degradation")
	assert.Equal(t, "lexical-hash", stored.Embedder)
	assert.Equal(t, 1, llm.callCount())
	assert.Equal(t, "Clear answer, expand on the light-dependent reactions.", res.Feedback)
}

func TestEvaluateFeedbackPromptCarriesAnswers(t *testing.T) {
	llm := &fakeProvider{content: "ok"}
	e := New(WithFeedbackProvider(llm))

	_, err := e.Evaluate(context.Background(), core.EvaluationRequest{
		Question:      "Explain photosynthesis.",
		ModelAnswer:   "Photosynthesis converts sunlight into chemical energy.",
		StudentAnswer: "Plants turn sunlight into energy.",
	})
	require.NoError(t, err)

	assert.Contains(t, llm.lastReq.Prompt, "Explain photosynthesis.")
	assert.Contains(t, llm.lastReq.Prompt, "Photosynthesis converts sunlight into chemical energy.")
	assert.Contains(t, llm.lastReq.Prompt, "Plants turn sunlight into energy.")
}

func TestEvaluateRecorderFailureIsSwallowed(t *testing.T) {
	var warnings atomic.Int32
	rec := &captureRecorder{err: errors.New("store offline")}
	e := New(WithRecorder(rec), WithLogf(func(format string, args ...interface{}) {
		warnings.Add(1)
	}))

	res, err := e.Evaluate(context.Background(), core.EvaluationRequest{
		ModelAnswer:   "Photosynthesis converts sunlight into chemical energy.",
		StudentAnswer: "Plants turn sunlight into energy.",
	})
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Equal(t, int32(1), warnings.Load())
}

func TestEvaluateRecordsToMemoryStore(t *testing.T) {
	store := analytics.NewMemoryStore(0)
	e := New(WithRecorder(store))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := e.Evaluate(ctx, core.EvaluationRequest{
			ModelAnswer:   "Photosynthesis converts sunlight into chemical energy.",
			StudentAnswer: "Plants turn sunlight into energy.",
		})
		require.NoError(t, err)
	}

	aggs, err := store.Query(ctx, analytics.Query{GroupBy: "embedder"})
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, "lexical-hash", aggs[0].Key)
	assert.Equal(t, int64(2), aggs[0].Runs)
	assert.Equal(t, int64(2), aggs[0].SuccessCount)
	assert.Zero(t, aggs[0].DegradedCount)
}

func TestEvaluatorReadiness(t *testing.T) {
	ctx := context.Background()

	plain := New()
	assert.Equal(t, "lexical-hash", plain.EmbedderModel())
	assert.True(t, plain.EmbedderReady(ctx))
	assert.Empty(t, plain.FeedbackModel())
	assert.False(t, plain.FeedbackReady(ctx))

	down := New(WithEmbedder(&fakeEmbedder{name: "remote", pingErr: errors.New("unreachable")}))
	assert.Equal(t, "remote", down.EmbedderModel())
	assert.False(t, down.EmbedderReady(ctx))

	full := New(
		WithEmbedder(&fakeEmbedder{name: "remote"}),
		WithFeedbackProvider(&fakeProvider{model: "flan-t5"}),
	)
	assert.True(t, full.EmbedderReady(ctx))
	assert.Equal(t, "flan-t5", full.FeedbackModel())
	assert.True(t, full.FeedbackReady(ctx))
}
