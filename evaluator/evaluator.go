// Package evaluator compares a student answer against a model answer and
// turns the semantic distance into a score and written feedback. The pipeline
// embeds both texts with the same provider, measures cosine similarity,
// grades it on a rubric and optionally rewords the feedback with an LLM.
package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/klejdi94/assay/analytics"
	"github.com/klejdi94/assay/core"
	"github.com/klejdi94/assay/embedding"
	"github.com/klejdi94/assay/provider"
)

const defaultEmbedTimeout = 5 * time.Second

// Evaluator runs the evaluation pipeline. The zero value is not usable;
// construct with New.
type Evaluator struct {
	primary  embedding.Embedder
	fallback embedding.Embedder
	scorer   *Scorer
	feedback *FeedbackGenerator
	limits   core.Limits
	timeout  time.Duration
	workers  int
	recorder analytics.Recorder
	logf     func(format string, args ...interface{})
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithEmbedder sets the primary embedding provider. Without one the lexical
// fallback serves every request directly.
func WithEmbedder(emb embedding.Embedder) Option {
	return func(e *Evaluator) {
		e.primary = emb
	}
}

// WithFallback replaces the lexical fallback embedder.
func WithFallback(emb embedding.Embedder) Option {
	return func(e *Evaluator) {
		e.fallback = emb
	}
}

// WithRubric replaces the default grading rubric.
func WithRubric(r *core.Rubric) Option {
	return func(e *Evaluator) {
		e.scorer = NewScorer(r)
	}
}

// WithFeedbackProvider enables LLM-worded feedback through the given
// completion provider, with the default prompt and limits.
func WithFeedbackProvider(p provider.Provider) Option {
	return func(e *Evaluator) {
		e.feedback = NewFeedbackGenerator(p)
	}
}

// WithFeedbackGenerator sets a fully configured feedback generator, for
// custom prompts, timeouts or cost tracking.
func WithFeedbackGenerator(g *FeedbackGenerator) Option {
	return func(e *Evaluator) {
		e.feedback = g
	}
}

// WithLimits overrides the minimum answer lengths enforced before any
// provider call.
func WithLimits(lim core.Limits) Option {
	return func(e *Evaluator) {
		e.limits = lim
	}
}

// WithTimeout bounds the primary embedding attempt. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		e.timeout = d
	}
}

// WithWorkers bounds batch concurrency.
func WithWorkers(n int) Option {
	return func(e *Evaluator) {
		e.workers = n
	}
}

// WithRecorder records completed evaluations for analytics. Recording is
// best effort: failures are logged, never returned.
func WithRecorder(r analytics.Recorder) Option {
	return func(e *Evaluator) {
		e.recorder = r
	}
}

// WithLogf sets the log function used for fallback and recording warnings.
func WithLogf(logf func(format string, args ...interface{})) Option {
	return func(e *Evaluator) {
		e.logf = logf
	}
}

// New creates an Evaluator. Defaults: lexical fallback embedder, default
// rubric, default answer length limits, 5s embedding timeout, 4 batch
// workers, no feedback provider, no analytics.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		fallback: embedding.NewLexicalEmbedder(),
		scorer:   NewScorer(nil),
		limits:   core.DefaultLimits,
		timeout:  defaultEmbedTimeout,
		workers:  defaultBatchWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.fallback == nil {
		e.fallback = embedding.NewLexicalEmbedder()
	}
	if e.scorer == nil {
		e.scorer = NewScorer(nil)
	}
	if e.feedback != nil && e.feedback.Logf == nil {
		e.feedback.Logf = e.logf
	}
	return e
}

// Evaluate runs one comparison through the pipeline. Validation failures
// return a *core.ValidationError. Primary embedder failures never surface:
// the pair is re-embedded with the fallback and the run is marked degraded
// in analytics.
func (e *Evaluator) Evaluate(ctx context.Context, req core.EvaluationRequest) (*core.EvaluationResult, error) {
	start := time.Now()
	req.Normalize()
	if err := req.Validate(e.limits); err != nil {
		return nil, err
	}

	pair, err := e.embedPair(ctx, req.ModelAnswer, req.StudentAnswer)
	if err != nil {
		e.record(ctx, analytics.EvalRecord{
			Embedder:  e.fallback.Model(),
			Degraded:  e.primary != nil,
			LatencyMs: time.Since(start).Milliseconds(),
		})
		return nil, err
	}

	sim := CosineSimilarity(pair.model, pair.student)
	result := e.scorer.Result(sim)
	if e.feedback != nil && !pair.degraded {
		result.Feedback = e.feedback.Generate(ctx, req, result.Percent(), result.Feedback)
	}

	e.record(ctx, analytics.EvalRecord{
		Embedder:   pair.embedder,
		Degraded:   pair.degraded,
		Similarity: result.Similarity,
		Score:      result.Score,
		LatencyMs:  time.Since(start).Milliseconds(),
		Success:    true,
	})
	return &result, nil
}

// embeddedPair carries both vectors plus the provider that produced them.
type embeddedPair struct {
	model    []float32
	student  []float32
	embedder string
	degraded bool
}

// embedPair embeds both answers concurrently with the primary provider under
// the configured timeout. On any failure both texts are re-embedded with the
// fallback, so a single comparison never mixes vector spaces. The decision is
// made per call; one failed request does not route the next one.
func (e *Evaluator) embedPair(ctx context.Context, modelAnswer, studentAnswer string) (*embeddedPair, error) {
	if e.primary != nil {
		embedCtx := ctx
		var cancel context.CancelFunc
		if e.timeout > 0 {
			embedCtx, cancel = context.WithTimeout(ctx, e.timeout)
		}
		m, s, err := embedBoth(embedCtx, e.primary, modelAnswer, studentAnswer)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return &embeddedPair{model: m, student: s, embedder: e.primary.Model()}, nil
		}
		e.logfSafe("embedder %s unavailable, falling back to %s: %v", e.primary.Model(), e.fallback.Model(), err)
	}

	m, s, err := embedBoth(ctx, e.fallback, modelAnswer, studentAnswer)
	if err != nil {
		// Only possible with a custom fallback; the lexical default never fails.
		return nil, fmt.Errorf("%w: %w", core.ErrProviderUnavailable, err)
	}
	return &embeddedPair{
		model:    m,
		student:  s,
		embedder: e.fallback.Model(),
		degraded: e.primary != nil,
	}, nil
}

// embedBoth embeds a and b concurrently with the same provider and fails if
// either call fails.
func embedBoth(ctx context.Context, emb embedding.Embedder, a, b string) ([]float32, []float32, error) {
	type embedResult struct {
		vec []float32
		err error
	}
	ch := make(chan embedResult, 1)
	go func() {
		vec, err := emb.Embed(ctx, a)
		ch <- embedResult{vec: vec, err: err}
	}()
	vecB, errB := emb.Embed(ctx, b)
	resA := <-ch
	if resA.err != nil {
		return nil, nil, fmt.Errorf("embed model answer: %w", resA.err)
	}
	if errB != nil {
		return nil, nil, fmt.Errorf("embed student answer: %w", errB)
	}
	return resA.vec, vecB, nil
}

// EmbedderModel returns the model name of the embedder that serves requests
// first.
func (e *Evaluator) EmbedderModel() string {
	if e.primary != nil {
		return e.primary.Model()
	}
	return e.fallback.Model()
}

// EmbedderReady reports whether the active embedding path answers pings. The
// lexical fallback always does, so this reflects the primary provider when
// one is configured.
func (e *Evaluator) EmbedderReady(ctx context.Context) bool {
	if e.primary != nil {
		return e.primary.Ping(ctx) == nil
	}
	return e.fallback.Ping(ctx) == nil
}

// FeedbackModel returns the feedback provider model, or "" when feedback is
// rubric-only.
func (e *Evaluator) FeedbackModel() string {
	if e.feedback == nil || e.feedback.Provider == nil {
		return ""
	}
	return e.feedback.Provider.Model()
}

// FeedbackReady reports whether the LLM feedback path answers pings.
func (e *Evaluator) FeedbackReady(ctx context.Context) bool {
	return e.feedback.Ready(ctx)
}

func (e *Evaluator) record(ctx context.Context, rec analytics.EvalRecord) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(ctx, rec); err != nil {
		e.logfSafe("analytics record failed: %v", err)
	}
}

func (e *Evaluator) logfSafe(format string, args ...interface{}) {
	if e.logf != nil {
		e.logf(format, args...)
	}
}
