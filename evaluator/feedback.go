package evaluator

import (
	"context"
	"strings"
	"time"

	"github.com/klejdi94/assay/core"
	"github.com/klejdi94/assay/cost"
	"github.com/klejdi94/assay/provider"
	"github.com/klejdi94/assay/template"
)

// DefaultFeedbackPrompt asks the model for short constructive feedback on
// the student's answer. A custom prompt can reference the question,
// modelAnswer, studentAnswer and percent placeholders.
var DefaultFeedbackPrompt = template.Prompt{
	User: `Evaluate a student's answer and provide brief constructive feedback.

Question: {{.question | default "Assessment"}}
Model Answer: {{.modelAnswer}}
Student Answer: {{.studentAnswer}}

Provide feedback that:
1. Acknowledges what the student got right
2. Points out what's missing or incorrect
3. Suggests how to improve

Keep feedback concise (2-3 sentences max).`,
}

const (
	defaultFeedbackTimeout = 10 * time.Second
	defaultFeedbackMaxLen  = 500
	feedbackMaxTokens      = 200
	feedbackTemperature    = 0.7
)

// FeedbackGenerator words feedback for an evaluation via an LLM provider.
// Any failure, or an unusable generation, falls back to the caller-supplied
// rubric text so an evaluation always carries feedback.
type FeedbackGenerator struct {
	Provider provider.Provider
	Engine   *template.Engine
	Prompt   template.Prompt
	Timeout  time.Duration
	// MaxLen caps feedback length in runes; longer generations are truncated
	// with an ellipsis. Defaults to 500.
	MaxLen  int
	Tracker *cost.Tracker
	Logf    func(format string, args ...interface{})
}

// NewFeedbackGenerator creates a generator using the default prompt and
// limits.
func NewFeedbackGenerator(p provider.Provider) *FeedbackGenerator {
	return &FeedbackGenerator{
		Provider: p,
		Engine:   template.NewEngine(),
		Prompt:   DefaultFeedbackPrompt,
		Timeout:  defaultFeedbackTimeout,
		MaxLen:   defaultFeedbackMaxLen,
	}
}

// Generate words feedback for req at the given similarity percentage,
// returning fallback whenever the provider path cannot deliver.
func (g *FeedbackGenerator) Generate(ctx context.Context, req core.EvaluationRequest, percent float64, fallback string) string {
	if g == nil || g.Provider == nil {
		return fallback
	}
	engine := g.Engine
	if engine == nil {
		engine = template.NewEngine()
	}
	prompt := g.Prompt
	if prompt.User == "" {
		prompt = DefaultFeedbackPrompt
	}
	rendered, err := engine.Render(ctx, prompt, template.Data{
		"question":      req.Question,
		"modelAnswer":   req.ModelAnswer,
		"studentAnswer": req.StudentAnswer,
		"percent":       percent,
	})
	if err != nil {
		g.logf("feedback render failed: %v", err)
		return fallback
	}

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = defaultFeedbackTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := g.Provider.Complete(ctx, provider.CompletionRequest{
		Prompt:      rendered.User,
		System:      rendered.System,
		Temperature: feedbackTemperature,
		MaxTokens:   feedbackMaxTokens,
	})
	if err != nil {
		g.logf("feedback provider %s failed: %v", g.Provider.Model(), err)
		return fallback
	}
	if g.Tracker != nil {
		g.Tracker.Record(resp.Model, resp.Usage)
	}
	feedback := strings.TrimSpace(resp.Content)
	if feedback == "" {
		return fallback
	}
	maxLen := g.MaxLen
	if maxLen <= 0 {
		maxLen = defaultFeedbackMaxLen
	}
	if runes := []rune(feedback); len(runes) > maxLen {
		feedback = string(runes[:maxLen]) + "..."
	}
	return feedback
}

// Ready reports whether the feedback provider is reachable.
func (g *FeedbackGenerator) Ready(ctx context.Context) bool {
	if g == nil || g.Provider == nil {
		return false
	}
	return g.Provider.Ping(ctx) == nil
}

func (g *FeedbackGenerator) logf(format string, args ...interface{}) {
	if g.Logf != nil {
		g.Logf(format, args...)
	}
}
