// Package provider defines the LLM provider interface used to word feedback
// and its implementations.
package provider

import "context"

// CompletionRequest is the unified request for a feedback completion.
type CompletionRequest struct {
	Prompt      string
	System      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// CompletionResponse is the unified completion response.
type CompletionResponse struct {
	Content string
	Model   string
	Usage   TokenUsage
}

// TokenUsage reports token counts.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is the unified interface for feedback LLM providers.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Model returns the model Complete uses when the request leaves it empty.
	Model() string
	// Ping reports whether the provider is reachable and ready.
	Ping(ctx context.Context) error
}
