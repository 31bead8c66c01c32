// Package executor decorates feedback providers with bounded retries and a
// call timeout. An Executor implements provider.Provider, so it drops into
// the feedback path in front of any concrete client.
package executor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/klejdi94/assay/provider"
)

// Executor retries failed completions against the wrapped provider.
type Executor struct {
	Provider    provider.Provider
	MaxRetries  int
	Backoff     BackoffFunc
	BaseTimeout time.Duration
}

// BackoffFunc returns delay before the next retry (attempt is 0-based).
type BackoffFunc func(attempt int) time.Duration

// ExponentialBackoff returns delay = base * 2^attempt, capped at max.
func ExponentialBackoff(base, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		d := base * time.Duration(math.Pow(2, float64(attempt)))
		if d > max {
			return max
		}
		return d
	}
}

// ExecutorOption configures the executor.
type ExecutorOption func(*Executor)

// WithRetry sets max retries and, when non-nil, the backoff schedule.
func WithRetry(maxRetries int, backoff BackoffFunc) ExecutorOption {
	return func(e *Executor) {
		e.MaxRetries = maxRetries
		if backoff != nil {
			e.Backoff = backoff
		}
	}
}

// WithTimeout bounds the whole completion, retries included.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.BaseTimeout = d
	}
}

// New creates an executor around the given provider. Without options it
// passes calls through unchanged.
func New(p provider.Provider, opts ...ExecutorOption) *Executor {
	e := &Executor{
		Provider:   p,
		MaxRetries: 0,
		Backoff:    ExponentialBackoff(500*time.Millisecond, 30*time.Second),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Complete implements provider.Provider. It waits out the backoff between
// attempts unless the context ends first.
func (e *Executor) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	if e.BaseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.BaseTimeout)
		defer cancel()
	}
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= e.MaxRetries; attempt++ {
		attempts++
		resp, err := e.Provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == e.MaxRetries {
			break
		}
		if e.Backoff != nil {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("completion after %d attempts: %w", attempts, ctx.Err())
			case <-time.After(e.Backoff(attempt)):
			}
		}
	}
	return nil, fmt.Errorf("completion after %d attempts: %w", attempts, lastErr)
}

// Model implements provider.Provider.
func (e *Executor) Model() string {
	return e.Provider.Model()
}

// Ping implements provider.Provider. Readiness is never retried.
func (e *Executor) Ping(ctx context.Context) error {
	return e.Provider.Ping(ctx)
}
