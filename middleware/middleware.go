// Package middleware provides observability and cross-cutting wrappers for
// embedding providers.
package middleware

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/klejdi94/assay/embedding"
)

// Middleware wraps an embedder with additional behavior (logging, metrics,
// timeouts).
type Middleware func(embedding.Embedder) embedding.Embedder

// Chain wraps e with all middlewares in order (first middleware is outermost).
func Chain(e embedding.Embedder, mws ...Middleware) embedding.Embedder {
	for i := len(mws) - 1; i >= 0; i-- {
		e = mws[i](e)
	}
	return e
}

// loggingEmbedder logs requests and outcomes.
type loggingEmbedder struct {
	next embedding.Embedder
	logf func(format string, args ...interface{})
}

// Logging returns a middleware that logs each Embed call (model, text length,
// error).
func Logging(logf func(format string, args ...interface{})) Middleware {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return func(e embedding.Embedder) embedding.Embedder {
		return &loggingEmbedder{next: e, logf: logf}
	}
}

func (l *loggingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	l.logf("embed model=%s text_len=%d", l.next.Model(), len(text))
	vec, err := l.next.Embed(ctx, text)
	if err != nil {
		l.logf("embed error: %v", err)
		return nil, err
	}
	l.logf("embed ok dims=%d", len(vec))
	return vec, nil
}

func (l *loggingEmbedder) Model() string {
	return l.next.Model()
}

func (l *loggingEmbedder) Ping(ctx context.Context) error {
	return l.next.Ping(ctx)
}

// metricsEmbedder counts requests and errors.
type metricsEmbedder struct {
	next     embedding.Embedder
	requests atomic.Uint64
	errors   atomic.Uint64
}

// Metrics returns a middleware that counts requests and errors. Counters are
// exposed via the returned MetricsCounters.
func Metrics() (Middleware, *MetricsCounters) {
	m := &metricsEmbedder{}
	return func(e embedding.Embedder) embedding.Embedder {
		m.next = e
		return m
	}, &MetricsCounters{m: m}
}

// MetricsCounters provides read access to collected metrics.
type MetricsCounters struct {
	m *metricsEmbedder
}

func (c *MetricsCounters) Requests() uint64 { return c.m.requests.Load() }
func (c *MetricsCounters) Errors() uint64   { return c.m.errors.Load() }

func (m *metricsEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.requests.Add(1)
	vec, err := m.next.Embed(ctx, text)
	if err != nil {
		m.errors.Add(1)
		return nil, err
	}
	return vec, nil
}

func (m *metricsEmbedder) Model() string {
	return m.next.Model()
}

func (m *metricsEmbedder) Ping(ctx context.Context) error {
	return m.next.Ping(ctx)
}

// timeoutEmbedder bounds each call with a deadline.
type timeoutEmbedder struct {
	next embedding.Embedder
	d    time.Duration
}

// Timeout returns a middleware that bounds each Embed and Ping call to d.
// A non-positive d leaves the embedder unwrapped.
func Timeout(d time.Duration) Middleware {
	return func(e embedding.Embedder) embedding.Embedder {
		if d <= 0 {
			return e
		}
		return &timeoutEmbedder{next: e, d: d}
	}
}

func (t *timeoutEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Embed(ctx, text)
}

func (t *timeoutEmbedder) Model() string {
	return t.next.Model()
}

func (t *timeoutEmbedder) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Ping(ctx)
}
