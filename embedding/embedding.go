// Package embedding provides the text embedding providers used for answer
// similarity, from remote inference APIs down to a dependency-free lexical
// fallback that always succeeds.
package embedding

import "context"

// Embedder produces a vector embedding for text.
//
// Vector dimensionality is provider-defined; both sides of a comparison must
// come from the same provider.
type Embedder interface {
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Model identifies the underlying model for reporting.
	Model() string
	// Ping reports whether the provider is reachable and ready to embed.
	Ping(ctx context.Context) error
}
