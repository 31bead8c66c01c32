package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexicalEmbedder_Deterministic(t *testing.T) {
	e := NewLexicalEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "Goroutines are lightweight threads managed by the Go runtime.")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Goroutines are lightweight threads managed by the Go runtime.")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestLexicalEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e := NewLexicalEmbedder()
	vec, err := e.Embed(context.Background(), "   \t\n")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestLexicalEmbedder_Features(t *testing.T) {
	e := NewLexicalEmbedder()
	vec, err := e.Embed(context.Background(), "the cat")
	require.NoError(t, err)

	// Two tokens, one of them a stopword.
	assert.InDelta(t, math.Log1p(2), float64(vec[0]), 1e-6)
	assert.InDelta(t, 0.5, float64(vec[1]), 1e-6)

	var bucketSum float32
	for _, v := range vec[2:] {
		bucketSum += v
	}
	assert.Equal(t, float32(1), bucketSum)
}

func TestLexicalEmbedder_DistinctTextsDiffer(t *testing.T) {
	e := NewLexicalEmbedder()
	ctx := context.Background()
	a, err := e.Embed(ctx, "photosynthesis converts sunlight into chemical energy")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "goroutines communicate over channels")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestLexicalEmbedder_CustomDims(t *testing.T) {
	e := &LexicalEmbedder{Dims: 16}
	vec, err := e.Embed(context.Background(), "dimension check")
	require.NoError(t, err)
	assert.Len(t, vec, 16)

	// Too-small dims fall back to the default.
	e = &LexicalEmbedder{Dims: 4}
	vec, err = e.Embed(context.Background(), "dimension check")
	require.NoError(t, err)
	assert.Len(t, vec, 64)
}

func TestLexicalEmbedder_AlwaysReady(t *testing.T) {
	e := NewLexicalEmbedder()
	assert.NoError(t, e.Ping(context.Background()))
	assert.Equal(t, "lexical-hash", e.Model())
}
