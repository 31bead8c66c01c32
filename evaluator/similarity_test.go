package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klejdi94/assay/embedding"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{0.3, -1.2, 4.5, 0.01}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-6)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestCosineSimilarityOpposite(t *testing.T) {
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{2, 0}, []float32{-3, 0}), 1e-6)
}

func TestCosineSimilaritySymmetric(t *testing.T) {
	a := []float32{0.5, 1.5, -0.25}
	b := []float32{1.0, 0.0, 2.0}
	assert.Equal(t, CosineSimilarity(a, b), CosineSimilarity(b, a))
}

func TestCosineSimilarityDegenerate(t *testing.T) {
	tests := []struct {
		name string
		a    []float32
		b    []float32
	}{
		{"both empty", nil, nil},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}},
		{"zero norm left", []float32{0, 0}, []float32{1, 2}},
		{"zero norm right", []float32{1, 2}, []float32{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Zero(t, CosineSimilarity(tt.a, tt.b))
		})
	}
}

func TestCosineSimilarityLexicalSelf(t *testing.T) {
	emb := embedding.NewLexicalEmbedder()
	ctx := context.Background()
	vec1, err := emb.Embed(ctx, "Plants convert sunlight into chemical energy")
	require.NoError(t, err)
	vec2, err := emb.Embed(ctx, "Plants convert sunlight into chemical energy")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, CosineSimilarity(vec1, vec2), 1e-6)
}

func TestCosineSimilarityLexicalOrdering(t *testing.T) {
	emb := embedding.NewLexicalEmbedder()
	ctx := context.Background()
	model, err := emb.Embed(ctx, "Photosynthesis converts sunlight into chemical energy in plants")
	require.NoError(t, err)
	related, err := emb.Embed(ctx, "Plants use photosynthesis to turn sunlight into energy")
	require.NoError(t, err)
	unrelated, err := emb.Embed(ctx, "The stock market closed higher on Tuesday afternoon")
	require.NoError(t, err)

	assert.Greater(t, CosineSimilarity(model, related), CosineSimilarity(model, unrelated))
}

func TestClamp01(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.7, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clamp01(tt.in))
	}
}
