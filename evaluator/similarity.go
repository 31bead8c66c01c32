package evaluator

import "math"

// CosineSimilarity returns the cosine similarity between two vectors.
// Degenerate inputs (empty vectors, mismatched lengths, a zero-norm side)
// return 0 rather than an error or NaN, so a bad embedding can never fault
// an evaluation.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// clamp01 bounds a similarity to [0, 1]. Embeddings of natural text sit in
// the positive range; a negative cosine carries no grading signal.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
