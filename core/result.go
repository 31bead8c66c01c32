package core

import "math"

// EvaluationResult is the outcome of one comparison. Score is on the 0-5
// grading scale, Similarity the clamped cosine similarity in [0, 1].
type EvaluationResult struct {
	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
	Feedback   string  `json:"feedback"`
}

// Percent returns the similarity as a percentage rounded to one decimal.
func (r *EvaluationResult) Percent() float64 {
	return math.Round(r.Similarity*1000) / 10
}
