package evaluator

import (
	"math"

	"github.com/klejdi94/assay/core"
)

// Scorer turns a raw cosine similarity into a graded result.
type Scorer struct {
	rubric *core.Rubric
}

// NewScorer creates a scorer with the given rubric (nil means the default
// seven-band rubric).
func NewScorer(r *core.Rubric) *Scorer {
	if r == nil {
		r = core.DefaultRubric()
	}
	return &Scorer{rubric: r}
}

// Result grades a raw similarity. The similarity is clamped to [0, 1] and
// reported with three decimals; the score maps linearly onto the 0-5 scale,
// rounded to one decimal. Feedback bands are selected on the similarity
// percentage rounded to the nearest whole percent, so a value exactly on a
// boundary lands in the higher band.
func (s *Scorer) Result(similarity float64) core.EvaluationResult {
	sim := clamp01(similarity)
	return core.EvaluationResult{
		Score:      scoreValue(sim),
		Similarity: math.Round(sim*1000) / 1000,
		Feedback:   s.rubric.Feedback(bandPercent(sim)),
	}
}

// Feedback returns the rubric text alone for a raw similarity.
func (s *Scorer) Feedback(similarity float64) string {
	return s.rubric.Feedback(bandPercent(clamp01(similarity)))
}

func scoreValue(sim float64) float64 {
	score := math.Round(sim*5*10) / 10
	if score < 0 {
		return 0
	}
	if score > 5 {
		return 5
	}
	return score
}

func bandPercent(sim float64) float64 {
	return math.Round(sim * 100)
}
