package evaluator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/klejdi94/assay/core"
)

func TestScorerResult(t *testing.T) {
	s := NewScorer(nil)
	res := s.Result(0.84)

	assert.InDelta(t, 4.2, res.Score, 1e-9)
	assert.InDelta(t, 0.84, res.Similarity, 1e-9)
	assert.True(t, strings.HasPrefix(res.Feedback, "Very good answer"), "got %q", res.Feedback)
}

func TestScorerScoreRounding(t *testing.T) {
	tests := []struct {
		similarity float64
		score      float64
	}{
		{0, 0},
		{0.5, 2.5},
		{0.84, 4.2},
		{0.96, 4.8},
		{1, 5},
		{1.3, 5},  // clamped before scoring
		{-0.2, 0}, // clamped before scoring
	}
	for _, tt := range tests {
		res := NewScorer(nil).Result(tt.similarity)
		assert.InDelta(t, tt.score, res.Score, 1e-9, "similarity %v", tt.similarity)
	}
}

func TestScorerSimilarityRounding(t *testing.T) {
	s := NewScorer(nil)
	assert.InDelta(t, 0.846, s.Result(0.8456).Similarity, 1e-9)
	assert.InDelta(t, 0.844, s.Result(0.84449).Similarity, 1e-9)
	assert.InDelta(t, 1.0, s.Result(1.2).Similarity, 1e-9)
	assert.InDelta(t, 0.0, s.Result(-0.4).Similarity, 1e-9)
}

func TestScorerBandSelection(t *testing.T) {
	tests := []struct {
		name       string
		similarity float64
		prefix     string
	}{
		{"perfect", 1.0, "Excellent answer!"},
		{"on 90 boundary", 0.9, "Excellent answer!"},
		{"rounds up into 90 band", 0.895, "Excellent answer!"},
		{"just below 90", 0.894, "Very good answer"},
		{"on 80 boundary", 0.8, "Very good answer"},
		{"mid 70s", 0.74, "Good answer"},
		{"on 60 boundary", 0.6, "Your answer captures"},
		{"mid 50s", 0.55, "Your answer shows partial"},
		{"on 40 boundary", 0.4, "Your answer addresses some"},
		{"rounds down out of 40 band", 0.394, "Your answer needs significant revision"},
		{"zero", 0, "Your answer needs significant revision"},
	}
	s := NewScorer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := s.Feedback(tt.similarity)
			assert.True(t, strings.HasPrefix(fb, tt.prefix), "similarity %v: got %q", tt.similarity, fb)
		})
	}
}

func TestScorerCustomRubric(t *testing.T) {
	r := &core.Rubric{Bands: []core.Band{
		{Threshold: 50, Message: "pass"},
		{Threshold: 0, Message: "fail"},
	}}
	s := NewScorer(r)

	assert.Equal(t, "pass", s.Feedback(0.5))
	assert.Equal(t, "pass", s.Feedback(0.495)) // rounds to 50
	assert.Equal(t, "fail", s.Feedback(0.49))
}
