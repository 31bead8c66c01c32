package core

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Band maps a minimum similarity percentage to canned feedback text.
type Band struct {
	Threshold float64 `yaml:"threshold"`
	Message   string  `yaml:"message"`
}

// Rubric selects feedback by similarity percentage. Bands are ordered
// highest threshold first; a percentage exactly on a boundary lands in the
// higher band.
type Rubric struct {
	Bands []Band `yaml:"bands"`
}

// DefaultRubric returns the built-in seven-band grading rubric.
func DefaultRubric() *Rubric {
	return &Rubric{Bands: []Band{
		{Threshold: 90, Message: "Excellent answer! Your response demonstrates comprehensive understanding of the key concepts. Well-structured and complete."},
		{Threshold: 80, Message: "Very good answer with strong understanding of the main points. Consider adding more specific examples or technical details for improvement."},
		{Threshold: 70, Message: "Good answer covering most key concepts. You could enhance it by including more specific details or examples mentioned in the reference answer."},
		{Threshold: 60, Message: "Your answer captures the basic idea but lacks some important details. Review the key concepts and try to include more specific information."},
		{Threshold: 50, Message: "Your answer shows partial understanding but is missing significant details. Consider reviewing the reference answer and incorporating more key concepts."},
		{Threshold: 40, Message: "Your answer addresses some concepts but needs substantial improvement. Focus on understanding the core concepts better."},
		{Threshold: 0, Message: "Your answer needs significant revision. Please review the key concepts thoroughly and practice similar questions."},
	}}
}

// Feedback returns the message of the highest band whose threshold the
// percentage meets.
func (r *Rubric) Feedback(percent float64) string {
	for _, b := range r.Bands {
		if percent >= b.Threshold {
			return b.Message
		}
	}
	// Unreachable with a validated rubric; custom rubrics with gaps get a
	// neutral prompt to retry.
	return "Please review your answer and try again."
}

// Validate checks that bands stay within [0, 100], descend strictly and end
// with a zero-threshold catch-all.
func (r *Rubric) Validate() error {
	if len(r.Bands) == 0 {
		return fmt.Errorf("%w: no bands defined", ErrRubricInvalid)
	}
	prev := math.Inf(1)
	for i, b := range r.Bands {
		if b.Threshold < 0 || b.Threshold > 100 {
			return fmt.Errorf("%w: band %d threshold %v outside [0, 100]", ErrRubricInvalid, i, b.Threshold)
		}
		if b.Threshold >= prev {
			return fmt.Errorf("%w: band %d threshold %v not strictly descending", ErrRubricInvalid, i, b.Threshold)
		}
		if b.Message == "" {
			return fmt.Errorf("%w: band %d has an empty message", ErrRubricInvalid, i)
		}
		prev = b.Threshold
	}
	if last := r.Bands[len(r.Bands)-1]; last.Threshold != 0 {
		return fmt.Errorf("%w: final band threshold must be 0, got %v", ErrRubricInvalid, last.Threshold)
	}
	return nil
}

// LoadRubric reads and validates a rubric from a YAML file.
func LoadRubric(path string) (*Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubric: %w", err)
	}
	var r Rubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rubric: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}
