package core

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// EvaluationRequest is a single answer comparison: the reference answer a
// grader supplied and the answer a student submitted, with an optional
// question for feedback context.
type EvaluationRequest struct {
	Question      string `json:"question,omitempty"`
	ModelAnswer   string `json:"modelAnswer"`
	StudentAnswer string `json:"studentAnswer"`
}

// Limits bounds the minimum accepted answer lengths, measured in characters
// after trimming. A zero minimum disables the check for that field.
type Limits struct {
	MinModelAnswerLen   int
	MinStudentAnswerLen int
}

// DefaultLimits rejects answers too short to compare meaningfully.
var DefaultLimits = Limits{MinModelAnswerLen: 10, MinStudentAnswerLen: 5}

// Normalize trims surrounding whitespace from every field.
func (r *EvaluationRequest) Normalize() {
	r.Question = strings.TrimSpace(r.Question)
	r.ModelAnswer = strings.TrimSpace(r.ModelAnswer)
	r.StudentAnswer = strings.TrimSpace(r.StudentAnswer)
}

// Validate checks required fields and minimum lengths against lim. Callers
// normalize first; validation never reaches a provider.
func (r *EvaluationRequest) Validate(lim Limits) error {
	if r.ModelAnswer == "" {
		return &ValidationError{Field: "modelAnswer", Value: r.ModelAnswer, Message: "required field is missing"}
	}
	if r.StudentAnswer == "" {
		return &ValidationError{Field: "studentAnswer", Value: r.StudentAnswer, Message: "required field is missing"}
	}
	if lim.MinModelAnswerLen > 0 && utf8.RuneCountInString(r.ModelAnswer) < lim.MinModelAnswerLen {
		return &ValidationError{
			Field:   "modelAnswer",
			Value:   r.ModelAnswer,
			Message: fmt.Sprintf("must be at least %d characters", lim.MinModelAnswerLen),
		}
	}
	if lim.MinStudentAnswerLen > 0 && utf8.RuneCountInString(r.StudentAnswer) < lim.MinStudentAnswerLen {
		return &ValidationError{
			Field:   "studentAnswer",
			Value:   r.StudentAnswer,
			Message: fmt.Sprintf("must be at least %d characters", lim.MinStudentAnswerLen),
		}
	}
	return nil
}
