// Package core provides the request, result and rubric types shared by the
// assay evaluation pipeline.
package core

import "errors"

// Sentinel errors for evaluation operations.
var (
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	ErrValidationFailed    = errors.New("validation failed")
	ErrRubricInvalid       = errors.New("invalid rubric")
	ErrRenderFailed        = errors.New("template render failed")
)

// ValidationError carries field-level validation context.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Is matches ErrValidationFailed so callers can classify the error without
// inspecting the field.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
