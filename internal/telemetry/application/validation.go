package application

import "fmt"

// ValidationErrorKind classifies an ingest validation failure.
type ValidationErrorKind string

const (
	ValidationMissingField ValidationErrorKind = "missing-field"
	ValidationWrongType    ValidationErrorKind = "wrong-type"
	ValidationInvalidEnum  ValidationErrorKind = "invalid-enum"
)

// ValidationError rejects a single message. It is local and non-fatal: the
// transport adapter decides whether to reply 4xx or drop and log.
type ValidationError struct {
	Kind  ValidationErrorKind
	Field string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e == nil {
		return "validation error"
	}
	return fmt.Sprintf("validation: %s: %s", e.Kind, e.Field)
}

func missingField(field string) *ValidationError {
	return &ValidationError{Kind: ValidationMissingField, Field: field}
}

func wrongType(field string) *ValidationError {
	return &ValidationError{Kind: ValidationWrongType, Field: field}
}

func invalidEnum(field string) *ValidationError {
	return &ValidationError{Kind: ValidationInvalidEnum, Field: field}
}
