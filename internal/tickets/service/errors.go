package tickets

import (
	"errors"
	"strings"
)

var (
	ErrValidation    = errors.New("invalid ticket request")
	ErrQuotaExceeded = errors.New("ticket limit reached for this VATIN")
	ErrNotFound      = errors.New("ticket not found")
	ErrUnauthorized  = errors.New("authentication required")
	ErrStore         = errors.New("ticket store failure")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field of an issuance request that failed
// validation. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}
