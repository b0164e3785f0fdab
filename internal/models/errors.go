package models

import "fmt"

// ValidationError rejects malformed order parameters synchronously at
// creation time. Orders that fail validation never reach the scheduler.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
