package models

import "fmt"

// ValidationError reports a payload that breaks a model rule. Message is safe
// to return to clients.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// InvalidInput marks the error as caused by the caller.
func (e *ValidationError) InvalidInput() bool {
	return true
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
