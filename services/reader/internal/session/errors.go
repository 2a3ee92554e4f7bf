package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRestored is returned for navigation before the saved position
	// has been applied.
	ErrNotRestored = errors.New("session: position not restored yet")
	ErrClosed      = errors.New("session: closed")
)

// ValidationError reports user input outside the allowed range. The session
// is left unchanged.
type ValidationError struct {
	Field    string
	Value    int
	Min, Max int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %d out of range [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}
