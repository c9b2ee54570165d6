package formula

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFormula is the hard failure for formula text that cannot
	// be tokenized or parsed
	ErrMalformedFormula = errors.New("malformed formula")

	// ErrEmptyReference is returned when a cell has no usable reference
	ErrEmptyReference = errors.New("empty cell reference")
)

// EvaluationError describes formula text the engine could not turn into an
// expression tree. callers should report it instead of persisting a zero.
type EvaluationError struct {
	Formula  string
	Position int
	Message  string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("failed to evaluate formula %q: %s at position %d", e.Formula, e.Message, e.Position)
}

func (e *EvaluationError) Unwrap() error {
	return ErrMalformedFormula
}

func newSyntaxError(pos int, format string, args ...any) *EvaluationError {
	return &EvaluationError{
		Position: pos,
		Message:  fmt.Sprintf(format, args...),
	}
}
