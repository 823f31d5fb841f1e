package store

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOption is matched by errors that reject an unknown
	// single-select choice.
	ErrInvalidOption = errors.New("unknown select option")

	// ErrBatchTooLarge is returned when a request carries more than
	// MaxBatchSize records.
	ErrBatchTooLarge = errors.New("batch too large")

	// ErrTableNotFound is returned for operations on a table the store does not have.
	ErrTableNotFound = errors.New("table not found")
)

// InvalidOptionError reports a write that named an unknown single-select choice.
// Backends that cannot tell which field was at fault leave Field and Value empty.
type InvalidOptionError struct {
	Table   string
	Field   string
	Value   string
	Message string
}

func (e *InvalidOptionError) Error() string {
	msg := fmt.Sprintf("%s: INVALID_MULTIPLE_CHOICE_OPTIONS", e.Table)
	if e.Field != "" {
		msg += fmt.Sprintf(": field %q has no option %q", e.Field, e.Value)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *InvalidOptionError) Is(target error) bool {
	return target == ErrInvalidOption
}
