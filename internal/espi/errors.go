package espi

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedDocument indicates the document is not parseable XML.
	ErrMalformedDocument = errors.New("espi: malformed document")

	// ErrMissingField indicates a required element is absent from an IntervalReading.
	ErrMissingField = errors.New("espi: missing required field")

	// ErrInvalidField indicates a required element holds an unusable value.
	ErrInvalidField = errors.New("espi: invalid field value")
)

// FieldError locates a bad IntervalReading inside the feed.
// Positions are zero-based and count only "Electric readings" entries.
type FieldError struct {
	Entry   int
	Block   int
	Reading int
	Field   string // e.g. "timePeriod/start"
	Err     error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("entry %d, block %d, reading %d: %s: %v", e.Entry, e.Block, e.Reading, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
