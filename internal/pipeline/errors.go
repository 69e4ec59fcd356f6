package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/jgoulah/espisync/pkg/models"
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageFetch Stage = "fetch"
	StageParse Stage = "parse"
	StageWrite Stage = "write"
)

// ErrWrite is wrapped by every WriteError.
var ErrWrite = errors.New("write failed")

// StageError tags an error with the stage that produced it, so callers can
// tell failure classes apart with errors.As.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage err came from, or "" if it carries none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// WriteError reports a sink that rejected a reading. Readings the sink
// accepted before the failure are not rolled back.
type WriteError struct {
	Sink    string
	Reading models.Reading // the first reading not accepted
	Written int            // readings the sink accepted
	Total   int
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing to %s at %s (%d of %d readings written): %v",
		e.Sink, e.Reading.Time().Format(time.RFC3339), e.Written, e.Total, e.Err)
}

func (e *WriteError) Unwrap() []error {
	return []error{ErrWrite, e.Err}
}
