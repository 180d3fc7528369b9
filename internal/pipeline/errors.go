package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotRunning is returned by operations that require a started
	// pipeline.
	ErrNotRunning = errors.New("pipeline: not running")

	// ErrRunning is returned by construction operations after Start.
	ErrRunning = errors.New("pipeline: already running")
)

// GraphCycleError reports a processor registration that would close a cycle
// in the buffer graph. Construction-time and fatal to assembly.
type GraphCycleError struct {
	Path []string
}

func (e *GraphCycleError) Error() string {
	return fmt.Sprintf("pipeline: processor would create cycle: %s", strings.Join(e.Path, " -> "))
}

// LogicError wraps a handler failure for a specific claimed sequence. How it
// propagates depends on the processor's configured policy.
type LogicError struct {
	Processor string
	Seq       int64
	Err       error
}

func (e *LogicError) Error() string {
	return fmt.Sprintf("pipeline: processor %q failed on sequence %d: %v", e.Processor, e.Seq, e.Err)
}

func (e *LogicError) Unwrap() error { return e.Err }

// StallError reports a worker that held a claim past the configured timeout
// and did not yield to cancellation within the grace period.
type StallError struct {
	Processor string
	Worker    int64
	Seq       int64
	Held      time.Duration
}

func (e *StallError) Error() string {
	return fmt.Sprintf("pipeline: worker %d of %q stalled on sequence %d for %s", e.Worker, e.Processor, e.Seq, e.Held)
}
