package ring

import (
	"errors"
	"fmt"
)

var (
	// ErrBackpressure signals that the buffer is full relative to its slowest
	// group. It is a transient condition, not a failure: callers retry, wait,
	// or shed load.
	ErrBackpressure = errors.New("ring: buffer full")

	// ErrCapacity is returned when a buffer is created with a capacity that
	// is not a power of two.
	ErrCapacity = errors.New("ring: capacity must be a positive power of two")

	// ErrGroupClosed is returned when an operation requires an active group
	// but the group is draining, halted, or closed.
	ErrGroupClosed = errors.New("ring: group not active")
)

// ReclamationError reports a slot being reused while a cursor could still
// reach it. It indicates a claim-protocol or scheduler bug, never a runtime
// condition, and is raised as a panic with full diagnostics.
type ReclamationError struct {
	Buffer    string
	Slot      int64
	Occupant  int64
	Sequence  int64
	Watermark int64
}

func (e *ReclamationError) Error() string {
	return fmt.Sprintf(
		"ring: reclamation invariant violated on %q: slot %d still holds live sequence %d (publishing %d, watermark %d)",
		e.Buffer, e.Slot, e.Occupant, e.Sequence, e.Watermark,
	)
}
