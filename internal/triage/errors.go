package triage

import (
	"errors"
	"fmt"
)

// ErrBudgetExceeded marks a run that ran out of wall-clock budget.
var ErrBudgetExceeded = errors.New("run budget exceeded")

// PersistenceError wraps a store failure during commit. The run degrades
// instead of failing: the reply is still attempted, and the outcome
// reports the mutations as uncommitted.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// FatalModelError marks a non-transient model failure in the assistant
// stage. No reply is fabricated for these runs.
type FatalModelError struct {
	Iteration int
	Err       error
}

func (e *FatalModelError) Error() string {
	return fmt.Sprintf("model call failed (iteration %d): %v", e.Iteration, e.Err)
}

func (e *FatalModelError) Unwrap() error { return e.Err }
