package finality

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection indicates a transient failure to reach the source
	// or target node. Callers retry with backoff; it is never fatal to
	// the loop itself.
	ErrConnection = errors.New("connection error")

	// ErrProofRejected indicates the target chain rejected a submitted
	// finality proof, e.g. because a newer finalized header is already
	// present. Non-fatal; triggers re-selection without backoff.
	ErrProofRejected = errors.New("finality proof rejected by target")

	// ErrNotFound indicates a requested header has been pruned on the
	// source or is not yet produced.
	ErrNotFound = errors.New("header not found")

	// ErrHalted indicates the sync loop has stopped after a fatal error
	// and will not resume. Outstanding waiters receive this error.
	ErrHalted = errors.New("sync loop halted")
)

// InvariantError reports a regression of the target chain's best
// finalized source header. Finality never un-happens on a healthy
// chain, so a decrease means a consensus-level fault. The loop halts
// and surfaces this to its supervisor; it is never auto-healed.
type InvariantError struct {
	Previous HeaderID
	Observed HeaderID
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("best finalized header on target regressed from %s to %s", e.Previous, e.Observed)
}
