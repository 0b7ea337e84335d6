package distill

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSignals means the lab had no unprocessed signals to fold. Not an
	// attempt; no run row is written and no retry is scheduled.
	ErrNoSignals = errors.New("no unprocessed signals")
	// ErrVersionConflict means another distillation committed the reserved
	// version first. The loser's run is failed and the attempt may be retried
	// against the new latest version.
	ErrVersionConflict = errors.New("state version conflict")
)

// FailedError wraps a distillation failure with the lab and run it belongs to.
// errors.Is sees through it to the underlying cause.
type FailedError struct {
	LabID string
	RunID string
	Err   error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("distillation failed for lab %s (run %s): %v", e.LabID, e.RunID, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

// Retryable reports whether a later attempt could succeed. Only the empty-batch
// case is terminal; capability outages, schema violations, version conflicts,
// and storage errors can all resolve on retry.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrNoSignals)
}
