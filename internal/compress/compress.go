// Package compress implements the contract with the external compression
// capability: prompt construction, the completion call, response parsing, and
// schema validation. The contract is stateless between calls; everything the
// model sees is passed in as the current snapshot and the signal batch.
package compress

import (
	"context"
	"errors"

	signaldomain "labstate/internal/signal/domain"
	statedomain "labstate/internal/state/domain"
)

var (
	// ErrUnavailable marks the capability as down, slow, or rate-limited.
	// Retryable: a later attempt may succeed.
	ErrUnavailable = errors.New("compression capability unavailable")
	// ErrSchemaViolation marks output that could not be parsed as the state
	// schema or that failed validation. Retryable by policy: a retry may yield
	// compliant output.
	ErrSchemaViolation = errors.New("compression output violates state schema")
)

// Compressor produces a candidate snapshot from the current state and a batch
// of signals. Implementations must validate the candidate against the state
// schema before returning it.
type Compressor interface {
	Compress(ctx context.Context, current statedomain.Snapshot, signals []*signaldomain.Signal) (statedomain.Snapshot, error)
	// Model identifies the completion model, recorded on each run.
	Model() string
}
