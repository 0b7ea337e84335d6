package distill

import (
	"context"
	"time"

	auditdomain "labstate/internal/audit/domain"
	rundomain "labstate/internal/run/domain"
	signaldomain "labstate/internal/signal/domain"
	statedomain "labstate/internal/state/domain"
)

// Store is the persistence surface the orchestrator drives. CommitVersion is
// the only transactional member; everything else is a single statement.
type Store interface {
	// LatestState returns the lab's current state version, or nil if the lab
	// has none yet.
	LatestState(ctx context.Context, labID string) (*statedomain.StateVersion, error)
	// UnprocessedSignals returns up to limit unprocessed signals for the lab,
	// oldest first.
	UnprocessedSignals(ctx context.Context, labID string, limit int) ([]*signaldomain.Signal, error)
	// ResolveSignals returns the signals with the given IDs that belong to the
	// lab and are still unprocessed. IDs that do not resolve are dropped.
	ResolveSignals(ctx context.Context, labID string, ids []string) ([]*signaldomain.Signal, error)
	// CreateRun persists the run row in running status.
	CreateRun(ctx context.Context, r *rundomain.Run) error
	// FailRun marks the run failed. Best effort on error paths; callers log
	// rather than propagate its error.
	FailRun(ctx context.Context, runID string, at time.Time) error
	// CommitVersion atomically appends the state version, marks the batch
	// processed, completes the run, and writes the audit entry. Returns
	// ErrVersionConflict when the version was taken by a concurrent commit,
	// in which case nothing is written.
	CommitVersion(ctx context.Context, c Commit) error
}

// Commit is the unit of work CommitVersion applies in one transaction.
type Commit struct {
	State       *statedomain.StateVersion
	SignalIDs   []string
	RunID       string
	CompletedAt time.Time
	Audit       *auditdomain.Entry
}
