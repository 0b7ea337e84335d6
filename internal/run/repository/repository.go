// Package repository provides persistence for the distillation run ledger.
package repository

import (
	"context"
	"time"

	"labstate/internal/run/domain"
)

// Repository defines persistence operations for distillation runs. The ledger
// is write-only from the orchestrator's perspective; listing exists for
// observability and for diagnosing repeated failures per lab.
type Repository interface {
	// Create persists a new run row. The run must have ID set.
	Create(ctx context.Context, run *domain.Run) error
	// Finish marks the run terminal with the given status and completion time.
	Finish(ctx context.Context, id string, status domain.Status, at time.Time) error
	// ListByLab returns runs for the lab, newest first, paginated.
	ListByLab(ctx context.Context, labID string, limit, offset int32) ([]*domain.Run, error)
}
