// Package repository provides persistence for raw signals.
package repository

import (
	"context"

	"labstate/internal/signal/domain"
)

// ListFilter narrows ListByLab results. Nil fields mean no filtering.
type ListFilter struct {
	Processed *bool
	Kind      *domain.Kind
	Limit     int32
	Offset    int32
}

// Repository defines persistence operations for raw signals. Signals are
// append-only here; the processed flag flips only inside a distillation commit.
type Repository interface {
	// Create persists the signal. The signal must have ID set.
	Create(ctx context.Context, s *domain.Signal) error
	// GetByID returns the signal for id scoped to the lab, or nil if not found.
	GetByID(ctx context.Context, labID, id string) (*domain.Signal, error)
	// ListByLab returns signals for the lab matching the filter, newest first.
	ListByLab(ctx context.Context, labID string, f ListFilter) ([]*domain.Signal, error)
	// CountByLab returns the number of signals for the lab matching the filter.
	CountByLab(ctx context.Context, labID string, f ListFilter) (int64, error)
}
