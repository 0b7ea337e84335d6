// Package repository provides persistence for the lab state version log.
package repository

import (
	"context"
	"errors"

	"labstate/internal/state/domain"
)

// ErrDuplicateVersion is returned by Create when a state version for the same
// (lab, version) pair already exists. The unique constraint backing it is the
// engine's concurrency guard.
var ErrDuplicateVersion = errors.New("state version already exists for this lab")

// Repository defines read and append operations on the state version log.
// The log is append-only; no update or delete operations exist.
type Repository interface {
	// Latest returns the maximum-version state for the lab, or nil if the lab
	// has no versions yet.
	Latest(ctx context.Context, labID string) (*domain.StateVersion, error)
	// GetByVersion returns the given version for the lab, or nil if not found.
	GetByVersion(ctx context.Context, labID string, version int) (*domain.StateVersion, error)
	// ListByLab returns versions for the lab, newest first, paginated.
	ListByLab(ctx context.Context, labID string, limit, offset int32) ([]*domain.StateVersion, error)
	// CountByLab returns the number of versions for the lab.
	CountByLab(ctx context.Context, labID string) (int64, error)
	// Create appends the state version. Returns ErrDuplicateVersion when the
	// (lab, version) pair is already committed.
	Create(ctx context.Context, sv *domain.StateVersion) error
}
