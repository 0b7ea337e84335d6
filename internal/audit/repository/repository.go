// Package repository provides persistence for audit log entries.
package repository

import (
	"context"

	"labstate/internal/audit/domain"
)

// Repository defines persistence operations for audit entries.
type Repository interface {
	// Create persists the entry. The entry must have ID set.
	Create(ctx context.Context, e *domain.Entry) error
	// ListByLab returns entries for the lab, newest first, paginated.
	ListByLab(ctx context.Context, labID string, limit, offset int32) ([]*domain.Entry, error)
}
