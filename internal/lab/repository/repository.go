// Package repository provides persistence for labs.
package repository

import (
	"context"

	"labstate/internal/lab/domain"
)

// Repository defines persistence operations for labs.
type Repository interface {
	// GetByID returns the lab for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Lab, error)
	// GetByOrg returns the lab owned by the given org, or nil if not found.
	GetByOrg(ctx context.Context, orgID string) (*domain.Lab, error)
	// Create persists the lab. The lab must have ID set.
	Create(ctx context.Context, l *domain.Lab) error
}
