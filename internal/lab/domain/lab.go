package domain

import (
	"errors"
	"time"
)

// Lab represents a research lab, the tenant that owns all signals, states, and runs.
// One lab exists per organization; OrgID is the identity provider's org identifier.
type Lab struct {
	ID        string
	OrgID     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate validates the lab for persistence. Returns an error describing the first validation failure.
func (l *Lab) Validate() error {
	if l.OrgID == "" {
		return errors.New("org_id is required")
	}
	if l.Name == "" {
		return errors.New("name is required")
	}
	if len(l.Name) > 255 {
		return errors.New("name must be at most 255 characters")
	}
	return nil
}
