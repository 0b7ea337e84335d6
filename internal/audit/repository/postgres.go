package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"labstate/internal/audit/domain"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns an audit repository that uses the given pool for persistence.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create persists the entry. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Entry) error {
	var details []byte
	if e.Details != nil {
		var err error
		details, err = json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, lab_id, actor, action, resource_type, resource_id, details, ip_address, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, nullIfEmpty(e.LabID), e.Actor, e.Action, e.ResourceType,
		nullIfEmpty(e.ResourceID), details, nullIfEmpty(e.IPAddress), e.CreatedAt)
	return err
}

// ListByLab returns entries for the lab, newest first, paginated.
func (r *PostgresRepository) ListByLab(ctx context.Context, labID string, limit, offset int32) ([]*domain.Entry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, lab_id, actor, action, resource_type, resource_id, details, ip_address, created_at
		 FROM audit_logs WHERE lab_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		labID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Entry
	for rows.Next() {
		e := &domain.Entry{}
		var labID, resourceID, ip *string
		var details []byte
		if err := rows.Scan(&e.ID, &labID, &e.Actor, &e.Action, &e.ResourceType, &resourceID, &details, &ip, &e.CreatedAt); err != nil {
			return nil, err
		}
		if labID != nil {
			e.LabID = *labID
		}
		if resourceID != nil {
			e.ResourceID = *resourceID
		}
		if ip != nil {
			e.IPAddress = *ip
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal details: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
