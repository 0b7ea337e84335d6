package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"labstate/internal/lab/domain"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a lab repository that uses the given pool for persistence.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByID returns the lab for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Lab, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, org_id, name, created_at, updated_at FROM labs WHERE id = $1`, id)
	l := &domain.Lab{}
	if err := row.Scan(&l.ID, &l.OrgID, &l.Name, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

// GetByOrg returns the lab owned by the given org, or nil if not found.
func (r *PostgresRepository) GetByOrg(ctx context.Context, orgID string) (*domain.Lab, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, org_id, name, created_at, updated_at FROM labs WHERE org_id = $1`, orgID)
	l := &domain.Lab{}
	if err := row.Scan(&l.ID, &l.OrgID, &l.Name, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

// Create persists the lab. The lab must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, l *domain.Lab) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO labs (id, org_id, name, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		l.ID, l.OrgID, l.Name, l.CreatedAt, l.UpdatedAt)
	return err
}
