package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"labstate/internal/state/domain"
)

// uniqueViolation is the Postgres error code for unique constraint violations.
const uniqueViolation = "23505"

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a state version repository that uses the given pool for persistence.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Latest returns the maximum-version state for the lab, or nil if none exists.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) Latest(ctx context.Context, labID string) (*domain.StateVersion, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, lab_id, version, state, token_count, created_at, created_by
		 FROM lab_states WHERE lab_id = $1 ORDER BY version DESC LIMIT 1`, labID)
	sv, err := scanStateVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return sv, nil
}

// GetByVersion returns the given version for the lab, or nil if not found.
func (r *PostgresRepository) GetByVersion(ctx context.Context, labID string, version int) (*domain.StateVersion, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, lab_id, version, state, token_count, created_at, created_by
		 FROM lab_states WHERE lab_id = $1 AND version = $2`, labID, version)
	sv, err := scanStateVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return sv, nil
}

// ListByLab returns versions for the lab, newest first, paginated.
func (r *PostgresRepository) ListByLab(ctx context.Context, labID string, limit, offset int32) ([]*domain.StateVersion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, lab_id, version, state, token_count, created_at, created_by
		 FROM lab_states WHERE lab_id = $1 ORDER BY version DESC LIMIT $2 OFFSET $3`,
		labID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.StateVersion
	for rows.Next() {
		sv, err := scanStateVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

// CountByLab returns the number of versions for the lab.
func (r *PostgresRepository) CountByLab(ctx context.Context, labID string) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM lab_states WHERE lab_id = $1`, labID).Scan(&n)
	return n, err
}

// Create appends the state version. Returns ErrDuplicateVersion on a
// (lab_id, version) unique violation.
func (r *PostgresRepository) Create(ctx context.Context, sv *domain.StateVersion) error {
	stateJSON, err := json.Marshal(sv.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO lab_states (id, lab_id, version, state, token_count, created_at, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sv.ID, sv.LabID, sv.Version, stateJSON, sv.TokenCount, sv.CreatedAt, nullIfEmpty(sv.CreatedBy))
	if isUniqueViolation(err) {
		return ErrDuplicateVersion
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStateVersion(row rowScanner) (*domain.StateVersion, error) {
	sv := &domain.StateVersion{}
	var stateJSON []byte
	var createdBy *string
	if err := row.Scan(&sv.ID, &sv.LabID, &sv.Version, &stateJSON, &sv.TokenCount, &sv.CreatedAt, &createdBy); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stateJSON, &sv.State); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if createdBy != nil {
		sv.CreatedBy = *createdBy
	}
	return sv, nil
}
