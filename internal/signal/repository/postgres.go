package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"labstate/internal/signal/domain"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a signal repository that uses the given pool for persistence.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create persists the signal. The signal must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Signal) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO raw_signals (id, lab_id, kind, content, processed, created_at, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.LabID, string(s.Kind), []byte(s.Content), s.Processed, s.CreatedAt, s.CreatedBy)
	return err
}

// GetByID returns the signal for id scoped to the lab, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, labID, id string) (*domain.Signal, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, lab_id, kind, content, processed, created_at, created_by
		 FROM raw_signals WHERE lab_id = $1 AND id = $2`, labID, id)
	s, err := scanSignal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListByLab returns signals for the lab matching the filter, newest first.
func (r *PostgresRepository) ListByLab(ctx context.Context, labID string, f ListFilter) ([]*domain.Signal, error) {
	query := `SELECT id, lab_id, kind, content, processed, created_at, created_by
	          FROM raw_signals WHERE lab_id = $1`
	args := []any{labID}
	query, args = applyFilter(query, args, f)
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += ` LIMIT $` + itoa(len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountByLab returns the number of signals for the lab matching the filter.
func (r *PostgresRepository) CountByLab(ctx context.Context, labID string, f ListFilter) (int64, error) {
	query := `SELECT count(*) FROM raw_signals WHERE lab_id = $1`
	args := []any{labID}
	query, args = applyFilter(query, args, f)

	var n int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func applyFilter(query string, args []any, f ListFilter) (string, []any) {
	if f.Processed != nil {
		args = append(args, *f.Processed)
		query += ` AND processed = $` + itoa(len(args))
	}
	if f.Kind != nil {
		args = append(args, string(*f.Kind))
		query += ` AND kind = $` + itoa(len(args))
	}
	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(row rowScanner) (*domain.Signal, error) {
	s := &domain.Signal{}
	var kind string
	var content []byte
	if err := row.Scan(&s.ID, &s.LabID, &kind, &content, &s.Processed, &s.CreatedAt, &s.CreatedBy); err != nil {
		return nil, err
	}
	s.Kind = domain.Kind(kind)
	s.Content = content
	return s, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
