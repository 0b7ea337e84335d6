package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"labstate/internal/run/domain"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a run repository that uses the given pool for persistence.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create persists a new run row. The run must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, run *domain.Run) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO distillation_runs
		 (id, lab_id, input_version, output_version, signal_ids, prompt_version, model, status, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.LabID, run.InputVersion, run.OutputVersion, run.SignalIDs,
		run.PromptVersion, run.Model, string(run.Status), run.StartedAt, run.CompletedAt)
	return err
}

// Finish marks the run terminal with the given status and completion time.
func (r *PostgresRepository) Finish(ctx context.Context, id string, status domain.Status, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE distillation_runs SET status = $2, completed_at = $3 WHERE id = $1`,
		id, string(status), at)
	return err
}

// ListByLab returns runs for the lab, newest first, paginated.
func (r *PostgresRepository) ListByLab(ctx context.Context, labID string, limit, offset int32) ([]*domain.Run, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, lab_id, input_version, output_version, signal_ids, prompt_version, model, status, started_at, completed_at
		 FROM distillation_runs WHERE lab_id = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3`,
		labID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Run
	for rows.Next() {
		run := &domain.Run{}
		var status string
		if err := rows.Scan(&run.ID, &run.LabID, &run.InputVersion, &run.OutputVersion, &run.SignalIDs,
			&run.PromptVersion, &run.Model, &status, &run.StartedAt, &run.CompletedAt); err != nil {
			return nil, err
		}
		run.Status = domain.Status(status)
		out = append(out, run)
	}
	return out, rows.Err()
}
