// Package repository implements the distillation engine's storage surface on
// Postgres, including the single transaction that commits a new state version.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"labstate/internal/distill"
	rundomain "labstate/internal/run/domain"
	signaldomain "labstate/internal/signal/domain"
	statedomain "labstate/internal/state/domain"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a distillation store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// LatestState returns the lab's current state version, or nil if none exists.
func (s *PostgresStore) LatestState(ctx context.Context, labID string) (*statedomain.StateVersion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, lab_id, version, state, token_count, created_at, created_by
		 FROM lab_states WHERE lab_id = $1 ORDER BY version DESC LIMIT 1`, labID)
	sv := &statedomain.StateVersion{}
	var stateJSON []byte
	var createdBy *string
	err := row.Scan(&sv.ID, &sv.LabID, &sv.Version, &stateJSON, &sv.TokenCount, &sv.CreatedAt, &createdBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
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

// UnprocessedSignals returns up to limit unprocessed signals for the lab,
// oldest first so the fold order matches ingestion order.
func (s *PostgresStore) UnprocessedSignals(ctx context.Context, labID string, limit int) ([]*signaldomain.Signal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, lab_id, kind, content, processed, created_at, created_by
		 FROM raw_signals WHERE lab_id = $1 AND processed = false
		 ORDER BY created_at ASC LIMIT $2`, labID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSignals(rows)
}

// ResolveSignals returns the requested signals that belong to the lab and are
// still unprocessed, oldest first. Unknown, already processed, and malformed
// IDs are dropped; the latter would otherwise fail uuid[] parameter encoding.
func (s *PostgresStore) ResolveSignals(ctx context.Context, labID string, ids []string) ([]*signaldomain.Signal, error) {
	valid := validUUIDs(ids)
	if len(valid) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, lab_id, kind, content, processed, created_at, created_by
		 FROM raw_signals WHERE lab_id = $1 AND processed = false AND id = ANY($2)
		 ORDER BY created_at ASC`, labID, valid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSignals(rows)
}

// CreateRun persists the run row.
func (s *PostgresStore) CreateRun(ctx context.Context, r *rundomain.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO distillation_runs
		 (id, lab_id, input_version, output_version, signal_ids, prompt_version, model, status, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.LabID, r.InputVersion, r.OutputVersion, r.SignalIDs,
		r.PromptVersion, r.Model, string(r.Status), r.StartedAt, r.CompletedAt)
	return err
}

// FailRun marks the run failed.
func (s *PostgresStore) FailRun(ctx context.Context, runID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE distillation_runs SET status = $2, completed_at = $3 WHERE id = $1`,
		runID, string(rundomain.StatusFailed), at)
	return err
}

// CommitVersion applies the commit in one transaction: append the state
// version, mark the batch processed, complete the run, write the audit entry.
// The state insert goes first so a concurrent commit of the same version
// aborts before anything else is touched.
func (s *PostgresStore) CommitVersion(ctx context.Context, c distill.Commit) error {
	stateJSON, err := json.Marshal(c.State.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	auditDetails, err := json.Marshal(c.Audit.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO lab_states (id, lab_id, version, state, token_count, created_at, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.State.ID, c.State.LabID, c.State.Version, stateJSON,
		c.State.TokenCount, c.State.CreatedAt, nullIfEmpty(c.State.CreatedBy))
	if err != nil {
		if isUniqueViolation(err) {
			return distill.ErrVersionConflict
		}
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE raw_signals SET processed = true
		 WHERE lab_id = $1 AND id = ANY($2) AND processed = false`,
		c.State.LabID, c.SignalIDs)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != int64(len(c.SignalIDs)) {
		// Part of the batch was consumed by a commit that slipped in between
		// selection and now. Treat it as a conflict and let the retry re-select.
		return distill.ErrVersionConflict
	}

	_, err = tx.Exec(ctx,
		`UPDATE distillation_runs SET status = $2, completed_at = $3 WHERE id = $1`,
		c.RunID, string(rundomain.StatusCompleted), c.CompletedAt)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO audit_logs (id, lab_id, actor, action, resource_type, resource_id, details, ip_address, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.Audit.ID, nullIfEmpty(c.Audit.LabID), c.Audit.Actor, c.Audit.Action,
		c.Audit.ResourceType, nullIfEmpty(c.Audit.ResourceID), auditDetails,
		nullIfEmpty(c.Audit.IPAddress), c.Audit.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func collectSignals(rows pgx.Rows) ([]*signaldomain.Signal, error) {
	var out []*signaldomain.Signal
	for rows.Next() {
		sig := &signaldomain.Signal{}
		var kind string
		var content []byte
		if err := rows.Scan(&sig.ID, &sig.LabID, &kind, &content, &sig.Processed, &sig.CreatedAt, &sig.CreatedBy); err != nil {
			return nil, err
		}
		sig.Kind = signaldomain.Kind(kind)
		sig.Content = content
		out = append(out, sig)
	}
	return out, rows.Err()
}

func validUUIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
