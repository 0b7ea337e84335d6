// Package distill implements the distillation engine: it folds batches of
// unprocessed signals into new state versions through the compression
// capability, one contiguous version at a time per lab.
package distill

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	auditdomain "labstate/internal/audit/domain"
	"labstate/internal/compress"
	rundomain "labstate/internal/run/domain"
	signaldomain "labstate/internal/signal/domain"
	statedomain "labstate/internal/state/domain"
)

// Result is the outcome of a successful distillation.
type Result struct {
	Run   *rundomain.Run
	State *statedomain.StateVersion
}

// Orchestrator executes single distillation attempts. Retry policy lives in
// the Scheduler; the orchestrator itself never retries.
type Orchestrator struct {
	store      Store
	compressor compress.Compressor
	log        *zap.Logger

	batchSize      int
	maxStateTokens int

	runsTotal      metric.Int64Counter
	budgetExceeded metric.Int64Counter
	compressSecs   metric.Float64Histogram
}

// NewOrchestrator wires an orchestrator. batchSize caps how many signals one
// attempt folds; maxStateTokens is the soft budget for the serialized snapshot.
func NewOrchestrator(store Store, compressor compress.Compressor, meter metric.Meter, log *zap.Logger, batchSize, maxStateTokens int) (*Orchestrator, error) {
	runsTotal, err := meter.Int64Counter("distill_runs_total",
		metric.WithDescription("Distillation runs by terminal status"))
	if err != nil {
		return nil, fmt.Errorf("create distill_runs_total: %w", err)
	}
	budgetExceeded, err := meter.Int64Counter("distill_budget_exceeded_total",
		metric.WithDescription("Committed snapshots exceeding the token budget"))
	if err != nil {
		return nil, fmt.Errorf("create distill_budget_exceeded_total: %w", err)
	}
	compressSecs, err := meter.Float64Histogram("distill_compression_duration_seconds",
		metric.WithDescription("Compression call latency"))
	if err != nil {
		return nil, fmt.Errorf("create distill_compression_duration_seconds: %w", err)
	}
	return &Orchestrator{
		store:          store,
		compressor:     compressor,
		log:            log,
		batchSize:      batchSize,
		maxStateTokens: maxStateTokens,
		runsTotal:      runsTotal,
		budgetExceeded: budgetExceeded,
		compressSecs:   compressSecs,
	}, nil
}

// Distill runs one attempt for the lab. signalIDs narrows the batch to those
// signals; empty means all unprocessed signals up to the batch limit. actor is
// recorded as the creator of the resulting version and audit entry.
//
// Returns ErrNoSignals when there is nothing to fold. All other failures come
// back wrapped in a FailedError carrying the run that was failed.
func (o *Orchestrator) Distill(ctx context.Context, labID string, signalIDs []string, actor string) (*Result, error) {
	latest, err := o.store.LatestState(ctx, labID)
	if err != nil {
		return nil, fmt.Errorf("load latest state: %w", err)
	}
	current := statedomain.Empty()
	var inputVersion *int
	outputVersion := 1
	if latest != nil {
		current = latest.State
		v := latest.Version
		inputVersion = &v
		outputVersion = latest.Version + 1
	}

	signals, err := o.selectBatch(ctx, labID, signalIDs)
	if err != nil {
		return nil, fmt.Errorf("select signals: %w", err)
	}
	if len(signals) == 0 {
		return nil, ErrNoSignals
	}
	ids := make([]string, len(signals))
	for i, s := range signals {
		ids[i] = s.ID
	}

	run := &rundomain.Run{
		ID:            uuid.NewString(),
		LabID:         labID,
		InputVersion:  inputVersion,
		OutputVersion: outputVersion,
		SignalIDs:     ids,
		PromptVersion: compress.PromptVersion,
		Model:         o.compressor.Model(),
		Status:        rundomain.StatusRunning,
		StartedAt:     time.Now().UTC(),
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	compressStart := time.Now()
	candidate, err := o.compressor.Compress(ctx, current, signals)
	o.compressSecs.Record(ctx, time.Since(compressStart).Seconds())
	if err != nil {
		return nil, o.fail(ctx, run, err)
	}

	// The model is not trusted with the signal counter; it is derived from the
	// committed history so it can only grow.
	candidate.SignalCount = current.SignalCount + len(signals)

	serialized, err := json.Marshal(candidate)
	if err != nil {
		return nil, o.fail(ctx, run, fmt.Errorf("serialize candidate: %w", err))
	}
	tokens := compress.CountTokens(string(serialized))
	if tokens > o.maxStateTokens {
		o.budgetExceeded.Add(ctx, 1, metric.WithAttributes(attribute.String("lab_id", labID)))
		o.log.Warn("state exceeds token budget, committing anyway",
			zap.String("lab_id", labID),
			zap.Int("version", outputVersion),
			zap.Int("tokens", tokens),
			zap.Int("budget", o.maxStateTokens))
	}

	completedAt := time.Now().UTC()
	sv := &statedomain.StateVersion{
		ID:         uuid.NewString(),
		LabID:      labID,
		Version:    outputVersion,
		State:      candidate,
		TokenCount: &tokens,
		CreatedAt:  completedAt,
		CreatedBy:  actor,
	}
	commit := Commit{
		State:       sv,
		SignalIDs:   ids,
		RunID:       run.ID,
		CompletedAt: completedAt,
		Audit: &auditdomain.Entry{
			ID:           uuid.NewString(),
			LabID:        labID,
			Actor:        actor,
			Action:       "distillation.completed",
			ResourceType: "state_version",
			ResourceID:   sv.ID,
			Details: map[string]any{
				"run_id":       run.ID,
				"version":      outputVersion,
				"signal_count": len(signals),
				"token_count":  tokens,
			},
			CreatedAt: completedAt,
		},
	}
	if err := o.store.CommitVersion(ctx, commit); err != nil {
		return nil, o.fail(ctx, run, err)
	}

	run.Status = rundomain.StatusCompleted
	run.CompletedAt = &completedAt
	o.runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "completed")))
	o.log.Info("distillation committed",
		zap.String("lab_id", labID),
		zap.String("run_id", run.ID),
		zap.Int("version", outputVersion),
		zap.Int("signals", len(signals)),
		zap.Int("tokens", tokens))
	return &Result{Run: run, State: sv}, nil
}

func (o *Orchestrator) selectBatch(ctx context.Context, labID string, signalIDs []string) ([]*signaldomain.Signal, error) {
	if len(signalIDs) > 0 {
		return o.store.ResolveSignals(ctx, labID, signalIDs)
	}
	return o.store.UnprocessedSignals(ctx, labID, o.batchSize)
}

// fail marks the run failed and wraps the cause. The status update runs on a
// context detached from the attempt's cancellation: when the cause is a
// timeout or cancel, the run row must still leave the running state. A storage
// error here is logged, not returned, so the original cause survives.
func (o *Orchestrator) fail(ctx context.Context, run *rundomain.Run, cause error) error {
	if err := o.store.FailRun(context.WithoutCancel(ctx), run.ID, time.Now().UTC()); err != nil {
		o.log.Error("mark run failed",
			zap.String("lab_id", run.LabID),
			zap.String("run_id", run.ID),
			zap.Error(err))
	}
	o.runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "failed")))
	return &FailedError{LabID: run.LabID, RunID: run.ID, Err: cause}
}
