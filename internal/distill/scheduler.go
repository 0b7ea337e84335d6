package distill

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Runner executes one distillation attempt. Satisfied by *Orchestrator.
type Runner interface {
	Distill(ctx context.Context, labID string, signalIDs []string, actor string) (*Result, error)
}

// Scheduler retries failed attempts with exponential backoff. Attempt n waits
// base*2^n before running, counting from zero for the first retry.
type Scheduler struct {
	runner      Runner
	log         *zap.Logger
	maxAttempts int
	base        time.Duration

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler builds a scheduler over the runner. maxAttempts includes the
// first attempt; it must be at least 1.
func NewScheduler(runner Runner, log *zap.Logger, maxAttempts int, base time.Duration) *Scheduler {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Scheduler{
		runner:      runner,
		log:         log,
		maxAttempts: maxAttempts,
		base:        base,
		sleep:       sleepCtx,
	}
}

// Execute runs the attempt loop for one job. It returns the first success, the
// first non-retryable error, or the last error once attempts are exhausted.
// Each retry re-selects the batch, so signals committed by a concurrent winner
// are not folded twice.
func (s *Scheduler) Execute(ctx context.Context, labID string, signalIDs []string, actor string) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.base << (attempt - 1)
			s.log.Info("retrying distillation",
				zap.String("lab_id", labID),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if err := s.sleep(ctx, delay); err != nil {
				return nil, err
			}
			// A conflicting commit may have consumed the requested signals;
			// fall back to whatever is unprocessed now.
			signalIDs = nil
		}
		res, err := s.runner.Distill(ctx, labID, signalIDs, actor)
		if err == nil {
			return res, nil
		}
		if !Retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
