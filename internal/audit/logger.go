// Package audit records best-effort audit trails for mutating operations.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"labstate/internal/audit/domain"
	auditrepo "labstate/internal/audit/repository"
)

// Publisher publishes an audit entry to the decoupling queue.
// Implemented by queue.Producer.
type Publisher interface {
	Publish(ctx context.Context, key string, v any) error
}

// Logger writes audit events. Record is best-effort: failures are logged and
// never propagate to the caller of the mutating operation. When a publisher is
// configured, entries go through the queue so audit latency and failures cannot
// affect request handling; otherwise they are written directly to the repository.
type Logger struct {
	repo      auditrepo.Repository
	publisher Publisher
	log       *zap.Logger
}

// NewLogger returns a Logger that publishes to publisher when non-nil and falls
// back to direct repository writes otherwise.
func NewLogger(repo auditrepo.Repository, publisher Publisher, log *zap.Logger) *Logger {
	return &Logger{repo: repo, publisher: publisher, log: log}
}

// Record writes one audit entry, filling ID and CreatedAt when unset.
// Best-effort: errors are logged and not returned.
func (l *Logger) Record(ctx context.Context, e *domain.Entry) {
	if l == nil || e == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if l.publisher != nil {
		if err := l.publisher.Publish(ctx, e.LabID, e); err != nil {
			l.log.Warn("audit publish failed", zap.String("action", e.Action), zap.Error(err))
		}
		return
	}
	if l.repo == nil {
		return
	}
	if err := l.repo.Create(ctx, e); err != nil {
		l.log.Warn("audit write failed", zap.String("action", e.Action), zap.Error(err))
	}
}
