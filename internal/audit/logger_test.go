package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"labstate/internal/audit/domain"
)

type memRepo struct {
	mu      sync.Mutex
	entries []*domain.Entry
	err     error
}

func (r *memRepo) Create(ctx context.Context, e *domain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *memRepo) ListByLab(ctx context.Context, labID string, limit, offset int32) ([]*domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries, nil
}

type memPublisher struct {
	mu        sync.Mutex
	published []any
	err       error
}

func (p *memPublisher) Publish(ctx context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, v)
	return nil
}

func TestRecord_DirectWrite(t *testing.T) {
	repo := &memRepo{}
	l := NewLogger(repo, nil, zap.NewNop())

	l.Record(context.Background(), &domain.Entry{Actor: "user-1", Action: "POST", ResourceType: "signals"})

	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}
	e := repo.entries[0]
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Error("Record should fill ID and CreatedAt")
	}
}

func TestRecord_PrefersPublisher(t *testing.T) {
	repo := &memRepo{}
	pub := &memPublisher{}
	l := NewLogger(repo, pub, zap.NewNop())

	l.Record(context.Background(), &domain.Entry{Actor: "user-1", Action: "POST", ResourceType: "labs"})

	if len(pub.published) != 1 {
		t.Fatalf("published = %d, want 1", len(pub.published))
	}
	if len(repo.entries) != 0 {
		t.Error("direct write should not happen when publisher is set")
	}
}

func TestRecord_SwallowsFailures(t *testing.T) {
	repo := &memRepo{err: errors.New("db down")}
	l := NewLogger(repo, nil, zap.NewNop())

	// Must not panic or propagate.
	l.Record(context.Background(), &domain.Entry{Actor: "user-1", Action: "POST", ResourceType: "signals"})

	pub := &memPublisher{err: errors.New("broker down")}
	l = NewLogger(nil, pub, zap.NewNop())
	l.Record(context.Background(), &domain.Entry{Actor: "user-1", Action: "POST", ResourceType: "signals"})
}

func TestRecord_NilSafe(t *testing.T) {
	var l *Logger
	l.Record(context.Background(), &domain.Entry{})
	NewLogger(nil, nil, zap.NewNop()).Record(context.Background(), nil)
}
