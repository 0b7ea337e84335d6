package main

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"labstate/internal/distill"
	"labstate/internal/queue"
)

// scriptedReader serves a fixed message list, then blocks until the context
// is cancelled like a reader with an idle topic.
type scriptedReader struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

// blockingRunner records every job it starts and holds each until released.
type blockingRunner struct {
	mu      sync.Mutex
	labs    []string
	actors  []string
	release chan struct{}
}

func (r *blockingRunner) Execute(ctx context.Context, labID string, _ []string, actor string) (*distill.Result, error) {
	r.mu.Lock()
	r.labs = append(r.labs, labID)
	r.actors = append(r.actors, actor)
	r.mu.Unlock()
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	return nil, distill.ErrNoSignals
}

func (r *blockingRunner) started() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.labs...)
}

func mustJob(t *testing.T, job queue.DistillJob) kafka.Message {
	t.Helper()
	b, err := json.Marshal(job)
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestConsumeDistillJobs_StuckJobDoesNotStallQueue(t *testing.T) {
	reader := &scriptedReader{msgs: []kafka.Message{
		mustJob(t, queue.DistillJob{LabID: "lab-a", TriggeredBy: "user-1"}),
		{Value: []byte("not json")},
		mustJob(t, queue.DistillJob{LabID: "lab-b"}),
	}}
	runner := &blockingRunner{release: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		consumeDistillJobs(ctx, zap.NewNop(), reader, runner)
		close(done)
	}()

	// lab-a never finishes, yet lab-b still starts; the malformed message is
	// dropped without taking a slot.
	require.Eventually(t, func() bool {
		return len(runner.started()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"lab-a", "lab-b"}, runner.started())

	close(runner.release)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after cancellation")
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Contains(t, runner.actors, "user-1")
	assert.Contains(t, runner.actors, "worker", "jobs without a triggering actor default to worker")
}

func TestConsumeDistillJobs_WaitsForInflightJobsOnShutdown(t *testing.T) {
	reader := &scriptedReader{msgs: []kafka.Message{
		mustJob(t, queue.DistillJob{LabID: "lab-a"}),
	}}
	runner := &blockingRunner{release: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumeDistillJobs(ctx, zap.NewNop(), reader, runner)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(runner.started()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after cancellation")
	}
}
