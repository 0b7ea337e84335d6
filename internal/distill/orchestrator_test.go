package distill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	auditdomain "labstate/internal/audit/domain"
	"labstate/internal/compress"
	rundomain "labstate/internal/run/domain"
	signaldomain "labstate/internal/signal/domain"
	statedomain "labstate/internal/state/domain"
)

// memStore is an in-memory Store with the same conflict semantics as the
// Postgres implementation: version uniqueness per lab, and a batch that lost
// some signals to a concurrent commit fails the whole transaction.
type memStore struct {
	mu      sync.Mutex
	states  map[string][]*statedomain.StateVersion // labID -> ordered by version
	signals map[string]*signaldomain.Signal
	order   []string // signal IDs in insertion order
	runs    map[string]*rundomain.Run
	audits  []*auditdomain.Entry

	failCreateRun bool
	failCommit    error
}

func newMemStore() *memStore {
	return &memStore{
		states:  map[string][]*statedomain.StateVersion{},
		signals: map[string]*signaldomain.Signal{},
		runs:    map[string]*rundomain.Run{},
	}
}

func (m *memStore) addSignal(labID string, kind signaldomain.Kind) *signaldomain.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &signaldomain.Signal{
		ID:        fmt.Sprintf("sig-%d", len(m.order)+1),
		LabID:     labID,
		Kind:      kind,
		Content:   json.RawMessage(`{"technique":"PCR","outcome":"success"}`),
		CreatedAt: time.Now().UTC(),
	}
	m.signals[s.ID] = s
	m.order = append(m.order, s.ID)
	return s
}

func (m *memStore) LatestState(_ context.Context, labID string) (*statedomain.StateVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.states[labID]
	if len(versions) == 0 {
		return nil, nil
	}
	return versions[len(versions)-1], nil
}

func (m *memStore) UnprocessedSignals(_ context.Context, labID string, limit int) ([]*signaldomain.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*signaldomain.Signal
	for _, id := range m.order {
		s := m.signals[id]
		if s.LabID == labID && !s.Processed {
			out = append(out, s)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) ResolveSignals(_ context.Context, labID string, ids []string) ([]*signaldomain.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []*signaldomain.Signal
	for _, id := range m.order {
		s := m.signals[id]
		if want[s.ID] && s.LabID == labID && !s.Processed {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) CreateRun(_ context.Context, r *rundomain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateRun {
		return errors.New("storage down")
	}
	cp := *r
	m.runs[r.ID] = &cp
	return nil
}

func (m *memStore) FailRun(ctx context.Context, runID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runs[runID]; ok {
		r.Status = rundomain.StatusFailed
		r.CompletedAt = &at
	}
	return nil
}

func (m *memStore) CommitVersion(_ context.Context, c Commit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCommit != nil {
		return m.failCommit
	}
	for _, sv := range m.states[c.State.LabID] {
		if sv.Version == c.State.Version {
			return ErrVersionConflict
		}
	}
	for _, id := range c.SignalIDs {
		s, ok := m.signals[id]
		if !ok || s.Processed {
			return ErrVersionConflict
		}
	}
	m.states[c.State.LabID] = append(m.states[c.State.LabID], c.State)
	for _, id := range c.SignalIDs {
		m.signals[id].Processed = true
	}
	if r, ok := m.runs[c.RunID]; ok {
		r.Status = rundomain.StatusCompleted
		r.CompletedAt = &c.CompletedAt
	}
	m.audits = append(m.audits, c.Audit)
	return nil
}

// fakeCompressor returns a fixed snapshot or error per call.
type fakeCompressor struct {
	mu    sync.Mutex
	calls int
	err   error
	fn    func(current statedomain.Snapshot, signals []*signaldomain.Signal) (statedomain.Snapshot, error)
}

func (f *fakeCompressor) Model() string { return "fake-model" }

func (f *fakeCompressor) Compress(_ context.Context, current statedomain.Snapshot, signals []*signaldomain.Signal) (statedomain.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return statedomain.Snapshot{}, f.err
	}
	if f.fn != nil {
		return f.fn(current, signals)
	}
	out := current
	out.Equipment = append([]statedomain.Equipment{}, current.Equipment...)
	out.Equipment = append(out.Equipment, statedomain.Equipment{Name: fmt.Sprintf("instrument-%d", len(signals))})
	return out, nil
}

func newTestOrchestrator(t *testing.T, store Store, c compress.Compressor) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(store, c, noop.NewMeterProvider().Meter("test"), zap.NewNop(), 10, 2000)
	require.NoError(t, err)
	return o
}

func TestDistill_FirstVersionFromEmptyLab(t *testing.T) {
	store := newMemStore()
	for range 3 {
		store.addSignal("lab-1", signaldomain.KindExperiment)
	}
	o := newTestOrchestrator(t, store, &fakeCompressor{})

	res, err := o.Distill(context.Background(), "lab-1", nil, "user-1")
	require.NoError(t, err)

	assert.Equal(t, 1, res.State.Version)
	assert.Equal(t, 3, res.State.State.SignalCount)
	assert.Nil(t, res.Run.InputVersion)
	assert.Equal(t, 1, res.Run.OutputVersion)
	assert.Equal(t, rundomain.StatusCompleted, res.Run.Status)
	assert.Equal(t, "v1.0.0", res.Run.PromptVersion)
	assert.Equal(t, "fake-model", res.Run.Model)

	for _, id := range res.Run.SignalIDs {
		assert.True(t, store.signals[id].Processed, "signal %s", id)
	}
	require.Len(t, store.audits, 1)
	assert.Equal(t, "distillation.completed", store.audits[0].Action)
	assert.Equal(t, res.State.ID, store.audits[0].ResourceID)
}

func TestDistill_VersionsAreContiguous(t *testing.T) {
	store := newMemStore()
	o := newTestOrchestrator(t, store, &fakeCompressor{})

	for i := 1; i <= 4; i++ {
		store.addSignal("lab-1", signaldomain.KindDocument)
		res, err := o.Distill(context.Background(), "lab-1", nil, "user-1")
		require.NoError(t, err)
		assert.Equal(t, i, res.State.Version)
		assert.Equal(t, i, res.State.State.SignalCount)
	}
	require.Len(t, store.states["lab-1"], 4)
	for i, sv := range store.states["lab-1"] {
		assert.Equal(t, i+1, sv.Version)
	}
}

func TestDistill_NoSignals(t *testing.T) {
	store := newMemStore()
	o := newTestOrchestrator(t, store, &fakeCompressor{})

	_, err := o.Distill(context.Background(), "lab-1", nil, "user-1")
	assert.ErrorIs(t, err, ErrNoSignals)
	assert.Empty(t, store.runs, "no run row for an empty batch")
}

func TestDistill_BatchLimit(t *testing.T) {
	store := newMemStore()
	for range 15 {
		store.addSignal("lab-1", signaldomain.KindExperiment)
	}
	o := newTestOrchestrator(t, store, &fakeCompressor{})

	res, err := o.Distill(context.Background(), "lab-1", nil, "user-1")
	require.NoError(t, err)
	assert.Len(t, res.Run.SignalIDs, 10)
	assert.Equal(t, 10, res.State.State.SignalCount)

	remaining, err := store.UnprocessedSignals(context.Background(), "lab-1", 100)
	require.NoError(t, err)
	assert.Len(t, remaining, 5)
}

func TestDistill_ExplicitSignalSelection(t *testing.T) {
	store := newMemStore()
	a := store.addSignal("lab-1", signaldomain.KindExperiment)
	store.addSignal("lab-1", signaldomain.KindDocument)
	o := newTestOrchestrator(t, store, &fakeCompressor{})

	res, err := o.Distill(context.Background(), "lab-1", []string{a.ID, "no-such-id"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, res.Run.SignalIDs)
	assert.Equal(t, 1, res.State.State.SignalCount)
}

func TestDistill_CompressorUnavailableFailsRun(t *testing.T) {
	store := newMemStore()
	store.addSignal("lab-1", signaldomain.KindExperiment)
	o := newTestOrchestrator(t, store, &fakeCompressor{err: compress.ErrUnavailable})

	_, err := o.Distill(context.Background(), "lab-1", nil, "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, compress.ErrUnavailable)

	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "lab-1", failed.LabID)
	assert.Equal(t, rundomain.StatusFailed, store.runs[failed.RunID].Status)
	assert.False(t, store.signals["sig-1"].Processed, "failed run must not consume signals")
	assert.Empty(t, store.states["lab-1"])
}

func TestDistill_SchemaViolationNeverCommits(t *testing.T) {
	store := newMemStore()
	store.addSignal("lab-1", signaldomain.KindExperiment)
	o := newTestOrchestrator(t, store, &fakeCompressor{err: compress.ErrSchemaViolation})

	_, err := o.Distill(context.Background(), "lab-1", nil, "user-1")
	assert.ErrorIs(t, err, compress.ErrSchemaViolation)
	assert.Empty(t, store.states["lab-1"])
	assert.Empty(t, store.audits)
}

func TestDistill_VersionConflictFailsLoser(t *testing.T) {
	store := newMemStore()
	store.addSignal("lab-1", signaldomain.KindExperiment)
	store.failCommit = ErrVersionConflict
	o := newTestOrchestrator(t, store, &fakeCompressor{})

	_, err := o.Distill(context.Background(), "lab-1", nil, "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.True(t, Retryable(err))

	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, rundomain.StatusFailed, store.runs[failed.RunID].Status)
}

func TestDistill_SignalCountIgnoresModelOutput(t *testing.T) {
	store := newMemStore()
	store.addSignal("lab-1", signaldomain.KindExperiment)
	store.addSignal("lab-1", signaldomain.KindExperiment)
	c := &fakeCompressor{fn: func(current statedomain.Snapshot, _ []*signaldomain.Signal) (statedomain.Snapshot, error) {
		out := current
		out.SignalCount = 9000
		return out, nil
	}}
	o := newTestOrchestrator(t, store, c)

	res, err := o.Distill(context.Background(), "lab-1", nil, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.State.State.SignalCount)
}

func TestDistill_TokenBudgetOverrunStillCommits(t *testing.T) {
	store := newMemStore()
	store.addSignal("lab-1", signaldomain.KindDocument)
	c := &fakeCompressor{fn: func(current statedomain.Snapshot, _ []*signaldomain.Signal) (statedomain.Snapshot, error) {
		out := current
		for i := range 40 {
			out.Reagents = append(out.Reagents, statedomain.Reagent{
				Name:  fmt.Sprintf("reagent-%d", i),
				Notes: "a long free-text note about storage conditions and supplier lot numbers",
			})
		}
		return out, nil
	}}
	o, err := NewOrchestrator(store, c, noop.NewMeterProvider().Meter("test"), zap.NewNop(), 10, 50)
	require.NoError(t, err)

	res, err := o.Distill(context.Background(), "lab-1", nil, "user-1")
	require.NoError(t, err, "budget overrun is observability, not failure")
	require.NotNil(t, res.State.TokenCount)
	assert.Greater(t, *res.State.TokenCount, 50)
	require.Len(t, store.states["lab-1"], 1)
}

func TestDistill_TimeoutLeavesVersionLogUntouched(t *testing.T) {
	store := newMemStore()
	o := newTestOrchestrator(t, store, &fakeCompressor{})
	for range 5 {
		store.addSignal("lab-1", signaldomain.KindExperiment)
		_, err := o.Distill(context.Background(), "lab-1", nil, "user-1")
		require.NoError(t, err)
	}
	require.Len(t, store.states["lab-1"], 5)

	store.addSignal("lab-1", signaldomain.KindExperiment)
	timedOut := newTestOrchestrator(t, store, &fakeCompressor{err: fmt.Errorf("%w: %v", compress.ErrUnavailable, context.DeadlineExceeded)})

	_, err := timedOut.Distill(context.Background(), "lab-1", nil, "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, compress.ErrUnavailable)

	latest, err := store.LatestState(context.Background(), "lab-1")
	require.NoError(t, err)
	assert.Equal(t, 5, latest.Version, "failed attempt must not advance the log")
	unprocessed, err := store.UnprocessedSignals(context.Background(), "lab-1", 100)
	require.NoError(t, err)
	assert.Len(t, unprocessed, 1, "signal from the failed attempt stays unprocessed")
}

func TestDistill_CancelledAttemptStillFailsRun(t *testing.T) {
	store := newMemStore()
	store.addSignal("lab-1", signaldomain.KindExperiment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &fakeCompressor{fn: func(statedomain.Snapshot, []*signaldomain.Signal) (statedomain.Snapshot, error) {
		cancel()
		return statedomain.Snapshot{}, fmt.Errorf("%w: %v", compress.ErrUnavailable, context.Canceled)
	}}
	o := newTestOrchestrator(t, store, c)

	_, err := o.Distill(ctx, "lab-1", nil, "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, compress.ErrUnavailable)

	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, rundomain.StatusFailed, store.runs[failed.RunID].Status,
		"run must not stay running after a cancelled attempt")
}

func TestDistill_ConcurrentAttemptsProduceOneVersionEach(t *testing.T) {
	store := newMemStore()
	for range 20 {
		store.addSignal("lab-1", signaldomain.KindExperiment)
	}
	o := newTestOrchestrator(t, store, &fakeCompressor{})

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[w] = o.Distill(context.Background(), "lab-1", nil, "worker")
		}()
	}
	wg.Wait()

	// Losers fail with a conflict; winners append contiguous versions. No two
	// commits share a version and no signal is folded twice.
	committed := store.states["lab-1"]
	seen := map[int]bool{}
	total := 0
	for _, sv := range committed {
		require.False(t, seen[sv.Version], "duplicate version %d", sv.Version)
		seen[sv.Version] = true
	}
	for i, sv := range committed {
		assert.Equal(t, i+1, sv.Version)
		total = sv.State.SignalCount
	}
	processed := 0
	for _, s := range store.signals {
		if s.Processed {
			processed++
		}
	}
	assert.Equal(t, processed, total, "signal_count must equal processed signals")
	for _, err := range errs {
		if err != nil {
			assert.True(t, errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrNoSignals), "unexpected error: %v", err)
		}
	}
}
