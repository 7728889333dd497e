package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProcessor struct {
	mu      sync.Mutex
	batches []int
	err     error
	calls   int32
}

func (f *fakeProcessor) ProcessDue(ctx context.Context, limit int) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

func TestOutboxWorker_TickDrainsFullBatches(t *testing.T) {
	proc := &fakeProcessor{batches: []int{5, 5, 2, 5}}
	w := NewOutboxWorker(OutboxWorkerConfig{BatchSize: 5}, proc, zap.NewNop())

	assert.Equal(t, 12, w.Tick(context.Background()))
	assert.EqualValues(t, 3, atomic.LoadInt32(&proc.calls))

	st := w.Status()
	assert.EqualValues(t, 12, st.Processed)
	assert.Zero(t, st.Failed)
}

func TestOutboxWorker_TickStopsAtMaxBatches(t *testing.T) {
	proc := &fakeProcessor{batches: []int{1, 1, 1, 1}}
	w := NewOutboxWorker(OutboxWorkerConfig{BatchSize: 1, MaxBatches: 2}, proc, zap.NewNop())

	assert.Equal(t, 2, w.Tick(context.Background()))
}

func TestOutboxWorker_TickRecordsError(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("db locked")}
	w := NewOutboxWorker(OutboxWorkerConfig{}, proc, zap.NewNop())

	assert.Zero(t, w.Tick(context.Background()))
	st := w.Status()
	assert.EqualValues(t, 1, st.Failed)
	assert.Equal(t, "db locked", st.LastError)
}

func TestOutboxWorker_StartStop(t *testing.T) {
	proc := &fakeProcessor{}
	w := NewOutboxWorker(OutboxWorkerConfig{PollInterval: 5 * time.Millisecond}, proc, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&proc.calls) > 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, w.Status().Running)

	require.NoError(t, w.Stop())
	assert.False(t, w.Status().Running)
	require.NoError(t, w.Stop())
}

type fakeFinalizer struct {
	mu    sync.Mutex
	names []string
	fail  map[string]bool
}

func (f *fakeFinalizer) Finalize(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	if f.fail[name] {
		return "", errors.New("erp down")
	}
	return "BP-" + name, nil
}

type fakeSource struct {
	names []string
	err   error
	limit int
}

func (f *fakeSource) ListFinalizable(ctx context.Context, limit int) ([]string, error) {
	f.limit = limit
	return f.names, f.err
}

type fakeReleaser struct {
	calls int32
	err   error
}

func (f *fakeReleaser) ReleaseExpired(ctx context.Context) (int64, error) {
	atomic.AddInt32(&f.calls, 1)
	return 0, f.err
}

func TestReconciler_RunOnce(t *testing.T) {
	src := &fakeSource{names: []string{"Acme", "Globex", "Initech"}}
	fin := &fakeFinalizer{fail: map[string]bool{"Globex": true}}
	rel := &fakeReleaser{}
	r := NewReconciler(ReconcilerConfig{BatchSize: 10}, src, fin, rel, zap.NewNop())

	assert.Equal(t, 2, r.RunOnce(context.Background()))
	assert.Equal(t, []string{"Acme", "Globex", "Initech"}, fin.names)
	assert.Equal(t, 10, src.limit)
	assert.EqualValues(t, 1, rel.calls)

	st := r.Status()
	assert.EqualValues(t, 2, st.Processed)
	assert.EqualValues(t, 1, st.Failed)
	assert.Equal(t, "erp down", st.LastError)
}

func TestReconciler_RunOnceContinuesAfterReleaseError(t *testing.T) {
	src := &fakeSource{names: []string{"Acme"}}
	fin := &fakeFinalizer{}
	r := NewReconciler(ReconcilerConfig{}, src, fin, &fakeReleaser{err: errors.New("busy")}, zap.NewNop())

	assert.Equal(t, 1, r.RunOnce(context.Background()))
	assert.Equal(t, "busy", r.Status().LastError)
}

func TestReconciler_ListError(t *testing.T) {
	src := &fakeSource{err: errors.New("no table")}
	fin := &fakeFinalizer{}
	r := NewReconciler(ReconcilerConfig{}, src, fin, &fakeReleaser{}, zap.NewNop())

	assert.Zero(t, r.RunOnce(context.Background()))
	assert.Empty(t, fin.names)
}

func TestReconciler_Schedule(t *testing.T) {
	r := NewReconciler(ReconcilerConfig{Schedule: "not a schedule"}, &fakeSource{}, &fakeFinalizer{}, &fakeReleaser{}, zap.NewNop())
	assert.Error(t, r.Start(context.Background()))

	rel := &fakeReleaser{}
	r = NewReconciler(ReconcilerConfig{Schedule: "@every 1s"}, &fakeSource{}, &fakeFinalizer{}, rel, zap.NewNop())
	require.NoError(t, r.Start(context.Background()))
	assert.Error(t, r.Start(context.Background()))
	assert.True(t, r.Status().Running)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&rel.calls) > 0 }, 3*time.Second, 50*time.Millisecond)
	require.NoError(t, r.Stop())
	assert.False(t, r.Status().Running)
}

type stubWorker struct {
	name     string
	startErr error
	started  bool
	stopped  bool
}

func (s *stubWorker) Start(ctx context.Context) error {
	s.started = true
	return s.startErr
}
func (s *stubWorker) Stop() error  { s.stopped = true; return nil }
func (s *stubWorker) Name() string { return s.name }

func TestWorkerManager_Lifecycle(t *testing.T) {
	m := NewWorkerManager(zap.NewNop())
	ok := &stubWorker{name: "ok"}
	bad := &stubWorker{name: "bad", startErr: errors.New("boom")}
	m.Register(ok)
	m.Register(bad)
	assert.Equal(t, 2, m.GetWorkerCount())

	err := m.StartAll(context.Background())
	assert.ErrorContains(t, err, "bad: boom")
	assert.True(t, ok.started)
	assert.True(t, m.IsRunning())
	assert.Error(t, m.StartAll(context.Background()))

	statuses := m.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "ok", statuses[0].Name)
	assert.True(t, statuses[0].Running)

	require.NoError(t, m.StopAll())
	assert.True(t, ok.stopped)
	assert.True(t, bad.stopped)
	assert.False(t, m.IsRunning())
	require.NoError(t, m.StopAll())
}

// MockFinalizer mocks the SupplierFinalizer interface
type MockFinalizer struct {
	mock.Mock
}

func (m *MockFinalizer) Finalize(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func TestReconciler_RunOnceFinalizesEachListedSupplier(t *testing.T) {
	fin := new(MockFinalizer)
	fin.On("Finalize", mock.Anything, "Acme").Return("BP-1", nil).Once()
	fin.On("Finalize", mock.Anything, "Globex").Return("BP-2", nil).Once()

	r := NewReconciler(ReconcilerConfig{}, &fakeSource{names: []string{"Acme", "Globex"}}, fin, &fakeReleaser{}, zap.NewNop())

	assert.Equal(t, 2, r.RunOnce(context.Background()))
	fin.AssertExpectations(t)
	assert.Empty(t, r.Status().LastError)
}
