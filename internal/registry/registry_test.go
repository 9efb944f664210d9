package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWorker struct {
	mu      sync.Mutex
	stopped bool
}

func (s *stubWorker) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *stubWorker) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func TestRegisterAssignsIncreasingIDs(t *testing.T) {
	r := New()

	first := r.Register("tab-a", "a", nil, &stubWorker{})
	second := r.Register("tab-b", "b", nil, &stubWorker{})

	assert.Greater(t, second.RequestID, first.RequestID)
	assert.Equal(t, 2, r.ActiveCount())
}

func TestSupersedeStopsPreviousWorker(t *testing.T) {
	r := New()
	old := &stubWorker{}

	stale := r.Register("tab", "first", nil, old)
	stale.MarkDone()
	fresh := r.Register("tab", "second", nil, &stubWorker{})

	assert.True(t, old.Stopped(), "superseded worker should be stopped")
	assert.False(t, r.IsActive("tab", stale.RequestID), "stale id must fail the active check")
	assert.True(t, r.IsActive("tab", fresh.RequestID))
}

func TestFinishIgnoresStaleRequests(t *testing.T) {
	r := New()

	stale := r.Register("tab", "first", nil, &stubWorker{})
	stale.MarkDone()
	fresh := r.Register("tab", "second", nil, &stubWorker{})

	// A late finish from the superseded request must not evict the
	// fresh one.
	r.Finish("tab", stale.RequestID)
	assert.True(t, r.IsActive("tab", fresh.RequestID))

	r.Finish("tab", fresh.RequestID)
	assert.Equal(t, 0, r.ActiveCount())
}

func TestStopAllJoinsWorkers(t *testing.T) {
	r := New()

	handle := r.Register("tab", "q", nil, &stubWorker{})
	running := make(chan struct{})
	go func() {
		<-running
		handle.MarkDone()
	}()
	close(running)

	r.StopAll()
	assert.Equal(t, 0, r.ActiveCount())

	select {
	case <-handle.Done():
	default:
		t.Error("expected handle to be marked done")
	}
}

func TestStopAllProceedsPastStuckWorker(t *testing.T) {
	r := New()
	stuck := &stubWorker{}
	r.Register("tab", "q", nil, stuck)

	// The worker never marks done; teardown must still return.
	r.StopAll()

	assert.True(t, stuck.Stopped())
	assert.Equal(t, 0, r.ActiveCount())
}

func TestActiveHandleLookup(t *testing.T) {
	r := New()

	_, ok := r.Active("missing")
	assert.False(t, ok)

	registered := r.Register("tab", "term", []string{"x"}, &stubWorker{})
	active, ok := r.Active("tab")
	require.True(t, ok)
	assert.Equal(t, registered.RequestID, active.RequestID)
	assert.Equal(t, "term", active.SearchTerm)
}

func TestMarkDoneIsIdempotent(t *testing.T) {
	r := New()
	handle := r.Register("tab", "q", nil, &stubWorker{})

	handle.MarkDone()
	assert.NotPanics(t, handle.MarkDone)
}
