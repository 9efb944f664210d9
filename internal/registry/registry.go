// Package registry tracks the in-flight fetch worker of each tab and
// hands out strictly increasing request ids so late results from
// superseded workers can be recognized and dropped.
package registry

import (
	"log"
	"sync"
	"time"
)

// joinTimeout bounds how long teardown waits for a worker goroutine.
const joinTimeout = time.Second

// Stopper is the cancellation surface of a running worker.
type Stopper interface {
	Stop()
}

// Handle describes one registered fetch request. Done must be closed by
// the goroutine running the worker, via MarkDone, when it exits.
type Handle struct {
	RequestID    int64
	TabKeyword   string
	SearchTerm   string
	ExcludeWords []string
	Worker       Stopper

	done     chan struct{}
	doneOnce sync.Once
}

// MarkDone signals that the worker goroutine has exited. Safe to call
// more than once.
func (h *Handle) MarkDone() {
	h.doneOnce.Do(func() { close(h.done) })
}

// Done exposes the exit signal for bounded joins.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Registry is the per-tab table of in-flight requests.
type Registry struct {
	mu      sync.Mutex
	nextID  int64
	handles map[string]*Handle
}

func New() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Register records a new request for a tab and returns its handle. Any
// previous request on the same tab is superseded first: its results
// fail the IsActive check from this point on, its worker is told to
// stop, and the worker goroutine is joined with a bound.
func (r *Registry) Register(tabKeyword, term string, excludes []string, worker Stopper) *Handle {
	r.mu.Lock()
	r.nextID++
	handle := &Handle{
		RequestID:    r.nextID,
		TabKeyword:   tabKeyword,
		SearchTerm:   term,
		ExcludeWords: excludes,
		Worker:       worker,
		done:         make(chan struct{}),
	}
	previous := r.handles[tabKeyword]
	r.handles[tabKeyword] = handle
	r.mu.Unlock()

	if previous != nil {
		log.Printf("Registry: superseding request %d for tab %q", previous.RequestID, tabKeyword)
		stopAndJoin(previous)
	}
	return handle
}

// IsActive reports whether the given request id is still the current
// one for its tab. Results from requests that fail this check are
// stale and must be discarded.
func (r *Registry) IsActive(tabKeyword string, requestID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.handles[tabKeyword]
	return ok && handle.RequestID == requestID
}

// Active returns the current handle of a tab, if any.
func (r *Registry) Active(tabKeyword string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.handles[tabKeyword]
	return handle, ok
}

// Finish removes the request from the table if it is still the active
// one. Stale finishes are no-ops.
func (r *Registry) Finish(tabKeyword string, requestID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handle, ok := r.handles[tabKeyword]; ok && handle.RequestID == requestID {
		delete(r.handles, tabKeyword)
	}
}

// ActiveCount returns the number of tabs with an in-flight request.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Stop cancels the in-flight request of one tab, waiting up to
// joinTimeout for the worker goroutine to exit.
func (r *Registry) Stop(tabKeyword string) {
	r.mu.Lock()
	handle, ok := r.handles[tabKeyword]
	if ok {
		delete(r.handles, tabKeyword)
	}
	r.mu.Unlock()
	if ok {
		stopAndJoin(handle)
	}
}

// StopAll cancels every in-flight request. Workers that do not exit
// within the join timeout are abandoned with a loud log; teardown
// proceeds regardless.
func (r *Registry) StopAll() {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, handle := range r.handles {
		handles = append(handles, handle)
	}
	r.handles = make(map[string]*Handle)
	r.mu.Unlock()

	for _, handle := range handles {
		stopAndJoin(handle)
	}
}

func stopAndJoin(handle *Handle) {
	handle.Worker.Stop()
	select {
	case <-handle.Done():
	case <-time.After(joinTimeout):
		log.Printf("Registry: worker for tab %q (request %d) did not exit within %v, abandoning",
			handle.TabKeyword, handle.RequestID, joinTimeout)
	}
}
