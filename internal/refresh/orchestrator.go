// Package refresh orchestrates fetches across the configured tabs: the
// sequential all-tabs refresh cycle, manual per-tab fetches with a
// short dedupe window, and load-more pagination.
package refresh

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/twbeatles/navernews-tabsearch/internal/fetcher"
	"github.com/twbeatles/navernews-tabsearch/internal/models"
	"github.com/twbeatles/navernews-tabsearch/internal/query"
	"github.com/twbeatles/navernews-tabsearch/internal/registry"
)

var (
	// ErrNoKeyword means the tab label parses to no positive search term.
	ErrNoKeyword = errors.New("refresh: tab has no positive keyword")

	// ErrRecentFetch means an identical fetch ran within the dedupe
	// window and was suppressed.
	ErrRecentFetch = errors.New("refresh: identical fetch requested too recently")

	// ErrPageLimit means load-more ran past the API's offset ceiling.
	ErrPageLimit = errors.New("refresh: no further pages available")
)

// Store is the persistence surface the orchestrator and its workers
// need.
type Store interface {
	fetcher.Store
	GetCount(keyword string) (int, error)
}

// Options configures a Service.
type Options struct {
	Fetcher           fetcher.Config
	Client            *http.Client // nil means a default client per worker
	Tabs              []string     // raw tab labels, possibly with exclusions
	StepDelay         time.Duration
	FetchDedupeWindow time.Duration
}

// Service owns fetch scheduling for all tabs. All exported methods are
// safe for concurrent use.
type Service struct {
	opts  Options
	store Store
	reg   *registry.Registry

	// OnTabUpdated fires after any fetch for a tab completes, with its
	// result. OnSummary fires once per finished refresh cycle. Both are
	// optional and are invoked outside the service lock.
	OnTabUpdated func(tab string, result models.FetchResult)
	OnSummary    func(summary models.RefreshSummary)

	mu          sync.Mutex
	cycleActive bool
	queue       []string
	totals      models.RefreshSummary
	lastSummary *models.RefreshSummary
	lastStart   map[string]int
	recent      map[string]time.Time
}

func New(store Store, opts Options) *Service {
	if opts.StepDelay <= 0 {
		opts.StepDelay = 300 * time.Millisecond
	}
	if opts.FetchDedupeWindow <= 0 {
		opts.FetchDedupeWindow = 10 * time.Second
	}
	return &Service{
		opts:      opts,
		store:     store,
		reg:       registry.New(),
		lastStart: make(map[string]int),
		recent:    make(map[string]time.Time),
	}
}

// Registry exposes the request table, mainly for shutdown wiring.
func (s *Service) Registry() *registry.Registry {
	return s.reg
}

// FetchNews starts a manual fetch for one tab. more requests the next
// result page instead of the first. Returns the request id on launch.
func (s *Service) FetchNews(tab string, more bool) (int64, error) {
	return s.fetch(tab, more, false)
}

// StartCycle begins a sequential refresh over every tab that resolves
// to a positive search term. Returns false when a cycle is already
// running or no tab is eligible.
func (s *Service) StartCycle() bool {
	eligible := make([]string, 0, len(s.opts.Tabs))
	for _, tab := range s.opts.Tabs {
		if query.HasPositiveKeyword(tab) {
			eligible = append(eligible, tab)
		} else {
			log.Printf("Refresh: tab %q has no positive keyword, not part of the cycle", tab)
		}
	}

	s.mu.Lock()
	if s.cycleActive || len(eligible) == 0 {
		s.mu.Unlock()
		return false
	}
	s.cycleActive = true
	s.queue = eligible
	s.totals = models.RefreshSummary{}
	s.mu.Unlock()

	log.Printf("Refresh: starting cycle over %d tab(s)", len(eligible))
	s.processNext()
	return true
}

// Status describes the current refresh state.
type Status struct {
	CycleActive bool                   `json:"cycle_active"`
	Remaining   int                    `json:"remaining"`
	InFlight    int                    `json:"in_flight"`
	LastSummary *models.RefreshSummary `json:"last_summary,omitempty"`
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		CycleActive: s.cycleActive,
		Remaining:   len(s.queue),
		InFlight:    s.reg.ActiveCount(),
		LastSummary: s.lastSummary,
	}
}

// StopAll cancels every in-flight fetch and abandons any running cycle.
func (s *Service) StopAll() {
	s.mu.Lock()
	s.cycleActive = false
	s.queue = nil
	s.mu.Unlock()
	s.reg.StopAll()
}

// processNext launches the fetch for the next queued tab, skipping tabs
// that cannot be fetched. A drained queue finishes the cycle.
func (s *Service) processNext() {
	for {
		s.mu.Lock()
		if !s.cycleActive {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			s.finishCycle()
			return
		}
		tab := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if _, err := s.fetch(tab, false, true); err != nil {
			// A tab that cannot even launch never aborts the cycle.
			log.Printf("Refresh: skipping tab %q: %v", tab, err)
			continue
		}
		return
	}
}

func (s *Service) finishCycle() {
	s.mu.Lock()
	summary := s.totals
	s.lastSummary = &summary
	s.cycleActive = false
	s.mu.Unlock()

	log.Printf("Refresh: cycle finished, tabs=%d added=%d duplicates=%d",
		summary.Tabs, summary.Added, summary.Duplicates)
	if s.OnSummary != nil {
		s.OnSummary(summary)
	}
}

// scheduleNextStep advances the sequential cycle after the inter-step
// delay.
func (s *Service) scheduleNextStep() {
	time.AfterFunc(s.opts.StepDelay, s.processNext)
}

func (s *Service) fetch(tab string, more, sequential bool) (int64, error) {
	term, excludes := query.Parse(tab)
	if term == "" {
		return 0, ErrNoKeyword
	}

	start := 1
	if more {
		var err error
		start, err = s.nextStart(tab)
		if err != nil {
			return 0, err
		}
		if start > fetcher.MaxStart {
			log.Printf("Refresh: tab %q reached the last available page", tab)
			return 0, ErrPageLimit
		}
	}

	// Manual first-page fetches are deduplicated over a short window so
	// double-clicks do not burn API quota. Load-more and sequential
	// steps are exempt.
	key := query.BuildFetchKey(term, excludes)
	if !more && !sequential {
		s.mu.Lock()
		if last, ok := s.recent[key]; ok && time.Since(last) < s.opts.FetchDedupeWindow {
			s.mu.Unlock()
			return 0, ErrRecentFetch
		}
		s.recent[key] = time.Now()
		s.mu.Unlock()
	}

	// Results are persisted under the parsed term, not the raw tab
	// label, so tabs differing only in exclusions share one dedup scope.
	worker := fetcher.NewWorker(s.opts.Fetcher, s.opts.Client, s.store, term, term, excludes, start)
	handle := s.reg.Register(tab, term, excludes, worker)
	requestID := handle.RequestID

	worker.OnDone = func(result models.FetchResult) {
		s.onFetchDone(tab, requestID, start, sequential, result)
	}
	worker.OnError = func(msg string) {
		s.onFetchError(tab, requestID, key, sequential, msg)
	}

	go func() {
		worker.Run()
		handle.MarkDone()
	}()

	log.Printf("Refresh: fetch launched for tab %q (request %d, start %d)", tab, requestID, start)
	return requestID, nil
}

// nextStart computes the 1-based offset for a load-more fetch: one page
// past the previous fetch, or derived from the stored row count when
// the process has not fetched this tab yet.
func (s *Service) nextStart(tab string) (int, error) {
	s.mu.Lock()
	last, ok := s.lastStart[tab]
	s.mu.Unlock()
	if ok {
		return last + fetcher.PageSize, nil
	}

	term, _ := query.Parse(tab)
	if term == "" {
		term = tab
	}
	count, err := s.store.GetCount(term)
	if err != nil {
		return 0, fmt.Errorf("failed to derive page offset: %v", err)
	}
	start := 1 + (count/fetcher.PageSize)*fetcher.PageSize
	if start < fetcher.PageSize+1 {
		start = fetcher.PageSize + 1
	}
	return start, nil
}

func (s *Service) onFetchDone(tab string, requestID int64, start int, sequential bool, result models.FetchResult) {
	active := s.reg.IsActive(tab, requestID)
	if active {
		s.reg.Finish(tab, requestID)
		s.mu.Lock()
		s.lastStart[tab] = start
		if sequential && s.cycleActive {
			s.totals.Tabs++
			s.totals.Added += result.Added
			s.totals.Duplicates += result.Duplicates
		}
		s.mu.Unlock()

		log.Printf("Refresh: tab %q done, total=%d added=%d duplicates=%d filtered=%d",
			tab, result.Total, result.Added, result.Duplicates, result.Filtered)
		if s.OnTabUpdated != nil {
			s.OnTabUpdated(tab, result)
		}
	} else {
		log.Printf("Refresh: discarding stale result for tab %q (request %d)", tab, requestID)
	}

	if sequential {
		s.scheduleNextStep()
	}
}

func (s *Service) onFetchError(tab string, requestID int64, key string, sequential bool, msg string) {
	if s.reg.IsActive(tab, requestID) {
		s.reg.Finish(tab, requestID)
		log.Printf("Refresh: fetch failed for tab %q: %s", tab, msg)

		// Clear the dedupe mark so the user can retry immediately. A
		// stale error must not clear it: the mark belongs to the
		// superseding request by now.
		s.mu.Lock()
		delete(s.recent, key)
		s.mu.Unlock()
	} else {
		log.Printf("Refresh: discarding stale error for tab %q (request %d): %s", tab, requestID, msg)
	}

	// Failures never abort the cycle; the next tab still runs.
	if sequential {
		s.scheduleNextStep()
	}
}
