package refresh

import (
	"log"
	"sync"
	"time"
)

// Scheduler triggers a refresh cycle at a fixed interval.
type Scheduler struct {
	service  *Service
	interval time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	running bool
	wg      sync.WaitGroup
}

func NewScheduler(service *Service, interval time.Duration) *Scheduler {
	return &Scheduler{service: service, interval: interval}
}

// Start launches the periodic trigger. An interval of zero or less
// disables scheduling entirely.
func (s *Scheduler) Start() {
	if s.interval <= 0 {
		log.Println("Scheduler: periodic refresh disabled")
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.mu.Unlock()

	log.Printf("Scheduler: refreshing every %v", s.interval)
	s.wg.Add(1)
	go s.run()
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !s.service.StartCycle() {
				log.Println("Scheduler: previous cycle still running, skipping tick")
			}
		case <-s.stop:
			return
		}
	}
}

// Stop halts the periodic trigger and waits for the loop to exit. It
// does not cancel a cycle already in flight.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("Scheduler: stopped")
}
