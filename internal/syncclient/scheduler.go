package syncclient

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler calls fn every interval on its own goroutine until stopped.
type Scheduler struct {
	clock    clockwork.Clock
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

func NewScheduler(clock clockwork.Clock, interval time.Duration, fn func()) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{clock: clock, interval: interval, fn: fn}
}

// Start is a no-op when already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	ticker := s.clock.NewTicker(s.interval)
	go s.loop(ticker, s.stop, s.done)
}

// Stop halts the loop and waits for an in-flight fn to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()
	<-done
}

// Running reports whether the loop is started.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ticker clockwork.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			s.fn()
		}
	}
}
