package internal

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// RateLimiter is a sliding-window limiter keyed by caller (client IP).
type RateLimiter struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	hits   map[string][]time.Time
	limit  int
	window time.Duration
}

// NewRateLimiter allows limit hits per window; limit <= 0 disables limiting.
func NewRateLimiter(clock clockwork.Clock, limit int, window time.Duration) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimiter{
		clock:  clock,
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
}

func (r *RateLimiter) Allow(key string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	recent := r.pruneLocked(key, now)
	if len(recent) >= r.limit {
		return false
	}
	r.hits[key] = append(recent, now)
	return true
}

// RetryAfter reports how long key must wait for its next allowed hit.
func (r *RateLimiter) RetryAfter(key string) time.Duration {
	if r == nil || r.limit <= 0 {
		return 0
	}
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	recent := r.pruneLocked(key, now)
	if len(recent) < r.limit {
		return 0
	}
	return recent[len(recent)-r.limit].Add(r.window).Sub(now)
}

// pruneLocked drops hits older than the window and forgets idle keys.
func (r *RateLimiter) pruneLocked(key string, now time.Time) []time.Time {
	windowStart := now.Add(-r.window)
	slice := r.hits[key]
	idx := 0
	for _, ts := range slice {
		if ts.After(windowStart) {
			slice[idx] = ts
			idx++
		}
	}
	slice = slice[:idx]
	if len(slice) == 0 {
		delete(r.hits, key)
		return nil
	}
	r.hits[key] = slice
	return slice
}
