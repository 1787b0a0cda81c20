package server

import (
	"sync"
	"time"
)

// JobRateLimiter restricts how frequently a single client
// can submit print requests via WebSocket.
type JobRateLimiter struct {
	mu        sync.Mutex
	attempts  map[string][]time.Time
	maxPerMin int
	window    time.Duration
	now       func() time.Time
}

// NewJobRateLimiter creates a limiter allowing maxPerMinute print requests per client.
func NewJobRateLimiter(maxPerMinute int) *JobRateLimiter {
	return &JobRateLimiter{
		attempts:  make(map[string][]time.Time),
		maxPerMin: maxPerMinute,
		window:    time.Minute,
		now:       time.Now,
	}
}

// Allow returns true if the client has not exceeded the rate limit.
func (rl *JobRateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	recent := rl.recent(client, now)

	if len(recent) >= rl.maxPerMin {
		rl.attempts[client] = recent
		return false
	}

	rl.attempts[client] = append(recent, now)
	return true
}

func (rl *JobRateLimiter) recent(client string, now time.Time) []time.Time {
	cutoff := now.Add(-rl.window)
	recent := make([]time.Time, 0, rl.maxPerMin)
	for _, t := range rl.attempts[client] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}

// Prune drops clients with no requests inside the window.
func (rl *JobRateLimiter) Prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for client := range rl.attempts {
		if recent := rl.recent(client, now); len(recent) == 0 {
			delete(rl.attempts, client)
		} else {
			rl.attempts[client] = recent
		}
	}
}
