package guard

import (
	"sync"
	"time"
)

// RateLimitState is the loop's global pause state. While paused, a pass is
// a no-op; one group's rate limit pauses enforcement for all groups.
// Injectable so tests can construct independent loops with independent
// clocks.
type RateLimitState struct {
	mu          sync.Mutex
	pausedUntil time.Time
}

// NewRateLimitState returns an active (unpaused) state.
func NewRateLimitState() *RateLimitState {
	return &RateLimitState{}
}

// PauseUntil pauses all upstream calls until the given time.
func (s *RateLimitState) PauseUntil(until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until.After(s.pausedUntil) {
		s.pausedUntil = until
	}
}

// Paused reports whether the state is paused at the given instant, and
// until when.
func (s *RateLimitState) Paused(now time.Time) (bool, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Before(s.pausedUntil), s.pausedUntil
}
