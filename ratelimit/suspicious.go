package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

const (
	// suspiciousRate flags identifiers sustaining more than this many
	// requests per second over the entry's lifetime.
	suspiciousRate = 10.0

	// extremeRate is logged with its own description; the consequence is
	// the same 24-hour flag. Nothing stronger is enforced here: the flag
	// is a signal for operators, not a ban.
	extremeRate = 50.0

	// countMultiplier flags identifiers whose total count exceeds this
	// multiple of the configured maximum.
	countMultiplier = 3

	// loginAttemptCap flags the login action specifically after this many
	// attempts, regardless of rate.
	loginAttemptCap = 10

	// suspicionTTL is how long a flag lasts before auto-expiring.
	suspicionTTL = 24 * time.Hour
)

// suspicionList tracks identifiers flagged by the abuse heuristics.
// Flags auto-expire after suspicionTTL.
type suspicionList struct {
	mu      sync.Mutex
	flagged map[string]time.Time // identifier -> expiry
}

func newSuspicionList() *suspicionList {
	return &suspicionList{flagged: make(map[string]time.Time)}
}

// detect runs the abuse heuristics against an entry that just exceeded its
// limit and flags the identifier when one trips. Returns a description of
// the triggered heuristic, or "" when none did.
// Called with the limiter mutex held; only touches its own lock afterwards.
func (s *suspicionList) detect(identifier, action string, e *entry, cfg Config, now time.Time) string {
	lifetime := now.Sub(e.firstRequest).Seconds()
	rate := 0.0
	if lifetime > 0 {
		rate = float64(e.count) / lifetime
	}

	var description string
	switch {
	case rate > extremeRate:
		description = fmt.Sprintf("extreme request rate: %.1f req/s", rate)
	case rate > suspiciousRate:
		description = fmt.Sprintf("sustained high request rate: %.1f req/s", rate)
	case e.count > cfg.MaxRequests*countMultiplier:
		description = fmt.Sprintf("request count %d exceeds %dx the configured limit", e.count, countMultiplier)
	case action == ActionLogin && e.count > loginAttemptCap:
		description = fmt.Sprintf("%d login attempts within one window", e.count)
	default:
		return ""
	}

	s.mu.Lock()
	s.flagged[identifier] = now.Add(suspicionTTL)
	s.mu.Unlock()

	return description
}

// has reports whether the identifier carries an unexpired flag.
func (s *suspicionList) has(identifier string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.flagged[identifier]
	if !ok {
		return false
	}
	if now.After(expiry) {
		delete(s.flagged, identifier)
		return false
	}
	return true
}

// expire removes lapsed flags and returns how many were removed.
func (s *suspicionList) expire(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, expiry := range s.flagged {
		if now.After(expiry) {
			delete(s.flagged, id)
			removed++
		}
	}
	return removed
}

// count returns the number of unexpired flags.
func (s *suspicionList) count(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, expiry := range s.flagged {
		if !now.After(expiry) {
			n++
		}
	}
	return n
}
