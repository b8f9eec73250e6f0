package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onedrip/shield/audit"
	"github.com/onedrip/shield/ratelimit"
	"github.com/onedrip/shield/verification"
)

const (
	// DefaultCleanupInterval is how often the janitor purges expired state
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultMaxEvents caps the retained audit events. The oldest events
	// are discarded past the cap; this backend is not an archive.
	DefaultMaxEvents = 10000

	// attemptRetention is how long verification attempt timestamps are kept.
	// The resend window is one hour; a day of slack keeps CountAttempts
	// correct for any plausible caller.
	attemptRetention = 24 * time.Hour
)

// windowEntry is one shared rate-limit counter.
type windowEntry struct {
	count     int64
	expiresAt time.Time
}

// userState holds one user's verification state.
type userState struct {
	status   verification.Status
	records  []verification.Record
	attempts []time.Time
}

// Store is an in-memory implementation of audit.Store, verification.Store
// and ratelimit.SharedStore.
type Store struct {
	logger    *slog.Logger
	maxEvents int

	mu      sync.Mutex
	events  []*audit.Event
	users   map[string]*userState
	windows map[string]*windowEntry
	blocks  map[string]time.Time
	flags   map[string]time.Time

	stopCleanup chan struct{}
	stopOnce    sync.Once

	droppedEvents int64
}

// Compile-time interface checks
var (
	_ audit.Store           = (*Store)(nil)
	_ verification.Store    = (*Store)(nil)
	_ ratelimit.SharedStore = (*Store)(nil)
)

// Option customizes the store.
type Option func(*Store)

// WithMaxEvents overrides the retained audit event cap.
func WithMaxEvents(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEvents = n
		}
	}
}

// New creates an in-memory store with a background janitor.
func New(logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		logger:      logger,
		maxEvents:   DefaultMaxEvents,
		users:       make(map[string]*userState),
		windows:     make(map[string]*windowEntry),
		blocks:      make(map[string]time.Time),
		flags:       make(map[string]time.Time),
		stopCleanup: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop(DefaultCleanupInterval)

	return s
}

// Close stops the janitor. Safe to call multiple times.
func (s *Store) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

// ============================================================
// audit.Store
// ============================================================

// InsertEvents appends a batch of audit events, dropping the oldest
// retained events past the cap.
func (s *Store) InsertEvents(_ context.Context, events []*audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, events...)
	if over := len(s.events) - s.maxEvents; over > 0 {
		s.events = append([]*audit.Event(nil), s.events[over:]...)
		s.droppedEvents += int64(over)
	}
	return nil
}

// Events returns a snapshot of the retained audit events, oldest first.
func (s *Store) Events() []*audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*audit.Event, len(s.events))
	copy(out, s.events)
	return out
}

// EventsByUser returns the retained events for one user, oldest first.
func (s *Store) EventsByUser(userID string) []*audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*audit.Event
	for _, e := range s.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// ============================================================
// verification.Store
// ============================================================

// GetStatus returns the user's verification status.
func (s *Store) GetStatus(_ context.Context, userID string) (*verification.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, verification.ErrStatusNotFound
	}
	status := u.status
	return &status, nil
}

// LatestVerification returns the newest verification record time for the
// user, or the zero time when none exists.
func (s *Store) LatestVerification(_ context.Context, userID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok || len(u.records) == 0 {
		return time.Time{}, nil
	}

	var latest time.Time
	for _, r := range u.records {
		if r.VerifiedAt.After(latest) {
			latest = r.VerifiedAt
		}
	}
	return latest, nil
}

// RecordVerification appends a completed verification and marks the user
// verified.
func (s *Store) RecordVerification(_ context.Context, record *verification.Record) error {
	if record == nil || record.UserID == "" {
		return fmt.Errorf("invalid verification record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := *record
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.VerifiedAt.IsZero() {
		r.VerifiedAt = time.Now()
	}

	u := s.user(record.UserID)
	u.records = append(u.records, r)
	u.status.IsVerified = true
	u.status.VerifiedAt = r.VerifiedAt
	u.status.Method = r.Method
	return nil
}

// CountAttempts counts verification email requests since the given time.
func (s *Store) CountAttempts(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return 0, nil
	}

	count := 0
	for _, at := range u.attempts {
		if at.After(since) {
			count++
		}
	}
	return count, nil
}

// RecordAttempt records a verification email request.
func (s *Store) RecordAttempt(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.user(userID)
	u.attempts = append(u.attempts, at)
	return nil
}

// SetPending marks whether a verification email is outstanding.
func (s *Store) SetPending(_ context.Context, userID string, pending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user(userID).status.Pending = pending
	return nil
}

// user returns the state for userID, creating it if needed.
// Caller must hold s.mu.
func (s *Store) user(userID string) *userState {
	u, ok := s.users[userID]
	if !ok {
		u = &userState{status: verification.Status{UserID: userID}}
		s.users[userID] = u
	}
	return u
}

// ============================================================
// ratelimit.SharedStore
// ============================================================

// IncrWindow increments the window counter for key, creating it with the
// window TTL on first hit.
func (s *Store) IncrWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.windows[key]
	if !ok || now.After(e.expiresAt) {
		e = &windowEntry{expiresAt: now.Add(window)}
		s.windows[key] = e
	}
	e.count++
	return e.count, e.expiresAt.Sub(now), nil
}

// SetBlock marks key as blocked for the given duration.
func (s *Store) SetBlock(_ context.Context, key string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[key] = time.Now().Add(d)
	return nil
}

// BlockTTL returns the remaining block duration for key, zero when
// unblocked.
func (s *Store) BlockTTL(_ context.Context, key string) (time.Duration, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.blocks[key]
	if !ok {
		return 0, nil
	}
	if now.After(until) {
		delete(s.blocks, key)
		return 0, nil
	}
	return until.Sub(now), nil
}

// SetFlag raises a suspicious flag on key for the given duration.
func (s *Store) SetFlag(_ context.Context, key string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[key] = time.Now().Add(d)
	return nil
}

// HasFlag reports whether key carries an unexpired suspicious flag.
func (s *Store) HasFlag(_ context.Context, key string) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.flags[key]
	if !ok {
		return false, nil
	}
	if now.After(until) {
		delete(s.flags, key)
		return false, nil
	}
	return true, nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup purges expired window counters, blocks, flags and stale attempt
// timestamps.
func (s *Store) cleanup() {
	now := time.Now()
	attemptCutoff := now.Add(-attemptRetention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.windows {
		if now.After(e.expiresAt) {
			delete(s.windows, key)
			removed++
		}
	}
	for key, until := range s.blocks {
		if now.After(until) {
			delete(s.blocks, key)
			removed++
		}
	}
	for key, until := range s.flags {
		if now.After(until) {
			delete(s.flags, key)
			removed++
		}
	}

	for _, u := range s.users {
		kept := u.attempts[:0]
		for _, at := range u.attempts {
			if at.After(attemptCutoff) {
				kept = append(kept, at)
			}
		}
		u.attempts = kept
	}

	if removed > 0 {
		s.logger.Debug("Cleaned up expired rate limit state", "removed", removed)
	}
}

// Stats reports the store's current state.
type Stats struct {
	Events        int   `json:"events"`
	DroppedEvents int64 `json:"dropped_events"`
	Users         int   `json:"users"`
	Windows       int   `json:"windows"`
	Blocks        int   `json:"blocks"`
	Flags         int   `json:"flags"`
}

// GetStats returns the store's current state.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Events:        len(s.events),
		DroppedEvents: s.droppedEvents,
		Users:         len(s.users),
		Windows:       len(s.windows),
		Blocks:        len(s.blocks),
		Flags:         len(s.flags),
	}
}
