// Package mock provides mock implementations of the store interfaces for
// testing. Each mock records call counts and exposes per-method override
// functions for error injection.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/onedrip/shield/audit"
	"github.com/onedrip/shield/ratelimit"
	"github.com/onedrip/shield/verification"
)

// MockAuditStore is a mock implementation of audit.Store for testing
type MockAuditStore struct {
	mu               sync.RWMutex
	events           []*audit.Event
	InsertEventsFunc func(ctx context.Context, events []*audit.Event) error
	CallCounts       map[string]int
}

var _ audit.Store = (*MockAuditStore)(nil)

// NewMockAuditStore creates a new mock audit store
func NewMockAuditStore() *MockAuditStore {
	m := &MockAuditStore{
		CallCounts: make(map[string]int),
	}

	m.InsertEventsFunc = func(_ context.Context, events []*audit.Event) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.events = append(m.events, events...)
		return nil
	}

	return m
}

func (m *MockAuditStore) InsertEvents(ctx context.Context, events []*audit.Event) error {
	m.mu.Lock()
	m.CallCounts["InsertEvents"]++
	m.mu.Unlock()
	return m.InsertEventsFunc(ctx, events)
}

// Events returns the inserted events, oldest first.
func (m *MockAuditStore) Events() []*audit.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*audit.Event, len(m.events))
	copy(out, m.events)
	return out
}

// EventTypes returns the inserted event types in order.
func (m *MockAuditStore) EventTypes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	types := make([]string, len(m.events))
	for i, e := range m.events {
		types[i] = e.Type
	}
	return types
}

// MockVerificationStore is a mock implementation of verification.Store for
// testing
type MockVerificationStore struct {
	mu                     sync.RWMutex
	statuses               map[string]*verification.Status
	records                map[string][]*verification.Record
	attempts               map[string][]time.Time
	GetStatusFunc          func(ctx context.Context, userID string) (*verification.Status, error)
	LatestVerificationFunc func(ctx context.Context, userID string) (time.Time, error)
	RecordVerificationFunc func(ctx context.Context, record *verification.Record) error
	CountAttemptsFunc      func(ctx context.Context, userID string, since time.Time) (int, error)
	RecordAttemptFunc      func(ctx context.Context, userID string, at time.Time) error
	SetPendingFunc         func(ctx context.Context, userID string, pending bool) error
	CallCounts             map[string]int
}

var _ verification.Store = (*MockVerificationStore)(nil)

// NewMockVerificationStore creates a new mock verification store
func NewMockVerificationStore() *MockVerificationStore {
	m := &MockVerificationStore{
		statuses:   make(map[string]*verification.Status),
		records:    make(map[string][]*verification.Record),
		attempts:   make(map[string][]time.Time),
		CallCounts: make(map[string]int),
	}

	m.GetStatusFunc = func(_ context.Context, userID string) (*verification.Status, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		status, ok := m.statuses[userID]
		if !ok {
			return nil, verification.ErrStatusNotFound
		}
		copied := *status
		return &copied, nil
	}

	m.LatestVerificationFunc = func(_ context.Context, userID string) (time.Time, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		var latest time.Time
		for _, r := range m.records[userID] {
			if r.VerifiedAt.After(latest) {
				latest = r.VerifiedAt
			}
		}
		return latest, nil
	}

	m.RecordVerificationFunc = func(_ context.Context, record *verification.Record) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		copied := *record
		m.records[record.UserID] = append(m.records[record.UserID], &copied)
		m.statuses[record.UserID] = &verification.Status{
			UserID:     record.UserID,
			IsVerified: true,
			VerifiedAt: record.VerifiedAt,
			Method:     record.Method,
		}
		return nil
	}

	m.CountAttemptsFunc = func(_ context.Context, userID string, since time.Time) (int, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		count := 0
		for _, at := range m.attempts[userID] {
			if at.After(since) {
				count++
			}
		}
		return count, nil
	}

	m.RecordAttemptFunc = func(_ context.Context, userID string, at time.Time) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.attempts[userID] = append(m.attempts[userID], at)
		return nil
	}

	m.SetPendingFunc = func(_ context.Context, userID string, pending bool) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		status, ok := m.statuses[userID]
		if !ok {
			status = &verification.Status{UserID: userID}
			m.statuses[userID] = status
		}
		status.Pending = pending
		return nil
	}

	return m
}

// SetStatus seeds a user's verification status.
func (m *MockVerificationStore) SetStatus(status *verification.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *status
	m.statuses[status.UserID] = &copied
}

func (m *MockVerificationStore) GetStatus(ctx context.Context, userID string) (*verification.Status, error) {
	m.count("GetStatus")
	return m.GetStatusFunc(ctx, userID)
}

func (m *MockVerificationStore) LatestVerification(ctx context.Context, userID string) (time.Time, error) {
	m.count("LatestVerification")
	return m.LatestVerificationFunc(ctx, userID)
}

func (m *MockVerificationStore) RecordVerification(ctx context.Context, record *verification.Record) error {
	m.count("RecordVerification")
	return m.RecordVerificationFunc(ctx, record)
}

func (m *MockVerificationStore) CountAttempts(ctx context.Context, userID string, since time.Time) (int, error) {
	m.count("CountAttempts")
	return m.CountAttemptsFunc(ctx, userID, since)
}

func (m *MockVerificationStore) RecordAttempt(ctx context.Context, userID string, at time.Time) error {
	m.count("RecordAttempt")
	return m.RecordAttemptFunc(ctx, userID, at)
}

func (m *MockVerificationStore) SetPending(ctx context.Context, userID string, pending bool) error {
	m.count("SetPending")
	return m.SetPendingFunc(ctx, userID, pending)
}

func (m *MockVerificationStore) count(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[method]++
}

// MockSharedStore is a mock implementation of ratelimit.SharedStore for
// testing
type MockSharedStore struct {
	mu             sync.RWMutex
	counts         map[string]int64
	expiries       map[string]time.Time
	blocks         map[string]time.Time
	flags          map[string]time.Time
	IncrWindowFunc func(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	SetBlockFunc   func(ctx context.Context, key string, d time.Duration) error
	BlockTTLFunc   func(ctx context.Context, key string) (time.Duration, error)
	SetFlagFunc    func(ctx context.Context, key string, d time.Duration) error
	HasFlagFunc    func(ctx context.Context, key string) (bool, error)
	CallCounts     map[string]int
}

var _ ratelimit.SharedStore = (*MockSharedStore)(nil)

// NewMockSharedStore creates a new mock shared rate-limit store
func NewMockSharedStore() *MockSharedStore {
	m := &MockSharedStore{
		counts:     make(map[string]int64),
		expiries:   make(map[string]time.Time),
		blocks:     make(map[string]time.Time),
		flags:      make(map[string]time.Time),
		CallCounts: make(map[string]int),
	}

	m.IncrWindowFunc = func(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		now := time.Now()
		if exp, ok := m.expiries[key]; !ok || now.After(exp) {
			m.counts[key] = 0
			m.expiries[key] = now.Add(window)
		}
		m.counts[key]++
		return m.counts[key], m.expiries[key].Sub(now), nil
	}

	m.SetBlockFunc = func(_ context.Context, key string, d time.Duration) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.blocks[key] = time.Now().Add(d)
		return nil
	}

	m.BlockTTLFunc = func(_ context.Context, key string) (time.Duration, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		until, ok := m.blocks[key]
		if !ok || time.Now().After(until) {
			return 0, nil
		}
		return time.Until(until), nil
	}

	m.SetFlagFunc = func(_ context.Context, key string, d time.Duration) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.flags[key] = time.Now().Add(d)
		return nil
	}

	m.HasFlagFunc = func(_ context.Context, key string) (bool, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		until, ok := m.flags[key]
		return ok && time.Now().Before(until), nil
	}

	return m
}

func (m *MockSharedStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.count("IncrWindow")
	return m.IncrWindowFunc(ctx, key, window)
}

func (m *MockSharedStore) SetBlock(ctx context.Context, key string, d time.Duration) error {
	m.count("SetBlock")
	return m.SetBlockFunc(ctx, key, d)
}

func (m *MockSharedStore) BlockTTL(ctx context.Context, key string) (time.Duration, error) {
	m.count("BlockTTL")
	return m.BlockTTLFunc(ctx, key)
}

func (m *MockSharedStore) SetFlag(ctx context.Context, key string, d time.Duration) error {
	m.count("SetFlag")
	return m.SetFlagFunc(ctx, key, d)
}

func (m *MockSharedStore) HasFlag(ctx context.Context, key string) (bool, error) {
	m.count("HasFlag")
	return m.HasFlagFunc(ctx, key)
}

func (m *MockSharedStore) count(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[method]++
}

// MockMailer is a mock implementation of verification.Mailer for testing
type MockMailer struct {
	mu       sync.RWMutex
	sent     []string
	SendFunc func(ctx context.Context, userID string) error
}

var _ verification.Mailer = (*MockMailer)(nil)

// NewMockMailer creates a new mock mailer
func NewMockMailer() *MockMailer {
	m := &MockMailer{}
	m.SendFunc = func(_ context.Context, userID string) error {
		return nil
	}
	return m
}

func (m *MockMailer) SendVerificationEmail(ctx context.Context, userID string) error {
	m.mu.Lock()
	m.sent = append(m.sent, userID)
	m.mu.Unlock()
	return m.SendFunc(ctx, userID)
}

// Sent returns the user IDs emails were sent to, in order.
func (m *MockMailer) Sent() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}
