package ratelimit

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultThrottleMaxEntries bounds the number of tracked client IPs
	DefaultThrottleMaxEntries = 10000

	// throttleIdleTimeout is how long an IP may be idle before its bucket
	// is discarded by cleanup
	throttleIdleTimeout = 30 * time.Minute
)

// throttleEntry tracks a token bucket and its last access time
type throttleEntry struct {
	ip         string
	bucket     *rate.Limiter
	lastAccess time.Time
}

// Throttle is the coarse per-IP limiter applied at the HTTP edge, before any
// per-action window is consulted. It uses a token bucket per client IP with
// LRU eviction to keep memory bounded; the per-action Limiter handles policy,
// this handles floods.
type Throttle struct {
	entries    map[string]*list.Element // IP -> list element
	lruList    *list.List               // LRU list of *throttleEntry
	mu         sync.Mutex
	rate       rate.Limit
	burst      int
	maxEntries int
	logger     *slog.Logger

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once

	// Statistics
	totalEvictions int64
	totalDenied    int64
}

// NewThrottle creates a per-IP throttle allowing requestsPerSecond sustained
// with the given burst, and starts its cleanup goroutine.
func NewThrottle(requestsPerSecond float64, burst int, logger *slog.Logger) *Throttle {
	if logger == nil {
		logger = slog.Default()
	}

	t := &Throttle{
		entries:         make(map[string]*list.Element),
		lruList:         list.New(),
		rate:            rate.Limit(requestsPerSecond),
		burst:           burst,
		maxEntries:      DefaultThrottleMaxEntries,
		logger:          logger,
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go t.cleanupLoop()

	return t
}

// Allow reports whether a request from the IP may proceed right now.
func (t *Throttle) Allow(ip string) bool {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, exists := t.entries[ip]; exists {
		t.lruList.MoveToFront(elem)
		e := elem.Value.(*throttleEntry)
		e.lastAccess = now
		if !e.bucket.Allow() {
			t.totalDenied++
			return false
		}
		return true
	}

	if t.maxEntries > 0 && len(t.entries) >= t.maxEntries {
		t.evictLRU()
	}

	e := &throttleEntry{
		ip:         ip,
		bucket:     rate.NewLimiter(t.rate, t.burst),
		lastAccess: now,
	}
	t.entries[ip] = t.lruList.PushFront(e)

	return e.bucket.Allow()
}

// evictLRU removes the least recently used entry.
// Must be called with the mutex locked.
func (t *Throttle) evictLRU() {
	elem := t.lruList.Back()
	if elem == nil {
		return
	}
	e := elem.Value.(*throttleEntry)
	delete(t.entries, e.ip)
	t.lruList.Remove(elem)
	t.totalEvictions++

	t.logger.Debug("Throttle LRU eviction",
		"ip", e.ip,
		"total_evictions", t.totalEvictions,
		"current_entries", len(t.entries))
}

func (t *Throttle) cleanupLoop() {
	ticker := time.NewTicker(t.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.cleanup()
		case <-t.stopCleanup:
			return
		}
	}
}

// cleanup discards buckets for IPs idle longer than throttleIdleTimeout.
func (t *Throttle) cleanup() {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	var next *list.Element
	for elem := t.lruList.Front(); elem != nil; elem = next {
		next = elem.Next()
		e := elem.Value.(*throttleEntry)
		if now.Sub(e.lastAccess) > throttleIdleTimeout {
			delete(t.entries, e.ip)
			t.lruList.Remove(elem)
			removed++
		}
	}

	if removed > 0 {
		t.logger.Debug("Throttle cleanup completed",
			"removed", removed,
			"remaining", len(t.entries))
	}
}

// Stop gracefully stops the cleanup goroutine. Safe to call multiple times.
func (t *Throttle) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCleanup)
	})
}

// ThrottleStats holds throttle statistics for monitoring
type ThrottleStats struct {
	CurrentEntries int
	MaxEntries     int
	TotalEvictions int64
	TotalDenied    int64
}

// GetStats returns current throttle statistics
func (t *Throttle) GetStats() ThrottleStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return ThrottleStats{
		CurrentEntries: len(t.entries),
		MaxEntries:     t.maxEntries,
		TotalEvictions: t.totalEvictions,
		TotalDenied:    t.totalDenied,
	}
}
