// Package audit provides security event logging with batching, bounded
// queueing and best-effort delivery to a pluggable store.
//
// Logging is never allowed to break the caller's primary operation: store
// failures are retried with exponential backoff on the next flush, and the
// queue is bounded, discarding the oldest events under sustained outage.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultFlushInterval is how often queued events are flushed to the store
	DefaultFlushInterval = 30 * time.Second

	// DefaultMaxQueue is the maximum number of events held in memory.
	// When exceeded, the oldest events are dropped.
	DefaultMaxQueue = 1000

	// DefaultMaxBackoff caps the retry backoff after repeated store failures
	DefaultMaxBackoff = 5 * time.Minute

	// DefaultFlushTimeout bounds a single store insert attempt
	DefaultFlushTimeout = 10 * time.Second

	// initialBackoff is the backoff applied after the first store failure
	initialBackoff = time.Second
)

// Event represents a security audit event. Events are immutable after
// creation: they are only enqueued and eventually inserted.
type Event struct {
	ID           string         `json:"id" db:"id"`
	Type         string         `json:"event_type" db:"event_type"`
	UserID       string         `json:"user_id,omitempty" db:"user_id"`
	SessionID    string         `json:"session_id,omitempty" db:"session_id"`
	RequestID    string         `json:"request_id,omitempty" db:"request_id"`
	IPAddress    string         `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent    string         `json:"user_agent,omitempty" db:"user_agent"`
	ResourceType string         `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty" db:"resource_id"`
	Action       string         `json:"action,omitempty" db:"action"`
	Details      map[string]any `json:"details,omitempty" db:"-"`
	RiskLevel    RiskLevel      `json:"risk_level" db:"risk_level"`
	Timestamp    time.Time      `json:"created_at" db:"created_at"`
}

// Store persists batches of audit events.
// Implementations must treat the batch as append-only and preserve order.
type Store interface {
	InsertEvents(ctx context.Context, events []*Event) error
}

// Metrics receives instrumentation callbacks from the logger. Calls happen
// on the logging and flush paths and must not block.
type Metrics interface {
	// EventLogged is called for every accepted event.
	EventLogged(risk RiskLevel)

	// EventsDropped is called when the bounded queue discards events.
	EventsDropped(n int)

	// FlushCompleted is called after every store insert attempt.
	FlushCompleted(d time.Duration, err error)
}

// Config holds audit logger configuration
type Config struct {
	// Enabled controls whether events are recorded at all.
	// When false, Log is a no-op.
	Enabled bool

	// FlushInterval is how often the background loop flushes the queue.
	// Default: 30 seconds.
	FlushInterval time.Duration

	// MaxQueue bounds the in-memory queue. Oldest events are dropped when
	// the bound is exceeded. Default: 1000. Zero means default, not unlimited.
	MaxQueue int

	// MaxBackoff caps the exponential retry backoff after store failures.
	// Default: 5 minutes.
	MaxBackoff time.Duration

	// FlushTimeout bounds a single insert attempt. Default: 10 seconds.
	FlushTimeout time.Duration

	// Anomaly configures the audit-stream anomaly detector.
	// A nil map uses DefaultAnomalyThresholds.
	Anomaly map[string]int

	// Metrics receives instrumentation callbacks. Optional.
	Metrics Metrics

	// Logger is the structured logger (optional, uses slog.Default if nil)
	Logger *slog.Logger
}

// Logger batches security events and flushes them to the configured store.
// High and critical risk events trigger an immediate flush attempt instead
// of waiting for the periodic timer.
type Logger struct {
	store   Store
	logger  *slog.Logger
	enabled bool

	flushInterval time.Duration
	maxQueue      int
	maxBackoff    time.Duration
	flushTimeout  time.Duration

	mu       sync.Mutex
	queue    []*Event
	failures int
	retryAt  time.Time

	anomaly *anomalyDetector
	metrics Metrics

	kick     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// Statistics
	totalLogged  int64
	totalFlushed int64
	totalDropped int64
	flushErrors  int64
}

// NewLogger creates an audit logger and starts its background flush loop.
// The store may be nil only when cfg.Enabled is false.
func NewLogger(store Store, cfg Config) *Logger {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = DefaultMaxQueue
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}

	l := &Logger{
		store:         store,
		logger:        logger,
		enabled:       cfg.Enabled,
		flushInterval: cfg.FlushInterval,
		maxQueue:      cfg.MaxQueue,
		maxBackoff:    cfg.MaxBackoff,
		flushTimeout:  cfg.FlushTimeout,
		anomaly:       newAnomalyDetector(cfg.Anomaly),
		metrics:       cfg.Metrics,
		kick:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	go l.flushLoop()

	return l
}

// Log enriches and enqueues a security event. It never blocks on the store
// and never returns an error: delivery is best-effort by contract.
func (l *Logger) Log(event Event) {
	if !l.enabled {
		return
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RiskLevel == "" {
		event.RiskLevel = RiskLow
	}

	l.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"ip_address", event.IPAddress,
		"resource_type", event.ResourceType,
		"action", event.Action,
		"risk_level", event.RiskLevel,
	)

	l.enqueue(&event)
	if l.metrics != nil {
		l.metrics.EventLogged(event.RiskLevel)
	}

	// Feed the anomaly detector after the primary event so a triggered
	// anomaly event sorts behind its cause.
	if extra := l.anomaly.observe(&event); extra != nil {
		extra.ID = uuid.NewString()
		extra.Timestamp = time.Now()
		l.enqueue(extra)
	}

	if event.RiskLevel.Immediate() {
		select {
		case l.kick <- struct{}{}:
		default:
		}
	}
}

// enqueue appends an event, dropping the oldest entries when the bound is hit.
func (l *Logger) enqueue(event *Event) {
	l.mu.Lock()
	l.totalLogged++
	l.queue = append(l.queue, event)
	over := len(l.queue) - l.maxQueue
	if over > 0 {
		l.queue = l.queue[over:]
		l.totalDropped += int64(over)
	}
	totalDropped := l.totalDropped
	l.mu.Unlock()

	if over > 0 {
		l.logger.Warn("Audit queue full, dropping oldest events",
			"dropped", over,
			"total_dropped", totalDropped,
			"max_queue", l.maxQueue)
		if l.metrics != nil {
			l.metrics.EventsDropped(over)
		}
	}
}

// flushLoop drains the queue on a timer and on immediate-flush kicks.
func (l *Logger) flushLoop() {
	defer close(l.done)

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Flush(context.Background())
		case <-l.kick:
			l.Flush(context.Background())
		case <-l.stop:
			return
		}
	}
}

// Flush attempts to deliver all queued events to the store. On failure the
// batch is requeued in front of newer events (at-least-once, order
// preserving) and the next attempt is delayed by exponential backoff.
func (l *Logger) Flush(ctx context.Context) {
	l.mu.Lock()
	if len(l.queue) == 0 || time.Now().Before(l.retryAt) {
		l.mu.Unlock()
		return
	}
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, l.flushTimeout)
	defer cancel()

	start := time.Now()
	err := l.store.InsertEvents(ctx, batch)
	if l.metrics != nil {
		l.metrics.FlushCompleted(time.Since(start), err)
	}
	if err != nil {
		l.requeue(batch, err)
		return
	}

	l.mu.Lock()
	l.failures = 0
	l.retryAt = time.Time{}
	l.totalFlushed += int64(len(batch))
	l.mu.Unlock()
}

// requeue prepends a failed batch and schedules the next retry.
func (l *Logger) requeue(batch []*Event, err error) {
	l.mu.Lock()

	l.queue = append(batch, l.queue...)
	over := len(l.queue) - l.maxQueue
	if over > 0 {
		l.queue = l.queue[over:]
		l.totalDropped += int64(over)
	}

	backoff := initialBackoff << l.failures
	if backoff > l.maxBackoff || backoff <= 0 {
		backoff = l.maxBackoff
	}
	l.failures++
	l.flushErrors++
	l.retryAt = time.Now().Add(backoff)
	queued := len(l.queue)
	l.mu.Unlock()

	if over > 0 && l.metrics != nil {
		l.metrics.EventsDropped(over)
	}

	l.logger.Warn("Audit flush failed, events requeued",
		"error", err,
		"batch_size", len(batch),
		"queued", queued,
		"retry_in", backoff)
}

// Close stops the flush loop and makes a final synchronous delivery attempt.
// Safe to call multiple times.
func (l *Logger) Close() {
	l.stopOnce.Do(func() {
		close(l.stop)
		<-l.done

		// Final flush ignores the backoff gate: this is the last chance
		// before the queue is lost.
		l.mu.Lock()
		l.retryAt = time.Time{}
		l.mu.Unlock()
		l.Flush(context.Background())

		l.logger.Debug("Audit logger stopped")
	})
}

// Stats holds audit logger statistics for monitoring
type Stats struct {
	QueueDepth   int   // Events currently queued
	TotalLogged  int64 // Events accepted by Log
	TotalFlushed int64 // Events successfully delivered
	TotalDropped int64 // Events discarded by the queue bound
	FlushErrors  int64 // Failed insert attempts
}

// GetStats returns current logger statistics for monitoring and alerting
func (l *Logger) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		QueueDepth:   len(l.queue),
		TotalLogged:  l.totalLogged,
		TotalFlushed: l.totalFlushed,
		TotalDropped: l.totalDropped,
		FlushErrors:  l.flushErrors,
	}
}

// hashForLogging creates a SHA256 hash of sensitive data for log output
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
