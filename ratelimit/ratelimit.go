// Package ratelimit implements per-action sliding-window rate limiting with
// block semantics, whitelist/blacklist handling and abuse heuristics.
//
// The limiter keeps one entry per (action, identifier) pair. An entry counts
// hits inside a fixed-length window; once the count exceeds the configured
// maximum the entry is blocked for the configured block duration. Denials are
// returned as values, never as errors.
package ratelimit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onedrip/shield/audit"
	"github.com/onedrip/shield/internal/util"
)

// DefaultCleanupInterval is how often expired entries are purged
const DefaultCleanupInterval = 5 * time.Minute

// identifierLogLength is the number of characters of an identifier to
// include in log lines. Full identifiers (IPs, user IDs) stay out of logs.
const identifierLogLength = 12

// AuditSink receives the security events the limiter emits.
// *audit.Logger satisfies this interface.
type AuditSink interface {
	LogRateLimitExceeded(actor audit.Actor, action string, limit int)
	LogBlacklistedAccess(actor audit.Actor, identifier, action string)
	LogSuspiciousActivity(actor audit.Actor, description string, details map[string]any)
}

// Config describes the limit applied to one action.
type Config struct {
	// Window is the length of the counting window.
	Window time.Duration

	// MaxRequests is the number of requests allowed inside one window.
	// The request that brings the count to MaxRequests is still allowed;
	// blocking starts when the count exceeds it.
	MaxRequests int

	// BlockDuration is how long an identifier stays blocked after
	// exceeding MaxRequests.
	BlockDuration time.Duration

	// SkipSuccessful requests are not counted against the limit. The
	// caller reports outcomes via Forgive after the operation completes.
	SkipSuccessful bool

	// SkipFailed requests are not counted against the limit.
	SkipFailed bool

	// Whitelist identifiers always pass with full remaining quota.
	Whitelist []string

	// Blacklist identifiers always fail immediately.
	Blacklist []string

	// OnLimitExceeded is invoked once each time an identifier transitions
	// into the blocked state. Optional.
	OnLimitExceeded func(identifier, action string)
}

// Result is the outcome of a limit check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // zero when allowed

	// Blacklisted is set when the denial came from the blacklist rather
	// than an exhausted window.
	Blacklisted bool

	// Reason is the user-facing denial message (pt-BR, rendered by the
	// OneDrip UI). Empty when allowed.
	Reason string
}

// entry tracks one (action, identifier) pair.
type entry struct {
	count          int
	windowStart    time.Time
	resetAt        time.Time
	blocked        bool
	blockExpiresAt time.Time
	firstRequest   time.Time
}

// Limiter is an in-memory sliding-window rate limiter keyed by
// (action, identifier). All methods are safe for concurrent use.
type Limiter struct {
	mu         sync.Mutex
	entries    map[string]*entry
	configs    map[string]Config
	whitelist  map[string]struct{}
	blacklist  map[string]struct{}
	suspicious *suspicionList

	auditor AuditSink
	logger  *slog.Logger

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once

	// Statistics
	totalAllowed int64
	totalBlocked int64
	totalResets  int64
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithAuditSink wires the limiter to the audit logger.
func WithAuditSink(sink AuditSink) Option {
	return func(l *Limiter) { l.auditor = sink }
}

// WithConfigs replaces the named action configs. Unknown actions fall back
// to the api_general config.
func WithConfigs(configs map[string]Config) Option {
	return func(l *Limiter) { l.configs = configs }
}

// WithCleanupInterval overrides the purge interval (used by tests).
func WithCleanupInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.cleanupInterval = d
		}
	}
}

// NewLimiter creates a limiter with the predefined action configs and starts
// the background cleanup goroutine.
func NewLimiter(logger *slog.Logger, opts ...Option) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Limiter{
		entries:         make(map[string]*entry),
		configs:         DefaultConfigs(),
		whitelist:       make(map[string]struct{}),
		blacklist:       make(map[string]struct{}),
		suspicious:      newSuspicionList(),
		logger:          logger,
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	go l.cleanupLoop()

	return l
}

// Check applies the named action's config to the identifier.
func (l *Limiter) Check(identifier, action string) Result {
	return l.CheckWithConfig(identifier, action, l.configFor(action))
}

// CheckWithConfig applies a custom config instead of the named one.
func (l *Limiter) CheckWithConfig(identifier, action string, cfg Config) Result {
	now := time.Now()

	if l.isWhitelisted(identifier, cfg) {
		return Result{
			Allowed:   true,
			Limit:     cfg.MaxRequests,
			Remaining: cfg.MaxRequests,
			ResetAt:   now.Add(cfg.Window),
		}
	}

	if l.isBlacklisted(identifier, cfg) {
		if l.auditor != nil {
			l.auditor.LogBlacklistedAccess(audit.Actor{}, identifier, action)
		}
		return Result{
			Allowed:     false,
			Limit:       cfg.MaxRequests,
			RetryAfter:  cfg.BlockDuration,
			Blacklisted: true,
			Reason:      "Acesso bloqueado. Entre em contato com o suporte.",
		}
	}

	key := action + ":" + identifier

	l.mu.Lock()
	e := l.entries[key]
	if e == nil {
		e = &entry{
			windowStart:  now,
			resetAt:      now.Add(cfg.Window),
			firstRequest: now,
		}
		l.entries[key] = e
	}

	// Active block wins over everything else.
	if e.blocked {
		if now.Before(e.blockExpiresAt) {
			retry := e.blockExpiresAt.Sub(now)
			l.totalBlocked++
			l.mu.Unlock()
			return Result{
				Allowed:    false,
				Limit:      cfg.MaxRequests,
				ResetAt:    e.blockExpiresAt,
				RetryAfter: retry,
				Reason:     retryReason(retry),
			}
		}
		// Block elapsed: clear it so the window logic below decides.
		e.blocked = false
		e.blockExpiresAt = time.Time{}
	}

	// Window elapsed: start a fresh one.
	if !now.Before(e.resetAt) {
		e.count = 0
		e.windowStart = now
		e.resetAt = now.Add(cfg.Window)
		l.totalResets++
	}

	e.count++

	if e.count > cfg.MaxRequests {
		e.blocked = true
		e.blockExpiresAt = now.Add(cfg.BlockDuration)
		l.totalBlocked++
		count := e.count
		suspicion := l.suspicious.detect(identifier, action, e, cfg, now)
		l.mu.Unlock()

		l.logger.Warn("Rate limit exceeded",
			"action", action,
			"identifier", util.SafeTruncate(identifier, identifierLogLength),
			"count", count,
			"max_requests", cfg.MaxRequests,
			"block_duration", cfg.BlockDuration)

		if l.auditor != nil {
			l.auditor.LogRateLimitExceeded(audit.Actor{}, action, cfg.MaxRequests)
			if suspicion != "" {
				l.auditor.LogSuspiciousActivity(audit.Actor{}, suspicion, map[string]any{
					"action": action,
					"count":  count,
				})
			}
		}
		if cfg.OnLimitExceeded != nil {
			cfg.OnLimitExceeded(identifier, action)
		}

		return Result{
			Allowed:    false,
			Limit:      cfg.MaxRequests,
			ResetAt:    e.blockExpiresAt,
			RetryAfter: cfg.BlockDuration,
			Reason:     retryReason(cfg.BlockDuration),
		}
	}

	remaining := cfg.MaxRequests - e.count
	resetAt := e.resetAt
	l.totalAllowed++
	l.mu.Unlock()

	return Result{
		Allowed:   true,
		Limit:     cfg.MaxRequests,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Forgive uncounts one hit for the pair, used with SkipSuccessful/SkipFailed
// configs once the operation outcome is known. A blocked entry stays blocked.
func (l *Limiter) Forgive(identifier, action string) {
	key := action + ":" + identifier

	l.mu.Lock()
	defer l.mu.Unlock()

	if e := l.entries[key]; e != nil && e.count > 0 && !e.blocked {
		e.count--
	}
}

// Reset removes all state for the pair.
func (l *Limiter) Reset(identifier, action string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, action+":"+identifier)
}

// Whitelist adds an identifier to the global whitelist.
func (l *Limiter) Whitelist(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.whitelist[identifier] = struct{}{}
}

// Blacklist adds an identifier to the global blacklist.
func (l *Limiter) Blacklist(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blacklist[identifier] = struct{}{}
}

// Unlist removes an identifier from both global lists.
func (l *Limiter) Unlist(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.whitelist, identifier)
	delete(l.blacklist, identifier)
}

// IsSuspicious reports whether the abuse heuristics have flagged the
// identifier within the last 24 hours. Flags carry no enforcement beyond
// this query; callers decide what to do with them.
func (l *Limiter) IsSuspicious(identifier string) bool {
	return l.suspicious.has(identifier, time.Now())
}

func (l *Limiter) isWhitelisted(identifier string, cfg Config) bool {
	l.mu.Lock()
	_, global := l.whitelist[identifier]
	l.mu.Unlock()
	if global {
		return true
	}
	for _, id := range cfg.Whitelist {
		if id == identifier {
			return true
		}
	}
	return false
}

func (l *Limiter) isBlacklisted(identifier string, cfg Config) bool {
	l.mu.Lock()
	_, global := l.blacklist[identifier]
	l.mu.Unlock()
	if global {
		return true
	}
	for _, id := range cfg.Blacklist {
		if id == identifier {
			return true
		}
	}
	return false
}

// configFor resolves an action name to its config, falling back to the
// general API config for unregistered actions.
func (l *Limiter) configFor(action string) Config {
	if cfg, ok := l.configs[action]; ok {
		return cfg
	}
	return l.configs[ActionAPIGeneral]
}

// cleanupLoop periodically purges entries whose window and block both expired
func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

// Cleanup removes entries whose window has elapsed and whose block, if any,
// has expired. Suspicious flags expire independently after 24 hours.
func (l *Limiter) Cleanup() {
	now := time.Now()

	l.mu.Lock()
	removed := 0
	for key, e := range l.entries {
		windowDone := !now.Before(e.resetAt)
		blockDone := !e.blocked || !now.Before(e.blockExpiresAt)
		if windowDone && blockDone {
			delete(l.entries, key)
			removed++
		}
	}
	remaining := len(l.entries)
	l.mu.Unlock()

	expired := l.suspicious.expire(now)

	if removed > 0 || expired > 0 {
		l.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining", remaining,
			"expired_flags", expired)
	}
}

// Stop gracefully stops the cleanup goroutine. Safe to call multiple times.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCleanup)
		l.logger.Debug("Rate limiter stopped")
	})
}

// Stats holds rate limiter statistics for monitoring
type Stats struct {
	TotalEntries   int   // Entries currently tracked
	BlockedEntries int   // Entries currently in the blocked state
	Suspicious     int   // Identifiers currently flagged by the heuristics
	TotalAllowed   int64 // Checks that passed
	TotalBlocked   int64 // Checks denied by a block or a fresh limit breach
	TotalResets    int64 // Window resets performed
}

// GetStats returns current limiter statistics. Read-only: calling it does
// not mutate any entry.
func (l *Limiter) GetStats() Stats {
	now := time.Now()

	l.mu.Lock()
	stats := Stats{
		TotalEntries: len(l.entries),
		TotalAllowed: l.totalAllowed,
		TotalBlocked: l.totalBlocked,
		TotalResets:  l.totalResets,
	}
	for _, e := range l.entries {
		if e.blocked && now.Before(e.blockExpiresAt) {
			stats.BlockedEntries++
		}
	}
	l.mu.Unlock()

	stats.Suspicious = l.suspicious.count(now)
	return stats
}

// retryReason renders the user-facing denial message for a retry delay.
func retryReason(retry time.Duration) string {
	minutes := int(retry.Round(time.Minute) / time.Minute)
	if minutes <= 1 {
		return "Muitas tentativas. Tente novamente em instantes."
	}
	return fmt.Sprintf("Muitas tentativas. Tente novamente em %d minutos.", minutes)
}
