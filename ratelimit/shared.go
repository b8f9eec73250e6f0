package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/onedrip/shield/audit"
	"github.com/onedrip/shield/internal/util"
)

// SharedStore is the backend for cross-instance rate limiting. A single
// in-process limiter only protects one instance; pointing every instance at
// the same store makes the counters authoritative for the whole deployment.
//
// Keys are opaque to the store. Implementations must make IncrWindow atomic:
// concurrent callers may never observe the same count.
type SharedStore interface {
	// IncrWindow increments the window counter for key, creating it with
	// the window TTL on first hit. Returns the new count and the remaining
	// window TTL.
	IncrWindow(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)

	// SetBlock marks key as blocked for the given duration.
	SetBlock(ctx context.Context, key string, d time.Duration) error

	// BlockTTL returns the remaining block duration for key, or zero when
	// the key is not blocked.
	BlockTTL(ctx context.Context, key string) (time.Duration, error)

	// SetFlag raises a suspicious flag on key for the given duration.
	SetFlag(ctx context.Context, key string, d time.Duration) error

	// HasFlag reports whether key carries an unexpired suspicious flag.
	HasFlag(ctx context.Context, key string) (bool, error)
}

// SharedLimiter enforces the same window/block semantics as Limiter against
// a shared store, so that all instances of the application see one counter
// per (action, identifier). The in-process Limiter remains the fallback when
// the store is unreachable: losing the store must not lock every user out,
// and must not let a single instance be abused either.
type SharedLimiter struct {
	store    SharedStore
	fallback *Limiter
	configs  map[string]Config
	auditor  AuditSink
	logger   *slog.Logger
}

// NewSharedLimiter wraps a shared store with the window/block state machine.
// fallback must not be nil; it handles checks while the store errors.
func NewSharedLimiter(store SharedStore, fallback *Limiter, logger *slog.Logger, opts ...Option) *SharedLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	sl := &SharedLimiter{
		store:    store,
		fallback: fallback,
		configs:  DefaultConfigs(),
		logger:   logger,
	}
	// Reuse Limiter options for configs and audit wiring.
	carrier := &Limiter{configs: sl.configs}
	for _, opt := range opts {
		opt(carrier)
	}
	sl.configs = carrier.configs
	sl.auditor = carrier.auditor
	return sl
}

// Check applies the named action's config against the shared counters.
func (sl *SharedLimiter) Check(ctx context.Context, identifier, action string) Result {
	cfg, ok := sl.configs[action]
	if !ok {
		cfg = sl.configs[ActionAPIGeneral]
	}
	return sl.CheckWithConfig(ctx, identifier, action, cfg)
}

// CheckWithConfig applies a custom config against the shared counters.
// Store errors degrade to the in-process fallback limiter.
func (sl *SharedLimiter) CheckWithConfig(ctx context.Context, identifier, action string, cfg Config) Result {
	// List membership is config plus the fallback limiter's global lists,
	// checked before the store so the guarantees hold even when the store
	// is down or the counters disagree across instances.
	if sl.fallback.isWhitelisted(identifier, cfg) {
		return Result{
			Allowed:   true,
			Limit:     cfg.MaxRequests,
			Remaining: cfg.MaxRequests,
			ResetAt:   time.Now().Add(cfg.Window),
		}
	}
	if sl.fallback.isBlacklisted(identifier, cfg) {
		if sl.auditor != nil {
			sl.auditor.LogBlacklistedAccess(audit.Actor{}, identifier, action)
		}
		return Result{
			Allowed:     false,
			Limit:       cfg.MaxRequests,
			RetryAfter:  cfg.BlockDuration,
			Blacklisted: true,
			Reason:      "Acesso bloqueado. Entre em contato com o suporte.",
		}
	}

	key := "rl:" + action + ":" + identifier
	blockKey := "rl:block:" + action + ":" + identifier

	blockTTL, err := sl.store.BlockTTL(ctx, blockKey)
	if err != nil {
		return sl.degrade(identifier, action, cfg, err)
	}
	if blockTTL > 0 {
		return Result{
			Allowed:    false,
			Limit:      cfg.MaxRequests,
			ResetAt:    time.Now().Add(blockTTL),
			RetryAfter: blockTTL,
			Reason:     retryReason(blockTTL),
		}
	}

	count, ttl, err := sl.store.IncrWindow(ctx, key, cfg.Window)
	if err != nil {
		return sl.degrade(identifier, action, cfg, err)
	}

	if count > int64(cfg.MaxRequests) {
		if err := sl.store.SetBlock(ctx, blockKey, cfg.BlockDuration); err != nil {
			sl.logger.Warn("Failed to set shared block", "action", action, "error", err)
		}
		sl.logger.Warn("Shared rate limit exceeded",
			"action", action,
			"identifier", util.SafeTruncate(identifier, identifierLogLength),
			"count", count,
			"max_requests", cfg.MaxRequests)
		if sl.auditor != nil {
			sl.auditor.LogRateLimitExceeded(audit.Actor{}, action, cfg.MaxRequests)
		}
		if cfg.OnLimitExceeded != nil {
			cfg.OnLimitExceeded(identifier, action)
		}
		// The count-multiplier heuristic is the only one expressible
		// without per-entry lifetime tracking in the store.
		if count > int64(cfg.MaxRequests*countMultiplier) {
			flagKey := "rl:suspicious:" + identifier
			if err := sl.store.SetFlag(ctx, flagKey, suspicionTTL); err != nil {
				sl.logger.Warn("Failed to flag identifier", "error", err)
			}
		}
		return Result{
			Allowed:    false,
			Limit:      cfg.MaxRequests,
			ResetAt:    time.Now().Add(cfg.BlockDuration),
			RetryAfter: cfg.BlockDuration,
			Reason:     retryReason(cfg.BlockDuration),
		}
	}

	return Result{
		Allowed:   true,
		Limit:     cfg.MaxRequests,
		Remaining: cfg.MaxRequests - int(count),
		ResetAt:   time.Now().Add(ttl),
	}
}

// IsSuspicious queries the shared suspicious flag for the identifier.
func (sl *SharedLimiter) IsSuspicious(ctx context.Context, identifier string) bool {
	flagged, err := sl.store.HasFlag(ctx, "rl:suspicious:"+identifier)
	if err != nil {
		return sl.fallback.IsSuspicious(identifier)
	}
	return flagged
}

// degrade falls back to the in-process limiter when the store errors.
func (sl *SharedLimiter) degrade(identifier, action string, cfg Config, err error) Result {
	sl.logger.Warn("Shared rate limit store unavailable, using local limiter",
		"action", action,
		"error", err)
	return sl.fallback.CheckWithConfig(identifier, action, cfg)
}
