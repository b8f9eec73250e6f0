package shield

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/onedrip/shield/audit"
	"github.com/onedrip/shield/csp"
	"github.com/onedrip/shield/instrumentation"
	"github.com/onedrip/shield/ratelimit"
	"github.com/onedrip/shield/verification"
)

// Stores bundles the storage backends the guard depends on.
type Stores struct {
	// Audit persists security events. Required when audit is enabled.
	Audit audit.Store

	// Verification persists verification state. Optional: when nil, the
	// verification guard is disabled and every action passes that check.
	Verification verification.Store

	// Mailer dispatches verification emails. Optional.
	Mailer verification.Mailer

	// SharedRateLimit backs cross-instance rate limiting. Optional: when
	// nil, counters are instance-local.
	SharedRateLimit ratelimit.SharedStore
}

// Decision is the combined outcome of an authorization check.
type Decision struct {
	Allowed bool

	// Code is the machine-readable denial code (see errors.go). Empty
	// when allowed.
	Code string

	// Reason is the user-facing denial message (pt-BR). Empty when allowed.
	Reason string

	// RetryAfter is set for rate limit denials.
	RetryAfter time.Duration

	// RequiresVerification indicates the user can unblock the action by
	// (re)verifying their email.
	RequiresVerification bool
}

// Guard wires the rate limiter, verification guard, CSP manager and audit
// logger into one service object. Construct it once at application startup
// and pass it to consumers; there is no package-level instance.
type Guard struct {
	cfg    Config
	logger *slog.Logger

	limiter  *ratelimit.Limiter
	shared   *ratelimit.SharedLimiter
	throttle *ratelimit.Throttle
	verifier *verification.Guard
	auditor  *audit.Logger
	csp      *csp.Manager
	inst     *instrumentation.Instrumentation

	closeOnce sync.Once
}

// New creates a Guard from the configuration and storage backends.
func New(cfg Config, stores Stores) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Audit.Enabled && stores.Audit == nil {
		return nil, fmt.Errorf("audit is enabled but no audit store was provided")
	}

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName: cfg.Instrumentation.ServiceName,
		Enabled:     cfg.Instrumentation.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize instrumentation: %w", err)
	}

	auditor := audit.NewLogger(stores.Audit, audit.Config{
		Enabled:       cfg.Audit.Enabled,
		FlushInterval: cfg.Audit.FlushInterval,
		MaxQueue:      cfg.Audit.MaxQueue,
		Metrics:       auditMetrics{inst: inst},
		Logger:        logger,
	})

	if err := inst.RegisterQueueDepthCallback(func() int64 {
		return int64(auditor.GetStats().QueueDepth)
	}); err != nil {
		logger.Warn("Failed to register audit queue gauge", "error", err)
	}

	limiter := ratelimit.NewLimiter(logger, ratelimit.WithAuditSink(auditor))

	var shared *ratelimit.SharedLimiter
	if stores.SharedRateLimit != nil {
		shared = ratelimit.NewSharedLimiter(stores.SharedRateLimit, limiter, logger,
			ratelimit.WithAuditSink(auditor))
	}

	var throttle *ratelimit.Throttle
	if cfg.RateLimit.ThrottleRate > 0 {
		throttle = ratelimit.NewThrottle(cfg.RateLimit.ThrottleRate, cfg.RateLimit.ThrottleBurst, logger)
	}

	var verifier *verification.Guard
	if stores.Verification != nil {
		verifier = verification.NewGuard(stores.Verification, stores.Mailer, logger,
			verification.WithAuditSink(auditor))
	}

	cspManager := csp.NewManager(csp.Config{
		TrustedDomains:   cfg.CSP.TrustedDomains,
		ConnectOrigins:   cfg.CSP.ConnectOrigins,
		StrictStyles:     cfg.CSP.StrictStyles,
		Development:      cfg.CSP.Development,
		RotationInterval: cfg.CSP.RotationInterval,
		ReportPath:       cfg.CSP.ReportPath,
		OnRotate: func() {
			inst.Metrics().NonceRotation.Add(context.Background(), 1)
		},
		Logger: logger,
	}, cspAuditSink{auditor: auditor, inst: inst})

	g := &Guard{
		cfg:      cfg,
		logger:   logger,
		limiter:  limiter,
		shared:   shared,
		throttle: throttle,
		verifier: verifier,
		auditor:  auditor,
		csp:      cspManager,
		inst:     inst,
	}

	logger.Info("Security guard initialized",
		"audit_enabled", cfg.Audit.Enabled,
		"shared_rate_limit", shared != nil,
		"verification_enabled", verifier != nil,
		"throttle_enabled", throttle != nil)

	return g, nil
}

// Authorize runs the full check chain for one operation: rate limit first,
// then email verification. The first denial wins; the audit trail is
// written by the underlying components.
func (g *Guard) Authorize(ctx context.Context, identifier, userID, action string) Decision {
	g.inst.Metrics().AuthorizeTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String(instrumentation.AttrAction, action)))

	limit := g.CheckRateLimit(ctx, identifier, action)
	if !limit.Allowed {
		code := ErrorCodeRateLimitExceeded
		if limit.Blacklisted {
			code = ErrorCodeBlacklisted
			g.inst.Metrics().BlacklistedAttempts.Add(ctx, 1)
		} else {
			g.inst.Metrics().RateLimitExceeded.Add(ctx, 1,
				metric.WithAttributes(attribute.String(instrumentation.AttrAction, action)))
		}
		g.denied(ctx, action, code)
		return Decision{
			Code:       code,
			Reason:     limit.Reason,
			RetryAfter: limit.RetryAfter,
		}
	}

	if g.verifier != nil && userID != "" {
		check := g.verifier.CanPerformAction(ctx, userID, action)
		if !check.Allowed {
			code := ErrorCodeVerificationRequired
			if !check.RequiresVerification {
				code = ErrorCodeServerError
			}
			g.inst.Metrics().VerificationDenied.Add(ctx, 1,
				metric.WithAttributes(attribute.String(instrumentation.AttrAction, action)))
			g.denied(ctx, action, code)
			return Decision{
				Code:                 code,
				Reason:               check.Reason,
				RequiresVerification: check.RequiresVerification,
			}
		}
	}

	return Decision{Allowed: true}
}

// SendVerificationEmail dispatches a verification email through the
// verification guard. Returns a failure result when verification is not
// configured.
func (g *Guard) SendVerificationEmail(ctx context.Context, userID string) verification.SendResult {
	if g.verifier == nil {
		return verification.SendResult{Message: "Verificação de e-mail não está configurada."}
	}
	result := g.verifier.SendVerificationEmail(ctx, userID)
	if result.Success {
		g.inst.Metrics().VerificationEmails.Add(ctx, 1)
	}
	return result
}

// CheckRateLimit consults the shared limiter when configured, the local
// limiter otherwise.
func (g *Guard) CheckRateLimit(ctx context.Context, identifier, action string) ratelimit.Result {
	if g.shared != nil {
		return g.shared.Check(ctx, identifier, action)
	}
	return g.limiter.Check(identifier, action)
}

func (g *Guard) denied(ctx context.Context, action, code string) {
	g.inst.Metrics().AuthorizeDenied.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(instrumentation.AttrAction, action),
			attribute.String(instrumentation.AttrOutcome, code)))
}

// Limiter exposes the per-action rate limiter.
func (g *Guard) Limiter() *ratelimit.Limiter { return g.limiter }

// Verifier exposes the email verification guard, or nil when disabled.
func (g *Guard) Verifier() *verification.Guard { return g.verifier }

// Auditor exposes the security event logger.
func (g *Guard) Auditor() *audit.Logger { return g.auditor }

// CSP exposes the Content-Security-Policy manager.
func (g *Guard) CSP() *csp.Manager { return g.csp }

// Instrumentation exposes the OpenTelemetry components.
func (g *Guard) Instrumentation() *instrumentation.Instrumentation { return g.inst }

// Close stops background goroutines and flushes pending audit events.
// Call it on application shutdown; safe to call multiple times.
func (g *Guard) Close() {
	g.closeOnce.Do(func() {
		g.csp.Stop()
		g.limiter.Stop()
		if g.throttle != nil {
			g.throttle.Stop()
		}
		g.auditor.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.inst.Shutdown(ctx); err != nil {
			g.logger.Warn("Instrumentation shutdown failed", "error", err)
		}

		g.logger.Info("Security guard stopped")
	})
}

// cspAuditSink adapts the audit logger to the csp.AuditSink interface and
// counts violations by directive and severity.
type cspAuditSink struct {
	auditor *audit.Logger
	inst    *instrumentation.Instrumentation
}

func (s cspAuditSink) LogCSPViolation(userAgent, directive, blockedURI, risk string) {
	s.inst.Metrics().CSPViolations.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(instrumentation.AttrCSPDirective, directive),
			attribute.String(instrumentation.AttrRiskLevel, risk)))
	s.auditor.LogCSPViolation(audit.Actor{UserAgent: userAgent}, directive, blockedURI, audit.RiskLevel(risk))
}

// auditMetrics adapts the otel instruments to the audit.Metrics interface.
type auditMetrics struct {
	inst *instrumentation.Instrumentation
}

func (m auditMetrics) EventLogged(risk audit.RiskLevel) {
	m.inst.Metrics().AuditEventsTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(instrumentation.AttrRiskLevel, string(risk))))
}

func (m auditMetrics) EventsDropped(n int) {
	m.inst.Metrics().AuditEventsDropped.Add(context.Background(), int64(n))
}

func (m auditMetrics) FlushCompleted(d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.inst.Metrics().AuditFlushDuration.Record(context.Background(),
		float64(d)/float64(time.Millisecond),
		metric.WithAttributes(attribute.String(instrumentation.AttrOutcome, outcome)))
}
