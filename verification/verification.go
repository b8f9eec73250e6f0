// Package verification gates critical application actions behind email
// verification. Actions are tiered by criticality: some only require a
// verified account, others require the verification to be recent.
//
// Authorization checks fail closed: a store error denies the action and
// raises a high-risk audit event. The resend flow in sender.go is the one
// deliberate exception, documented there.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onedrip/shield/audit"
)

const (
	// CacheTTL is how long a fetched verification status may be reused
	// before it must be re-fetched from the store.
	CacheTTL = 5 * time.Minute
)

// ErrStatusNotFound is returned by stores when no verification status
// exists for a user.
var ErrStatusNotFound = errors.New("verification status not found")

// Method identifies how a user completed verification.
type Method string

// Verification methods.
const (
	MethodEmailLink     Method = "email_link"
	MethodOTP           Method = "otp"
	MethodAdminOverride Method = "admin_override"
)

// Status is a user's verification state as persisted by the backend.
type Status struct {
	UserID     string
	IsVerified bool
	VerifiedAt time.Time
	Method     Method
	Pending    bool
}

// Record is one completed verification.
type Record struct {
	ID         string
	UserID     string
	Method     Method
	VerifiedAt time.Time
}

// Store persists verification state.
type Store interface {
	// GetStatus returns the user's verification status.
	// Returns ErrStatusNotFound for unknown users.
	GetStatus(ctx context.Context, userID string) (*Status, error)

	// LatestVerification returns the time of the user's most recent
	// verification record, or the zero time when none exists.
	LatestVerification(ctx context.Context, userID string) (time.Time, error)

	// RecordVerification appends a completed verification.
	RecordVerification(ctx context.Context, record *Record) error

	// CountAttempts counts verification email requests since the given time.
	CountAttempts(ctx context.Context, userID string, since time.Time) (int, error)

	// RecordAttempt records a verification email request.
	RecordAttempt(ctx context.Context, userID string, at time.Time) error

	// SetPending marks whether a verification email is outstanding.
	SetPending(ctx context.Context, userID string, pending bool) error
}

// Mailer dispatches verification emails. The backend owns templates and
// delivery; this library only decides whether sending is allowed.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, userID string) error
}

// AuditSink receives the security events the guard emits.
// *audit.Logger satisfies this interface.
type AuditSink interface {
	Log(event audit.Event)
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool

	// Reason is the user-facing denial message (pt-BR). Empty when allowed.
	Reason string

	// RequiresVerification indicates the user can unblock the action by
	// (re)verifying their email.
	RequiresVerification bool
}

type cachedStatus struct {
	status    *Status
	fetchedAt time.Time
}

// Guard checks whether users may perform critical actions based on their
// email verification state.
type Guard struct {
	store   Store
	mailer  Mailer
	auditor AuditSink
	logger  *slog.Logger
	actions map[string]CriticalAction

	mu    sync.Mutex
	cache map[string]cachedStatus
}

// GuardOption customizes a Guard.
type GuardOption func(*Guard)

// WithActions replaces the critical action table.
func WithActions(actions map[string]CriticalAction) GuardOption {
	return func(g *Guard) { g.actions = actions }
}

// WithAuditSink wires the guard to the audit logger.
func WithAuditSink(sink AuditSink) GuardOption {
	return func(g *Guard) { g.auditor = sink }
}

// NewGuard creates a verification guard. The mailer may be nil when the
// resend flow is unused.
func NewGuard(store Store, mailer Mailer, logger *slog.Logger, opts ...GuardOption) *Guard {
	if logger == nil {
		logger = slog.Default()
	}

	g := &Guard{
		store:   store,
		mailer:  mailer,
		logger:  logger,
		actions: DefaultCriticalActions(),
		cache:   make(map[string]cachedStatus),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// CanPerformAction decides whether the user may perform the named action.
// Unknown actions are not critical and are always allowed.
//
// Store errors deny the action (fail-closed) and raise a high-risk audit
// event: granting a payment or export on a guess is worse than a retry.
func (g *Guard) CanPerformAction(ctx context.Context, userID, action string) Decision {
	act, critical := g.actions[action]
	if !critical {
		return Decision{Allowed: true}
	}

	status, err := g.status(ctx, userID)
	if err != nil {
		g.logger.Error("Verification status check failed, denying action",
			"action", action,
			"error", err)
		g.auditLog(audit.Event{
			Type:      audit.EventUnauthorizedAccess,
			UserID:    userID,
			Action:    action,
			RiskLevel: audit.RiskHigh,
			Details:   map[string]any{"reason": "verification check failed", "error": err.Error()},
		})
		return Decision{
			Allowed: false,
			Reason:  "Não foi possível confirmar sua verificação. Tente novamente.",
		}
	}

	if !status.IsVerified {
		g.auditLog(audit.Event{
			Type:      audit.EventVerificationRequired,
			UserID:    userID,
			Action:    action,
			RiskLevel: audit.RiskMedium,
		})
		return Decision{
			Allowed:              false,
			Reason:               "Confirme seu e-mail para realizar esta ação.",
			RequiresVerification: true,
		}
	}

	if act.RequiresRecentVerification {
		last, err := g.store.LatestVerification(ctx, userID)
		if err != nil {
			g.logger.Error("Recent verification lookup failed, denying action",
				"action", action,
				"error", err)
			g.auditLog(audit.Event{
				Type:      audit.EventUnauthorizedAccess,
				UserID:    userID,
				Action:    action,
				RiskLevel: audit.RiskHigh,
				Details:   map[string]any{"reason": "freshness check failed", "error": err.Error()},
			})
			return Decision{
				Allowed: false,
				Reason:  "Não foi possível confirmar sua verificação. Tente novamente.",
			}
		}

		if last.IsZero() || time.Since(last) > act.MaxVerificationAge {
			hours := int(act.MaxVerificationAge / time.Hour)
			g.auditLog(audit.Event{
				Type:      audit.EventVerificationStale,
				UserID:    userID,
				Action:    action,
				RiskLevel: audit.RiskMedium,
				Details:   map[string]any{"max_age_hours": hours},
			})
			return Decision{
				Allowed:              false,
				Reason:               fmt.Sprintf("Por segurança, esta ação exige verificação de e-mail nas últimas %d horas. Verifique novamente para continuar.", hours),
				RequiresVerification: true,
			}
		}
	}

	g.auditLog(audit.Event{
		Type:      audit.EventDataAccess,
		UserID:    userID,
		Action:    action,
		RiskLevel: audit.RiskLow,
		Details:   map[string]any{"authorized": true},
	})

	return Decision{Allowed: true}
}

// MarkVerificationComplete records a completed verification and clears the
// user's cached status and pending flag.
func (g *Guard) MarkVerificationComplete(ctx context.Context, userID string, method Method) error {
	record := &Record{
		UserID:     userID,
		Method:     method,
		VerifiedAt: time.Now(),
	}
	if err := g.store.RecordVerification(ctx, record); err != nil {
		return fmt.Errorf("failed to record verification: %w", err)
	}
	if err := g.store.SetPending(ctx, userID, false); err != nil {
		g.logger.Warn("Failed to clear pending flag", "error", err)
	}

	g.Invalidate(userID)

	g.auditLog(audit.Event{
		Type:      audit.EventVerificationCompleted,
		UserID:    userID,
		RiskLevel: audit.RiskLow,
		Details:   map[string]any{"method": string(method)},
	})

	return nil
}

// Invalidate drops the cached status for a user.
func (g *Guard) Invalidate(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.cache, userID)
}

// status returns the user's verification status, served from the cache when
// the cached copy is younger than CacheTTL. A status is never trusted past
// that.
func (g *Guard) status(ctx context.Context, userID string) (*Status, error) {
	now := time.Now()

	g.mu.Lock()
	if c, ok := g.cache[userID]; ok && now.Sub(c.fetchedAt) <= CacheTTL {
		status := c.status
		g.mu.Unlock()
		return status, nil
	}
	g.mu.Unlock()

	status, err := g.store.GetStatus(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrStatusNotFound) {
			status = &Status{UserID: userID}
		} else {
			return nil, err
		}
	}

	g.mu.Lock()
	g.cache[userID] = cachedStatus{status: status, fetchedAt: now}
	g.mu.Unlock()

	return status, nil
}

func (g *Guard) auditLog(event audit.Event) {
	if g.auditor != nil {
		g.auditor.Log(event)
	}
}
