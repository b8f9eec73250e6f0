package verification

import (
	"context"
	"time"

	"github.com/onedrip/shield/audit"
)

const (
	// MaxResendAttempts is the number of verification emails a user may
	// request per rolling window.
	MaxResendAttempts = 3

	// ResendWindow is the rolling window for resend attempts.
	ResendWindow = time.Hour
)

// SendResult is the outcome of a verification email request.
type SendResult struct {
	Success bool

	// Message is the user-facing outcome message (pt-BR).
	Message string
}

// SendVerificationEmail dispatches a verification email to the user,
// enforcing the rolling attempt limit.
//
// Unlike CanPerformAction, the attempt-count lookup fails OPEN: if the
// attempts store is unreachable the email is still sent. Blocking a
// legitimate user from verifying their account is worse than letting a
// few extra emails through; the mailer's own delivery limits backstop it.
func (g *Guard) SendVerificationEmail(ctx context.Context, userID string) SendResult {
	if g.mailer == nil {
		return SendResult{Message: "Envio de e-mail não está configurado."}
	}

	since := time.Now().Add(-ResendWindow)
	attempts, err := g.store.CountAttempts(ctx, userID, since)
	if err != nil {
		g.logger.Warn("Attempt count lookup failed, allowing send",
			"user_id_present", userID != "",
			"error", err)
		attempts = 0
	}

	if attempts >= MaxResendAttempts {
		g.auditLog(audit.Event{
			Type:      audit.EventVerificationResendBlocked,
			UserID:    userID,
			RiskLevel: audit.RiskMedium,
			Details:   map[string]any{"attempts": attempts, "window": ResendWindow.String()},
		})
		return SendResult{
			Message: "Muitas tentativas. Aguarde 1 hora antes de solicitar um novo e-mail de verificação.",
		}
	}

	if err := g.store.SetPending(ctx, userID, true); err != nil {
		g.logger.Warn("Failed to set pending flag", "error", err)
	}
	g.Invalidate(userID)

	if err := g.mailer.SendVerificationEmail(ctx, userID); err != nil {
		g.logger.Error("Verification email dispatch failed", "error", err)
		return SendResult{
			Message: "Não foi possível enviar o e-mail de verificação. Tente novamente.",
		}
	}

	if err := g.store.RecordAttempt(ctx, userID, time.Now()); err != nil {
		g.logger.Warn("Failed to record verification attempt", "error", err)
	}

	g.auditLog(audit.Event{
		Type:      audit.EventVerificationEmailSent,
		UserID:    userID,
		RiskLevel: audit.RiskLow,
		Details:   map[string]any{"attempt": attempts + 1},
	})

	return SendResult{
		Success: true,
		Message: "E-mail de verificação enviado. Confira sua caixa de entrada.",
	}
}
