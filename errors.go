package shield

import (
	"fmt"
	"net/http"
)

// Denial and error codes returned to API consumers
const (
	ErrorCodeRateLimitExceeded    = "rate_limit_exceeded"
	ErrorCodeBlacklisted          = "blacklisted"
	ErrorCodeVerificationRequired = "verification_required"
	ErrorCodeVerificationStale    = "verification_stale"
	ErrorCodeThrottled            = "throttled"
	ErrorCodeServerError          = "server_error"
)

// GuardError is a structured policy or infrastructure error carrying the
// HTTP status the middleware should answer with. Policy denials inside the
// library itself are values, not errors; GuardError is the shape they take
// at the HTTP boundary.
type GuardError struct {
	Code        string // machine-readable code (e.g. "rate_limit_exceeded")
	Description string // user-facing description (pt-BR for policy denials)
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *GuardError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewGuardError creates a new guard error
func NewGuardError(code, description string, status int) *GuardError {
	return &GuardError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common guard errors as reusable constructors
var (
	// ErrRateLimited indicates an exhausted rate limit window
	ErrRateLimited = func(desc string) *GuardError {
		return NewGuardError(ErrorCodeRateLimitExceeded, desc, http.StatusTooManyRequests)
	}

	// ErrBlacklisted indicates the identifier is blocked outright
	ErrBlacklisted = func(desc string) *GuardError {
		return NewGuardError(ErrorCodeBlacklisted, desc, http.StatusForbidden)
	}

	// ErrVerificationRequired indicates the account must verify its email first
	ErrVerificationRequired = func(desc string) *GuardError {
		return NewGuardError(ErrorCodeVerificationRequired, desc, http.StatusForbidden)
	}

	// ErrVerificationStale indicates the verification is older than the action allows
	ErrVerificationStale = func(desc string) *GuardError {
		return NewGuardError(ErrorCodeVerificationStale, desc, http.StatusForbidden)
	}

	// ErrThrottled indicates the per-IP edge throttle rejected the request
	ErrThrottled = func(desc string) *GuardError {
		return NewGuardError(ErrorCodeThrottled, desc, http.StatusTooManyRequests)
	}

	// ErrServerError indicates an internal fault during a check
	ErrServerError = func(desc string) *GuardError {
		return NewGuardError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}
)
