package shield

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/onedrip/shield/csp"
)

// UserIDFunc extracts the authenticated user ID from a request.
// Return "" for anonymous requests.
type UserIDFunc func(r *http.Request) string

// denialResponse is the JSON body written for policy denials.
type denialResponse struct {
	Error                string `json:"error"`
	Message              string `json:"message"`
	RetryAfter           int    `json:"retry_after,omitempty"`
	RequiresVerification bool   `json:"requires_verification,omitempty"`
}

func writeDenial(w http.ResponseWriter, status int, body denialResponse) {
	w.Header().Set("Content-Type", "application/json")
	if body.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfter))
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// SecurityHeaders sets the non-CSP security headers on every response.
// Pair with CSPMiddleware, which owns the Content-Security-Policy header.
func SecurityHeaders(serverURL string, next http.Handler) http.Handler {
	isHTTPS := false
	if parsed, err := url.Parse(serverURL); err == nil && parsed.Scheme == "https" {
		isHTTPS = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent clickjacking and MIME sniffing
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Don't leak referrer information to third parties
		w.Header().Set("Referrer-Policy", "no-referrer")

		if isHTTPS {
			// HSTS: force HTTPS for 1 year, including subdomains
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// RequestID ensures every request carries a request ID: reuse a valid
// inbound X-Request-ID or generate a fresh one. The ID is echoed on the
// response and stored in the request context for audit correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !isValidRequestID(requestID) {
			requestID = GenerateRequestID()
		}
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(WithRequestIDContext(r.Context(), requestID)))
	})
}

// CSPMiddleware sets the Content-Security-Policy header and exposes the
// current nonce via csp.NonceFromContext.
func (g *Guard) CSPMiddleware(next http.Handler) http.Handler {
	return g.csp.Middleware(next)
}

// CSPReportHandler is the violation report endpoint; mount it at the
// configured report path.
func (g *Guard) CSPReportHandler() http.Handler {
	return g.csp.ReportHandler()
}

// ThrottleMiddleware applies the coarse per-IP token bucket before any
// other work. Denials answer 429 without consulting per-action limits.
func (g *Guard) ThrottleMiddleware(next http.Handler) http.Handler {
	if g.throttle == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r, g.cfg.RateLimit.TrustProxy, g.cfg.RateLimit.TrustedProxyCount)
		if !g.throttle.Allow(ip) {
			g.inst.Metrics().ThrottleDenied.Add(r.Context(), 1)
			writeDenial(w, http.StatusTooManyRequests, denialResponse{
				Error:   ErrorCodeThrottled,
				Message: "Muitas requisições. Tente novamente em instantes.",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRateLimit guards a handler with the named action's rate limit,
// keyed by client IP. Explicit middleware composed at the call site replaces
// the original decorator approach.
func (g *Guard) RequireRateLimit(action string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r, g.cfg.RateLimit.TrustProxy, g.cfg.RateLimit.TrustedProxyCount)
		result := g.CheckRateLimit(r.Context(), ip, action)
		if !result.Allowed {
			writeDenial(w, http.StatusTooManyRequests, denialResponse{
				Error:      ErrorCodeRateLimitExceeded,
				Message:    result.Reason,
				RetryAfter: int(result.RetryAfter.Seconds()),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireVerifiedEmail guards a handler with the email verification check
// for the named action. Anonymous requests are rejected outright: this
// middleware only makes sense behind authentication.
func (g *Guard) RequireVerifiedEmail(action string, userID UserIDFunc, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			writeDenial(w, http.StatusUnauthorized, denialResponse{
				Error:   ErrorCodeVerificationRequired,
				Message: "Sessão expirada. Entre novamente para continuar.",
			})
			return
		}

		if g.verifier == nil {
			next.ServeHTTP(w, r)
			return
		}

		check := g.verifier.CanPerformAction(r.Context(), uid, action)
		if !check.Allowed {
			writeDenial(w, http.StatusForbidden, denialResponse{
				Error:                ErrorCodeVerificationRequired,
				Message:              check.Reason,
				RequiresVerification: check.RequiresVerification,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NonceFromRequest returns the CSP nonce for the request, for templates
// that render inline scripts.
func NonceFromRequest(r *http.Request) string {
	return csp.NonceFromContext(r.Context())
}
