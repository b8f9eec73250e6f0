package shield

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onedrip/shield/internal/testutil"
	"github.com/onedrip/shield/storage/mock"
	"github.com/onedrip/shield/verification"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func decodeDenial(t *testing.T, rec *httptest.ResponseRecorder) denialResponse {
	t.Helper()
	var body denialResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("denial body is not JSON: %v", err)
	}
	return body
}

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name      string
		serverURL string
		wantHSTS  bool
	}{
		{"https enables hsts", "https://app.onedrip.com.br", true},
		{"http has no hsts", "http://localhost:8080", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			SecurityHeaders(tt.serverURL, okHandler()).
				ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
				t.Errorf("X-Frame-Options = %q, want DENY", got)
			}
			if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
			}
			if got := rec.Header().Get("Referrer-Policy"); got != "no-referrer" {
				t.Errorf("Referrer-Policy = %q, want no-referrer", got)
			}

			hsts := rec.Header().Get("Strict-Transport-Security")
			if tt.wantHSTS && hsts == "" {
				t.Error("HSTS header should be set for HTTPS deployments")
			}
			if !tt.wantHSTS && hsts != "" {
				t.Errorf("HSTS header = %q, want none over plain HTTP", hsts)
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Run("generates when absent", func(t *testing.T) {
		var ctxID string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctxID = RequestIDFromContext(r.Context())
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		echoed := rec.Header().Get(RequestIDHeader)
		if echoed == "" || echoed != ctxID {
			t.Errorf("response ID %q and context ID %q should match and be set", echoed, ctxID)
		}
	})

	t.Run("reuses a valid inbound ID", func(t *testing.T) {
		handler := RequestID(okHandler())
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(RequestIDHeader, "client-supplied-1")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)

		if got := rec.Header().Get(RequestIDHeader); got != "client-supplied-1" {
			t.Errorf("request ID = %q, want the inbound ID reused", got)
		}
	})

	t.Run("replaces an invalid inbound ID", func(t *testing.T) {
		handler := RequestID(okHandler())
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(RequestIDHeader, "bad id\r\nX-Evil: 1")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)

		got := rec.Header().Get(RequestIDHeader)
		if got == "" || !isValidRequestID(got) {
			t.Errorf("request ID = %q, want a freshly generated valid ID", got)
		}
	})
}

func TestThrottleMiddleware(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logger = testutil.DiscardLogger()
	cfg.RateLimit.ThrottleRate = 1
	cfg.RateLimit.ThrottleBurst = 1

	g, err := New(cfg, Stores{Audit: mock.NewMockAuditStore()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer g.Close()

	handler := g.ThrottleMiddleware(okHandler())
	request := func(addr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		return rec
	}

	if rec := request("203.0.113.7:1000"); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}
	rec := request("203.0.113.7:1000")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("burst-exceeding status = %d, want 429", rec.Code)
	}
	if body := decodeDenial(t, rec); body.Error != ErrorCodeThrottled {
		t.Errorf("denial error = %q, want %q", body.Error, ErrorCodeThrottled)
	}

	// Another IP has its own bucket.
	if rec := request("203.0.113.8:1000"); rec.Code != http.StatusOK {
		t.Errorf("other IP status = %d, want 200", rec.Code)
	}
}

func TestThrottleMiddleware_DisabledPassesThrough(t *testing.T) {
	g := newTestGuard(t, Stores{})

	handler := g.ThrottleMiddleware(okHandler())
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200 with the throttle off", i+1, rec.Code)
		}
	}
}

func TestRequireRateLimit(t *testing.T) {
	g := newTestGuard(t, Stores{})
	handler := g.RequireRateLimit("login", okHandler())

	var rec *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		r := httptest.NewRequest(http.MethodPost, "/api/login", nil)
		r.RemoteAddr = "203.0.113.7:1000"
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, r)

		if i < 5 && rec.Code != http.StatusOK {
			t.Fatalf("attempt %d status = %d, want 200", i+1, rec.Code)
		}
	}

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("sixth attempt status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got == "" || got == "0" {
		t.Errorf("Retry-After = %q, want a positive delay", got)
	}
	body := decodeDenial(t, rec)
	if body.Error != ErrorCodeRateLimitExceeded {
		t.Errorf("denial error = %q, want %q", body.Error, ErrorCodeRateLimitExceeded)
	}
	if body.RetryAfter <= 0 {
		t.Errorf("denial retry_after = %d, want positive", body.RetryAfter)
	}
}

func TestRequireVerifiedEmail(t *testing.T) {
	userFromHeader := func(r *http.Request) string { return r.Header.Get("X-User-ID") }

	vs := mock.NewMockVerificationStore()
	vs.SetStatus(&verification.Status{UserID: "blocked-user", IsVerified: false})
	vs.SetStatus(&verification.Status{UserID: "ok-user", IsVerified: true})
	g := newTestGuard(t, Stores{Verification: vs})

	handler := g.RequireVerifiedEmail("change_password", userFromHeader, okHandler())
	request := func(userID string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/password", nil)
		if userID != "" {
			r.Header.Set("X-User-ID", userID)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		return rec
	}

	t.Run("anonymous gets 401", func(t *testing.T) {
		rec := request("")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("unverified gets 403", func(t *testing.T) {
		rec := request("blocked-user")
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
		body := decodeDenial(t, rec)
		if body.Error != ErrorCodeVerificationRequired {
			t.Errorf("denial error = %q, want %q", body.Error, ErrorCodeVerificationRequired)
		}
		if !body.RequiresVerification {
			t.Error("denial should flag requires_verification")
		}
	})

	t.Run("verified passes", func(t *testing.T) {
		if rec := request("ok-user"); rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}

func TestRequireVerifiedEmail_NoVerifierPassesAuthenticated(t *testing.T) {
	g := newTestGuard(t, Stores{})

	handler := g.RequireVerifiedEmail("change_password",
		func(*http.Request) string { return "user-1" }, okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when verification is not configured", rec.Code)
	}
}

func TestCSPMiddlewareAndNonce(t *testing.T) {
	g := newTestGuard(t, Stores{})

	var nonce string
	handler := g.CSPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce = NonceFromRequest(r)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("Content-Security-Policy header should be set")
	}
	if nonce == "" {
		t.Error("NonceFromRequest should return the request nonce")
	}
}
