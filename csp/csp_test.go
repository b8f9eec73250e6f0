package csp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onedrip/shield/internal/testutil"
)

func newTestManager(t *testing.T, cfg Config, auditor AuditSink) *Manager {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testutil.DiscardLogger()
	}
	if cfg.RotationInterval == 0 {
		cfg.RotationInterval = time.Hour
	}
	m := NewManager(cfg, auditor)
	t.Cleanup(m.Stop)
	return m
}

func TestBuildPolicy_NonceExactlyOnce(t *testing.T) {
	m := newTestManager(t, Config{}, nil)

	policy := m.BuildPolicy()
	token := "'nonce-" + m.Nonce() + "'"

	if got := strings.Count(policy, token); got != 1 {
		t.Errorf("nonce occurrences = %d, want exactly 1\npolicy: %s", got, policy)
	}

	// And it lives in script-src.
	scriptSrc := directive(t, policy, "script-src")
	if !strings.Contains(scriptSrc, token) {
		t.Errorf("script-src %q should contain the nonce token", scriptSrc)
	}
}

func TestBuildPolicy_BaselineDirectives(t *testing.T) {
	m := newTestManager(t, Config{}, nil)
	policy := m.BuildPolicy()

	for _, want := range []string{
		"default-src 'self'",
		"object-src 'none'",
		"base-uri 'self'",
		"form-action 'self'",
		"frame-ancestors 'none'",
		"upgrade-insecure-requests",
		"report-uri /csp-report",
	} {
		if !strings.Contains(policy, want) {
			t.Errorf("policy missing %q\npolicy: %s", want, policy)
		}
	}
}

func TestBuildPolicy_TrustedDomains(t *testing.T) {
	m := newTestManager(t, Config{
		TrustedDomains: []string{"https://cdn.example.com"},
		ConnectOrigins: []string{"https://api.example.com", "wss://api.example.com"},
	}, nil)
	policy := m.BuildPolicy()

	for _, dir := range []string{"script-src", "style-src", "img-src", "font-src"} {
		if !strings.Contains(directive(t, policy, dir), "https://cdn.example.com") {
			t.Errorf("%s should include the trusted domain", dir)
		}
	}

	connect := directive(t, policy, "connect-src")
	if !strings.Contains(connect, "https://api.example.com") || !strings.Contains(connect, "wss://api.example.com") {
		t.Errorf("connect-src = %q, want both API origins", connect)
	}
	if strings.Contains(connect, "cdn.example.com") {
		t.Error("connect-src should not include script/image domains")
	}
}

func TestBuildPolicy_StyleModes(t *testing.T) {
	relaxed := newTestManager(t, Config{}, nil)
	if !strings.Contains(directive(t, relaxed.BuildPolicy(), "style-src"), "'unsafe-inline'") {
		t.Error("relaxed style-src should allow inline styles")
	}

	strict := newTestManager(t, Config{StrictStyles: true}, nil)
	if strings.Contains(directive(t, strict.BuildPolicy(), "style-src"), "'unsafe-inline'") {
		t.Error("strict style-src should not allow inline styles")
	}
}

func TestBuildPolicy_DevelopmentMode(t *testing.T) {
	m := newTestManager(t, Config{Development: true}, nil)
	policy := m.BuildPolicy()

	if !strings.Contains(directive(t, policy, "script-src"), "'unsafe-eval'") {
		t.Error("development script-src should allow eval")
	}
	if !strings.Contains(directive(t, policy, "connect-src"), "ws://localhost:*") {
		t.Error("development connect-src should allow localhost websockets")
	}
	if strings.Contains(policy, "upgrade-insecure-requests") {
		t.Error("development policy should not force HTTPS upgrades")
	}

	prod := newTestManager(t, Config{}, nil)
	prodPolicy := prod.BuildPolicy()
	if strings.Contains(prodPolicy, "'unsafe-eval'") {
		t.Error("production policy must not allow eval")
	}
}

func TestRotate_ChangesNonceOnly(t *testing.T) {
	m := newTestManager(t, Config{TrustedDomains: []string{"https://cdn.example.com"}}, nil)

	before := m.Nonce()
	beforePolicy := m.BuildPolicy()
	m.Rotate()
	after := m.Nonce()
	afterPolicy := m.BuildPolicy()

	if before == after {
		t.Fatal("Rotate should replace the nonce")
	}

	// Everything but the nonce token is unchanged.
	normalize := func(policy, nonce string) string {
		return strings.ReplaceAll(policy, "'nonce-"+nonce+"'", "'nonce-X'")
	}
	if normalize(beforePolicy, before) != normalize(afterPolicy, after) {
		t.Errorf("rotation changed more than the nonce:\nbefore: %s\nafter:  %s", beforePolicy, afterPolicy)
	}

	if stats := m.GetStats(); stats.TotalRotations != 1 {
		t.Errorf("TotalRotations = %d, want 1", stats.TotalRotations)
	}
}

func TestRotationLoop(t *testing.T) {
	m := NewManager(Config{
		RotationInterval: 20 * time.Millisecond,
		Logger:           testutil.DiscardLogger(),
	}, nil)
	defer m.Stop()

	before := m.Nonce()
	testutil.WaitFor(t, time.Second, func() bool { return m.Nonce() != before },
		"nonce should rotate on the configured interval")
}

func TestAddScriptHash(t *testing.T) {
	m := newTestManager(t, Config{}, nil)

	token := m.AddScriptHash("console.log('boot')")
	if !strings.HasPrefix(token, "'sha256-") || !strings.HasSuffix(token, "'") {
		t.Fatalf("token = %q, want a quoted sha256 source", token)
	}

	if !strings.Contains(directive(t, m.BuildPolicy(), "script-src"), token) {
		t.Error("script-src should include the admitted hash")
	}

	// Same script, same token, no duplicate.
	m.AddScriptHash("console.log('boot')")
	if stats := m.GetStats(); stats.AllowedHashes != 1 {
		t.Errorf("AllowedHashes = %d, want 1", stats.AllowedHashes)
	}
}

func TestAddTrustedDomain_Deduplicates(t *testing.T) {
	m := newTestManager(t, Config{}, nil)

	m.AddTrustedDomain("https://pay.example.com")
	m.AddTrustedDomain("https://pay.example.com")

	if stats := m.GetStats(); stats.TrustedDomains != 1 {
		t.Errorf("TrustedDomains = %d, want 1", stats.TrustedDomains)
	}
}

func TestMiddleware(t *testing.T) {
	m := newTestManager(t, Config{}, nil)

	var seenNonce string
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenNonce = NonceFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	header := rec.Header().Get("Content-Security-Policy")
	if header == "" {
		t.Fatal("Content-Security-Policy header should be set")
	}
	if seenNonce == "" {
		t.Fatal("nonce should be available from the request context")
	}
	if !strings.Contains(header, "'nonce-"+seenNonce+"'") {
		t.Error("the header policy and the context nonce must match")
	}
}

func TestMiddleware_NonceConsistentUnderRotation(t *testing.T) {
	m := newTestManager(t, Config{}, nil)

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Nonce", NonceFromContext(r.Context()))
	}))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				m.Rotate()
			}
		}
	}()

	// The header policy and the context nonce must come from the same
	// snapshot even while rotations race the request.
	for i := 0; i < 500; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		policy := rec.Header().Get("Content-Security-Policy")
		nonce := rec.Header().Get("X-Seen-Nonce")
		if nonce == "" {
			t.Fatal("nonce missing from request context")
		}
		if !strings.Contains(policy, "'nonce-"+nonce+"'") {
			t.Fatalf("header policy and context nonce diverged\nnonce:  %s\npolicy: %s", nonce, policy)
		}
	}

	close(stop)
	wg.Wait()
}

func TestRotate_InvokesOnRotate(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	m := newTestManager(t, Config{
		OnRotate: func() {
			mu.Lock()
			calls++
			mu.Unlock()
		},
	}, nil)

	m.Rotate()
	m.Rotate()

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("OnRotate calls = %d, want 2", calls)
	}
}

func TestNonceFromContext_Missing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := NonceFromContext(r.Context()); got != "" {
		t.Errorf("NonceFromContext without middleware = %q, want empty", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		directive  string
		blockedURI string
		want       string
	}{
		{"script-src", "eval", riskCritical},
		{"script-src", "javascript:alert(1)", riskCritical},
		{"script-src", "data:text/javascript;base64,xyz", riskCritical},
		{"script-src 'self'", "https://evil.example/x.js", riskHigh},
		{"script-src-elem", "https://evil.example/x.js", riskHigh},
		{"object-src", "https://evil.example/x.swf", riskHigh},
		{"connect-src", "https://exfil.example", riskMedium},
		{"frame-ancestors", "https://clickjack.example", riskMedium},
		{"form-action", "https://phish.example", riskMedium},
		{"style-src", "https://cdn.example/x.css", riskLow},
		{"img-src", "https://cdn.example/x.png", riskLow},
	}

	for _, tt := range tests {
		if got := Classify(tt.directive, tt.blockedURI); got != tt.want {
			t.Errorf("Classify(%q, %q) = %q, want %q", tt.directive, tt.blockedURI, got, tt.want)
		}
	}
}

// violationRecorder records audited violations.
type violationRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *violationRecorder) LogCSPViolation(_, directive, _, risk string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, directive+"/"+risk)
}

func TestReportHandler(t *testing.T) {
	sink := &violationRecorder{}
	var highRisk []string
	m := newTestManager(t, Config{
		OnHighRiskViolation: func(report Report, risk string) {
			highRisk = append(highRisk, risk)
		},
	}, sink)

	handler := m.ReportHandler()

	body := `{"csp-report":{"effective-directive":"script-src","blocked-uri":"https://evil.example/x.js","document-uri":"https://app.example"}}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/csp-report", strings.NewReader(body)))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if len(sink.calls) != 1 || sink.calls[0] != "script-src/high" {
		t.Errorf("audited calls = %v, want [script-src/high]", sink.calls)
	}
	if len(highRisk) != 1 {
		t.Errorf("high risk callbacks = %d, want 1", len(highRisk))
	}
	if stats := m.GetStats(); stats.TotalViolations != 1 {
		t.Errorf("TotalViolations = %d, want 1", stats.TotalViolations)
	}
}

func TestReportHandler_Hardening(t *testing.T) {
	sink := &violationRecorder{}
	m := newTestManager(t, Config{}, sink)
	handler := m.ReportHandler()

	tests := []struct {
		name   string
		method string
		body   string
	}{
		{"rejects GET", http.MethodGet, ""},
		{"discards malformed JSON", http.MethodPost, "{not json"},
		{"discards empty body", http.MethodPost, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, "/csp-report", strings.NewReader(tt.body)))

			// Always 204, never an error the sender can learn from.
			if rec.Code != http.StatusNoContent {
				t.Errorf("status = %d, want 204", rec.Code)
			}
		})
	}

	if len(sink.calls) != 0 {
		t.Errorf("audited calls = %v, want none", sink.calls)
	}
}

func TestHandleViolation_FallsBackToViolatedDirective(t *testing.T) {
	sink := &violationRecorder{}
	m := newTestManager(t, Config{}, sink)

	m.HandleViolation(Report{ViolatedDirective: "style-src", BlockedURI: "https://cdn.example/x.css"}, "agent")

	if len(sink.calls) != 1 || sink.calls[0] != "style-src/low" {
		t.Errorf("audited calls = %v, want [style-src/low]", sink.calls)
	}
}

// directive extracts one directive's value from a policy string.
func directive(t *testing.T, policy, name string) string {
	t.Helper()
	for _, d := range strings.Split(policy, "; ") {
		if strings.HasPrefix(d, name+" ") {
			return d
		}
	}
	t.Fatalf("directive %q not found in policy: %s", name, policy)
	return ""
}
