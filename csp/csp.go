// Package csp assembles and serves the application's Content-Security-Policy:
// nonce generation and rotation, script-hash allow-listing, policy string
// assembly and violation report handling.
package csp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultRotationInterval is how often the script nonce is rotated.
	DefaultRotationInterval = 15 * time.Minute

	// DefaultReportPath is where violation reports are posted.
	DefaultReportPath = "/csp-report"

	// nonceBytes is the entropy of each generated nonce.
	nonceBytes = 16
)

// nonceContextKey is the context key for the per-request nonce
type nonceContextKey struct{}

// Config holds CSP manager configuration.
type Config struct {
	// TrustedDomains are origins allowed for scripts, images and fonts
	// beyond 'self' (backend, payment and font providers).
	TrustedDomains []string

	// ConnectOrigins are origins allowed for fetch/XHR/websocket
	// connections beyond 'self', e.g. the API and its wss endpoint.
	ConnectOrigins []string

	// StrictStyles disallows inline styles. The product's component
	// library still injects style attributes, so this defaults off.
	StrictStyles bool

	// Development relaxes script-src and connect-src for local tooling
	// (eval-based source maps, localhost dev servers). Never enable in
	// production.
	Development bool

	// RotationInterval is how often the nonce rotates. Default: 15 minutes.
	RotationInterval time.Duration

	// ReportPath is the endpoint violation reports are sent to.
	// Default: /csp-report.
	ReportPath string

	// OnHighRiskViolation is invoked for high and critical violations,
	// after they are logged. Optional.
	OnHighRiskViolation func(report Report, risk string)

	// OnRotate is invoked after every nonce rotation. Optional.
	OnRotate func()

	// Logger is the structured logger (optional, uses slog.Default if nil)
	Logger *slog.Logger
}

// Manager owns the policy state: the current nonce, the allowed script
// hashes and the trusted origin sets. All methods are safe for concurrent
// use. Construct one per application; it is not a package singleton.
type Manager struct {
	mu             sync.RWMutex
	nonce          string
	scriptHashes   map[string]struct{}
	trustedDomains []string
	connectOrigins []string

	strictStyles bool
	development  bool
	reportPath   string
	onHighRisk   func(report Report, risk string)
	onRotate     func()

	logger  *slog.Logger
	auditor AuditSink

	rotationInterval time.Duration
	stopRotation     chan struct{}
	stopOnce         sync.Once

	// Statistics
	totalRotations  int64
	totalViolations int64
}

// AuditSink receives violation events. *audit.Logger satisfies this via
// a small adapter in the root package; tests plug their own.
type AuditSink interface {
	LogCSPViolation(userAgent, directive, blockedURI, risk string)
}

// NewManager creates a CSP manager with a fresh nonce and starts the
// rotation loop.
func NewManager(cfg Config, auditor AuditSink) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RotationInterval <= 0 {
		cfg.RotationInterval = DefaultRotationInterval
	}
	if cfg.ReportPath == "" {
		cfg.ReportPath = DefaultReportPath
	}

	m := &Manager{
		nonce:            generateNonce(),
		scriptHashes:     make(map[string]struct{}),
		trustedDomains:   append([]string(nil), cfg.TrustedDomains...),
		connectOrigins:   append([]string(nil), cfg.ConnectOrigins...),
		strictStyles:     cfg.StrictStyles,
		development:      cfg.Development,
		reportPath:       cfg.ReportPath,
		onHighRisk:       cfg.OnHighRiskViolation,
		onRotate:         cfg.OnRotate,
		logger:           logger,
		auditor:          auditor,
		rotationInterval: cfg.RotationInterval,
		stopRotation:     make(chan struct{}),
	}

	go m.rotationLoop()

	return m
}

// Nonce returns the current script nonce.
func (m *Manager) Nonce() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nonce
}

// Rotate replaces the nonce. Subsequent policies embed the new value;
// responses already written keep working because the browser evaluates the
// policy it received with the page.
func (m *Manager) Rotate() {
	fresh := generateNonce()

	m.mu.Lock()
	m.nonce = fresh
	m.totalRotations++
	rotations := m.totalRotations
	m.mu.Unlock()

	if m.onRotate != nil {
		m.onRotate()
	}
	m.logger.Debug("CSP nonce rotated", "total_rotations", rotations)
}

// AddScriptHash computes the sha256 source hash for an inline script and
// adds it to the allow-list. Returns the CSP token ('sha256-...') so callers
// can verify what was admitted.
func (m *Manager) AddScriptHash(script string) string {
	sum := sha256.Sum256([]byte(script))
	token := "'sha256-" + base64.StdEncoding.EncodeToString(sum[:]) + "'"

	m.mu.Lock()
	m.scriptHashes[token] = struct{}{}
	m.mu.Unlock()

	return token
}

// AddTrustedDomain admits an origin to script/img/font sources.
func (m *Manager) AddTrustedDomain(origin string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.trustedDomains {
		if d == origin {
			return
		}
	}
	m.trustedDomains = append(m.trustedDomains, origin)
}

// BuildPolicy assembles the policy string for the current state.
// The nonce appears exactly once, in script-src.
func (m *Manager) BuildPolicy() string {
	policy, _ := m.policyWithNonce()
	return policy
}

// policyWithNonce assembles the policy and returns the nonce it embeds.
// Both come from one lock acquisition, so a concurrent Rotate can never
// split a response's header from its context nonce.
func (m *Manager) policyWithNonce() (policy, nonce string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hashes := make([]string, 0, len(m.scriptHashes))
	for h := range m.scriptHashes {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	scriptSrc := []string{"'self'", fmt.Sprintf("'nonce-%s'", m.nonce)}
	scriptSrc = append(scriptSrc, hashes...)
	scriptSrc = append(scriptSrc, m.trustedDomains...)
	if m.development {
		scriptSrc = append(scriptSrc, "'unsafe-eval'")
	}

	styleSrc := []string{"'self'"}
	if !m.strictStyles {
		styleSrc = append(styleSrc, "'unsafe-inline'")
	}
	styleSrc = append(styleSrc, m.trustedDomains...)

	imgSrc := append([]string{"'self'", "data:", "blob:"}, m.trustedDomains...)
	fontSrc := append([]string{"'self'"}, m.trustedDomains...)

	connectSrc := append([]string{"'self'"}, m.connectOrigins...)
	if m.development {
		connectSrc = append(connectSrc, "ws://localhost:*", "http://localhost:*")
	}

	directives := []string{
		"default-src 'self'",
		"script-src " + strings.Join(scriptSrc, " "),
		"style-src " + strings.Join(styleSrc, " "),
		"img-src " + strings.Join(imgSrc, " "),
		"font-src " + strings.Join(fontSrc, " "),
		"connect-src " + strings.Join(connectSrc, " "),
		"object-src 'none'",
		"base-uri 'self'",
		"form-action 'self'",
		"frame-ancestors 'none'",
	}
	if !m.development {
		directives = append(directives, "upgrade-insecure-requests")
	}
	directives = append(directives, "report-uri "+m.reportPath)

	return strings.Join(directives, "; "), m.nonce
}

// Middleware sets the Content-Security-Policy header on every response and
// makes the nonce available to handlers via NonceFromContext.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		policy, nonce := m.policyWithNonce()
		w.Header().Set("Content-Security-Policy", policy)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), nonceContextKey{}, nonce)))
	})
}

// NonceFromContext returns the nonce stashed by Middleware, or "".
func NonceFromContext(ctx context.Context) string {
	if nonce, ok := ctx.Value(nonceContextKey{}).(string); ok {
		return nonce
	}
	return ""
}

// rotationLoop rotates the nonce on the configured interval.
func (m *Manager) rotationLoop() {
	ticker := time.NewTicker(m.rotationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Rotate()
		case <-m.stopRotation:
			return
		}
	}
}

// Stop gracefully stops the rotation goroutine. Safe to call multiple times.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopRotation)
	})
}

// Stats holds CSP manager statistics for monitoring
type Stats struct {
	AllowedHashes   int
	TrustedDomains  int
	TotalRotations  int64
	TotalViolations int64
}

// GetStats returns current manager statistics
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Stats{
		AllowedHashes:   len(m.scriptHashes),
		TrustedDomains:  len(m.trustedDomains),
		TotalRotations:  m.totalRotations,
		TotalViolations: m.totalViolations,
	}
}

// generateNonce returns 16 bytes of crypto/rand entropy, base64 encoded.
// Panics on RNG failure: a policy with a predictable nonce is worse than
// no page at all.
func generateNonce() string {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
	}
	return base64.StdEncoding.EncodeToString(b)
}
