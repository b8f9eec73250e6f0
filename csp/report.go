package csp

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// maxReportBody bounds violation report payloads (reports are small; large
// bodies are abuse).
const maxReportBody = 16 * 1024

// Report is the violation payload browsers post to the report endpoint.
type Report struct {
	DocumentURI        string `json:"document-uri"`
	Referrer           string `json:"referrer"`
	ViolatedDirective  string `json:"violated-directive"`
	EffectiveDirective string `json:"effective-directive"`
	BlockedURI         string `json:"blocked-uri"`
	SourceFile         string `json:"source-file"`
	LineNumber         int    `json:"line-number"`
	StatusCode         int    `json:"status-code"`
}

// reportEnvelope matches the wire format: {"csp-report": {...}}.
type reportEnvelope struct {
	Report Report `json:"csp-report"`
}

// Risk levels for classified violations. String-typed to stay decoupled
// from the audit package; values match audit.RiskLevel.
const (
	riskLow      = "low"
	riskMedium   = "medium"
	riskHigh     = "high"
	riskCritical = "critical"
)

// Classify ranks a violation by how likely it is to be an active attack
// rather than a misconfigured asset.
//
// Script injection attempts (eval, javascript: or data: URIs hitting
// script-src) are critical. Any other script or object violation is high:
// something tried to execute that the policy never allowed. Connection and
// framing violations are medium (exfiltration or clickjacking attempts).
// Everything else, typically styles and images, is noise until proven
// otherwise.
func Classify(directive, blockedURI string) string {
	d := strings.ToLower(directive)
	uri := strings.ToLower(blockedURI)

	if strings.HasPrefix(d, "script-src") {
		switch {
		case uri == "eval", strings.HasPrefix(uri, "javascript:"), strings.HasPrefix(uri, "data:"):
			return riskCritical
		default:
			return riskHigh
		}
	}
	if strings.HasPrefix(d, "object-src") {
		return riskHigh
	}
	if strings.HasPrefix(d, "connect-src") || strings.HasPrefix(d, "frame-") || strings.HasPrefix(d, "form-action") {
		return riskMedium
	}
	return riskLow
}

// ReportHandler returns the HTTP handler for the violation report endpoint.
// It always answers 204: the browser does not care, and an attacker probing
// the endpoint learns nothing.
func (m *Manager) ReportHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer w.WriteHeader(http.StatusNoContent)

		if r.Method != http.MethodPost {
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxReportBody))
		if err != nil {
			return
		}

		var envelope reportEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			m.logger.Debug("Discarding malformed CSP report", "error", err)
			return
		}

		m.HandleViolation(envelope.Report, r.UserAgent())
	})
}

// HandleViolation classifies, counts and audits one violation report.
func (m *Manager) HandleViolation(report Report, userAgent string) {
	directive := report.EffectiveDirective
	if directive == "" {
		directive = report.ViolatedDirective
	}

	risk := Classify(directive, report.BlockedURI)

	m.mu.Lock()
	m.totalViolations++
	total := m.totalViolations
	m.mu.Unlock()

	if m.auditor != nil {
		m.auditor.LogCSPViolation(userAgent, directive, report.BlockedURI, risk)
	}

	if risk == riskHigh || risk == riskCritical {
		m.logger.Warn("High risk CSP violation",
			"directive", directive,
			"blocked_uri", report.BlockedURI,
			"document_uri", report.DocumentURI,
			"source_file", report.SourceFile,
			"risk", risk,
			"total_violations", total)
		if m.onHighRisk != nil {
			m.onHighRisk(report, risk)
		}
		return
	}

	m.logger.Debug("CSP violation reported",
		"directive", directive,
		"blocked_uri", report.BlockedURI,
		"risk", risk)
}
