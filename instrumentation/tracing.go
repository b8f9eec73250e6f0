package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys.
//
// Never put actual sensitive values (emails, verification codes, raw
// identifiers) in traces; only metadata such as action names, outcomes and
// hashed identifiers. Traces outlive requests and are widely replicated.
const (
	// Guard attributes
	AttrAction    = "shield.action"
	AttrOutcome   = "shield.outcome"
	AttrRiskLevel = "shield.risk_level"
	AttrUserHash  = "shield.user_hash"

	// Rate limit attributes
	AttrLimiterKind = "shield.ratelimit.kind" // "window", "shared", "throttle"
	AttrRetryAfter  = "shield.ratelimit.retry_after"

	// Verification attributes
	AttrVerificationMethod = "shield.verification.method"
	AttrVerificationStale  = "shield.verification.stale"

	// CSP attributes
	AttrCSPDirective  = "shield.csp.directive"
	AttrCSPBlockedURI = "shield.csp.blocked_uri"

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"
	AttrStorageType      = "storage.type"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetAttributes sets attributes on a span (nil-safe)
func SetAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}
