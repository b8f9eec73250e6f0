package instrumentation

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the guard library
type Metrics struct {
	// Authorization metrics
	AuthorizeTotal  metric.Int64Counter
	AuthorizeDenied metric.Int64Counter

	// Rate limiting metrics
	RateLimitExceeded   metric.Int64Counter
	BlacklistedAttempts metric.Int64Counter
	ThrottleDenied      metric.Int64Counter

	// Verification metrics
	VerificationDenied metric.Int64Counter
	VerificationEmails metric.Int64Counter

	// CSP metrics
	CSPViolations metric.Int64Counter
	NonceRotation metric.Int64Counter

	// Audit metrics
	AuditEventsTotal   metric.Int64Counter
	AuditEventsDropped metric.Int64Counter
	AuditFlushDuration metric.Float64Histogram
	AuditQueueDepth    metric.Int64ObservableGauge

	// Storage metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	guardMeter := inst.Meter("guard")
	rateMeter := inst.Meter("ratelimit")
	verifyMeter := inst.Meter("verification")
	cspMeter := inst.Meter("csp")
	auditMeter := inst.Meter("audit")
	storageMeter := inst.Meter("storage")

	var err error
	m.AuthorizeTotal, err = guardMeter.Int64Counter(
		"shield.authorize.total",
		metric.WithDescription("Total number of authorization checks"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorize.total counter: %w", err)
	}

	m.AuthorizeDenied, err = guardMeter.Int64Counter(
		"shield.authorize.denied",
		metric.WithDescription("Authorization checks that were denied"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorize.denied counter: %w", err)
	}

	m.RateLimitExceeded, err = rateMeter.Int64Counter(
		"shield.ratelimit.exceeded",
		metric.WithDescription("Rate limit windows exhausted"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.exceeded counter: %w", err)
	}

	m.BlacklistedAttempts, err = rateMeter.Int64Counter(
		"shield.ratelimit.blacklisted",
		metric.WithDescription("Access attempts from blacklisted identifiers"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.blacklisted counter: %w", err)
	}

	m.ThrottleDenied, err = rateMeter.Int64Counter(
		"shield.throttle.denied",
		metric.WithDescription("Requests rejected by the per-IP edge throttle"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create throttle.denied counter: %w", err)
	}

	m.VerificationDenied, err = verifyMeter.Int64Counter(
		"shield.verification.denied",
		metric.WithDescription("Actions denied by the email verification guard"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification.denied counter: %w", err)
	}

	m.VerificationEmails, err = verifyMeter.Int64Counter(
		"shield.verification.emails_sent",
		metric.WithDescription("Verification emails dispatched"),
		metric.WithUnit("{email}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification.emails_sent counter: %w", err)
	}

	m.CSPViolations, err = cspMeter.Int64Counter(
		"shield.csp.violations",
		metric.WithDescription("Content-Security-Policy violation reports received"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create csp.violations counter: %w", err)
	}

	m.NonceRotation, err = cspMeter.Int64Counter(
		"shield.csp.nonce_rotations",
		metric.WithDescription("CSP nonce rotations performed"),
		metric.WithUnit("{rotation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create csp.nonce_rotations counter: %w", err)
	}

	m.AuditEventsTotal, err = auditMeter.Int64Counter(
		"shield.audit.events",
		metric.WithDescription("Security audit events logged"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events counter: %w", err)
	}

	m.AuditEventsDropped, err = auditMeter.Int64Counter(
		"shield.audit.events_dropped",
		metric.WithDescription("Audit events discarded by the bounded queue"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events_dropped counter: %w", err)
	}

	m.AuditFlushDuration, err = auditMeter.Float64Histogram(
		"shield.audit.flush.duration",
		metric.WithDescription("Audit batch flush duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.flush.duration histogram: %w", err)
	}

	m.AuditQueueDepth, err = auditMeter.Int64ObservableGauge(
		"shield.audit.queue.depth",
		metric.WithDescription("Audit events currently queued"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.queue.depth gauge: %w", err)
	}

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"shield.storage.operations",
		metric.WithDescription("Storage operations performed"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operations counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"shield.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	return m, nil
}
