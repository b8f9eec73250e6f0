package audit

// Event type constants for security audit logging.
// These constants ensure consistency across the codebase and prevent typos
// when logging security-relevant events.
const (
	// Authentication events

	// EventLoginSuccess is logged when a user successfully authenticates
	EventLoginSuccess = "login_success"

	// EventLoginFailure is logged when an authentication attempt fails
	EventLoginFailure = "login_failure"

	// EventLogout is logged when a user session ends
	EventLogout = "logout"

	// EventPasswordChange is logged when a user changes their password
	EventPasswordChange = "password_change"

	// EventEmailChange is logged when a user changes their account email
	EventEmailChange = "email_change"

	// EventSessionExpired is logged when a session is terminated for inactivity
	EventSessionExpired = "session_expired"

	// Verification events

	// EventVerificationRequired is logged when an action is denied pending email verification
	EventVerificationRequired = "verification_required"

	// EventVerificationStale is logged when an action requires fresher verification than available
	EventVerificationStale = "verification_stale"

	// EventVerificationEmailSent is logged when a verification email is dispatched
	EventVerificationEmailSent = "verification_email_sent"

	// EventVerificationCompleted is logged when a user completes email verification
	EventVerificationCompleted = "verification_completed"

	// EventVerificationResendBlocked is logged when a resend is denied by the attempt limit
	EventVerificationResendBlocked = "verification_resend_blocked"

	// Access control events

	// EventDataAccess is logged for authorized access to business records
	EventDataAccess = "data_access"

	// EventSensitiveDataAccess is logged for access to financial or personal data
	EventSensitiveDataAccess = "sensitive_data_access"

	// EventUnauthorizedAccess is logged when an access check denies an operation
	EventUnauthorizedAccess = "unauthorized_access"

	// EventAdminAction is logged for privileged administrative operations
	EventAdminAction = "admin_action"

	// EventConfigChange is logged when application settings are modified
	EventConfigChange = "config_change"

	// Rate limiting and abuse events

	// EventRateLimitExceeded is logged when a rate limit window is exhausted
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventBlacklistedAccess is logged when a blacklisted identifier attempts any action
	EventBlacklistedAccess = "blacklisted_access_attempt"

	// EventSuspiciousActivity is logged for heuristic abuse detections
	EventSuspiciousActivity = "suspicious_activity"

	// EventAnomalyDetected is logged when the audit stream detector trips a threshold
	EventAnomalyDetected = "anomaly_detected"

	// File events

	// EventFileUpload is logged when a file upload is accepted
	EventFileUpload = "file_upload"

	// EventMaliciousFileBlocked is logged when file validation rejects an upload
	EventMaliciousFileBlocked = "malicious_file_blocked"

	// Data lifecycle events

	// EventDataExport is logged when a user exports business data
	EventDataExport = "data_export"

	// EventDataDeletion is logged when records are permanently deleted
	EventDataDeletion = "data_deletion"

	// EventGDPRRequest is logged for data-subject requests (access, erasure, portability)
	EventGDPRRequest = "gdpr_request"

	// Budget and order events

	// EventBudgetCreated is logged when a service budget is created
	EventBudgetCreated = "budget_created"

	// EventBudgetDeleted is logged when a service budget is deleted
	EventBudgetDeleted = "budget_deleted"

	// EventPaymentProcessed is logged when a payment operation completes
	EventPaymentProcessed = "payment_processed"

	// Content security events

	// EventCSPViolation is logged when a Content-Security-Policy report is received
	EventCSPViolation = "csp_violation"

	// EventNonceRotated is logged when the CSP nonce is rotated
	EventNonceRotated = "nonce_rotated"

	// Operational events

	// EventAuditFlushFailed is logged locally when a batch insert fails and is requeued
	EventAuditFlushFailed = "audit_flush_failed"

	// EventAuditEventsDropped is logged locally when the bounded queue discards events
	EventAuditEventsDropped = "audit_events_dropped"
)

// RiskLevel classifies the severity of a security event.
type RiskLevel string

// Risk levels, ordered from least to most severe.
const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Severity returns a numeric rank for comparing risk levels.
// Unknown levels rank as low.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskCritical:
		return 3
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// Immediate reports whether events at this risk level bypass batching
// and trigger a flush as soon as they are logged.
func (r RiskLevel) Immediate() bool {
	return r.Severity() >= RiskHigh.Severity()
}
