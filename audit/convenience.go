package audit

// Convenience loggers for common event categories. These wrap Log with the
// right event type, risk level and detail shape so call sites stay terse.

// Actor identifies who performed an action and from where.
// Zero-value fields are simply omitted from the recorded event.
type Actor struct {
	UserID    string
	SessionID string
	RequestID string
	IPAddress string
	UserAgent string
}

func (l *Logger) event(actor Actor, eventType string, risk RiskLevel) Event {
	return Event{
		Type:      eventType,
		UserID:    actor.UserID,
		SessionID: actor.SessionID,
		RequestID: actor.RequestID,
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
		RiskLevel: risk,
	}
}

// LogLoginAttempt records a login attempt. Failures are medium risk so that
// bursts of them stand out in the audit stream.
func (l *Logger) LogLoginAttempt(actor Actor, success bool, reason string) {
	risk := RiskLow
	eventType := EventLoginSuccess
	if !success {
		risk = RiskMedium
		eventType = EventLoginFailure
	}
	e := l.event(actor, eventType, risk)
	e.Action = "login"
	if reason != "" {
		e.Details = map[string]any{"reason": reason}
	}
	l.Log(e)
}

// LogDataAccess records authorized access to a business record.
func (l *Logger) LogDataAccess(actor Actor, resourceType, resourceID, action string) {
	e := l.event(actor, EventDataAccess, RiskLow)
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	e.Action = action
	l.Log(e)
}

// LogSensitiveDataAccess records access to financial or personal data.
func (l *Logger) LogSensitiveDataAccess(actor Actor, resourceType, resourceID, action string) {
	e := l.event(actor, EventSensitiveDataAccess, RiskMedium)
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	e.Action = action
	l.Log(e)
}

// LogUnauthorizedAccess records a denied access check.
func (l *Logger) LogUnauthorizedAccess(actor Actor, action, reason string) {
	e := l.event(actor, EventUnauthorizedAccess, RiskHigh)
	e.Action = action
	e.Details = map[string]any{"reason": reason}
	l.Log(e)
}

// LogRateLimitExceeded records an exhausted rate limit window.
func (l *Logger) LogRateLimitExceeded(actor Actor, action string, limit int) {
	e := l.event(actor, EventRateLimitExceeded, RiskMedium)
	e.Action = action
	e.Details = map[string]any{"limit": limit}
	l.Log(e)
}

// LogBlacklistedAccess records an access attempt from a blacklisted identifier.
func (l *Logger) LogBlacklistedAccess(actor Actor, identifier, action string) {
	e := l.event(actor, EventBlacklistedAccess, RiskCritical)
	e.Action = action
	e.Details = map[string]any{"identifier_hash": hashForLogging(identifier)}
	l.Log(e)
}

// LogSuspiciousActivity records a heuristic abuse detection.
func (l *Logger) LogSuspiciousActivity(actor Actor, description string, details map[string]any) {
	e := l.event(actor, EventSuspiciousActivity, RiskHigh)
	if details == nil {
		details = map[string]any{}
	}
	details["description"] = description
	e.Details = details
	l.Log(e)
}

// LogFileUpload records an accepted file upload.
func (l *Logger) LogFileUpload(actor Actor, fileName string, sizeBytes int64, contentType string) {
	e := l.event(actor, EventFileUpload, RiskLow)
	e.ResourceType = "file"
	e.Action = "upload"
	e.Details = map[string]any{
		"file_name":    fileName,
		"size_bytes":   sizeBytes,
		"content_type": contentType,
	}
	l.Log(e)
}

// LogMaliciousFileBlocked records a rejected file upload.
func (l *Logger) LogMaliciousFileBlocked(actor Actor, fileName, reason string) {
	e := l.event(actor, EventMaliciousFileBlocked, RiskHigh)
	e.ResourceType = "file"
	e.Action = "upload"
	e.Details = map[string]any{
		"file_name": fileName,
		"reason":    reason,
	}
	l.Log(e)
}

// LogDataExport records an export of business data.
func (l *Logger) LogDataExport(actor Actor, resourceType string, recordCount int) {
	e := l.event(actor, EventDataExport, RiskMedium)
	e.ResourceType = resourceType
	e.Action = "export"
	e.Details = map[string]any{"record_count": recordCount}
	l.Log(e)
}

// LogGDPRRequest records a data-subject request. Always high risk so it is
// flushed immediately: these carry legal deadlines.
func (l *Logger) LogGDPRRequest(actor Actor, requestType string) {
	e := l.event(actor, EventGDPRRequest, RiskHigh)
	e.Action = requestType
	l.Log(e)
}

// LogPasswordChange records a password change.
func (l *Logger) LogPasswordChange(actor Actor) {
	e := l.event(actor, EventPasswordChange, RiskMedium)
	e.Action = "password_change"
	l.Log(e)
}

// LogEmailChange records an account email change.
func (l *Logger) LogEmailChange(actor Actor, newEmailHash string) {
	e := l.event(actor, EventEmailChange, RiskMedium)
	e.Action = "email_change"
	e.Details = map[string]any{"new_email_hash": newEmailHash}
	l.Log(e)
}

// LogVerificationRequired records an action blocked pending email verification.
func (l *Logger) LogVerificationRequired(actor Actor, action string) {
	e := l.event(actor, EventVerificationRequired, RiskMedium)
	e.Action = action
	l.Log(e)
}

// LogAdminAction records a privileged administrative operation.
func (l *Logger) LogAdminAction(actor Actor, action, targetID string) {
	e := l.event(actor, EventAdminAction, RiskMedium)
	e.Action = action
	e.ResourceID = targetID
	l.Log(e)
}

// LogCSPViolation records a Content-Security-Policy violation report.
func (l *Logger) LogCSPViolation(actor Actor, directive, blockedURI string, risk RiskLevel) {
	e := l.event(actor, EventCSPViolation, risk)
	e.Action = "csp_report"
	e.Details = map[string]any{
		"directive":   directive,
		"blocked_uri": blockedURI,
	}
	l.Log(e)
}
