// Package postgres provides the durable storage backend: audit events and
// email verification state in PostgreSQL via sqlx.
//
// The backend expects the following schema (managed by the host
// application's migrations):
//
//	CREATE TABLE security_audit_log (
//	    id            UUID PRIMARY KEY,
//	    event_type    TEXT NOT NULL,
//	    user_id       TEXT,
//	    session_id    TEXT,
//	    request_id    TEXT,
//	    ip_address    TEXT,
//	    user_agent    TEXT,
//	    resource_type TEXT,
//	    resource_id   TEXT,
//	    action        TEXT,
//	    details       TEXT,
//	    risk_level    TEXT NOT NULL,
//	    created_at    TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX idx_audit_user_created ON security_audit_log (user_id, created_at DESC);
//	CREATE INDEX idx_audit_risk_created ON security_audit_log (risk_level, created_at DESC);
//
//	CREATE TABLE email_verification_status (
//	    user_id     TEXT PRIMARY KEY,
//	    is_verified BOOLEAN NOT NULL DEFAULT FALSE,
//	    verified_at TIMESTAMPTZ,
//	    method      TEXT,
//	    pending     BOOLEAN NOT NULL DEFAULT FALSE
//	);
//
//	CREATE TABLE email_verifications (
//	    id          UUID PRIMARY KEY,
//	    user_id     TEXT NOT NULL,
//	    method      TEXT NOT NULL,
//	    verified_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX idx_verifications_user ON email_verifications (user_id, verified_at DESC);
//
//	CREATE TABLE verification_attempts (
//	    user_id      TEXT NOT NULL,
//	    requested_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX idx_attempts_user ON verification_attempts (user_id, requested_at DESC);
//
// The details column holds JSON; when an encryptor is configured the JSON is
// encrypted at rest (AES-256-GCM, base64).
package postgres
