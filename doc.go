// Package shield is the security guard library for the OneDrip backend:
// per-action rate limiting with block semantics, email-verification gating
// for critical actions, Content-Security-Policy management and security
// audit logging.
//
// The package exposes explicit service objects constructed once at startup
// and composed as plain middleware; nothing here is a package-level
// singleton. Policy denials are returned as values for the UI to render,
// never as errors, and audit logging is best-effort by contract: it never
// breaks the operation that triggered it.
//
// Basic usage:
//
//	cfg := shield.DefaultConfig()
//	if err := cfg.LoadFromEnv(); err != nil {
//		log.Fatal(err)
//	}
//
//	guard, err := shield.New(cfg, shield.Stores{
//		Audit:        auditStore,
//		Verification: verificationStore,
//		Mailer:       mailer,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer guard.Close()
//
//	mux.Handle("/api/login", guard.RequireRateLimit(ratelimit.ActionLogin, loginHandler))
//	mux.Handle("/api/payments", guard.RequireVerifiedEmail("process_payment", userID, payHandler))
//	mux.Handle(cfg.CSP.ReportPath, guard.CSPReportHandler())
package shield
