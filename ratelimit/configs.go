package ratelimit

import "time"

// Action names for the predefined limits. UI flows pass these to Check;
// unknown names fall back to ActionAPIGeneral.
const (
	ActionLogin             = "login"
	ActionSignup            = "signup"
	ActionPasswordReset     = "password_reset"
	ActionEmailVerification = "email_verification"
	ActionAPIGeneral        = "api_general"
	ActionAPISensitive      = "api_sensitive"
	ActionFileUpload        = "file_upload"
	ActionBudgetCreate      = "budget_create"
	ActionDataExport        = "data_export"
	ActionSearch            = "search"
	ActionAdminAction       = "admin_action"
)

// DefaultConfigs returns the predefined per-action limits.
//
// The auth-related actions deliberately pair small windows with long blocks:
// five failed logins in fifteen minutes locks the identifier out for half an
// hour, which is long enough to break automated guessing without a support
// ticket for the legitimate user.
func DefaultConfigs() map[string]Config {
	return map[string]Config{
		ActionLogin: {
			Window:         15 * time.Minute,
			MaxRequests:    5,
			BlockDuration:  30 * time.Minute,
			SkipSuccessful: true,
		},
		ActionSignup: {
			Window:        time.Hour,
			MaxRequests:   3,
			BlockDuration: 2 * time.Hour,
		},
		ActionPasswordReset: {
			Window:        time.Hour,
			MaxRequests:   3,
			BlockDuration: time.Hour,
		},
		ActionEmailVerification: {
			Window:        time.Hour,
			MaxRequests:   3,
			BlockDuration: time.Hour,
		},
		ActionAPIGeneral: {
			Window:        time.Minute,
			MaxRequests:   60,
			BlockDuration: 5 * time.Minute,
		},
		ActionAPISensitive: {
			Window:        time.Minute,
			MaxRequests:   10,
			BlockDuration: 15 * time.Minute,
		},
		ActionFileUpload: {
			Window:        10 * time.Minute,
			MaxRequests:   20,
			BlockDuration: 30 * time.Minute,
		},
		ActionBudgetCreate: {
			Window:        time.Minute,
			MaxRequests:   10,
			BlockDuration: 5 * time.Minute,
		},
		ActionDataExport: {
			Window:        time.Hour,
			MaxRequests:   5,
			BlockDuration: time.Hour,
		},
		ActionSearch: {
			Window:        time.Minute,
			MaxRequests:   30,
			BlockDuration: 2 * time.Minute,
		},
		ActionAdminAction: {
			Window:        5 * time.Minute,
			MaxRequests:   10,
			BlockDuration: 15 * time.Minute,
		},
	}
}
