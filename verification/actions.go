package verification

import "time"

// CriticalAction describes how much verification freshness an application
// action demands before it is permitted.
type CriticalAction struct {
	// Name is the action identifier passed to CanPerformAction.
	Name string

	// RequiresRecentVerification demands a verification record younger
	// than MaxVerificationAge, not just a verified account.
	RequiresRecentVerification bool

	// MaxVerificationAge is the freshness window. Ignored when
	// RequiresRecentVerification is false.
	MaxVerificationAge time.Duration
}

// DefaultCriticalActions returns the action table used by the OneDrip
// backend. Financial operations demand the tightest freshness; destructive
// and administrative operations sit between one and twenty-four hours;
// read-style sensitive operations only require a verified account.
func DefaultCriticalActions() map[string]CriticalAction {
	actions := []CriticalAction{
		// Financial operations
		{Name: "process_payment", RequiresRecentVerification: true, MaxVerificationAge: time.Hour},
		{Name: "issue_refund", RequiresRecentVerification: true, MaxVerificationAge: time.Hour},
		{Name: "update_payment_settings", RequiresRecentVerification: true, MaxVerificationAge: time.Hour},
		{Name: "view_financial_reports"},

		// Destructive operations
		{Name: "delete_budget", RequiresRecentVerification: true, MaxVerificationAge: 24 * time.Hour},
		{Name: "delete_client", RequiresRecentVerification: true, MaxVerificationAge: 24 * time.Hour},
		{Name: "delete_service_order", RequiresRecentVerification: true, MaxVerificationAge: 24 * time.Hour},
		{Name: "bulk_delete", RequiresRecentVerification: true, MaxVerificationAge: 12 * time.Hour},
		{Name: "delete_account", RequiresRecentVerification: true, MaxVerificationAge: time.Hour},

		// Data exports
		{Name: "export_clients", RequiresRecentVerification: true, MaxVerificationAge: 24 * time.Hour},
		{Name: "export_budgets", RequiresRecentVerification: true, MaxVerificationAge: 24 * time.Hour},
		{Name: "export_reports"},

		// Account security
		{Name: "change_password"},
		{Name: "change_email", RequiresRecentVerification: true, MaxVerificationAge: time.Hour},

		// Administration and configuration
		{Name: "manage_users", RequiresRecentVerification: true, MaxVerificationAge: 12 * time.Hour},
		{Name: "grant_admin", RequiresRecentVerification: true, MaxVerificationAge: time.Hour},
		{Name: "transfer_ownership", RequiresRecentVerification: true, MaxVerificationAge: time.Hour},
		{Name: "update_company_settings", RequiresRecentVerification: true, MaxVerificationAge: 24 * time.Hour},
	}

	table := make(map[string]CriticalAction, len(actions))
	for _, a := range actions {
		table[a.Name] = a
	}
	return table
}
