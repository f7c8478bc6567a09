package domain

import "time"

// Event codes written by the identity layer.
const (
	EventLoginSuccess           = "login_success"
	EventLoginFailure           = "login_failure"
	EventAccountLocked          = "account_locked"
	EventLogout                 = "logout"
	EventTokenRefresh           = "token_refresh"
	EventTokenRefreshFailed     = "token_refresh_failed"
	EventPasswordChange         = "password_change"
	EventPasswordResetRequested = "password_reset_requested"
	EventPasswordReset          = "password_reset"
	EventRoleGranted            = "role_granted"
	EventRoleRevoked            = "role_revoked"
	EventRoleChangeDenied       = "role_change_denied"
	EventAccountCreated         = "account_created"
	EventAccountDeleted         = "account_deleted"
	EventRoleRenamed            = "role_renamed"
	EventRoleDeleted            = "role_deleted"
)

// Record is one append-only audit entry. ActorID is nil for anonymous events
// such as a failed login for an unknown email.
type Record struct {
	ID        int64          `json:"id,omitempty"`
	ActorID   *int64         `json:"actor_id"`
	Event     string         `json:"event"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IP        string         `json:"ip,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
