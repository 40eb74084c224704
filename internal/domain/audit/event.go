// Package audit describes the structured events emitted on every session and tenant
// state transition.
package audit

import "time"

// Name identifies an audit event type.
type Name string

const (
	SessionStarted          Name = "session.started"
	SessionActivityReset    Name = "session.activity_reset"
	SessionWarning          Name = "session.warning"
	SessionGraceStarted     Name = "session.grace_started"
	SessionCancelled        Name = "session.cancelled"
	SessionExtended         Name = "session.extended"
	SessionUnsavedExtension Name = "session.unsaved_extension"
	SessionRouteChanged     Name = "session.route_changed"
	SessionExpired          Name = "session.expired"
	SessionLogoutFailed     Name = "session.logout_failed"
	SessionStopped          Name = "session.stopped"

	TenantResolved       Name = "tenant.resolved"
	TenantConflict       Name = "tenant.conflict"
	TenantInvalidFormat  Name = "tenant.invalid_format"
	TenantLegacyFallback Name = "tenant.legacy_fallback"
	TenantLegacyMigrated Name = "tenant.legacy_migrated"
	TenantUnresolved     Name = "tenant.unresolved"
	TenantSwitched       Name = "tenant.switched"

	AuthLogin  Name = "auth.login"
	AuthLogout Name = "auth.logout"
)

// Event is a plain JSON audit record.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Event     Name           `json:"event"`
	Page      string         `json:"page,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	TenantID  string         `json:"tenant_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// IsSecurity marks events that must be logged at error severity.
func (e Event) IsSecurity() bool {
	return e.Event == TenantConflict
}
