package audit

import (
	"encoding/json"
	"time"
)

// EventType categorizes an audit event
type EventType string

const (
	EventAuthSignup       EventType = "auth.signup"
	EventAuthLogin        EventType = "auth.login"
	EventAuthLoginFailed  EventType = "auth.login_failed"
	EventAuthLogout       EventType = "auth.logout"
	EventAuthTokenRefresh EventType = "auth.token_refresh"

	EventAuthzAccessDenied EventType = "authz.access_denied"

	EventAPIKeyCreate EventType = "apikey.create"
	EventAPIKeyRevoke EventType = "apikey.revoke"
	EventAPIKeyDelete EventType = "apikey.delete"

	EventAdminUserBlock      EventType = "admin.user_block"
	EventAdminUserUnblock    EventType = "admin.user_unblock"
	EventAdminUserActivate   EventType = "admin.user_activate"
	EventAdminUserDeactivate EventType = "admin.user_deactivate"
	EventAdminUserVerify     EventType = "admin.user_verify"
	EventAdminRoleAssign  EventType = "admin.role_assign"
	EventAdminRoleRevoke  EventType = "admin.role_revoke"
	EventAdminRoleCreate  EventType = "admin.role_create"
	EventAdminRoleUpdate  EventType = "admin.role_update"
	EventAdminRoleDelete  EventType = "admin.role_delete"

	EventAdminServiceRegister   EventType = "admin.service_register"
	EventAdminServiceDeregister EventType = "admin.service_deregister"

	EventConfigWebhookCreate EventType = "config.webhook_create"
	EventConfigWebhookUpdate EventType = "config.webhook_update"
	EventConfigWebhookDelete EventType = "config.webhook_delete"

	EventProxyForward EventType = "proxy.forward"
)

// Status is the outcome of an audited action
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusDenied  Status = "denied"
)

// Event is a single audit log entry. UserID is the acting principal;
// TargetID is the affected resource when the two differ.
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"event_type"`
	Status    Status    `json:"status"`

	UserID   string `json:"user_id,omitempty"`
	TargetID string `json:"target_id,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON serializes the event
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Filter narrows a log search
type Filter struct {
	StartTime *time.Time
	EndTime   *time.Time
	UserID    string
	Types     []EventType
	Status    *Status

	Limit  int
	Offset int
}
