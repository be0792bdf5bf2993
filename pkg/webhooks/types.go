package webhooks

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// Events emitted by the gateway
const (
	EventUserRegistered    = "user.registered"
	EventUserConnected     = "user.connected"
	EventUserDisconnected  = "user.disconnected"
	EventSessionRevoked    = "session.revoked"
	EventProfileUpdated    = "profile.updated"
	EventServiceAuthorized = "service.authorized"
	EventAdminAction       = "admin.action"
	EventSecurityAlert     = "security.alert"

	// EventTest is the synthetic event sent by the test endpoint
	EventTest = "webhook.test"
)

// KnownEvents lists the events a webhook may subscribe to
var KnownEvents = []string{
	EventUserRegistered,
	EventUserConnected,
	EventUserDisconnected,
	EventSessionRevoked,
	EventProfileUpdated,
	EventServiceAuthorized,
	EventAdminAction,
	EventSecurityAlert,
}

var (
	// ErrWebhookNotFound indicates a missing webhook
	ErrWebhookNotFound = errors.New("webhook not found")

	// ErrNoEvents indicates a registration without any subscription
	ErrNoEvents = errors.New("at least one event is required")
)

// Retry and timeout bounds. Out-of-range values clamp rather than fail
// so a sloppy admin payload degrades to the nearest sane setting.
const (
	MinRetryCount = 0
	MaxRetryCount = 5

	MinTimeout = 1000 * time.Millisecond
	MaxTimeout = 30000 * time.Millisecond

	DefaultRetryCount = 3
	DefaultTimeout    = 5000 * time.Millisecond
)

// Webhook is a registered delivery endpoint
type Webhook struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	URL           string            `json:"url"`
	Secret        string            `json:"-"`
	Events        []string          `json:"events"`
	Headers       map[string]string `json:"headers,omitempty"`
	RetryCount    int               `json:"retry_count"`
	Timeout       time.Duration     `json:"timeout"`
	Active        bool              `json:"is_active"`
	CreatedBy     string            `json:"created_by,omitempty"`
	SuccessCount  int64             `json:"success_count"`
	FailureCount  int64             `json:"failure_count"`
	LastTriggered *time.Time        `json:"last_triggered,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Subscribed reports whether the webhook listens for the event
func (w *Webhook) Subscribed(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Normalize clamps retry and timeout settings into their allowed ranges
// and fills zero values with defaults
func (w *Webhook) Normalize() {
	if w.Timeout == 0 {
		w.Timeout = DefaultTimeout
	}
	if w.Timeout < MinTimeout {
		w.Timeout = MinTimeout
	}
	if w.Timeout > MaxTimeout {
		w.Timeout = MaxTimeout
	}
	if w.RetryCount < MinRetryCount {
		w.RetryCount = MinRetryCount
	}
	if w.RetryCount > MaxRetryCount {
		w.RetryCount = MaxRetryCount
	}
}

// Log is one delivery attempt. A trigger with retries produces one row
// per attempt, all sharing the webhook id and event.
type Log struct {
	ID           string          `json:"id"`
	WebhookID    string          `json:"webhook_id"`
	Event        string          `json:"event"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	URL          string          `json:"url"`
	StatusCode   int             `json:"status_code,omitempty"`
	ResponseBody string          `json:"response_body,omitempty"`
	ResponseTime time.Duration   `json:"response_time"`
	Success      bool            `json:"success"`
	Error        string          `json:"error,omitempty"`
	Attempt      int             `json:"attempt"`
	CreatedAt    time.Time       `json:"created_at"`
}

// payload is the JSON body posted to the endpoint
type payload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// GenerateSecret returns a random hex signing secret
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Sign computes the hex HMAC-SHA256 signature of the payload
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature in constant time. Provided
// for consumers validating gateway deliveries.
func VerifySignature(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}
