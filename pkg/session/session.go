package session

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound indicates a missing or expired session
var ErrSessionNotFound = errors.New("session not found")

// Session is a server-side record for an authenticated principal
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Service   string    `json:"service,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store abstracts session persistence. Get on a missing or expired
// session returns ErrSessionNotFound.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Set(ctx context.Context, sess *Session, ttl time.Duration) error
	Expire(ctx context.Context, id string, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}
