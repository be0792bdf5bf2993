package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	// apiKeyPrefix marks gateway API keys; the full key is the prefix
	// plus 32 random bytes hex encoded
	apiKeyPrefix = "sk_"

	// apiKeyLength is the total plaintext length ("sk_" + 64 hex chars)
	apiKeyLength = 67

	// apiKeyLookupLen is how much of the plaintext is stored as a
	// queryable prefix
	apiKeyLookupLen = 8
)

// APIKey is a long-lived machine credential bound to a user. The
// plaintext is returned once at creation; only the SHA-256 hash is
// stored. A key carries its own permission set, capped at creation to
// what the creating principal holds.
type APIKey struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Name        string     `json:"name"`
	Prefix      string     `json:"prefix"`
	Permissions []string   `json:"permissions"`
	Active      bool       `json:"is_active"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	UsageCount  int64      `json:"usage_count"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// APIKeyService creates, verifies and revokes API keys
type APIKeyService struct {
	db  *sql.DB
	now func() time.Time
}

// NewAPIKeyService creates an API key service
func NewAPIKeyService(db *sql.DB) *APIKeyService {
	return &APIKeyService{db: db, now: time.Now}
}

// generateKey returns a fresh plaintext key, its lookup prefix and its
// storage hash
func generateKey() (key, prefix, hash string, err error) {
	raw := make([]byte, 32)
	if _, err = rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("failed to generate API key: %w", err)
	}
	key = apiKeyPrefix + hex.EncodeToString(raw)
	return key, key[:apiKeyLookupLen], hashToken(key), nil
}

// Create mints a new key for the user and returns the record plus the
// plaintext. The plaintext is not recoverable afterwards.
func (s *APIKeyService) Create(ctx context.Context, userID, name string, permissions []string, expiresAt *time.Time) (*APIKey, string, error) {
	key, prefix, hash, err := generateKey()
	if err != nil {
		return nil, "", err
	}

	ak := &APIKey{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Prefix:      prefix,
		Permissions: permissions,
		Active:      true,
		ExpiresAt:   expiresAt,
		CreatedAt:   s.now(),
	}

	query := `
		INSERT INTO api_keys (id, user_id, name, prefix, key_hash, permissions, is_active, usage_count, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, 0, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		ak.ID, ak.UserID, ak.Name, ak.Prefix, hash, pq.Array(ak.Permissions), ak.ExpiresAt, ak.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store API key: %w", err)
	}
	return ak, key, nil
}

// Verify authenticates a plaintext key. Revoked keys look identical to
// unknown ones; a valid key whose owner is deactivated or blocked is
// rejected separately so callers can answer 403 instead of 401.
func (s *APIKeyService) Verify(ctx context.Context, key string) (*APIKey, error) {
	if len(key) != apiKeyLength || key[:len(apiKeyPrefix)] != apiKeyPrefix {
		return nil, ErrInvalidAPIKey
	}

	query := `
		SELECT k.id, k.user_id, k.name, k.prefix, k.permissions, k.last_used_at, k.usage_count, k.expires_at, k.created_at,
		       u.is_active, u.is_blocked
		FROM api_keys k
		JOIN users u ON u.id = k.user_id
		WHERE k.prefix = $1 AND k.key_hash = $2 AND k.is_active = TRUE
	`

	ak := &APIKey{Active: true}
	var userActive, userBlocked bool
	err := s.db.QueryRowContext(ctx, query, key[:apiKeyLookupLen], hashToken(key)).Scan(
		&ak.ID, &ak.UserID, &ak.Name, &ak.Prefix, pq.Array(&ak.Permissions),
		&ak.LastUsedAt, &ak.UsageCount, &ak.ExpiresAt, &ak.CreatedAt,
		&userActive, &userBlocked)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up API key: %w", err)
	}

	if ak.ExpiresAt != nil && s.now().After(*ak.ExpiresAt) {
		return nil, ErrAPIKeyExpired
	}
	if !userActive || userBlocked {
		return nil, ErrAPIKeyUserDisabled
	}

	// Usage stats are best effort; a failed write must not fail auth
	_, _ = s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $2, usage_count = usage_count + 1 WHERE id = $1`,
		ak.ID, s.now())

	return ak, nil
}

// ListForUser returns the user's keys, newest first, hashes excluded
func (s *APIKeyService) ListForUser(ctx context.Context, userID string) ([]APIKey, error) {
	query := `
		SELECT id, user_id, name, prefix, permissions, is_active, last_used_at, usage_count, expires_at, created_at
		FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var ak APIKey
		if err := rows.Scan(&ak.ID, &ak.UserID, &ak.Name, &ak.Prefix, pq.Array(&ak.Permissions),
			&ak.Active, &ak.LastUsedAt, &ak.UsageCount, &ak.ExpiresAt, &ak.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		keys = append(keys, ak)
	}
	return keys, rows.Err()
}

// Revoke deactivates a key. The row is kept so the admin view retains
// usage history.
func (s *APIKeyService) Revoke(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET is_active = FALSE WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	return requireKeyRow(res)
}

// Delete removes a key row entirely
func (s *APIKeyService) Delete(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM api_keys WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}
	return requireKeyRow(res)
}

func requireKeyRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}
