package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultRefreshTokenTTL is the refresh token lifetime when none is configured
const DefaultRefreshTokenTTL = 7 * 24 * time.Hour

// RefreshToken is a stored (hashed) refresh token row
type RefreshToken struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// RefreshService mints and rotates opaque refresh tokens. Tokens are
// random UUIDs returned to the client once; only the SHA-256 hash is
// stored, so a database leak does not leak usable tokens.
type RefreshService struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewRefreshService creates a refresh token service
func NewRefreshService(db *sql.DB, ttl time.Duration) *RefreshService {
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}
	return &RefreshService{db: db, ttl: ttl, now: time.Now}
}

// hashToken computes the storage hash of a refresh token
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Mint creates a new refresh token for the user and returns the plaintext
func (rs *RefreshService) Mint(ctx context.Context, userID string) (string, error) {
	token := uuid.NewString()
	now := rs.now()

	query := `
		INSERT INTO refresh_tokens (token_hash, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := rs.db.ExecContext(ctx, query, hashToken(token), userID, now.Add(rs.ttl), now)
	if err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}
	return token, nil
}

// Rotate consumes a refresh token and mints a replacement. The old token
// row is deleted in the same transaction, making each token single-use.
// Returns the owning user id and the new plaintext token.
func (rs *RefreshService) Rotate(ctx context.Context, token string) (string, string, error) {
	tx, err := rs.db.BeginTx(ctx, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to begin rotation: %w", err)
	}
	defer tx.Rollback()

	var userID string
	var expiresAt time.Time
	query := `
		SELECT user_id, expires_at FROM refresh_tokens
		WHERE token_hash = $1
		FOR UPDATE
	`
	err = tx.QueryRowContext(ctx, query, hashToken(token)).Scan(&userID, &expiresAt)
	if err == sql.ErrNoRows {
		return "", "", ErrRefreshTokenNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to look up refresh token: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, hashToken(token)); err != nil {
		return "", "", fmt.Errorf("failed to consume refresh token: %w", err)
	}

	if rs.now().After(expiresAt) {
		// Expired tokens are consumed but not replaced
		if err := tx.Commit(); err != nil {
			return "", "", fmt.Errorf("failed to commit rotation: %w", err)
		}
		return "", "", ErrRefreshTokenExpired
	}

	newToken := uuid.NewString()
	now := rs.now()
	insert := `
		INSERT INTO refresh_tokens (token_hash, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.ExecContext(ctx, insert, hashToken(newToken), userID, now.Add(rs.ttl), now); err != nil {
		return "", "", fmt.Errorf("failed to store rotated token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", "", fmt.Errorf("failed to commit rotation: %w", err)
	}
	return userID, newToken, nil
}

// Revoke deletes a refresh token. Unknown tokens are not an error.
func (rs *RefreshService) Revoke(ctx context.Context, token string) error {
	_, err := rs.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, hashToken(token))
	return err
}

// RevokeAllForUser deletes all refresh tokens of a user (logout everywhere)
func (rs *RefreshService) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := rs.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	return err
}

// CleanupExpired removes refresh tokens past their expiry
func (rs *RefreshService) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := rs.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, rs.now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
