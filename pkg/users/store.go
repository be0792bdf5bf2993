package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/platinummonkey/gateway/pkg/auth"
)

var (
	// ErrUserNotFound indicates a missing user record
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateCredential indicates a signup whose email blind index
	// collides with an existing record. The hash is the identity key, so
	// a collision means the user already exists.
	ErrDuplicateCredential = errors.New("user already exists")
)

// User is a persisted account. The password hash is never serialized and
// the email hash, not the plaintext, is the unique identity key.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	EmailHash    string     `json:"-"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name,omitempty"`
	LastName     string     `json:"last_name,omitempty"`
	IsVerified   bool       `json:"is_verified"`
	IsActive     bool       `json:"is_active"`
	IsBlocked    bool       `json:"is_blocked"`
	LoginCount   int64      `json:"login_count"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CanAuthenticate reports whether the account may log in
func (u *User) CanAuthenticate() bool {
	return u.IsActive && !u.IsBlocked
}

// Store handles user persistence keyed on the email blind index
type Store struct {
	db      *sql.DB
	indexer *auth.BlindIndexer
}

// NewStore creates a new user store
func NewStore(db *sql.DB, indexer *auth.BlindIndexer) *Store {
	return &Store{db: db, indexer: indexer}
}

const userColumns = `id, email, email_hash, password_hash, first_name, last_name,
	is_verified, is_active, is_blocked, login_count, last_login_at, created_at, updated_at`

// Create inserts a new user. The email blind index is computed here;
// callers supply the plaintext email and a bcrypt password hash.
func (s *Store) Create(ctx context.Context, email, passwordHash, firstName, lastName string) (*User, error) {
	now := time.Now()
	user := &User{
		ID:           uuid.NewString(),
		Email:        auth.NormalizeEmail(email),
		EmailHash:    s.indexer.Index(email),
		PasswordHash: passwordHash,
		FirstName:    firstName,
		LastName:     lastName,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, email_hash, password_hash, first_name, last_name,
			is_verified, is_active, is_blocked, login_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, user.ID, user.Email, user.EmailHash, user.PasswordHash, user.FirstName, user.LastName,
		user.IsVerified, user.IsActive, user.IsBlocked, user.LoginCount, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return nil, ErrDuplicateCredential
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// FindByEmail computes the blind index of the email and queries by the
// hash. The plaintext never appears in the query.
func (s *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findBy(ctx, "email_hash", s.indexer.Index(email))
}

// FindByID retrieves a user by id
func (s *Store) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findBy(ctx, "id", id)
}

func (s *Store) findBy(ctx context.Context, column, value string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value,
	).Scan(
		&user.ID, &user.Email, &user.EmailHash, &user.PasswordHash,
		&user.FirstName, &user.LastName,
		&user.IsVerified, &user.IsActive, &user.IsBlocked,
		&user.LoginCount, &user.LastLoginAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// List returns users ordered by creation time, newest first
func (s *Store) List(ctx context.Context, limit, offset int) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var user User
		if err := rows.Scan(
			&user.ID, &user.Email, &user.EmailHash, &user.PasswordHash,
			&user.FirstName, &user.LastName,
			&user.IsVerified, &user.IsActive, &user.IsBlocked,
			&user.LoginCount, &user.LastLoginAt, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

// RecordLogin bumps the login counter and stamps the login time
func (s *Store) RecordLogin(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET login_count = login_count + 1, last_login_at = $2, updated_at = $2
		WHERE id = $1
	`, userID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return requireRow(res)
}

// SetBlocked toggles the blocked flag. Blocked accounts stay on record
// for audit purposes; there is no hard delete on this path.
func (s *Store) SetBlocked(ctx context.Context, userID string, blocked bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_blocked = $2, updated_at = $3 WHERE id = $1
	`, userID, blocked, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update blocked state: %w", err)
	}
	return requireRow(res)
}

// SetActive toggles the soft-delete flag
func (s *Store) SetActive(ctx context.Context, userID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_active = $2, updated_at = $3 WHERE id = $1
	`, userID, active, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update active state: %w", err)
	}
	return requireRow(res)
}

// SetVerified marks the account email as verified
func (s *Store) SetVerified(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_verified = TRUE, updated_at = $2 WHERE id = $1
	`, userID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update verified state: %w", err)
	}
	return requireRow(res)
}

// UpdateProfile changes the mutable profile fields
func (s *Store) UpdateProfile(ctx context.Context, userID, firstName, lastName string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET first_name = $2, last_name = $3, updated_at = $4 WHERE id = $1
	`, userID, firstName, lastName, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return requireRow(res)
}

// Count returns the total number of users
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
