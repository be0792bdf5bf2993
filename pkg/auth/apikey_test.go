package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var apiKeyColumns = []string{
	"id", "user_id", "name", "prefix", "permissions", "last_used_at",
	"usage_count", "expires_at", "created_at", "is_active", "is_blocked",
}

func TestAPIKeyService_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO api_keys")).
		WithArgs(sqlmock.AnyArg(), "user-1", "ci key", sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	svc := NewAPIKeyService(db)
	ak, key, err := svc.Create(context.Background(), "user-1", "ci key", []string{"access:services"}, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(key, "sk_") {
		t.Errorf("key = %q, want sk_ prefix", key)
	}
	if len(key) != apiKeyLength {
		t.Errorf("len(key) = %d, want %d", len(key), apiKeyLength)
	}
	if ak.Prefix != key[:apiKeyLookupLen] {
		t.Errorf("Prefix = %q, want %q", ak.Prefix, key[:apiKeyLookupLen])
	}
	if !ak.Active {
		t.Error("Create() returned an inactive key")
	}
	if strings.Contains(ak.ID, key) {
		t.Error("plaintext leaked into the record")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAPIKeyService_Verify(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	key := "sk_" + strings.Repeat("ab", 32)

	mock.ExpectQuery(regexp.QuoteMeta("FROM api_keys k")).
		WithArgs(key[:apiKeyLookupLen], hashToken(key)).
		WillReturnRows(sqlmock.NewRows(apiKeyColumns).
			AddRow("key-1", "user-1", "ci key", key[:apiKeyLookupLen], "{access:services}",
				nil, int64(4), nil, time.Now(), true, false))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE api_keys SET last_used_at")).
		WithArgs("key-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewAPIKeyService(db)
	ak, err := svc.Verify(context.Background(), key)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if ak.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", ak.UserID, "user-1")
	}
	if len(ak.Permissions) != 1 || ak.Permissions[0] != "access:services" {
		t.Errorf("Permissions = %v, want [access:services]", ak.Permissions)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAPIKeyService_VerifyMalformed(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	svc := NewAPIKeyService(db)
	tests := []string{
		"",
		"sk_short",
		"pk_" + strings.Repeat("ab", 32),
		strings.Repeat("a", apiKeyLength),
	}
	for _, key := range tests {
		if _, err := svc.Verify(context.Background(), key); !errors.Is(err, ErrInvalidAPIKey) {
			t.Errorf("Verify(%q) error = %v, want ErrInvalidAPIKey", key, err)
		}
	}
}

func TestAPIKeyService_VerifyUnknown(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM api_keys k")).
		WillReturnRows(sqlmock.NewRows(apiKeyColumns))

	svc := NewAPIKeyService(db)
	key := "sk_" + strings.Repeat("cd", 32)
	if _, err := svc.Verify(context.Background(), key); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("Verify() error = %v, want ErrInvalidAPIKey", err)
	}
}

func TestAPIKeyService_VerifyExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	key := "sk_" + strings.Repeat("ef", 32)
	expired := time.Now().Add(-time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM api_keys k")).
		WillReturnRows(sqlmock.NewRows(apiKeyColumns).
			AddRow("key-1", "user-1", "old key", key[:apiKeyLookupLen], "{}",
				nil, int64(0), expired, time.Now().Add(-48*time.Hour), true, false))

	svc := NewAPIKeyService(db)
	if _, err := svc.Verify(context.Background(), key); !errors.Is(err, ErrAPIKeyExpired) {
		t.Errorf("Verify() error = %v, want ErrAPIKeyExpired", err)
	}
}

func TestAPIKeyService_VerifyDisabledUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	key := "sk_" + strings.Repeat("01", 32)

	mock.ExpectQuery(regexp.QuoteMeta("FROM api_keys k")).
		WillReturnRows(sqlmock.NewRows(apiKeyColumns).
			AddRow("key-1", "user-1", "ci key", key[:apiKeyLookupLen], "{}",
				nil, int64(0), nil, time.Now(), true, true))

	svc := NewAPIKeyService(db)
	if _, err := svc.Verify(context.Background(), key); !errors.Is(err, ErrAPIKeyUserDisabled) {
		t.Errorf("Verify() error = %v, want ErrAPIKeyUserDisabled", err)
	}
}

func TestAPIKeyService_RevokeUnknown(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE api_keys SET is_active = FALSE")).
		WithArgs("key-404", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	svc := NewAPIKeyService(db)
	if err := svc.Revoke(context.Background(), "key-404", "user-1"); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("Revoke() error = %v, want ErrAPIKeyNotFound", err)
	}
}
