package webhooks

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestStoreCreate(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO webhooks`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	hook := &Webhook{
		Name:       "audit sink",
		URL:        "https://sink.example.com/hook",
		Events:     []string{EventUserConnected},
		RetryCount: 99,
		Timeout:    time.Minute,
	}
	if err := store.Create(context.Background(), hook); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// settings clamp and identity fields are filled on the way in
	if hook.RetryCount != MaxRetryCount {
		t.Errorf("retry count = %d, want clamped to %d", hook.RetryCount, MaxRetryCount)
	}
	if hook.Timeout != MaxTimeout {
		t.Errorf("timeout = %v, want clamped to %v", hook.Timeout, MaxTimeout)
	}
	if hook.ID == "" || hook.Secret == "" || !hook.Active {
		t.Errorf("unexpected webhook state: %+v", hook)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStoreCreateValidation(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.Create(context.Background(), &Webhook{Events: []string{EventTest}}); err == nil {
		t.Error("Create() without url should fail")
	}
	err := store.Create(context.Background(), &Webhook{URL: "https://x.example.com"})
	if !errors.Is(err, ErrNoEvents) {
		t.Errorf("Create() error = %v, want ErrNoEvents", err)
	}
}

func TestStoreRecordOutcome(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE webhooks SET success_count = success_count + 1`)).
		WithArgs("hook-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE webhooks SET failure_count = failure_count + 1`)).
		WithArgs("hook-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.RecordOutcome(context.Background(), "hook-1", true, time.Now()); err != nil {
		t.Fatalf("RecordOutcome(success) error = %v", err)
	}
	if err := store.RecordOutcome(context.Background(), "hook-1", false, time.Now()); err != nil {
		t.Fatalf("RecordOutcome(failure) error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStoreInsertLog(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO webhook_logs`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	log := &Log{
		WebhookID:    "hook-1",
		Event:        EventUserConnected,
		URL:          "https://sink.example.com/hook",
		StatusCode:   200,
		ResponseTime: 120 * time.Millisecond,
		Success:      true,
		Attempt:      1,
	}
	if err := store.InsertLog(context.Background(), log); err != nil {
		t.Fatalf("InsertLog() error = %v", err)
	}
	if log.ID == "" || log.CreatedAt.IsZero() {
		t.Error("InsertLog() should fill id and timestamp")
	}
}

func TestStorePurgeLogsOlderThan(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM webhook_logs WHERE created_at < $1`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 42))

	n, err := store.PurgeLogsOlderThan(context.Background(), 30*24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeLogsOlderThan() error = %v", err)
	}
	if n != 42 {
		t.Errorf("purged = %d, want 42", n)
	}
}

func TestStoreDeleteMissing(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM webhooks WHERE id = $1`)).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Delete(context.Background(), "missing"); !errors.Is(err, ErrWebhookNotFound) {
		t.Errorf("Delete() error = %v, want ErrWebhookNotFound", err)
	}
}
