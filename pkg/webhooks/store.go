package webhooks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store handles webhook and delivery log persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new webhook store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const webhookColumns = `id, name, url, secret, events, headers, retry_count, timeout_ms,
	is_active, created_by, success_count, failure_count, last_triggered, created_at, updated_at`

// Create registers a webhook. Settings are clamped and a signing secret
// is generated when none is supplied.
func (s *Store) Create(ctx context.Context, hook *Webhook) error {
	if hook.URL == "" {
		return fmt.Errorf("webhook url is required")
	}
	if len(hook.Events) == 0 {
		return ErrNoEvents
	}
	hook.Normalize()

	if hook.Secret == "" {
		secret, err := GenerateSecret()
		if err != nil {
			return fmt.Errorf("failed to generate secret: %w", err)
		}
		hook.Secret = secret
	}

	now := time.Now()
	hook.ID = uuid.NewString()
	hook.Active = true
	hook.CreatedAt = now
	hook.UpdatedAt = now

	headers, err := json.Marshal(hook.Headers)
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO webhooks (id, name, url, secret, events, headers, retry_count, timeout_ms,
			is_active, created_by, success_count, failure_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, 0, $11, $12)
	`, hook.ID, hook.Name, hook.URL, hook.Secret, pq.Array(hook.Events), headers,
		hook.RetryCount, hook.Timeout.Milliseconds(), hook.Active, hook.CreatedBy,
		hook.CreatedAt, hook.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	return nil
}

// Get retrieves a webhook by id
func (s *Store) Get(ctx context.Context, id string) (*Webhook, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id)
	return scanWebhook(row)
}

// List returns all webhooks, newest first
func (s *Store) List(ctx context.Context) ([]Webhook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+webhookColumns+` FROM webhooks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()
	return collectWebhooks(rows)
}

// ListForEvent returns active webhooks subscribed to the event
func (s *Store) ListForEvent(ctx context.Context, event string) ([]Webhook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE is_active = TRUE AND $1 = ANY(events)`,
		event)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks for event: %w", err)
	}
	defer rows.Close()
	return collectWebhooks(rows)
}

// Update replaces the mutable fields of a webhook
func (s *Store) Update(ctx context.Context, hook *Webhook) error {
	if len(hook.Events) == 0 {
		return ErrNoEvents
	}
	hook.Normalize()

	headers, err := json.Marshal(hook.Headers)
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE webhooks
		SET name = $2, url = $3, events = $4, headers = $5, retry_count = $6,
			timeout_ms = $7, is_active = $8, updated_at = $9
		WHERE id = $1
	`, hook.ID, hook.Name, hook.URL, pq.Array(hook.Events), headers,
		hook.RetryCount, hook.Timeout.Milliseconds(), hook.Active, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	return requireRow(res)
}

// Delete removes a webhook and its logs
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return requireRow(res)
}

// RecordOutcome stamps the trigger time and bumps exactly one counter.
// Called once per trigger, not per attempt.
func (s *Store) RecordOutcome(ctx context.Context, webhookID string, success bool, at time.Time) error {
	column := "failure_count"
	if success {
		column = "success_count"
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE webhooks SET `+column+` = `+column+` + 1, last_triggered = $2, updated_at = $2 WHERE id = $1`,
		webhookID, at)
	if err != nil {
		return fmt.Errorf("failed to record webhook outcome: %w", err)
	}
	return nil
}

// InsertLog appends one delivery attempt row
func (s *Store) InsertLog(ctx context.Context, log *Log) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_logs (id, webhook_id, event, payload, url, status_code,
			response_body, response_time_ms, success, error, attempt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, log.ID, log.WebhookID, log.Event, []byte(log.Payload), log.URL, log.StatusCode,
		log.ResponseBody, log.ResponseTime.Milliseconds(), log.Success, log.Error,
		log.Attempt, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert webhook log: %w", err)
	}
	return nil
}

// ListLogs returns recent delivery attempts for a webhook, newest first
func (s *Store) ListLogs(ctx context.Context, webhookID string, limit int) ([]Log, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, webhook_id, event, payload, url, status_code, response_body,
			response_time_ms, success, error, attempt, created_at
		FROM webhook_logs WHERE webhook_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, webhookID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook logs: %w", err)
	}
	defer rows.Close()

	var logs []Log
	for rows.Next() {
		var log Log
		var payload []byte
		var responseMs int64
		if err := rows.Scan(&log.ID, &log.WebhookID, &log.Event, &payload, &log.URL,
			&log.StatusCode, &log.ResponseBody, &responseMs, &log.Success, &log.Error,
			&log.Attempt, &log.CreatedAt); err != nil {
			return nil, err
		}
		log.Payload = payload
		log.ResponseTime = time.Duration(responseMs) * time.Millisecond
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// PurgeLogsOlderThan drops delivery logs past the retention window and
// returns the number of rows removed
func (s *Store) PurgeLogsOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM webhook_logs WHERE created_at < $1`, time.Now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("failed to purge webhook logs: %w", err)
	}
	return res.RowsAffected()
}

func scanWebhook(row *sql.Row) (*Webhook, error) {
	var hook Webhook
	var headers []byte
	var timeoutMs int64
	err := row.Scan(&hook.ID, &hook.Name, &hook.URL, &hook.Secret, pq.Array(&hook.Events),
		&headers, &hook.RetryCount, &timeoutMs, &hook.Active, &hook.CreatedBy,
		&hook.SuccessCount, &hook.FailureCount, &hook.LastTriggered,
		&hook.CreatedAt, &hook.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrWebhookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	hook.Timeout = time.Duration(timeoutMs) * time.Millisecond
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &hook.Headers); err != nil {
			return nil, fmt.Errorf("failed to decode headers: %w", err)
		}
	}
	return &hook, nil
}

func collectWebhooks(rows *sql.Rows) ([]Webhook, error) {
	var hooks []Webhook
	for rows.Next() {
		var hook Webhook
		var headers []byte
		var timeoutMs int64
		if err := rows.Scan(&hook.ID, &hook.Name, &hook.URL, &hook.Secret, pq.Array(&hook.Events),
			&headers, &hook.RetryCount, &timeoutMs, &hook.Active, &hook.CreatedBy,
			&hook.SuccessCount, &hook.FailureCount, &hook.LastTriggered,
			&hook.CreatedAt, &hook.UpdatedAt); err != nil {
			return nil, err
		}
		hook.Timeout = time.Duration(timeoutMs) * time.Millisecond
		if len(headers) > 0 {
			if err := json.Unmarshal(headers, &hook.Headers); err != nil {
				return nil, fmt.Errorf("failed to decode headers: %w", err)
			}
		}
		hooks = append(hooks, hook)
	}
	return hooks, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrWebhookNotFound
	}
	return nil
}
