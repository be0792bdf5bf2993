package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/gateway/pkg/observability"
)

// DBLogger persists audit events to Postgres. Writes are buffered
// through a channel and flushed by a background worker so the request
// path never waits on an audit insert.
type DBLogger struct {
	db     *sql.DB
	logger *observability.Logger

	events chan *Event
	done   chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewDBLogger creates a database audit logger and starts its writer
func NewDBLogger(db *sql.DB, logger *observability.Logger, bufferSize int) *DBLogger {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	l := &DBLogger{
		db:     db,
		logger: logger,
		events: make(chan *Event, bufferSize),
		done:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// Log enqueues an event. A full buffer drops the event rather than
// blocking the request; the drop itself is logged.
func (l *DBLogger) Log(_ context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case l.events <- event:
		return nil
	case <-l.done:
		return fmt.Errorf("audit logger closed")
	default:
		l.logger.WithField("event_type", string(event.Type)).Warn("audit buffer full, event dropped")
		return fmt.Errorf("audit buffer full")
	}
}

func (l *DBLogger) run() {
	defer l.wg.Done()
	for {
		select {
		case event := <-l.events:
			l.write(event)
		case <-l.done:
			// drain what is already queued
			for {
				select {
				case event := <-l.events:
					l.write(event)
				default:
					return
				}
			}
		}
	}
}

func (l *DBLogger) write(event *Event) {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		metadata = []byte("{}")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO audit_events (timestamp, event_type, status, user_id, target_id,
			ip_address, user_agent, request_id, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, event.Timestamp, event.Type, event.Status, event.UserID, event.TargetID,
		event.IPAddress, event.UserAgent, event.RequestID, event.Message, metadata)
	if err != nil {
		l.logger.WithError(err).Error("failed to write audit event")
	}
}

// Search returns events matching the filter, newest first
func (l *DBLogger) Search(ctx context.Context, filter Filter) ([]Event, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT id, timestamp, event_type, status, user_id, target_id,
			ip_address, user_agent, request_id, message, metadata
		FROM audit_events WHERE 1=1`)

	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.StartTime != nil {
		query.WriteString(" AND timestamp >= " + arg(*filter.StartTime))
	}
	if filter.EndTime != nil {
		query.WriteString(" AND timestamp <= " + arg(*filter.EndTime))
	}
	if filter.UserID != "" {
		query.WriteString(" AND user_id = " + arg(filter.UserID))
	}
	if filter.Status != nil {
		query.WriteString(" AND status = " + arg(string(*filter.Status)))
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = arg(string(t))
		}
		query.WriteString(" AND event_type IN (" + strings.Join(placeholders, ", ") + ")")
	}

	query.WriteString(" ORDER BY timestamp DESC")
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query.WriteString(" LIMIT " + arg(limit))
	if filter.Offset > 0 {
		query.WriteString(" OFFSET " + arg(filter.Offset))
	}

	rows, err := l.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var metadata []byte
		if err := rows.Scan(&event.ID, &event.Timestamp, &event.Type, &event.Status,
			&event.UserID, &event.TargetID, &event.IPAddress, &event.UserAgent,
			&event.RequestID, &event.Message, &metadata); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &event.Metadata)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// PurgeOlderThan removes events past the retention window
func (l *DBLogger) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM audit_events WHERE timestamp < $1`, time.Now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit events: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the writer after draining queued events
func (l *DBLogger) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	l.wg.Wait()
	return nil
}
