package audit

import (
	"context"
	"time"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records one audit event
	Log(ctx context.Context, event *Event) error

	// Search returns events matching the filter, newest first
	Search(ctx context.Context, filter Filter) ([]Event, error)

	// Close flushes and releases the logger
	Close() error
}

type contextKey string

const loggerKey contextKey = "audit_logger"

// WithLogger attaches an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the audit logger, or a no-op when none is set
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey).(Logger); ok {
		return logger
	}
	return NopLogger{}
}

// Record is a convenience helper building and logging an event in one
// call. Errors are swallowed; audit write failures must not break the
// request path, the DB logger reports them through its own logger.
func Record(ctx context.Context, logger Logger, eventType EventType, status Status, userID, message string) {
	if logger == nil {
		return
	}
	_ = logger.Log(ctx, &Event{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Status:    status,
		UserID:    userID,
		Message:   message,
	})
}

// NopLogger discards everything
type NopLogger struct{}

func (NopLogger) Log(context.Context, *Event) error               { return nil }
func (NopLogger) Search(context.Context, Filter) ([]Event, error) { return nil, nil }
func (NopLogger) Close() error                                    { return nil }
