package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

func TestShutdownRunsRegisteredFuncs(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)
	sm := NewShutdownManager(logger, time.Second)

	var calls int32
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected 2 shutdown calls, got %d", got)
	}
}

func TestShutdownReportsFirstError(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)
	sm := NewShutdownManager(logger, time.Second)

	boom := errors.New("boom")
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return boom })
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return nil })

	if err := sm.Shutdown(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
}

func TestShutdownDrainsServer(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)

	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	sm := NewShutdownManager(logger, time.Second, server)

	// Shutdown on a never-started server returns immediately
	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestShutdownDefaultTimeout(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)
	sm := NewShutdownManager(logger, 0)
	if sm.shutdownTimeout != 30*time.Second {
		t.Errorf("expected 30s default, got %v", sm.shutdownTimeout)
	}
}
