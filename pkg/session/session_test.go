package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "session"), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	sess := &Session{
		ID:        "sess-1",
		UserID:    "user-1",
		Service:   "billing",
		IP:        "10.0.0.1",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := store.Set(ctx, sess, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UserID != "user-1" || got.Service != "billing" {
		t.Errorf("unexpected session: %+v", got)
	}
}

func TestRedisStoreMissing(t *testing.T) {
	store, _ := newRedisStore(t)

	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() error = %v, want ErrSessionNotFound", err)
	}
	if err := store.Expire(context.Background(), "nope", time.Minute); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expire() error = %v, want ErrSessionNotFound", err)
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	sess := &Session{ID: "sess-1", UserID: "user-1"}
	if err := store.Set(ctx, sess, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, "sess-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() after expiry error = %v, want ErrSessionNotFound", err)
	}
}

func TestRedisStoreDelete(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	sess := &Session{ID: "sess-1", UserID: "user-1"}
	if err := store.Set(ctx, sess, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "sess-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(16, time.Minute)
	ctx := context.Background()

	sess := &Session{ID: "sess-1", UserID: "user-1"}
	if err := store.Set(ctx, sess, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UserID != "user-1" {
		t.Errorf("user id = %q, want user-1", got.UserID)
	}

	if err := store.Expire(ctx, "sess-1", time.Minute); err != nil {
		t.Errorf("Expire() error = %v", err)
	}
	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "sess-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrSessionNotFound", err)
	}
}
