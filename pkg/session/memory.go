package session

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore keeps sessions in an in-process expirable LRU. The cache
// carries a single ttl fixed at construction; per-call ttls shorter or
// longer than it are not honored beyond resetting the entry's clock.
// Suitable for single-instance deployments and tests.
type MemoryStore struct {
	cache *expirable.LRU[string, *Session]
}

// NewMemoryStore creates an in-memory session store holding at most size
// entries, each expiring ttl after its last write.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: expirable.NewLRU[string, *Session](size, nil, ttl),
	}
}

// Get retrieves a session by id
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	sess, ok := s.cache.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Set stores a session. The entry expires per the store's ttl.
func (s *MemoryStore) Set(_ context.Context, sess *Session, _ time.Duration) error {
	s.cache.Add(sess.ID, sess)
	return nil
}

// Expire resets the entry's expiry clock by rewriting it
func (s *MemoryStore) Expire(_ context.Context, id string, _ time.Duration) error {
	sess, ok := s.cache.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.cache.Add(id, sess)
	return nil
}

// Delete removes a session
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Remove(id)
	return nil
}
