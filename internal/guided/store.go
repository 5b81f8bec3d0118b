package guided

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrSessionNotFound covers both unknown and expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// Store abstracts session persistence so a single instance can run on
// an in-process map while multi-instance deployments share a redis
// backend, without touching the state-machine logic.
type Store interface {
	Put(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	session   *Session
	expiresAt time.Time
}

// MemoryStore is the single-instance store: a TTL-bounded map with a
// background sweeper.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	ticker   *time.Ticker
	done     chan struct{}
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl == 0 {
		ttl = 30 * time.Minute
	}

	s := &MemoryStore{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		ticker:   time.NewTicker(time.Minute),
		done:     make(chan struct{}),
	}

	go s.sweep()

	return s
}

func (s *MemoryStore) Put(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = memoryEntry{
		session:   session,
		expiresAt: time.Now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrSessionNotFound
	}
	return entry.session, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) sweep() {
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.C:
			now := time.Now()
			s.mu.Lock()
			for id, entry := range s.sessions {
				if now.After(entry.expiresAt) {
					delete(s.sessions, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *MemoryStore) Stop() {
	s.ticker.Stop()
	close(s.done)
}

// SessionBackend is the subset of the redis client the RedisStore
// needs.
type SessionBackend interface {
	SetSession(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error
	GetSession(ctx context.Context, sessionID string) ([]byte, bool, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// RedisStore shares sessions across instances; TTL expiry is delegated
// to redis.
type RedisStore struct {
	backend SessionBackend
	ttl     time.Duration
}

func NewRedisStore(backend SessionBackend, ttl time.Duration) *RedisStore {
	if ttl == 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{backend: backend, ttl: ttl}
}

func (s *RedisStore) Put(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.backend.SetSession(ctx, session.ID, data, s.ttl)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, found, err := s.backend.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSessionNotFound
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.backend.DeleteSession(ctx, id)
}
