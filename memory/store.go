package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned when a session snapshot does not exist in a store.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists conversation snapshots outside of process memory so a
// session can survive restarts or be shared between instances.
type SessionStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, sessionID string) (Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

// RedisSessionStore is the hot store for live sessions. Snapshots are kept as
// JSON values under a key prefix and refresh their TTL on every save.
type RedisSessionStore struct {
	rdb       *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisSessionStore creates a Redis-backed session store. A zero ttl keeps
// snapshots forever.
func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisSessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSessionStore{
		rdb:       rdb,
		keyPrefix: "ragtutor:session:",
		ttl:       ttl,
		logger:    logger,
	}
}

func (s *RedisSessionStore) key(sessionID string) string {
	return s.keyPrefix + sessionID
}

// Save writes the snapshot and resets its expiry.
func (s *RedisSessionStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(snap.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	s.logger.Debug("session saved",
		zap.String("session_id", snap.SessionID),
		zap.Int("messages", len(snap.Messages)))
	return nil
}

// Load reads a snapshot back. Missing sessions return ErrSessionNotFound.
func (s *RedisSessionStore) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	data, err := s.rdb.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, ErrSessionNotFound
		}
		return Snapshot{}, fmt.Errorf("redis get: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return snap, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// InMemorySessionStore keeps snapshots in a map. It backs tests and
// single-process deployments that do not run Redis.
type InMemorySessionStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{snaps: make(map[string]Snapshot)}
}

func (s *InMemorySessionStore) Save(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.Messages = append([]Message(nil), snap.Messages...)
	s.snaps[snap.SessionID] = snap
	return nil
}

func (s *InMemorySessionStore) Load(_ context.Context, sessionID string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[sessionID]
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	snap.Messages = append([]Message(nil), snap.Messages...)
	return snap, nil
}

func (s *InMemorySessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, sessionID)
	return nil
}
