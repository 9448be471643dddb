package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Store persists sessions between chat updates. Load returns an Idle session
// for users without one.
type Store interface {
	Load(ctx context.Context, userID int64) (Session, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context, userID int64) error
}

// DefaultIdleTTL expires a session that saw no input for this long.
const DefaultIdleTTL = 30 * time.Minute

const keyPrefix = "genbot:session:"

func key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

// RedisClient is the subset of go-redis commands the store needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps sessions as JSON under a per-user key whose TTL is
// refreshed on every save.
type RedisStore struct {
	client RedisClient
	ttl    time.Duration
}

func NewRedisStore(client RedisClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Load(ctx context.Context, userID int64) (Session, error) {
	raw, err := r.client.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{UserID: userID, State: StateIdle}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: load: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("session: decode: %w", err)
	}
	return s, nil
}

func (r *RedisStore) Save(ctx context.Context, s Session) error {
	if s.IsIdle() {
		return r.Clear(ctx, s.UserID)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := r.client.Set(ctx, key(s.UserID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

// MemoryStore is a process-local Store with the same idle expiry semantics.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[int64]memoryEntry
	now      func() time.Time
}

type memoryEntry struct {
	session Session
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &MemoryStore{ttl: ttl, sessions: make(map[int64]memoryEntry), now: time.Now}
}

func (m *MemoryStore) Load(_ context.Context, userID int64) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[userID]
	if !ok || !m.now().Before(entry.expires) {
		delete(m.sessions, userID)
		return Session{UserID: userID, State: StateIdle}, nil
	}
	return entry.session, nil
}

func (m *MemoryStore) Save(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.IsIdle() {
		delete(m.sessions, s.UserID)
		return nil
	}
	m.sessions[s.UserID] = memoryEntry{session: s, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
