package lock

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Locker grants short-lived exclusive tokens. Release only succeeds for the
// token that acquired the key, so an expired lock cannot be freed by its old owner.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// GenerationKey is the per-user lock guarding a running generation.
func GenerationKey(userID int64) string {
	return "genbot:generation:" + strconv.FormatInt(userID, 10)
}

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type RedisLocker struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	if client == nil {
		return nil
	}
	return &RedisLocker{client: client, script: redis.NewScript(releaseScript)}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if err := validate(key, ttl); err != nil {
		return "", false, err
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

// MemoryLocker is a process-local Locker used when Redis is not configured.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]memoryLock
	now  func() time.Time
}

type memoryLock struct {
	token   string
	expires time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryLock), now: time.Now}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := validate(key, ttl); err != nil {
		return "", false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = memoryLock{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.held[key]; ok && cur.token == token {
		delete(l.held, key)
	}
	return nil
}

func validate(key string, ttl time.Duration) error {
	if key == "" {
		return errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return errors.New("lock ttl must be positive")
	}
	return nil
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = (*MemoryLocker)(nil)
)
