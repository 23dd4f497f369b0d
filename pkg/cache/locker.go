package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned by TryLock when another holder owns the key.
var ErrLockHeld = errors.New("lock is held by another owner")

// Lock is a held exclusive lock. Release is a no-op once the lock expired
// or was taken over.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out short-lived exclusive locks keyed by name.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// ==================== Redis ====================

// deletes the key only while it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return &redisLock{client: l.client, key: key, token: token}, nil
}

type redisLock struct {
	client *redis.Client
	key    string
	token  string
}

func (l *redisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}

// ==================== In-process ====================

// LocalLocker is the single-instance fallback used when Redis is not
// configured.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localEntry
	clock func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held:  make(map[string]localEntry),
		clock: time.Now,
	}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, ErrLockHeld
	}

	token := uuid.NewString()
	l.held[key] = localEntry{token: token, expires: now.Add(ttl)}

	return &localLock{owner: l, key: key, token: token}, nil
}

type localLock struct {
	owner *LocalLocker
	key   string
	token string
}

func (l *localLock) Release(context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()

	if e, ok := l.owner.held[l.key]; ok && e.token == l.token {
		delete(l.owner.held, l.key)
	}
	return nil
}
