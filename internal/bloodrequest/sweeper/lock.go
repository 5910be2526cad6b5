package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker grants at most one holder the right to sweep at a time.
// TryLock never blocks: acquired is false when someone else holds the lock.
type Locker interface {
	TryLock(ctx context.Context, ttl time.Duration) (unlock func(context.Context) error, acquired bool, err error)
}

const defaultLockKey = "hemogrid:sweeper:lock"

// releaseScript deletes the key only if it still holds our token, so a
// holder whose TTL lapsed never releases a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker coordinates sweeps across processes sharing one Redis.
type RedisLocker struct {
	client *redis.Client
	key    string
}

type RedisLockerOption func(*RedisLocker)

// WithLockKey overrides the Redis key holding the lock.
func WithLockKey(key string) RedisLockerOption {
	return func(l *RedisLocker) {
		if key != "" {
			l.key = key
		}
	}
}

func NewRedisLocker(client *redis.Client, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{client: client, key: defaultLockKey}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// TryLock sets the key with SET NX PX and a random token.
func (l *RedisLocker) TryLock(ctx context.Context, ttl time.Duration) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	unlock := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("release sweep lock: %w", err)
		}
		return nil
	}
	return unlock, true, nil
}

// LocalLocker is the single-process fallback when Redis is not configured.
// The TTL is ignored; the lock is held until unlock.
type LocalLocker struct {
	mu sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{}
}

func (l *LocalLocker) TryLock(context.Context, time.Duration) (func(context.Context) error, bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return func(context.Context) error {
		l.mu.Unlock()
		return nil
	}, true, nil
}
