package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samueldng/cash-back-phone-link/pkg/logger"
	"github.com/samueldng/cash-back-phone-link/pkg/redis"
)

// releaseScript deletes the key only when it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

const (
	minPollDelay = 2 * time.Millisecond
	maxPollDelay = 50 * time.Millisecond
)

// RedisLocker is a Locker shared by every instance using the same Redis.
// A lock whose holder died expires after ttl.
type RedisLocker struct {
	adapter redis.RedisAdapter
	prefix  string
	ttl     time.Duration
}

func NewRedisLocker(adapter redis.RedisAdapter, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{adapter: adapter, prefix: prefix, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := l.prefix + key
	token := uuid.NewString()
	delay := minPollDelay

	for {
		ok, err := l.adapter.SetNX(ctx, lockKey, []byte(token), l.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxPollDelay {
			delay = maxPollDelay
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := l.release(lockKey, token); err != nil {
				logger.Warn("failed to release lock", "key", lockKey, "error", err)
			}
		})
	}, nil
}

func (l *RedisLocker) release(key, token string) error {
	// the caller's context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := l.adapter.Eval(ctx, releaseScript, []string{key}, token)
	if err != nil {
		return err
	}
	if n, ok := res.(int64); ok && n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
