package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// unlockScript deletes the key only while it still holds our token, so a lock
// that expired and was taken by another instance is left alone.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// RedisLocker coordinates transfers across service instances with
// SET NX EX locks.
type RedisLocker struct {
	client        *redis.Client
	prefix        string
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
	logger        *slog.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	return &RedisLocker{
		client:        client,
		prefix:        "bank:lock:account:",
		ttl:           ttl,
		retryInterval: 50 * time.Millisecond,
		maxRetries:    100,
		logger:        logger,
	}
}

// NewRedisClient connects and pings, failing fast on a bad address.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	token := uuid.NewString()
	held := make([]string, 0, len(keys))

	release := func() {
		// Release even if the request context is already done
		ctx := context.WithoutCancel(ctx)
		for i := len(held) - 1; i >= 0; i-- {
			if err := l.client.Eval(ctx, unlockScript, []string{held[i]}, token).Err(); err != nil {
				l.logger.Error("Failed to release lock", "key", held[i], "error", err)
			}
		}
	}

	for _, key := range normalize(keys) {
		redisKey := l.prefix + key
		if err := l.lock(ctx, redisKey, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, redisKey)
	}

	return release, nil
}

func (l *RedisLocker) lock(ctx context.Context, key, token string) error {
	for i := 0; i < l.maxRetries; i++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}

	l.logger.Warn("Lock busy", "key", key, "retries", l.maxRetries)
	return fmt.Errorf("%w: %s", ErrLockFailed, key)
}
