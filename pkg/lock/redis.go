package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "fleetbook:lock:"

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
}

func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return &redisLocker{client: client, ttl: ttl, wait: wait}
}

func (l *redisLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	fullKey := redisKeyPrefix + key
	token := uuid.NewString()

	return acquireWithin(ctx, l.wait, func(ctx context.Context) (Lease, bool, error) {
		acquired, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			return nil, false, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if !acquired {
			return nil, false, nil
		}
		return &redisLease{client: l.client, key: fullKey, token: token}, true, nil
	})
}

func (l *redisLease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
