package concurrency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// CycleLock serializes dispatch cycles across processes using a Redis
// key. A cron that fires while the previous invocation still runs skips
// its cycle instead of sharing the batch.
type CycleLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewCycleLock constructs a cycle lock.
func NewCycleLock(client *redis.Client, key string, ttl time.Duration) *CycleLock {
	if key == "" {
		key = "dialer:dispatch:lock"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CycleLock{client: client, key: key, ttl: ttl}
}

// Acquire attempts to take the lock. The returned release function only
// deletes the key while this holder's token is still in place, so an
// expired lock taken over by a later cycle is never released by accident.
func (l *CycleLock) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("cycle lock: acquire: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		script := redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)
		_, _ = script.Run(context.Background(), l.client, []string{l.key}, token).Int()
	}
	return release, true, nil
}
