/*
redis.go - Redis-backed run lock for the daily sweeps

PURPOSE:
  Several server replicas share one database and each runs the cron
  scheduler. RedisLock lets exactly one replica run a given job at a
  time: the first to SET NX the job's key wins, the others skip.

KEYS:
  <prefix>:<job>    value is a random token, expires after the TTL

  The TTL bounds how long a crashed holder blocks the job. Release only
  deletes the key while it still carries the holder's token, so a run
  that outlived its TTL cannot free a lock someone else now holds.

SEE ALSO:
  - api/scheduler.go: Guards each cron entry with a RunLock
  - app/app.go: Builds the client from DUES_REDIS_URL
*/
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// DefaultPrefix namespaces the lock keys.
const DefaultPrefix = "dues:lock"

// releaseScript deletes KEYS[1] only if it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock implements api.RunLock on a single Redis instance.
type RedisLock struct {
	client *redis.Client
	prefix string
}

// NewRedisLock wraps an existing client. An empty prefix means DefaultPrefix.
func NewRedisLock(client *redis.Client, prefix string) *RedisLock {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisLock{client: client, prefix: prefix}
}

// Dial parses a redis:// URL, connects and pings.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// TryLock takes the lock for name. ok is false when another holder has it,
// in which case unlock is nil.
func (l *RedisLock) TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func() error, ok bool, err error) {
	key := l.key(name)
	token := uuid.NewString()

	ok, err = l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	return func() error {
		// The run's context may be gone by now.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis release %s: %w", key, err)
		}
		return nil
	}, true, nil
}

// Holder reports whether name is currently locked and for how long.
func (l *RedisLock) Holder(ctx context.Context, name string) (locked bool, ttl time.Duration, err error) {
	ttl, err = l.client.PTTL(ctx, l.key(name)).Result()
	if err != nil {
		return false, 0, err
	}
	// PTTL is negative when the key is missing.
	return ttl > 0, ttl, nil
}

func (l *RedisLock) key(name string) string {
	return fmt.Sprintf("%s:%s", l.prefix, name)
}
