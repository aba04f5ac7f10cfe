package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker guards a sweep across processes. Acquire reports ok=false when
// another holder owns the lock; release must be called once when ok is true.
type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

// RedisLocker is a single-key lease lock: SET NX PX to take it, and a
// compare-and-delete script to give it back only if we still own it. The TTL
// bounds how long a crashed holder blocks other instances.
type RedisLocker struct {
	rdb redis.UniversalClient
	key string
	ttl time.Duration
}

// NewRedisLocker creates a lease lock on key.
func NewRedisLocker(rdb redis.UniversalClient, key string, ttl time.Duration) (*RedisLocker, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if key == "" {
		return nil, fmt.Errorf("lock key is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be > 0")
	}
	return &RedisLocker{rdb: rdb, key: key, ttl: ttl}, nil
}

var releaseScript = redis.NewScript(`
-- KEYS[1] = lock key
-- ARGV[1] = owner token
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Acquire tries to take the lease without waiting.
func (l *RedisLocker) Acquire(ctx context.Context) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("release sweep lock: %w", err)
		}
		return nil
	}
	return release, true, nil
}

// RedisOptions holds connection settings for OpenRedis.
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	PingTimeout time.Duration
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 2 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}
