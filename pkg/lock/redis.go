package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// DefaultTTL bounds how long a crashed holder can keep a key
	DefaultTTL = 30 * time.Minute

	keyPrefix      = "cleandoc:lock:"
	releaseTimeout = 5 * time.Second
)

var releaseScript = redis.NewScript(`
-- KEYS[1] = lock key
-- ARGV[1] = holder token
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisConfig controls the redis client of a RedisLocker
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	PingTimeout time.Duration
}

// RedisLocker shares the lock table between processes through Redis.
// Keys expire after the TTL so a crashed holder cannot block a tenant
// forever.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// OpenRedis creates a client and validates connectivity via PING
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 2 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// NewRedisLocker creates a locker on client. ttl <= 0 uses DefaultTTL.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{client: client, ttl: ttl, logger: log.WithComponent("lock")}
}

// TryAcquire implements Locker with SET NX PX and a random holder token
func (l *RedisLocker) TryAcquire(ctx context.Context, key string) (ReleaseFunc, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrLocked)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's context may already be cancelled
			rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := releaseScript.Run(rctx, l.client, []string{keyPrefix + key}, token).Err(); err != nil {
				l.logger.Warn().Err(err).Str("key", key).Msg("Failed to release lock")
			}
		})
	}, nil
}

// Held implements Locker
func (l *RedisLocker) Held(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping checks the redis connection
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the redis client
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
