package lock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisLockPrefix     = "ledger:account"
	defaultRedisLockExpiry     = 10 * time.Second
	defaultRedisLockTries      = 64
	defaultRedisLockRetryDelay = 25 * time.Millisecond
)

// ErrEmptyLockKey is returned when WithLock is called without a key.
var ErrEmptyLockKey = errors.New("lock key cannot be empty")

// RedisLockOptions tunes the redsync mutex created per call.
type RedisLockOptions struct {
	Prefix     string
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// RedisLocker serializes work on a key across processes using the RedLock algorithm.
type RedisLocker struct {
	rs   *redsync.Redsync
	opts RedisLockOptions
}

// NewRedisLocker builds a locker on top of an existing go-redis client.
func NewRedisLocker(client redis.UniversalClient, opts RedisLockOptions) *RedisLocker {
	opts.Prefix = strings.TrimSuffix(strings.TrimSpace(opts.Prefix), ":")
	if opts.Prefix == "" {
		opts.Prefix = defaultRedisLockPrefix
	}
	if opts.Expiry <= 0 {
		opts.Expiry = defaultRedisLockExpiry
	}
	if opts.Tries <= 0 {
		opts.Tries = defaultRedisLockTries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRedisLockRetryDelay
	}

	return &RedisLocker{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
	}
}

// WithLock implements Locker.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyLockKey
	}

	name := fmt.Sprintf("%s:%s", l.opts.Prefix, key)
	mutex := l.rs.NewMutex(name,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("acquire lock %s: %w", name, err)
	}
	defer func() {
		// Release even if the caller's context was cancelled meanwhile.
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil || !ok {
			log.Printf("level=warn component=lock msg=\"redis lock release failed\" key=%s released=%t err=%v", name, ok, err)
		}
	}()

	return fn(ctx)
}
