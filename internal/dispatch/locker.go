package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kestrelhq/callflow/pkg/logging"
)

const lockKey = "dispatch:cycle:lock"

// Locker serializes dispatch cycles across processes. Acquire returns
// ErrCycleInFlight when another invocation holds the lock.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// RedisLocker implements Locker with a SET NX PX lease. The TTL is the
// backstop against a crashed holder; a healthy holder releases early.
type RedisLocker struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a cycle locker with the given lease TTL.
func NewRedisLocker(redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *RedisLocker {
	if redisClient == nil {
		panic("dispatch: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisLocker{redis: redisClient, ttl: ttl, logger: logger}
}

// Acquire takes the cycle lease. The returned release func deletes the lease
// only while this holder's token is still current.
func (l *RedisLocker) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("dispatch: acquire cycle lock: %w", err)
	}
	if !ok {
		return nil, ErrCycleInFlight
	}

	release := func() {
		// Only delete our own lease. If the TTL already expired and another
		// holder took over, leave their lease alone.
		current, err := l.redis.Get(context.Background(), lockKey).Result()
		if err == redis.Nil {
			return
		}
		if err != nil {
			l.logger.Warn("dispatch: cycle lock release read failed", "error", err)
			return
		}
		if current != token {
			return
		}
		if err := l.redis.Del(context.Background(), lockKey).Err(); err != nil {
			l.logger.Warn("dispatch: cycle lock release failed", "error", err)
		}
	}
	return release, nil
}

// NoopLocker satisfies Locker for single-process deployments and tests.
type NoopLocker struct{}

var _ Locker = (*NoopLocker)(nil)

// Acquire always succeeds.
func (NoopLocker) Acquire(ctx context.Context) (func(), error) {
	return func() {}, nil
}
