package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wingtsun-academy/progression-engine/pkg/circuitbreaker"
	"github.com/wingtsun-academy/progression-engine/pkg/logger"
)

// ErrLockTimeout is returned when a lock could not be acquired before the
// context ended.
var ErrLockTimeout = errors.New("lock: acquisition timed out")

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a single-instance Redis lock (SET NX PX plus token-checked
// release). It serializes schedule extension across API instances.
//
// The lock is advisory: callers also hold a row lock on the schedule. When
// Redis fails or the breaker is open, Lock logs a warning and returns a no-op
// release instead of an error.
type Locker struct {
	cache   *Cache
	ttl     time.Duration
	backoff time.Duration
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

// NewLocker creates a Locker. A zero ttl uses TTLDistributedLock. breaker
// may be nil.
func NewLocker(cache *Cache, ttl time.Duration, breaker *circuitbreaker.CircuitBreaker, log *logger.Logger) *Locker {
	if ttl <= 0 {
		ttl = TTLDistributedLock
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Locker{
		cache:   cache,
		ttl:     ttl,
		backoff: 50 * time.Millisecond,
		breaker: breaker,
		log:     log.With(logger.Component("redis_locker")),
	}
}

// Lock blocks until resource is held or ctx ends.
func (l *Locker) Lock(ctx context.Context, resource string) (func(), error) {
	key := LockKey(resource)
	token := uuid.NewString()

	ticker := time.NewTicker(l.backoff)
	defer ticker.Stop()

	for {
		ok, err := l.acquire(ctx, key, token)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, errors.Join(ErrLockTimeout, ctxErr)
			}
			l.log.Warn("lock unavailable, continuing without it",
				logger.String("key", key), logger.Err(err))
			return func() {}, nil
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Locker) acquire(ctx context.Context, key, token string) (bool, error) {
	if l.breaker == nil {
		return l.cache.SetNX(ctx, key, token, l.ttl)
	}
	var ok bool
	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		ok, err = l.cache.SetNX(ctx, key, token, l.ttl)
		return err
	})
	return ok, err
}

func (l *Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.cache.client, []string{key}, token).Err(); err != nil {
		l.log.Warn("failed to release lock", logger.String("key", key), logger.Err(err))
	}
}
