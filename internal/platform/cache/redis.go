package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// New creates a new Redis client.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// Locker hands out short-lived distributed locks backed by redis.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewLocker wraps the redis client. A nil client yields a no-op locker.
func NewLocker(client redis.UniversalClient, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if client == nil {
		return &Locker{ttl: ttl}
	}
	return &Locker{client: redislock.New(client), ttl: ttl}
}

// Acquire obtains key or fails with shared.ErrTransactionConflict when another
// holder owns it. The returned release func is safe to call once.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: lock %s held", shared.ErrTransactionConflict, key)
	}
	if err != nil {
		return nil, fmt.Errorf("platform/cache: obtain lock: %w", err)
	}
	return func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}, nil
}
