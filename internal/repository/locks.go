package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefLock is a per-reference processing lock in Redis. It closes the
// race between the webhook path and a simultaneous manual verify on
// the same reference; durable idempotency still comes from the
// transactions unique index, so the TTL only has to outlive a single
// reconcile attempt.
type RefLock struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRefLock(rdb *redis.Client) *RefLock {
	return &RefLock{rdb: rdb, ttl: 2 * time.Minute}
}

func lockKey(reference string) string {
	return fmt.Sprintf("reconcile:%s", reference)
}

// Acquire returns false if another worker holds the reference.
func (l *RefLock) Acquire(ctx context.Context, reference string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, lockKey(reference), "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	return ok, nil
}

func (l *RefLock) Release(ctx context.Context, reference string) error {
	return l.rdb.Del(ctx, lockKey(reference)).Err()
}
