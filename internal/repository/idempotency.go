package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyRepository remembers which order a client-supplied
// Idempotency-Key produced.
type IdempotencyRepository interface {
	Lookup(ctx context.Context, key string) (uint, bool, error)
	Remember(ctx context.Context, key string, orderID uint, ttl time.Duration) error
}

type idempotencyRepoImpl struct {
	rdb *redis.Client
}

func NewIdempotencyRepository(rdb *redis.Client) IdempotencyRepository {
	return &idempotencyRepoImpl{rdb: rdb}
}

func (r *idempotencyRepoImpl) Lookup(ctx context.Context, key string) (uint, bool, error) {
	val, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency value %q: %w", val, err)
	}
	return uint(id), true, nil
}

// Remember keeps the first order stored for the key; later writes are ignored.
func (r *idempotencyRepoImpl) Remember(ctx context.Context, key string, orderID uint, ttl time.Duration) error {
	err := r.rdb.SetNX(ctx, key, strconv.FormatUint(uint64(orderID), 10), ttl).Err()
	if err != nil {
		return fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return nil
}
