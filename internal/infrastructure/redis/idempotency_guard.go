package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultGuardTTL = 30 * time.Second

// IdempotencyGuard marks an idempotency key as in flight. The TTL frees keys of crashed holders.
type IdempotencyGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewIdempotencyGuard(client redis.UniversalClient, ttl time.Duration) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	return &IdempotencyGuard{client: client, ttl: ttl}
}

func (g *IdempotencyGuard) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, guardKey(key), time.Now().UTC().Format(time.RFC3339Nano), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

func (g *IdempotencyGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, guardKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func guardKey(key string) string {
	return "idempotency:" + key
}
