// Package rediscache holds the Redis-backed cart cache and idempotency guard.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/redis/go-redis/v9"
)

const DefaultCartTTL = 15 * time.Minute

// generationTTL outlives any cart entry so a fill cannot observe a generation that expired and restarted.
const generationTTL = 24 * time.Hour

// fillScript writes the entry only while the generation key still holds the value the reader saw.
var fillScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// CartCache stores carts as JSON under "cart:{userID}" next to a per-user generation counter
// under "cart:{userID}:gen". The hash tag keeps both keys in one cluster slot.
type CartCache struct {
	client  redis.UniversalClient
	baseTTL time.Duration
}

func NewCartCache(client redis.UniversalClient, baseTTL time.Duration) *CartCache {
	if baseTTL <= 0 {
		baseTTL = DefaultCartTTL
	}
	return &CartCache{client: client, baseTTL: baseTTL}
}

func (c *CartCache) Get(ctx context.Context, userID string) (*cart.Cart, int64, error) {
	vals, err := c.client.MGet(ctx, cartKey(userID), generationKey(userID)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis mget failed: %w", err)
	}

	var generation int64
	if raw, ok := vals[1].(string); ok {
		if generation, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, 0, fmt.Errorf("corrupt cart generation %q: %w", raw, err)
		}
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, generation, cart.ErrCacheMiss
	}
	var ct cart.Cart
	if err := json.Unmarshal([]byte(raw), &ct); err != nil {
		return nil, 0, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &ct, generation, nil
}

// Fill stores the cart with the base TTL plus up to five minutes of jitter, unless the
// generation moved past generation since the caller read it.
func (c *CartCache) Fill(ctx context.Context, ct *cart.Cart, generation int64) error {
	data, err := json.Marshal(ct)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := c.baseTTL + time.Duration(rand.Intn(5))*time.Minute
	keys := []string{cartKey(ct.UserID), generationKey(ct.UserID)}
	if err := fillScript.Run(ctx, c.client, keys, generation, data, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis fill failed: %w", err)
	}
	return nil
}

func (c *CartCache) Invalidate(ctx context.Context, userID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(userID))
		pipe.Expire(ctx, generationKey(userID), generationTTL)
		pipe.Del(ctx, cartKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

func cartKey(userID string) string {
	return fmt.Sprintf("cart:{%s}", userID)
}

func generationKey(userID string) string {
	return fmt.Sprintf("cart:{%s}:gen", userID)
}
