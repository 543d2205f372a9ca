package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sawpanic/cryptorun/internal/tick"
)

// RedisL2 implements L2 on top of go-redis, storing each symbol's recent
// ticks as a capped, TTL'd list of JSON-encoded tick.Tick values. Grounded
// on the teacher's RedisCacheManager (src/infrastructure/data/cache.go),
// which uses the same get/set-with-TTL shape for its CacheEntry wrapper,
// adapted here from a single-value GET/SET to a bounded LIST so Tail(n)
// can be served without re-fetching the whole history.
type RedisL2 struct {
	client *redis.Client
}

// NewRedisL2 wraps an already-configured *redis.Client.
func NewRedisL2(client *redis.Client) *RedisL2 {
	return &RedisL2{client: client}
}

func listKey(symbol tick.Symbol) string {
	return fmt.Sprintf("cryptorun:ticks:%s", symbol)
}

// PushTail appends t to the symbol's list, trims it to capL2 from the
// head, and refreshes the key's TTL. All three operations run in a single
// pipeline so a crash mid-write can't leave the TTL unset.
func (r *RedisL2) PushTail(ctx context.Context, symbol tick.Symbol, t tick.Tick, capL2 int, ttl time.Duration) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("cache: marshal tick: %w", err)
	}

	key := listKey(symbol)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, int64(-capL2), -1)
	pipe.Expire(ctx, key, ttl)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("cache: redis pipeline: %w", err)
	}
	return nil
}

// Tail returns up to n most recent ticks for symbol, chronological.
func (r *RedisL2) Tail(ctx context.Context, symbol tick.Symbol, n int) ([]tick.Tick, bool, error) {
	key := listKey(symbol)
	raw, err := r.client.LRange(ctx, key, int64(-n), -1).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: redis lrange: %w", err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}

	out := make([]tick.Tick, 0, len(raw))
	for _, s := range raw {
		var t tick.Tick
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, false, fmt.Errorf("cache: unmarshal tick: %w", err)
		}
		out = append(out, t)
	}
	return out, true, nil
}
