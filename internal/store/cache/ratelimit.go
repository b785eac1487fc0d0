// Package cache implements the internal/store.RateLimitStore interface
// against Redis, providing atomic fixed-window counters for the broadcast
// and collect rate limits (spec.md §4.5).
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hyphalmesh/substrate/internal/core"
)

// RateLimitStore is the Redis-backed internal/store.RateLimitStore
// implementation. Each window is a fixed bucket keyed by the window's start
// instant truncated to the window duration, so the count resets at each
// bucket boundary; it does not slide. Each bucket key expires on its own,
// so no separate sweep is needed.
type RateLimitStore struct {
	rdb *redis.Client
}

func NewRateLimitStore(rdb *redis.Client) *RateLimitStore {
	return &RateLimitStore{rdb: rdb}
}

// Incr increments the counter for the current window and returns the
// post-increment count plus the window's remaining TTL (the expiry is set
// only by the bucket's first increment). The key shape is
// rl:{tenant}:{key}:{endpoint}:{window}.
func (s *RateLimitStore) Incr(ctx context.Context, tenantID, key, endpoint string, window time.Duration) (int64, time.Duration, error) {
	bucket := time.Now().UTC().Truncate(window).Unix()
	redisKey := fmt.Sprintf("rl:%s:%s:%s:%d", tenantID, key, endpoint, bucket)

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, core.Wrap(core.CodeUnavailable, err, "incr rate limit counter %s", redisKey)
	}

	ttl, err := s.rdb.TTL(ctx, redisKey).Result()
	if err != nil {
		return 0, 0, core.Wrap(core.CodeUnavailable, err, "read ttl for %s", redisKey)
	}
	return incr.Val(), ttl, nil
}
