package security

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window request counter backed by Redis. A Redis
// failure fails open: throttling is protection, not a correctness
// invariant.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
	}
}

// Allow reports whether one more request is permitted for id within the
// named bucket's current window.
func (r *RateLimiter) Allow(ctx context.Context, bucket, id string) bool {
	key := fmt.Sprintf("ratelimit:%s:%s", bucket, id)

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		r.redis.Expire(ctx, key, r.window)
	}

	return count <= int64(r.limit)
}
