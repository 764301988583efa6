package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type rateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// countAttempt bumps a fixed-window counter and reports whether the
// window's limit is now exceeded. The TTL starts on the first hit so
// a quiet key expires on its own.
func countAttempt(ctx context.Context, client rateCounter, key string, window time.Duration, limit int) (bool, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, window).Err()
	}
	return limit > 0 && count > int64(limit), nil
}
