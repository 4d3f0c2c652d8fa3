package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/checkfox/leadroute/internal/logger"
	"github.com/checkfox/leadroute/internal/models"
)

// RateLimiter bounds how many submissions a source may make per minute.
type RateLimiter interface {
	// Allow reports whether the source may submit another lead right now.
	Allow(ctx context.Context, source *models.Source) (bool, error)
}

// redisRateLimiter counts submissions in Redis using one key per source
// per minute window. A limit of zero means the source is not throttled.
type redisRateLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRateLimiter creates a rate limiter backed by the given Redis client.
func NewRedisRateLimiter(client *redis.Client) RateLimiter {
	return &redisRateLimiter{
		client: client,
		now:    time.Now,
	}
}

func (r *redisRateLimiter) Allow(ctx context.Context, source *models.Source) (bool, error) {
	limit := source.Config.RateLimit
	if limit <= 0 {
		return true, nil
	}

	window := r.now().UTC().Format("200601021504")
	key := fmt.Sprintf("ratelimit:src:%s:%s", source.ID, window)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		// Fail open rather than dropping leads during a Redis outage.
		logger.Warn(ctx, "Rate limiter unavailable, allowing request",
			"source_id", source.ID,
			"error", err.Error())
		return true, nil
	}
	if count == 1 {
		// Window keys expire on their own so stale windows never accumulate.
		if err := r.client.Expire(ctx, key, 2*time.Minute).Err(); err != nil {
			logger.Warn(ctx, "Failed to set rate limit key expiry",
				"source_id", source.ID,
				"error", err.Error())
		}
	}

	return count <= int64(limit), nil
}
