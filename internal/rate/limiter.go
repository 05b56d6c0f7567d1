package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds refresh throttle tuning parameters.
type Config struct {
	Enabled  bool
	Prefix   string
	Max      int
	Cooldown time.Duration
}

// Limiter caps how often a single token family may rotate.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "gt"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckRefresh counts one refresh attempt for the family and fails once the
// window budget is exceeded.
func (l *Limiter) CheckRefresh(ctx context.Context, familyID string) error {
	if l == nil || !l.config.Enabled {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.refreshKey(familyID), l.config.Cooldown)
	if err != nil {
		return err
	}
	if count > int64(l.config.Max) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) refreshKey(familyID string) string {
	return l.config.Prefix + ":rl:" + familyID
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
