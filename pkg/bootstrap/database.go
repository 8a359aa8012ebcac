package bootstrap

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"sitewatch/pkg/retry"
)

// InitRedis connects to the configured Redis, retrying the initial ping with
// backoff.
func (b *Base) InitRedis(ctx context.Context, policy retry.Policy) (*redis.Client, error) {
	cfg := b.Config.Database.Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}, func(attempt int, err error, next time.Duration) {
		b.Logger.WarnwCtx(ctx, "Redis not ready, retrying",
			"attempt", attempt,
			"next_retry", next,
			"error", err,
		)
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	b.Logger.Info("Redis connected successfully")
	b.Redis = rdb
	return rdb, nil
}
