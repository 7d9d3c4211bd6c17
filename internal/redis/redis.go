// Package redis opens the shared Redis client used for token revocation,
// rate limiting and webhook replay protection.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/replypilot/replypilot/internal/config"
)

const (
	connectAttempts = 5
	connectBackoff  = time.Second
	pingTimeout     = 2 * time.Second
)

// NewClient connects and pings, retrying a few times while the server comes up.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err = HealthCheck(ctx, client); err == nil {
			slog.Info("connected to Redis", "addr", cfg.Addr(), "db", cfg.DB)
			return client, nil
		}
		slog.Warn("redis not ready", "addr", cfg.Addr(), "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		case <-time.After(connectBackoff * time.Duration(attempt)):
		}
	}

	_ = client.Close()
	return nil, fmt.Errorf("pinging redis: %w", err)
}

// HealthCheck pings with a short deadline so readiness probes stay responsive.
func HealthCheck(ctx context.Context, client redis.Cmdable) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return client.Ping(ctx).Err()
}
