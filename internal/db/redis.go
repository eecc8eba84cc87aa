package db

import (
	"context"
	"time"

	"backend-runshare/internal/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns nil when REDIS_ADDR is empty; the hub then stays
// local and drafts are kept in memory.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

// PingRedis reports whether the configured redis answers within two seconds.
func PingRedis(client *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}
