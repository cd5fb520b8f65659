package db

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/notifyhub/workitems/internal/config"
)

// ConnectRedis opens the client backing the durable notification queue
// and verifies connectivity.
func ConnectRedis(ctx context.Context, cfg config.QueueEnv) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}
