package cache

import (
	"context"
	"fmt"
	"time"

	"evently-waitlist/internal/shared/config"

	"github.com/redis/go-redis/v9"
)

// Connect opens a Redis client and verifies it with a ping
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	address := cfg.Addr
	if address == "" {
		address = cfg.Host + ":" + cfg.Port
	}
	if address == ":" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", address, err)
	}

	return client, nil
}
