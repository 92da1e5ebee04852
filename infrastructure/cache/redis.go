package cache

import (
	"context"
	"fmt"
	"time"

	"reelpipe/infrastructure/configuration"

	"github.com/redis/go-redis/v9"
)

// NewCache connects to Redis and verifies the connection.
func NewCache(ctx context.Context, cfg configuration.Redis) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}
