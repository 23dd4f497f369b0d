package cache

import (
	"context"
	"fmt"
	"time"

	"isp-portal/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, config utils.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", config.Addr, err)
	}

	return client, nil
}
