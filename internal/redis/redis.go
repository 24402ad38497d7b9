// Package redis owns the shared Redis connection used by the per-session
// rate limiter.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"storebot/internal/config"
	"storebot/pkg/log"
)

var (
	Client *redis.Client
)

// ErrNotInitialized is returned by Health before Init.
var ErrNotInitialized = errors.New("redis client not initialized")

// Init connects to Redis and pings it. On failure Client stays nil.
func Init(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}

	Client = client
	log.WithField("addr", client.Options().Addr).Info("Redis connected successfully")
	return client, nil
}

// Close closes the Redis client connection.
func Close() error {
	if Client == nil {
		return nil
	}
	err := Client.Close()
	Client = nil
	return err
}

// GetClient returns the Redis client instance.
func GetClient() *redis.Client {
	return Client
}

// Health pings Redis.
func Health(ctx context.Context) error {
	if Client == nil {
		return ErrNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return Client.Ping(ctx).Err()
}
