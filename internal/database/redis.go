package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/prudhvinik1/syncengine/internal/logger"
)

func NewRedisClient(ctx context.Context, redisURL string, log *logger.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error pinging redis: %w", err)
	}

	log.Info().Str("func", "NewRedisClient").Str("addr", opts.Addr).Msg("redis client created successfully")

	return client, nil
}
