package repositories

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

// getTestRedisClient connects to TEST_REDIS_URL (default localhost:6379,
// DB 1) and skips the test when no Redis is reachable.
func getTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	opts := &redis.Options{Addr: "localhost:6379", DB: 1}
	if url := os.Getenv("TEST_REDIS_URL"); url != "" {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			t.Fatalf("invalid TEST_REDIS_URL: %v", err)
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func cleanupKeys(t *testing.T, client *redis.Client, patterns ...string) {
	t.Helper()
	ctx := context.Background()
	for _, pattern := range patterns {
		keys, err := client.Keys(ctx, pattern).Result()
		if err != nil {
			t.Logf("Warning: failed to get keys: %v", err)
			continue
		}
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	}
}
