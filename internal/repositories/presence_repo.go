package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prudhvinik1/syncengine/internal/models"
)

const (
	presenceKeyPrefix = "presence:"
	presenceTTL       = 60 * time.Second // a device is offline after 60s without activity
)

type RedisPresenceRepository struct {
	client *redis.Client
}

func NewRedisPresenceRepository(client *redis.Client) *RedisPresenceRepository {
	return &RedisPresenceRepository{client: client}
}

// SetPresence marks the device online until the TTL lapses. Every push,
// pull and heartbeat refreshes it.
func (r *RedisPresenceRepository) SetPresence(ctx context.Context, presence *models.Presence) error {
	presence.LastSeen = time.Now()
	if presence.Status == "" {
		presence.Status = string(models.StatusOnline)
	}

	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	if err := r.client.Set(ctx, presenceKey(presence.DeviceID), data, presenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

func (r *RedisPresenceRepository) GetPresence(ctx context.Context, deviceID string) (*models.Presence, error) {
	data, err := r.client.Get(ctx, presenceKey(deviceID)).Result()
	if errors.Is(err, redis.Nil) {
		p := offline(deviceID)
		return &p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	var presence models.Presence
	if err := json.Unmarshal([]byte(data), &presence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence: %w", err)
	}
	return &presence, nil
}

func (r *RedisPresenceRepository) DeletePresence(ctx context.Context, deviceID string) error {
	if err := r.client.Del(ctx, presenceKey(deviceID)).Err(); err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}
	return nil
}

// GetBulkPresence fetches the presence of several devices in one round trip.
// Devices without a live key, or with an unreadable one, are offline.
func (r *RedisPresenceRepository) GetBulkPresence(ctx context.Context, deviceIDs []string) (map[string]models.Presence, error) {
	presenceMap := make(map[string]models.Presence, len(deviceIDs))
	if len(deviceIDs) == 0 {
		return presenceMap, nil
	}

	keys := make([]string, len(deviceIDs))
	for i, id := range deviceIDs {
		keys[i] = presenceKey(id)
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bulk presence: %w", err)
	}

	for i, result := range results {
		deviceID := deviceIDs[i]

		data, ok := result.(string)
		if !ok {
			presenceMap[deviceID] = offline(deviceID)
			continue
		}

		var presence models.Presence
		if err := json.Unmarshal([]byte(data), &presence); err != nil {
			presenceMap[deviceID] = offline(deviceID)
			continue
		}
		presenceMap[deviceID] = presence
	}

	return presenceMap, nil
}

func offline(deviceID string) models.Presence {
	return models.Presence{
		DeviceID: deviceID,
		Status:   string(models.StatusOffline),
	}
}

func presenceKey(deviceID string) string {
	return presenceKeyPrefix + deviceID
}
