package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prudhvinik1/syncengine/internal/logger"
	"github.com/prudhvinik1/syncengine/internal/models"
)

const sessionPrefix = "session:"
const accountSessionsPrefix = "account:%s:sessions"

type RedisSessionRepository struct {
	client *redis.Client
}

func NewRedisSessionRepository(client *redis.Client) *RedisSessionRepository {
	return &RedisSessionRepository{client: client}
}

// Create stores the session under "session:{id}" with a TTL matching its
// expiry and indexes it in the account's session set.
func (r *RedisSessionRepository) Create(ctx context.Context, session *models.Session) error {
	jsonData, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", session.ID)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), jsonData, ttl)
	pipe.SAdd(ctx, fmt.Sprintf(accountSessionsPrefix, session.AccountID), session.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	jsonData, err := r.client.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(jsonData), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// ListByAccountID returns the live sessions of an account. Ids whose key
// has expired are removed from the index on the way.
func (r *RedisSessionRepository) ListByAccountID(ctx context.Context, accountID string) ([]*models.Session, error) {
	log := logger.FromContext(ctx)

	accountKey := fmt.Sprintf(accountSessionsPrefix, accountID)
	sessionIDs, err := r.client.SMembers(ctx, accountKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get account sessions: %w", err)
	}

	var sessions []*models.Session
	var expiredIDs []any

	for _, id := range sessionIDs {
		session, err := r.GetByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			expiredIDs = append(expiredIDs, id)
			continue
		}
		if err != nil {
			log.Err(err).
				Str("func", "RedisSessionRepository.ListByAccountID").
				Str("session_id", id).
				Msg("failed to load session")
			continue
		}
		sessions = append(sessions, session)
	}

	if len(expiredIDs) > 0 {
		if err := r.client.SRem(ctx, accountKey, expiredIDs...).Err(); err != nil {
			return nil, fmt.Errorf("failed to remove expired sessions: %w", err)
		}
	}
	return sessions, nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, id string) error {
	session, err := r.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.SRem(ctx, fmt.Sprintf(accountSessionsPrefix, session.AccountID), id)
	pipe.Del(ctx, sessionKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) DeleteAllForAccount(ctx context.Context, accountID string) error {
	log := logger.FromContext(ctx)

	accountKey := fmt.Sprintf(accountSessionsPrefix, accountID)
	sessionIDs, err := r.client.SMembers(ctx, accountKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get account sessions: %w", err)
	}

	keys := make([]string, 0, len(sessionIDs)+1)
	for _, id := range sessionIDs {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, accountKey)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete account sessions: %w", err)
	}

	log.Debug().
		Str("func", "RedisSessionRepository.DeleteAllForAccount").
		Str("account_id", accountID).
		Int("sessions", len(sessionIDs)).
		Msg("deleted account sessions")
	return nil
}

func sessionKey(id string) string {
	return sessionPrefix + id
}
