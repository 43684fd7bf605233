package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yansimam/backend/internal/models"
)

const cacheKeyPrefix = "session:token:"

type cacheEntry struct {
	Session       models.VotingSession `json:"session"`
	OwnerPhotoURL *string              `json:"owner_photo_url,omitempty"`
}

// RedisCache is a read-through cache in front of a Store. It caches found sessions only;
// expiry is still checked by Lookup on every read.
type RedisCache struct {
	next   Store
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache wraps next with a Redis cache whose entries live for ttl.
func NewRedisCache(next Store, client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{next: next, client: client, ttl: ttl, logger: logger}
}

// GetByToken serves from Redis when possible. Redis failures fall through to the store.
func (c *RedisCache) GetByToken(ctx context.Context, token string) (*models.VotingSession, error) {
	key := cacheKeyPrefix + token
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if s, derr := decodeEntry(raw); derr == nil {
			return s, nil
		}
		c.logger.Warn("discarding undecodable session cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("session cache read failed", zap.Error(err))
	}

	s, err := c.next.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if b, err := encodeEntry(s); err == nil {
		if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
			c.logger.Warn("session cache write failed", zap.Error(err))
		}
	}
	return s, nil
}

// Invalidate drops the cached entry for token.
func (c *RedisCache) Invalidate(ctx context.Context, token string) error {
	return c.client.Del(ctx, cacheKeyPrefix+token).Err()
}

func encodeEntry(s *models.VotingSession) ([]byte, error) {
	return json.Marshal(cacheEntry{Session: *s, OwnerPhotoURL: s.OwnerPhotoURL})
}

func decodeEntry(raw []byte) (*models.VotingSession, error) {
	var e cacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	s := e.Session
	s.OwnerPhotoURL = e.OwnerPhotoURL
	return &s, nil
}
