package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultSessionTTL = 24 * time.Hour
	sessionKeyPrefix  = "labelquest:play:"
)

// RedisSessionStore keeps plays in Redis/Dragonfly as JSON with a TTL that is
// refreshed on every save.
type RedisSessionStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisSessionStore creates a Redis-backed session store. A zero ttl uses
// DefaultSessionTTL.
func NewRedisSessionStore(client redis.Cmdable, ttl time.Duration) (*RedisSessionStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessionStore{client: client, ttl: ttl}, nil
}

func sessionKey(playerID string) string {
	return sessionKeyPrefix + playerID
}

func (s *RedisSessionStore) Load(ctx context.Context, playerID string) (*Play, bool, error) {
	data, err := s.client.Get(ctx, sessionKey(playerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get play: %w", err)
	}

	var play Play
	if err := json.Unmarshal(data, &play); err != nil {
		return nil, false, fmt.Errorf("decode play: %w", err)
	}
	return &play, true, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, play *Play) error {
	data, err := json.Marshal(play)
	if err != nil {
		return fmt.Errorf("encode play: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(play.PlayerID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set play: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, playerID string) error {
	if err := s.client.Del(ctx, sessionKey(playerID)).Err(); err != nil {
		return fmt.Errorf("delete play: %w", err)
	}
	return nil
}
