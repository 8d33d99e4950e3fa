package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/rag-chat/backend/internal/model/chat"
)

// Redis key prefix for workspaces
const keyPrefix = "workspace:"

// RedisStore keeps workspaces as JSON values in Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps client. ttl of zero disables expiry.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Load implements Store. Reading refreshes the TTL.
func (s *RedisStore) Load(ctx context.Context, owner string) (*chat.Workspace, error) {
	key := keyPrefix + owner
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var ws chat.Workspace
	if err := json.Unmarshal(val, &ws); err != nil {
		return nil, fmt.Errorf("decode workspace %s: %w", key, err)
	}

	if s.ttl > 0 {
		_ = s.client.Expire(ctx, key, s.ttl).Err()
	}
	return &ws, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, owner string, ws chat.Workspace) error {
	data, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("encode workspace: %w", err)
	}
	return s.client.Set(ctx, keyPrefix+owner, data, s.ttl).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
