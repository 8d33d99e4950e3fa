package workspace

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/rag-chat/backend/internal/model/chat"
)

// Driver names accepted by NewStore.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

var (
	ErrInvalidConfig = errors.New("invalid workspace store configuration")
	ErrInvalidDriver = errors.New("invalid workspace store driver")
)

// Store persists chat workspaces keyed by owner. Load returns (nil, nil) when
// nothing is stored for the owner.
type Store interface {
	Load(ctx context.Context, owner string) (*chat.Workspace, error)
	Save(ctx context.Context, owner string, ws chat.Workspace) error
	Close() error
}

// Option configures NewStore.
type Option func(*options)

type options struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(client *redis.Client) Option {
	return func(o *options) { o.redisClient = client }
}

// WithTTL sets how long a workspace survives without writes. Zero keeps it forever.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// NewStore builds the store for driver.
func NewStore(driver string, opts ...Option) (Store, error) {
	cfg := &options{}
	for _, opt := range opts {
		opt(cfg)
	}

	switch driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedisStore(cfg.redisClient, cfg.ttl), nil
	default:
		return nil, ErrInvalidDriver
	}
}
