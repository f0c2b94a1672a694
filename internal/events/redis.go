package events

import (
	"context"

	"github.com/redis/go-redis/v9"

	xerrors "ChatWallet/internal/errors"
)

type redisAPI interface {
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Close() error
}

// RedisConfig describes the Redis list events are pushed to.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Key      string
	// MaxLen bounds the list; 0 keeps everything.
	MaxLen int64
}

// RedisPublisher pushes JSON events onto a Redis list, newest at the head.
type RedisPublisher struct {
	client redisAPI
	key    string
	maxLen int64
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "connect to redis")
	}
	return newRedisPublisher(client, cfg.Key, cfg.MaxLen), nil
}

func newRedisPublisher(client redisAPI, key string, maxLen int64) *RedisPublisher {
	if key == "" {
		key = "chatwallet:events"
	}
	return &RedisPublisher{client: client, key: key, maxLen: maxLen}
}

// Publish implements Publisher.
func (r *RedisPublisher) Publish(ctx context.Context, event Event) error {
	body, err := event.encode()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "encode event")
	}
	if err := r.client.LPush(ctx, r.key, body).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "publish event to redis")
	}
	if r.maxLen > 0 {
		if err := r.client.LTrim(ctx, r.key, 0, r.maxLen-1).Err(); err != nil {
			return xerrors.Wrap(xerrors.CodeQueueFailure, err, "trim redis event list")
		}
	}
	return nil
}

// Close implements Publisher.
func (r *RedisPublisher) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
