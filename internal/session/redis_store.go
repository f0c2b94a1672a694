package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "ChatWallet/internal/errors"
)

// redisAPI is the subset of *redis.Client used by RedisStore.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// RedisConfig describes the Redis connection for pending commands.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisStore keeps pending commands in Redis so confirmations survive a
// restart and can be answered by any replica: TakePending uses GETDEL, so a
// command is claimed by exactly one of them. Expiry is delegated to Redis.
// Requires Redis 6.2 or newer.
type RedisStore struct {
	client redisAPI
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
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
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "connect to redis")
	}
	return newRedisStore(client, cfg.Prefix, cfg.TTL), nil
}

func newRedisStore(client redisAPI, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "chatwallet:pending:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// GetPending implements Store.
func (r *RedisStore) GetPending(ctx context.Context, conversationID string) (*PendingCommand, error) {
	return decodePending(r.client.Get(ctx, r.key(conversationID)), "load pending command")
}

// TakePending implements Store.
func (r *RedisStore) TakePending(ctx context.Context, conversationID string) (*PendingCommand, error) {
	return decodePending(r.client.GetDel(ctx, r.key(conversationID)), "take pending command")
}

func decodePending(result *redis.StringCmd, op string) (*PendingCommand, error) {
	raw, err := result.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, op)
	}
	var cmd PendingCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "decode pending command")
	}
	return &cmd, nil
}

// SetPending implements Store.
func (r *RedisStore) SetPending(ctx context.Context, conversationID string, cmd PendingCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "encode pending command")
	}
	if err := r.client.Set(ctx, r.key(conversationID), payload, r.ttl).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "save pending command")
	}
	return nil
}

// ClearPending implements Store.
func (r *RedisStore) ClearPending(ctx context.Context, conversationID string) error {
	if err := r.client.Del(ctx, r.key(conversationID)).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "clear pending command")
	}
	return nil
}

// Close releases the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) key(conversationID string) string {
	return r.prefix + conversationID
}

var _ Store = (*RedisStore)(nil)
