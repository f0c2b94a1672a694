package session

import (
	"context"
	"fmt"

	"ChatWallet/internal/config"
)

// Open builds the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.SessionConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(cfg.TTL()), nil
	case "redis":
		return NewRedisStore(ctx, RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.TTL(),
		})
	default:
		return nil, fmt.Errorf("session: unsupported driver %q", cfg.Driver)
	}
}
