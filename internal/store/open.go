package store

import (
	"fmt"

	"rollcall/internal/apperr"
)

// BackendConfig selects and configures a Backend.
type BackendConfig struct {
	Kind        string // memory, sqlite, postgres, redis
	SQLitePath  string
	DatabaseURL string
	RedisAddr   string
	RedisPrefix string
}

// OpenBackend constructs the configured Backend.
func OpenBackend(cfg BackendConfig) (Backend, error) {
	switch cfg.Kind {
	case "memory":
		return NewMemory(), nil
	case "", "sqlite":
		return NewSQLite(cfg.SQLitePath)
	case "postgres":
		return NewPostgres(cfg.DatabaseURL)
	case "redis":
		return &ownedRedis{Redis: NewRedis(NewRedisClient(cfg.RedisAddr), cfg.RedisPrefix)}, nil
	default:
		return nil, fmt.Errorf("store backend %q: %w", cfg.Kind, apperr.ErrInvalid)
	}
}

// ownedRedis closes the client it was opened with.
type ownedRedis struct {
	*Redis
}

func (o *ownedRedis) Close() error { return o.client.Close() }
