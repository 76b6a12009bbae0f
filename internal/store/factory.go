package store

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/triage/internal/logging"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config selects and configures a backend.
type Config struct {
	Backend          string
	RedisURL         string
	RedisDialTimeout time.Duration
	SQLitePath       string
	Options          Options
}

// New builds the configured backend.
func New(ctx context.Context, cfg Config, log *logging.Logger) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStore(cfg.Options, log), nil
	case BackendRedis:
		return OpenRedis(ctx, cfg.RedisURL, cfg.RedisDialTimeout, cfg.Options, log)
	case BackendSQLite:
		return OpenSQLite(cfg.SQLitePath, cfg.Options, log)
	}
	return nil, fmt.Errorf("unknown session store %q", cfg.Backend)
}
