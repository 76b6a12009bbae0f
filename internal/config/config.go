package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/soyeahso/triage/internal/store"
	"github.com/soyeahso/triage/internal/tenant"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port:                  8080,
			Bind:                  "loopback",
			RequestTimeoutSeconds: 15,
			RateLimit: RateLimitConfig{
				RPS:   10,
				Burst: 20,
			},
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
		Session: SessionConfig{
			Store:           store.BackendMemory,
			TTLMinutes:      30,
			EmailTTLMinutes: 30,
		},
		Redis: RedisConfig{
			URL:                "redis://localhost:6379/0",
			DialTimeoutSeconds: 5,
		},
		Mailbox: MailboxConfig{
			Port:        993,
			Mailbox:     "INBOX",
			PollSeconds: 60,
		},
	}
}

// StoreConfig translates the session and backend sections into a store
// factory config. dataDir is used for the default sqlite path.
func (c Config) StoreConfig(dataDir string) store.Config {
	path := c.SQLite.Path
	if path == "" {
		path = filepath.Join(dataDir, "triage.db")
	}
	return store.Config{
		Backend:          c.Session.Store,
		RedisURL:         c.Redis.URL,
		RedisDialTimeout: time.Duration(c.Redis.DialTimeoutSeconds) * time.Second,
		SQLitePath:       path,
		Options: store.Options{
			SessionTTL: time.Duration(c.Session.TTLMinutes) * time.Minute,
			EmailTTL:   time.Duration(c.Session.EmailTTLMinutes) * time.Minute,
		},
	}
}

// TenantRegistry builds the tenant registry, falling back to the built-in
// tenants when none are configured.
func (c Config) TenantRegistry() (*tenant.Registry, error) {
	tenants, aliases := c.Tenants, c.TenantAliases
	if len(tenants) == 0 {
		tenants = tenant.Defaults()
		if aliases == nil {
			aliases = tenant.DefaultAliases()
		}
	}
	reg, err := tenant.NewRegistry(tenants, aliases)
	if err != nil {
		return nil, &ConfigError{Message: err.Error()}
	}
	return reg, nil
}

// RequestTimeout is the per-request deadline applied by the gateway.
func (c GatewayConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// PollInterval is the IMAP poll period.
func (c MailboxConfig) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}
