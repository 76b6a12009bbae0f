package config

import "github.com/soyeahso/triage/internal/tenant"

// Config is the root configuration for the triage service.
type Config struct {
	Gateway       GatewayConfig     `yaml:"gateway,omitempty"`
	Logging       LoggingConfig     `yaml:"logging,omitempty"`
	Session       SessionConfig     `yaml:"session,omitempty"`
	Redis         RedisConfig       `yaml:"redis,omitempty"`
	SQLite        SQLiteConfig      `yaml:"sqlite,omitempty"`
	Tenants       []tenant.Tenant   `yaml:"tenants,omitempty"`
	TenantAliases map[string]string `yaml:"tenantAliases,omitempty"`
	Mailbox       MailboxConfig     `yaml:"mailbox,omitempty"`
}

// GatewayConfig controls the HTTP/WebSocket server.
type GatewayConfig struct {
	Port                  int              `yaml:"port,omitempty"`
	Bind                  string           `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost        string           `yaml:"customBindHost,omitempty"`
	TLS                   GatewayTLS       `yaml:"tls,omitempty"`
	ControlUI             GatewayControlUI `yaml:"controlUi,omitempty"`
	RequestTimeoutSeconds int              `yaml:"requestTimeoutSeconds,omitempty"`
	RateLimit             RateLimitConfig  `yaml:"rateLimit,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// GatewayControlUI lists the browser origins allowed to call the API.
type GatewayControlUI struct {
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// RateLimitConfig is a per-client token bucket. RPS 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps,omitempty"`
	Burst int     `yaml:"burst,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
	File         string `yaml:"file,omitempty"`
}

// SessionConfig selects the store backend and its TTLs.
type SessionConfig struct {
	Store           string `yaml:"store,omitempty"` // "memory" | "redis" | "sqlite"
	TTLMinutes      int    `yaml:"ttlMinutes,omitempty"`
	EmailTTLMinutes int    `yaml:"emailTtlMinutes,omitempty"`
}

// RedisConfig configures the redis store backend.
type RedisConfig struct {
	URL                string `yaml:"url,omitempty"`
	DialTimeoutSeconds int    `yaml:"dialTimeoutSeconds,omitempty"`
}

// SQLiteConfig configures the sqlite store backend. An empty path means
// <base>/data/triage.db.
type SQLiteConfig struct {
	Path string `yaml:"path,omitempty"`
}

// MailboxConfig configures IMAP intake.
type MailboxConfig struct {
	Enabled     bool   `yaml:"enabled,omitempty"`
	Host        string `yaml:"host,omitempty"`
	Port        int    `yaml:"port,omitempty"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	Mailbox     string `yaml:"mailbox,omitempty"`
	PollSeconds int    `yaml:"pollSeconds,omitempty"`
	UseTLS      *bool  `yaml:"useTLS,omitempty"` // defaults to true
}

// TLSEnabled reports whether IMAP should use implicit TLS.
func (m MailboxConfig) TLSEnabled() bool {
	return m.UseTLS == nil || *m.UseTLS
}
