package config

import (
	"fmt"
	"slices"

	"github.com/soyeahso/triage/internal/store"
	"github.com/soyeahso/triage/internal/tenant"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.customBindHost",
			Message: "required when bind is custom",
		})
	}
	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.tls",
			Message: "certPath and keyPath are required when TLS is enabled",
		})
	}
	if cfg.Gateway.RequestTimeoutSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.requestTimeoutSeconds",
			Message: "must not be negative",
		})
	}
	if cfg.Gateway.RateLimit.RPS < 0 || cfg.Gateway.RateLimit.Burst < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.rateLimit",
			Message: "rps and burst must not be negative",
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	// Session validation
	validStores := []string{store.BackendMemory, store.BackendRedis, store.BackendSQLite}
	if cfg.Session.Store != "" && !slices.Contains(validStores, cfg.Session.Store) {
		issues = append(issues, ValidationIssue{
			Path:    "session.store",
			Message: fmt.Sprintf("must be one of %v, got %q", validStores, cfg.Session.Store),
		})
	}
	if cfg.Session.TTLMinutes < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "session.ttlMinutes",
			Message: "must not be negative",
		})
	}
	if cfg.Session.EmailTTLMinutes < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "session.emailTtlMinutes",
			Message: "must not be negative",
		})
	}
	if cfg.Session.Store == store.BackendRedis && cfg.Redis.URL == "" {
		issues = append(issues, ValidationIssue{
			Path:    "redis.url",
			Message: "required when session.store is redis",
		})
	}

	// Tenant validation (only if configured)
	if len(cfg.Tenants) > 0 {
		if _, err := tenant.NewRegistry(cfg.Tenants, cfg.TenantAliases); err != nil {
			issues = append(issues, ValidationIssue{
				Path:    "tenants",
				Message: err.Error(),
			})
		}
		for i, t := range cfg.Tenants {
			if t.ProjectKey == "" {
				issues = append(issues, ValidationIssue{
					Path:    fmt.Sprintf("tenants[%d].projectKey", i),
					Message: "projectKey is required",
				})
			}
		}
	}

	// Mailbox validation (only if enabled)
	if cfg.Mailbox.Enabled {
		mb := cfg.Mailbox
		if mb.Host == "" {
			issues = append(issues, ValidationIssue{
				Path:    "mailbox.host",
				Message: "host is required",
			})
		}
		if mb.Username == "" {
			issues = append(issues, ValidationIssue{
				Path:    "mailbox.username",
				Message: "username is required",
			})
		}
		if mb.Port < 0 || mb.Port > 65535 {
			issues = append(issues, ValidationIssue{
				Path:    "mailbox.port",
				Message: fmt.Sprintf("port must be 0-65535, got %d", mb.Port),
			})
		}
		if mb.PollSeconds < 0 {
			issues = append(issues, ValidationIssue{
				Path:    "mailbox.pollSeconds",
				Message: "must not be negative",
			})
		}
	}

	return issues
}
