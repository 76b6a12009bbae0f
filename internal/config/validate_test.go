package config

import (
	"testing"

	"github.com/soyeahso/triage/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuePaths(issues []ValidationIssue) []string {
	var paths []string
	for _, i := range issues {
		paths = append(paths, i.Path)
	}
	return paths
}

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()

	cfg.Gateway.Port = -1
	issues := Validate(&cfg)
	require.NotEmpty(t, issues)
	assert.Equal(t, "gateway.port", issues[0].Path)

	cfg.Gateway.Port = 70000
	assert.NotEmpty(t, Validate(&cfg))
}

func TestValidate_Binds(t *testing.T) {
	for _, bind := range []string{"auto", "lan", "loopback", ""} {
		cfg := Defaults()
		cfg.Gateway.Bind = bind
		assert.Empty(t, Validate(&cfg), "bind %q should be valid", bind)
	}

	cfg := Defaults()
	cfg.Gateway.Bind = "tailnet"
	assert.Equal(t, []string{"gateway.bind"}, issuePaths(Validate(&cfg)))

	cfg.Gateway.Bind = "custom"
	assert.Equal(t, []string{"gateway.customBindHost"}, issuePaths(Validate(&cfg)))
	cfg.Gateway.CustomBindHost = "10.0.0.5"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_TLSNeedsFiles(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.TLS.Enabled = true
	assert.Equal(t, []string{"gateway.tls"}, issuePaths(Validate(&cfg)))
}

func TestValidate_NegativeLimits(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.RateLimit.RPS = -1
	cfg.Gateway.RequestTimeoutSeconds = -5
	cfg.Session.TTLMinutes = -1
	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "gateway.rateLimit")
	assert.Contains(t, paths, "gateway.requestTimeoutSeconds")
	assert.Contains(t, paths, "session.ttlMinutes")
}

func TestValidate_Logging(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.Level = "verbose"
	cfg.Logging.ConsoleStyle = "compact"
	assert.Equal(t, []string{"logging.level", "logging.consoleStyle"}, issuePaths(Validate(&cfg)))
}

func TestValidate_SessionStore(t *testing.T) {
	cfg := Defaults()
	cfg.Session.Store = "postgres"
	assert.Equal(t, []string{"session.store"}, issuePaths(Validate(&cfg)))

	cfg.Session.Store = "redis"
	cfg.Redis.URL = ""
	assert.Equal(t, []string{"redis.url"}, issuePaths(Validate(&cfg)))
}

func TestValidate_Tenants(t *testing.T) {
	cfg := Defaults()
	cfg.Tenants = []tenant.Tenant{{ID: "acme"}}
	assert.Equal(t, []string{"tenants[0].projectKey"}, issuePaths(Validate(&cfg)))

	cfg.Tenants = []tenant.Tenant{{ID: "acme", ProjectKey: "A"}}
	cfg.TenantAliases = map[string]string{"x": "missing"}
	assert.Equal(t, []string{"tenants"}, issuePaths(Validate(&cfg)))
}

func TestValidate_Mailbox(t *testing.T) {
	cfg := Defaults()
	cfg.Mailbox.Enabled = true
	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "mailbox.host")
	assert.Contains(t, paths, "mailbox.username")

	cfg.Mailbox.Host = "imap.example.com"
	cfg.Mailbox.Username = "helpdesk"
	assert.Empty(t, Validate(&cfg))
}

func TestValidationIssue_String(t *testing.T) {
	issue := ValidationIssue{Path: "gateway.port", Message: "port must be 0-65535, got -1"}
	assert.Equal(t, "gateway.port: port must be 0-65535, got -1", issue.String())
}
