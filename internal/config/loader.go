package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so passwords and URLs can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Redis.URL = expandEnvVars(cfg.Redis.URL)
	cfg.Mailbox.Username = expandEnvVars(cfg.Mailbox.Username)
	cfg.Mailbox.Password = expandEnvVars(cfg.Mailbox.Password)
	cfg.Mailbox.Host = expandEnvVars(cfg.Mailbox.Host)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			expandSensitiveFields(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = d.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = d.Gateway.Bind
	}
	if cfg.Gateway.RequestTimeoutSeconds == 0 {
		cfg.Gateway.RequestTimeoutSeconds = d.Gateway.RequestTimeoutSeconds
	}
	if cfg.Gateway.RateLimit.Burst == 0 && cfg.Gateway.RateLimit.RPS > 0 {
		cfg.Gateway.RateLimit.Burst = max(1, int(cfg.Gateway.RateLimit.RPS))
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = d.Logging.ConsoleStyle
	}
	if cfg.Session.Store == "" {
		cfg.Session.Store = d.Session.Store
	}
	if cfg.Session.TTLMinutes == 0 {
		cfg.Session.TTLMinutes = d.Session.TTLMinutes
	}
	if cfg.Session.EmailTTLMinutes == 0 {
		cfg.Session.EmailTTLMinutes = d.Session.EmailTTLMinutes
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = d.Redis.URL
	}
	if cfg.Redis.DialTimeoutSeconds == 0 {
		cfg.Redis.DialTimeoutSeconds = d.Redis.DialTimeoutSeconds
	}
	if cfg.Mailbox.Port == 0 {
		cfg.Mailbox.Port = d.Mailbox.Port
	}
	if cfg.Mailbox.Mailbox == "" {
		cfg.Mailbox.Mailbox = d.Mailbox.Mailbox
	}
	if cfg.Mailbox.PollSeconds == 0 {
		cfg.Mailbox.PollSeconds = d.Mailbox.PollSeconds
	}
}

// envOverrides maps TRIAGE_* variables onto config fields. Values that fail
// to parse are ignored.
var envOverrides = []struct {
	name  string
	apply func(cfg *Config, v string)
}{
	{"TRIAGE_GATEWAY_PORT", func(c *Config, v string) { setInt(&c.Gateway.Port, v) }},
	{"TRIAGE_GATEWAY_BIND", func(c *Config, v string) { c.Gateway.Bind = v }},
	{"TRIAGE_LOG_LEVEL", func(c *Config, v string) { c.Logging.Level = strings.ToLower(v) }},
	{"TRIAGE_LOG_FILE", func(c *Config, v string) { c.Logging.File = v }},
	{"TRIAGE_SESSION_STORE", func(c *Config, v string) { c.Session.Store = strings.ToLower(v) }},
	{"TRIAGE_SESSION_TTL_MINUTES", func(c *Config, v string) { setInt(&c.Session.TTLMinutes, v) }},
	{"TRIAGE_REDIS_URL", func(c *Config, v string) { c.Redis.URL = v }},
	{"TRIAGE_SQLITE_PATH", func(c *Config, v string) { c.SQLite.Path = v }},
	{"TRIAGE_MAILBOX_ENABLED", func(c *Config, v string) {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Mailbox.Enabled = b
		}
	}},
	{"TRIAGE_MAILBOX_HOST", func(c *Config, v string) { c.Mailbox.Host = v }},
	{"TRIAGE_MAILBOX_USERNAME", func(c *Config, v string) { c.Mailbox.Username = v }},
	{"TRIAGE_MAILBOX_PASSWORD", func(c *Config, v string) { c.Mailbox.Password = v }},
}

func setInt(dst *int, v string) {
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// applyEnvOverrides lets the environment win over the config file.
func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(cfg, v)
		}
	}
}
