package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/soyeahso/triage/internal/config"
	"github.com/soyeahso/triage/internal/gateway"
	"github.com/soyeahso/triage/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var gf gatewayFlags

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show triage status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "triage %s (commit %s)\n\n", version.Version, version.Current().Commit)

			// Show paths
			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:  not found (using defaults)")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "Gateway: port=%d bind=%s tls=%v timeout=%s rps=%g\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.TLS.Enabled,
				cfg.Gateway.RequestTimeout(), cfg.Gateway.RateLimit.RPS)

			storeCfg := cfg.StoreConfig(paths.Data)
			switch storeCfg.Backend {
			case "redis":
				fmt.Fprintf(out, "Store:   redis url=%s\n", redactURL(storeCfg.RedisURL))
			case "sqlite":
				fmt.Fprintf(out, "Store:   sqlite path=%s\n", storeCfg.SQLitePath)
			default:
				fmt.Fprintln(out, "Store:   memory")
			}
			fmt.Fprintf(out, "TTL:     session=%dm email=%dm\n", cfg.Session.TTLMinutes, cfg.Session.EmailTTLMinutes)

			if tenants, err := cfg.TenantRegistry(); err == nil {
				fmt.Fprintf(out, "Tenants: %s\n", strings.Join(tenants.IDs(), ", "))
			}

			if cfg.Mailbox.Enabled {
				fmt.Fprintf(out, "Mailbox: %s@%s:%d/%s every %s tls=%v\n",
					cfg.Mailbox.Username, cfg.Mailbox.Host, cfg.Mailbox.Port,
					cfg.Mailbox.Mailbox, cfg.Mailbox.PollInterval(), cfg.Mailbox.TLSEnabled())
			} else {
				fmt.Fprintln(out, "Mailbox: (disabled)")
			}

			// Validation
			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			// Running gateway
			if gf.url == "" {
				gf.url = gatewayURL(cfg.Gateway)
			}
			c, err := gf.client()
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			var health gateway.HealthResponse
			if err := c.do(cmd.Context(), http.MethodGet, "/health", nil, &health); err != nil {
				fmt.Fprintf(out, "Server:  not reachable at %s\n", gf.url)
				return nil
			}
			fmt.Fprintf(out, "Server:  %s at %s (version %s, %d client(s), up %s)\n",
				health.Status, gf.url, health.Version.Version, health.Clients,
				time.Duration(health.UptimeSeconds)*time.Second)
			return nil
		},
	}

	gf.register(cmd, 2*time.Second)
	return cmd
}

// redactURL hides the password of a connection URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
