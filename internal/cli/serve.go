package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/triage/internal/gateway"
	"github.com/soyeahso/triage/internal/hooks"
	"github.com/soyeahso/triage/internal/logging"
	"github.com/soyeahso/triage/internal/mailbox"
	"github.com/soyeahso/triage/internal/metrics"
	"github.com/soyeahso/triage/internal/store"
	"github.com/soyeahso/triage/internal/triage"
	"github.com/spf13/cobra"
)

const sweepInterval = time.Minute

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the triage gateway",
		Long:  "Start the HTTP and WebSocket gateway and, when configured, the IMAP mailbox poller.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			rootLog, closeLog, err := logging.NewFromOptions(logging.Options{
				Level: cfg.Logging.Level,
				Style: cfg.Logging.ConsoleStyle,
				File:  cfg.Logging.File,
			})
			if err != nil {
				return err
			}
			defer closeLog()
			log = rootLog

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := store.New(ctx, cfg.StoreConfig(paths.Data), log)
			if err != nil {
				return fmt.Errorf("opening session store: %w", err)
			}
			defer st.Close()
			log.Info().Str("backend", cfg.Session.Store).Msg("session store ready")

			tenants, err := cfg.TenantRegistry()
			if err != nil {
				return err
			}
			log.Info().Strs("tenants", tenants.IDs()).Msg("tenant registry loaded")

			hookMgr := hooks.NewManager(log)
			metrics.Register(hookMgr)
			registerAuditLog(hookMgr, log)

			svc := triage.NewService(st, tenants, log, triage.WithHooks(hookMgr))
			srv := gateway.New(cfg.Gateway, svc, log, gateway.WithHooks(hookMgr))

			go runSweeper(ctx, st, sweepInterval, log)

			if cfg.Mailbox.Enabled {
				poller := mailbox.NewPoller(mailbox.IMAPDialer(cfg.Mailbox, log), svc, cfg.Mailbox.PollInterval(), log)
				go poller.Run(ctx)
			} else {
				log.Debug().Msg("mailbox intake disabled")
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}

// runSweeper drops expired sessions and email records until ctx is done.
func runSweeper(ctx context.Context, st store.Store, every time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.Sweep(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("store sweep failed")
				continue
			}
			if n > 0 {
				log.Debug().Int("sessions", n).Msg("expired sessions removed")
			}
		}
	}
}

// registerAuditLog writes one structured line per escalation decision.
func registerAuditLog(h *hooks.Manager, log *logging.Logger) {
	audit := log.Sub("audit")
	record := func(_ context.Context, p hooks.Payload) error {
		ev := audit.Info().Str("event", p.Event)
		for _, k := range []string{"channel", "session", "message_id", "tenant", "intent"} {
			if v, ok := p.Data[k].(string); ok && v != "" {
				ev = ev.Str(k, v)
			}
		}
		ev.Msg("escalation event")
		return nil
	}
	for _, event := range []string{
		hooks.EventEscalated,
		hooks.EventEscalationPending,
		hooks.EventEmailProcessed,
		hooks.EventEmailPending,
	} {
		h.On(event, "audit", record)
	}
}
