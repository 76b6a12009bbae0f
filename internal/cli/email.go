package cli

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/triage/internal/config"
	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/mailbox"
	"github.com/spf13/cobra"
)

type gatewayFlags struct {
	url      string
	company  string
	timeout  time.Duration
	insecure bool
}

func (f *gatewayFlags) register(cmd *cobra.Command, timeout time.Duration) {
	cmd.Flags().StringVar(&f.url, "url", "", "gateway URL (default derived from config)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", timeout, "request timeout")
	cmd.Flags().BoolVar(&f.insecure, "insecure", false, "skip TLS certificate verification")
}

func (f *gatewayFlags) client() (*apiClient, error) {
	base := f.url
	if base == "" {
		cfg, err := config.Load(paths.Config)
		if err != nil {
			return nil, err
		}
		base = gatewayURL(cfg.Gateway)
	}
	return newAPIClient(base, f.company, f.timeout, f.insecure), nil
}

func newEmailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "email",
		Short: "Work with emails waiting in a running gateway",
	}

	cmd.AddCommand(newEmailPendingCmd())
	cmd.AddCommand(newEmailResolveCmd())
	cmd.AddCommand(newEmailIngestCmd())
	return cmd
}

func newEmailPendingCmd() *cobra.Command {
	var gf gatewayFlags

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List emails waiting for a company id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := gf.client()
			if err != nil {
				return err
			}
			var res struct {
				MessageIDs []string `json:"message_ids"`
				Count      int      `json:"count"`
			}
			if err := c.do(cmd.Context(), http.MethodGet, "/api/email/pending", nil, &res); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Count == 0 {
				fmt.Fprintln(out, "No pending emails.")
				return nil
			}
			fmt.Fprintf(out, "%d pending email(s):\n", res.Count)
			for _, id := range res.MessageIDs {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	}

	gf.register(cmd, 20*time.Second)
	return cmd
}

func newEmailResolveCmd() *cobra.Command {
	var gf gatewayFlags

	cmd := &cobra.Command{
		Use:   "resolve <message-id> <company-id>",
		Short: "Supply the company for a pending email and escalate it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := gf.client()
			if err != nil {
				return err
			}
			var res domain.EmailResult
			err = c.do(cmd.Context(), http.MethodPost, "/api/email/resolve", map[string]string{
				"message_id": args[0],
				"company_id": args[1],
			}, &res)
			if err != nil {
				return err
			}
			return printEmailResult(cmd, &res)
		},
	}

	gf.register(cmd, 20*time.Second)
	return cmd
}

func newEmailIngestCmd() *cobra.Command {
	var gf gatewayFlags

	cmd := &cobra.Command{
		Use:   "ingest <file.eml>",
		Short: "Submit a raw RFC 5322 message to the gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			fallback := fmt.Sprintf("<%s.%s@triage.local>", uuid.NewString(), filepath.Base(args[0]))
			msg, err := mailbox.ParseMessage(0, f, fallback)
			if err != nil {
				return err
			}

			c, err := gf.client()
			if err != nil {
				return err
			}
			var res domain.EmailResult
			err = c.do(cmd.Context(), http.MethodPost, "/api/email/ingest", map[string]string{
				"message_id": msg.MessageID,
				"from_email": msg.From,
				"to_email":   msg.To,
				"subject":    msg.Subject,
				"body":       msg.Body,
			}, &res)
			if err != nil {
				return err
			}
			return printEmailResult(cmd, &res)
		},
	}

	gf.register(cmd, 20*time.Second)
	cmd.Flags().StringVar(&gf.company, "company", "", "company id to escalate under")
	return cmd
}

func printEmailResult(cmd *cobra.Command, res *domain.EmailResult) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s", res.MessageID, res.Status)
	if res.TenantID != "" {
		fmt.Fprintf(out, " (company %s)", res.TenantID)
	}
	fmt.Fprintln(out)
	if res.Preview != nil {
		return printJSON(out, res.Preview)
	}
	return nil
}
