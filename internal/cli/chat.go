package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/logging"
	"github.com/soyeahso/triage/internal/store"
	"github.com/soyeahso/triage/internal/triage"
	"github.com/spf13/cobra"
)

// chatFunc sends one message and returns the assistant's turn.
type chatFunc func(ctx context.Context, sessionID, message string) (*domain.ChatResult, error)

func newChatCmd() *cobra.Command {
	var (
		company   string
		sessionID string
		remote    string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive support session in the terminal",
		Long: "Start an interactive support session. By default the session runs in-process against the " +
			"configured session store; --remote sends each turn to a running gateway instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if logLevel == "" {
				log = logging.New(nil, "warn")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var send chatFunc
			if remote != "" {
				send = remoteChat(newAPIClient(remote, company, cfg.Gateway.RequestTimeout()+5*time.Second, false))
			} else {
				if err := paths.EnsureDirs(); err != nil {
					return err
				}
				st, err := store.New(ctx, cfg.StoreConfig(paths.Data), log)
				if err != nil {
					return fmt.Errorf("opening session store: %w", err)
				}
				defer st.Close()
				tenants, err := cfg.TenantRegistry()
				if err != nil {
					return err
				}
				send = localChat(triage.NewService(st, tenants, log), company)
			}

			return runChat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), send, sessionID)
		},
	}

	cmd.Flags().StringVar(&company, "company", "", "company id to escalate under")
	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session")
	cmd.Flags().StringVar(&remote, "remote", "", "gateway URL, e.g. http://127.0.0.1:8080")

	return cmd
}

func localChat(svc *triage.Service, company string) chatFunc {
	return func(ctx context.Context, sessionID, message string) (*domain.ChatResult, error) {
		return svc.Chat(ctx, triage.ChatInput{
			SessionID:    sessionID,
			Message:      message,
			HeaderTenant: company,
		})
	}
}

func remoteChat(c *apiClient) chatFunc {
	return func(ctx context.Context, sessionID, message string) (*domain.ChatResult, error) {
		var res domain.ChatResult
		err := c.do(ctx, http.MethodPost, "/api/chat", map[string]string{
			"session_id": sessionID,
			"message":    message,
		}, &res)
		if err != nil {
			return nil, err
		}
		return &res, nil
	}
}

// runChat reads one message per line until EOF or /quit.
func runChat(ctx context.Context, in io.Reader, out io.Writer, send chatFunc, sessionID string) error {
	fmt.Fprintln(out, "Describe the problem. Type /quit to leave.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		res, err := send(ctx, sessionID, line)
		var apiErr *apiError
		switch {
		case errors.Is(err, triage.ErrInvalidInput),
			errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError:
			fmt.Fprintf(out, "! %v\n", err)
			continue
		case err != nil:
			return err
		}

		if sessionID == "" {
			fmt.Fprintf(out, "(session %s)\n", res.SessionID)
		}
		sessionID = res.SessionID
		fmt.Fprintln(out, res.Reply)
		if res.Preview != nil {
			fmt.Fprintln(out, "\nEscalation preview:")
			if err := printJSON(out, res.Preview); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}
