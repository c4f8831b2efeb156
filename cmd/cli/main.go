package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/marcelsud/webhook-dispatch/config"
	"github.com/marcelsud/webhook-dispatch/delivery"
	"github.com/marcelsud/webhook-dispatch/internal/http/chi"
	"github.com/marcelsud/webhook-dispatch/ratelimit"
	ratelimitredis "github.com/marcelsud/webhook-dispatch/ratelimit/redis"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/marcelsud/webhook-dispatch/webhook/sqlstore"
	"github.com/spf13/cobra"
)

/*
CLI de operação do webhook-dispatch

Usa a mesma configuração (.env / variáveis de ambiente) da API:
  go run ./cmd/cli list
  go run ./cmd/cli test <webhook-id>
  go run ./cmd/cli fire payment.approved '{"amount":10}'
  go run ./cmd/cli reset-limit login:ip:10.0.0.1
*/

// app holds the services opened for one command run
type app struct {
	cfg     *config.Config
	repo    *sqlstore.Repository
	service *webhook.Service
	engine  *delivery.Engine
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}
	dialect, err := sqlstore.NewDialect(cfg.DatabaseDriver)
	if err != nil {
		return err
	}
	repo, err := sqlstore.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		return err
	}

	logger := chi.NewLogger(cfg.LogLevel)
	a.cfg = cfg
	a.repo = repo
	a.service = webhook.NewService(repo, webhook.Defaults{
		MaxRetries:        cfg.WebhookMaxRetries,
		RetryDelaySeconds: cfg.WebhookRetryDelaySeconds,
		TimeoutSeconds:    cfg.WebhookTimeoutSeconds,
		LogRetention:      cfg.LogRetention(),
	})
	a.engine = delivery.NewEngine(repo, delivery.NewSender(nil, cfg.ProductName), logger)
	return nil
}

func (a *app) close(ctx context.Context) {
	if a.engine != nil {
		_ = a.engine.Shutdown(ctx)
	}
	if a.repo != nil {
		_ = a.repo.Close(ctx)
	}
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:           "cli",
		Short:         "Operate registered webhooks, delivery logs and rate limits",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			a.close(context.Background())
		},
	}
	root.AddCommand(
		listCmd(a),
		statsCmd(a),
		logsCmd(a),
		testCmd(a),
		fireCmd(a),
		cleanupCmd(a),
		resetLimitCmd(a),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		a.close(context.Background())
		os.Exit(1)
	}
}

func listCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered webhooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, err := a.service.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATE\tEVENTS\tCALLS\tOK\tFAILED\tURL")
			for _, wh := range all {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					wh.ID, wh.Name, wh.State(), len(wh.Events), wh.TotalCalls, wh.SuccessCalls, wh.FailedCalls, wh.URL)
			}
			return w.Flush()
		},
	}
}

func statsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show today's delivery statistics (UTC)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := a.service.GetStats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}
}

func logsCmd(a *app) *cobra.Command {
	var (
		webhookID string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the most recent delivery attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logs, err := a.service.GetLogs(cmd.Context(), webhookID, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tWEBHOOK\tDELIVERY\tEVENT\tATTEMPT\tSTATUS\tHTTP\tERROR")
			for _, l := range logs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
					l.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), l.WebhookID, l.DeliveryID, l.Event,
					l.Attempt, l.Status, l.HTTPStatus, l.ErrorMessage)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&webhookID, "webhook", "", "only logs of this webhook id")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of rows")
	return cmd
}

func testCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test <webhook-id>",
		Short: "Send one synthetic payload, without logs or retries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.engine.Test(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func fireCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fire <event> [json-data]",
		Short: "Deliver an event to every subscribed webhook and wait for the outcome",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := webhook.NewEventType(args[0])
			if err != nil {
				return err
			}
			data := json.RawMessage(`{}`)
			if len(args) == 2 {
				data = json.RawMessage(args[1])
			}

			summary, err := a.engine.DeliverAll(cmd.Context(), event, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d webhook(s), %d succeeded, %d failed\n",
				event, summary.Scheduled, summary.Succeeded, summary.Failed)
			return nil
		},
	}
}

func cleanupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete delivery logs older than LOG_RETENTION_DAYS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deleted, err := a.service.CleanupOldLogs(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s log row(s)\n", strconv.FormatInt(deleted, 10))
			return nil
		},
	}
}

func resetLimitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-limit <route_id:ip|user:value>",
		Short: "Clear the rate-limit window of one scoped identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.RateLimiting() {
				return fmt.Errorf("rate limiting is %s: REDIS_ADDR is empty or RATE_LIMIT_ENABLED is false", ratelimit.Disabled)
			}
			client, err := ratelimitredis.Connect(cmd.Context(), a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
			if err != nil {
				return err
			}
			store := ratelimitredis.NewStore(client, ratelimitredis.DefaultPrefix)
			defer store.Close(cmd.Context())

			return resetWindow(cmd.Context(), store, cmd.OutOrStdout(), args[0])
		},
	}
}

// resetWindow reports how many requests the window held before clearing it
func resetWindow(ctx context.Context, store *ratelimitredis.Store, out io.Writer, identifier string) error {
	held, err := store.Markers(ctx, identifier)
	if err != nil {
		return err
	}
	if err := store.Reset(ctx, identifier); err != nil {
		return err
	}
	fmt.Fprintf(out, "reset %s (%d requests in window)\n", identifier, held)
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
