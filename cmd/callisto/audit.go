package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/callisto/pkg/audit"
	"mercator-hq/callisto/pkg/cli"
	"mercator-hq/callisto/pkg/config"
)

var auditFlags struct {
	since     string
	until     string
	provider  string
	requestID string
	result    string
	limit     int
}

var auditPruneFlags struct {
	days int
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List stored routing attempts",
	Long: `List routing attempts from the SQLite audit store, newest first.

Events carry provider, model, result, skip reason, failure kind, cost and
latency. Prompt and response text are never stored.

Examples:
  # Attempts from the last day
  callisto audit --since 24h

  # Failed attempts against one provider in a time range, as CSV
  callisto audit --provider openai-main --result failure \
    --since 2026-10-01T00:00:00Z --until 2026-10-02T00:00:00Z --output csv

  # Every attempt of one request
  callisto audit --request 0b7e8c1e-8d3f-4a57-9a43-2f1f3c9d4e11`,
	RunE: runAudit,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit events past retention",
	Long: `Delete audit events older than the retention period.

The period comes from audit.retention.days unless --days is given.

Examples:
  callisto audit prune
  callisto audit prune --days 7`,
	RunE: runAuditPrune,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditPruneCmd)

	auditCmd.Flags().StringVar(&auditFlags.since, "since", "", "earliest event time (RFC3339, or a lookback such as 24h or 7d)")
	auditCmd.Flags().StringVar(&auditFlags.until, "until", "", "latest event time (RFC3339, or a lookback)")
	auditCmd.Flags().StringVar(&auditFlags.provider, "provider", "", "filter by provider id")
	auditCmd.Flags().StringVar(&auditFlags.requestID, "request", "", "filter by request id")
	auditCmd.Flags().StringVar(&auditFlags.result, "result", "", "filter by result (success, failure, skipped)")
	auditCmd.Flags().IntVar(&auditFlags.limit, "limit", audit.DefaultQueryLimit, "maximum number of events")

	auditPruneCmd.Flags().IntVar(&auditPruneFlags.days, "days", 0, "retention in days (overrides the config)")
}

// parseTimeFlag accepts an RFC3339 timestamp or a lookback relative to now.
// Lookbacks take any time.ParseDuration value or a whole number of days
// such as "7d".
func parseTimeFlag(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err == nil && n >= 0 {
			return now.AddDate(0, 0, -n), nil
		}
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid time %q: expected RFC3339 or a lookback such as 24h or 7d", value)
	}
	return now.Add(-d), nil
}

// buildQuery turns the audit flags into a store query.
func buildQuery(now time.Time) (audit.Query, error) {
	since, err := parseTimeFlag(auditFlags.since, now)
	if err != nil {
		return audit.Query{}, err
	}
	until, err := parseTimeFlag(auditFlags.until, now)
	if err != nil {
		return audit.Query{}, err
	}

	result := audit.Result(auditFlags.result)
	switch result {
	case "", audit.ResultSuccess, audit.ResultFailure, audit.ResultSkipped:
	default:
		return audit.Query{}, fmt.Errorf("invalid result %q: expected success, failure or skipped", auditFlags.result)
	}

	return audit.Query{
		Since:      since,
		Until:      until,
		ProviderID: auditFlags.provider,
		RequestID:  auditFlags.requestID,
		Result:     result,
		Limit:      auditFlags.limit,
	}, nil
}

// eventTable renders audit events as a table.
type eventTable []audit.Event

func (t eventTable) Header() []string {
	return []string{"TIME", "REQUEST", "PROVIDER", "MODEL", "ATTEMPT", "RESULT", "REASON", "COST", "LATENCY"}
}

func (t eventTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, e := range t {
		reason := e.Reason
		if e.FailureKind != "" {
			reason = e.FailureKind
		}
		rows = append(rows, []string{
			e.Time.UTC().Format(time.RFC3339),
			e.RequestID,
			e.ProviderID,
			e.Model,
			strconv.Itoa(e.Attempt),
			string(e.Result),
			reason,
			fmt.Sprintf("%.4f", e.CostCents),
			e.Latency.String(),
		})
	}
	return rows
}

// openConfiguredStore opens the SQLite audit store named by the config.
func openConfiguredStore(cfg *config.Config) (*audit.SQLiteSink, error) {
	if cfg.Audit.Sink != "sqlite" {
		return nil, cli.NewExitError(cli.ExitConfigError,
			fmt.Errorf("audit queries need audit.sink: sqlite (configured: %s)", cfg.Audit.Sink))
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	return openAuditStore(cfg, logger)
}

func runAudit(cmd *cobra.Command, args []string) error {
	query, err := buildQuery(time.Now())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openConfiguredStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.Query(cmd.Context(), query)
	if err != nil {
		return fmt.Errorf("failed to query audit store: %w", err)
	}

	f, err := formatter()
	if err != nil {
		return err
	}
	if len(events) == 0 && outputFormat == string(cli.FormatText) {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching events")
		return nil
	}
	return f.FormatTo(cmd.OutOrStdout(), eventTable(events))
}

func runAuditPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openConfiguredStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	days := cfg.Audit.Retention.Days
	if auditPruneFlags.days > 0 {
		days = auditPruneFlags.days
	}

	if days <= 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Retention disabled, nothing pruned")
		return nil
	}

	deleted, err := audit.NewPruner(store, days, slog.Default()).Prune(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to prune audit store: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d events older than %d days\n", deleted, days)
	return nil
}
