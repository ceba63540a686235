package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/callisto/pkg/cli"
	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/ledger"
	"mercator-hq/callisto/pkg/ledger/storage"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show persisted budget windows",
	Long: `Show the budget window of every provider as last saved by a running router.

Windows are read from the ledger snapshot store (ledger.backend: sqlite).
A window that has already closed is shown as expired; the next router start
begins a fresh window for it.

Examples:
  callisto budget
  callisto budget --output json`,
	RunE: runBudget,
}

func init() {
	rootCmd.AddCommand(budgetCmd)
}

// budgetWindow is one persisted window with its derived fields.
type budgetWindow struct {
	ProviderID  string    `json:"provider_id" yaml:"provider_id"`
	Cap         float64   `json:"cap_cents" yaml:"cap_cents"`
	Used        float64   `json:"used_cents" yaml:"used_cents"`
	Remaining   float64   `json:"remaining_cents" yaml:"remaining_cents"`
	WindowStart time.Time `json:"window_start" yaml:"window_start"`
	Reset       time.Time `json:"reset" yaml:"reset"`
	Expired     bool      `json:"expired" yaml:"expired"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// budgetWindows builds the report rows. Caps come from the current config
// when the provider is still configured, otherwise from the snapshot.
func budgetWindows(states []*storage.WindowState, cfg *config.Config, now time.Time) []budgetWindow {
	window := cfg.Router.Window
	if window <= 0 {
		window = ledger.DefaultWindow
	}

	out := make([]budgetWindow, 0, len(states))
	for _, s := range states {
		limit := s.Cap
		if p, ok := cfg.Providers[s.ProviderID]; ok {
			limit = p.DailyCap
		} else if s.ProviderID == ledger.GlobalID && cfg.Router.GlobalDailyCap > 0 {
			limit = cfg.Router.GlobalDailyCap
		}

		w := budgetWindow{
			ProviderID:  s.ProviderID,
			Cap:         limit,
			Used:        s.Accumulated,
			WindowStart: s.WindowStart,
			Reset:       s.WindowStart.Add(window),
			UpdatedAt:   s.UpdatedAt,
		}
		w.Expired = !s.WindowStart.IsZero() && !now.Before(w.Reset)
		if w.Expired {
			w.Used = 0
		}
		w.Remaining = max(w.Cap-w.Used, 0)
		out = append(out, w)
	}
	return out
}

// budgetTable renders budget windows as a table.
type budgetTable []budgetWindow

func (t budgetTable) Header() []string {
	return []string{"PROVIDER", "CAP", "USED", "REMAINING", "WINDOW START", "RESET", "STATE"}
}

func (t budgetTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, w := range t {
		state := "active"
		switch {
		case w.WindowStart.IsZero():
			state = "unused"
		case w.Expired:
			state = "expired"
		case w.Remaining == 0:
			state = "exhausted"
		}
		rows = append(rows, []string{
			w.ProviderID,
			fmt.Sprintf("%.2f", w.Cap),
			fmt.Sprintf("%.4f", w.Used),
			fmt.Sprintf("%.4f", w.Remaining),
			formatTime(w.WindowStart),
			formatTime(w.Reset),
			state,
		})
	}
	return rows
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func runBudget(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Ledger.Backend != "sqlite" {
		return cli.NewExitError(cli.ExitConfigError,
			fmt.Errorf("budget windows are only persisted with ledger.backend: sqlite (configured: %s)", cfg.Ledger.Backend))
	}

	backend, err := openLedgerBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	states, err := backend.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list budget windows: %w", err)
	}

	f, err := formatter()
	if err != nil {
		return err
	}
	if len(states) == 0 && outputFormat == string(cli.FormatText) {
		fmt.Fprintln(cmd.OutOrStdout(), "No budget windows saved yet")
		return nil
	}
	return f.FormatTo(cmd.OutOrStdout(), budgetTable(budgetWindows(states, cfg, time.Now())))
}
