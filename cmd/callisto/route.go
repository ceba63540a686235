package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"mercator-hq/callisto/pkg/cli"
	"mercator-hq/callisto/pkg/router"
)

var routeFlags struct {
	prompt     string
	file       string
	id         string
	model      string
	maxCost    float64
	minQuality float64
	maxTokens  int
}

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Route a single request",
	Long: `Route a single request through the configured providers and print the outcome.

The prompt is redacted before it leaves the process. The exit code reflects
the outcome status: 0 success, 2 configuration error, 3 no provider
available, 4 redaction failed, 5 router disabled, 130 canceled.

Examples:
  # Route an inline prompt
  callisto route --prompt "Draft a tenant notice"

  # Route a prompt read from stdin, limited to 2 cents
  cat prompt.txt | callisto route --file - --max-cost 2

  # Require a specific model and a quality floor, print JSON
  callisto route --prompt "Hello" --model gpt-4o --min-quality 7 --output json`,
	RunE: runRoute,
}

func init() {
	rootCmd.AddCommand(routeCmd)

	routeCmd.Flags().StringVarP(&routeFlags.prompt, "prompt", "p", "", "prompt text")
	routeCmd.Flags().StringVarP(&routeFlags.file, "file", "f", "", "read the prompt from a file (- for stdin)")
	routeCmd.Flags().StringVar(&routeFlags.id, "id", "", "request id (generated when empty)")
	routeCmd.Flags().StringVarP(&routeFlags.model, "model", "m", "", "preferred model")
	routeCmd.Flags().Float64Var(&routeFlags.maxCost, "max-cost", 0, "largest estimated cost accepted, in cents (0 = no ceiling)")
	routeCmd.Flags().Float64Var(&routeFlags.minQuality, "min-quality", 0, "minimum provider quality score (0-10)")
	routeCmd.Flags().IntVar(&routeFlags.maxTokens, "max-tokens", 0, "completion token limit (0 = provider limit)")
	routeCmd.MarkFlagsMutuallyExclusive("prompt", "file")
}

// readPrompt returns the prompt from --prompt or --file.
func readPrompt(stdin io.Reader) (string, error) {
	switch {
	case routeFlags.prompt != "":
		return routeFlags.prompt, nil
	case routeFlags.file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	case routeFlags.file != "":
		data, err := os.ReadFile(routeFlags.file)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	default:
		return "", fmt.Errorf("either --prompt or --file is required")
	}
}

func runRoute(cmd *cobra.Command, args []string) error {
	text, err := readPrompt(cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := cli.SetupSignalHandler()
	defer cancel()

	outcome := a.router().Route(ctx, router.Request{
		ID:           routeFlags.id,
		Text:         text,
		Model:        routeFlags.model,
		MaxCostCents: routeFlags.maxCost,
		MinQuality:   routeFlags.minQuality,
		MaxTokens:    routeFlags.maxTokens,
	})

	if err := writeOutcome(cmd.OutOrStdout(), outcome); err != nil {
		return err
	}

	code := cli.StatusExitCode(string(outcome.Status))
	if code == cli.ExitOK {
		return nil
	}
	return cli.NewExitError(code, outcome.Err)
}

// outcomeView is the serialized form of an outcome, with the error text.
type outcomeView struct {
	router.Outcome `yaml:",inline"`
	Error          string `json:"error,omitempty" yaml:"error,omitempty"`
}

func writeOutcome(w io.Writer, o *router.Outcome) error {
	if outputFormat != string(cli.FormatText) {
		f, err := formatter()
		if err != nil {
			return err
		}
		if cli.OutputFormat(outputFormat) == cli.FormatCSV {
			return f.FormatTo(w, attemptTable(o.Attempts))
		}
		return f.FormatTo(w, outcomeView{Outcome: *o, Error: o.Error()})
	}

	fmt.Fprintf(w, "Status:     %s\n", o.Status)
	fmt.Fprintf(w, "Request ID: %s\n", o.RequestID)
	if o.ProviderID != "" {
		fmt.Fprintf(w, "Provider:   %s (%s)\n", o.ProviderID, o.Model)
	}
	fmt.Fprintf(w, "Cost:       %.4f cents\n", o.CostCents)
	fmt.Fprintf(w, "Latency:    %s\n", o.Latency)
	if o.Redactions > 0 {
		fmt.Fprintf(w, "Redactions: %d\n", o.Redactions)
	}
	if o.Err != nil {
		fmt.Fprintf(w, "Error:      %v\n", o.Err)
	}

	if len(o.Attempts) > 0 {
		fmt.Fprintln(w)
		if err := (&cli.TextFormatter{}).FormatTo(w, attemptTable(o.Attempts)); err != nil {
			return err
		}
	}

	if o.Response != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, o.Response.Text)
	}
	return nil
}

// attemptTable renders attempt records as a table.
type attemptTable []router.AttemptRecord

func (t attemptTable) Header() []string {
	return []string{"PROVIDER", "MODEL", "ATTEMPT", "RESULT", "REASON", "COST", "ESTIMATE", "LATENCY"}
}

func (t attemptTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, a := range t {
		reason := a.Reason
		if a.FailureKind != "" {
			reason = string(a.FailureKind)
		}
		rows = append(rows, []string{
			a.ProviderID,
			a.Model,
			fmt.Sprintf("%d", a.Attempt),
			a.Result,
			reason,
			fmt.Sprintf("%.4f", a.CostCents),
			fmt.Sprintf("%.4f", a.EstimateCents),
			a.Latency.String(),
		})
	}
	return rows
}
