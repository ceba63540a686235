package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"mercator-hq/callisto/pkg/cli"
	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/telemetry/logging"
)

var validateFlags struct {
	watch bool
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Validate the configuration file and report every problem found.

Router rules (credentials, positive daily caps, enabled providers) are only
checked when the router is enabled. Audit, ledger and telemetry sections are
always checked.

Examples:
  # Validate the default config
  callisto validate

  # Validate a TOML config and print the report as JSON
  callisto validate --config callisto.toml --output json

  # Keep running and report each accepted reload
  callisto validate --watch`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateFlags.watch, "watch", false, "watch the file and log each reload that passes validation")
}

// validationReport is the result of validating one configuration file.
type validationReport struct {
	Path     string   `json:"path" yaml:"path"`
	Valid    bool     `json:"valid" yaml:"valid"`
	Enabled  bool     `json:"router_enabled" yaml:"router_enabled"`
	Problems []string `json:"problems,omitempty" yaml:"problems,omitempty"`
}

// validateConfig checks cfg and collects every problem.
func validateConfig(path string, cfg *config.Config) validationReport {
	report := validationReport{
		Path:    path,
		Valid:   true,
		Enabled: cfg.Router.IsEnabled(),
	}

	if err := config.Validate(cfg); err != nil {
		report.Valid = false
		var verr config.ValidationError
		if errors.As(err, &verr) {
			report.Problems = verr.Messages()
		} else {
			report.Problems = []string{err.Error()}
		}
	}
	return report
}

func writeReport(w io.Writer, report validationReport) error {
	if outputFormat != string(cli.FormatText) {
		f, err := formatter()
		if err != nil {
			return err
		}
		return f.FormatTo(w, report)
	}

	if report.Valid {
		fmt.Fprintf(w, "✓ Configuration valid: %s\n", report.Path)
		if !report.Enabled {
			fmt.Fprintln(w, "  router is disabled; all requests will be rejected")
		}
		return nil
	}

	fmt.Fprintf(w, "✗ Configuration invalid: %s (%d problems)\n", report.Path, len(report.Problems))
	for _, p := range report.Problems {
		fmt.Fprintf(w, "  - %s\n", p)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	report := validateConfig(cfgFile, cfg)
	if err := writeReport(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if !report.Valid {
		return cli.NewExitError(cli.ExitConfigError, nil)
	}
	if !validateFlags.watch {
		return nil
	}

	logger, err := logging.New(logging.FromConfig(cfg))
	if err != nil {
		return cli.NewExitError(cli.ExitConfigError, err)
	}

	ctx, cancel := cli.SetupSignalHandler()
	defer cancel()

	w, err := config.NewWatcher(cfgFile, 0, logger)
	if err != nil {
		return err
	}
	defer w.Stop()

	return w.Watch(ctx, func(reloaded *config.Config) {
		_ = writeReport(cmd.OutOrStdout(), validateConfig(cfgFile, reloaded))
	})
}
