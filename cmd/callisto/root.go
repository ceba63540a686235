package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"mercator-hq/callisto/pkg/cli"
)

var (
	// Global flags
	cfgFile      string
	verbose      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "callisto",
	Short: "Callisto - budget-aware LLM request router",
	Long: `Callisto routes LLM requests across configured model providers.

Every request passes through:
  - PII redaction of the outbound text
  - Per-provider and global daily budget reservation
  - Per-provider circuit breakers and rate limits
  - Retries on transient failures and fallback to the next provider

Attempts are written to a sanitized audit trail that never contains prompt
or response text.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the code carried by the
// returned error.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) || exitErr.Err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	os.Exit(cli.ExitCode(err))
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "callisto.yaml", "config file path (.yaml or .toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", string(cli.FormatText), "output format (text, json, yaml, csv)")
}

// formatter returns the formatter selected by --output.
func formatter() (cli.Formatter, error) {
	f, err := cli.NewFormatter(cli.OutputFormat(outputFormat))
	if err != nil {
		return nil, cli.NewExitError(cli.ExitFailure, err)
	}
	return f, nil
}
