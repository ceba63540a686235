/*
Package cli provides helpers shared by the callisto commands.

Output Formatting:

Command results render as text, JSON, YAML or CSV. Values implementing
Table render as aligned columns in text mode and as rows in CSV mode:

	formatter, err := cli.NewFormatter(cli.OutputFormat(format))
	if err != nil {
		return err
	}
	return formatter.FormatTo(cmd.OutOrStdout(), result)

Exit Codes:

ExitError carries a process exit code. StatusExitCode maps a route outcome
status to the code the route and batch commands exit with.

Progress Reporting:

The batch command reports progress on stderr:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(total)
	progress.Increment()
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
