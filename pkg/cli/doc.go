/*
Package cli provides command-line helpers for the admission command.

Output Formatting:

Command results can be printed as aligned text, JSON or CSV. Values that
implement Table are rendered as columns:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, summary); err != nil {
		return err
	}

Progress Reporting:

	progress := cli.NewProgress(os.Stderr, int64(n))
	for i := 0; i < n; i++ {
		progress.Record(take())
	}
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

Errors:

ConfigError and CommandError wrap failures; ExitCode maps them to process
exit codes.
*/
package cli
