/*
Package cli provides helpers shared by the apiflow commands.

Commands print results in text, JSON or CSV. Values implementing Tabular are
rendered as aligned columns in text and as rows in CSV; anything else falls
back to fmt or JSON:

	formatter := cli.NewFormatter(cli.OutputFormat(format))
	if err := formatter.FormatTo(os.Stdout, cli.Table{Headers: h, Data: rows}); err != nil {
		return err
	}

Errors returned from commands map to process exit codes with ExitCode.

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
