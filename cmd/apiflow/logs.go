package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/apiflow/pkg/cli"
	"mercator-hq/apiflow/pkg/control"
	"mercator-hq/apiflow/pkg/logstore"
)

var logsFlags struct {
	limit  int
	port   int
	clear  bool
	format string
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent gateway requests",
	Long: `Show the most recent gateway requests, newest first.

Examples:
  # Last 20 requests
  apiflow logs --limit 20

  # Requests on port 8080 as JSON
  apiflow logs --port 8080 --format json

  # Clear the request log
  apiflow logs --clear`,
	RunE: showLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsFlags.limit, "limit", "n", control.DefaultLogLimit, "maximum number of entries")
	logsCmd.Flags().IntVar(&logsFlags.port, "port", 0, "only entries recorded on this listen port")
	logsCmd.Flags().BoolVar(&logsFlags.clear, "clear", false, "clear the request log")
	logsCmd.Flags().StringVar(&logsFlags.format, "format", "text", "output format: text, json")
}

func showLogs(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(logsFlags.format, cli.FormatText, cli.FormatJSON)
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}

	if logsFlags.clear {
		if err := client.ClearLogs(cmd.Context()); err != nil {
			return clientError("logs", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Request log cleared")
		return nil
	}

	entries, err := client.Logs(cmd.Context(), logsFlags.port, logsFlags.limit)
	if err != nil {
		return clientError("logs", err)
	}
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), entries)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), logTable(entries))
}

// logTable renders entries as the columns of the desktop log view.
func logTable(entries []logstore.Entry) cli.Table {
	t := cli.Table{Headers: []string{"TIME", "PORT", "METHOD", "PATH", "SERVICE", "UPSTREAM", "STATUS", "DURATION", "NOTE"}}
	for _, e := range entries {
		status := "-"
		switch {
		case e.InFlight:
			status = "…"
		case e.Status != nil:
			status = strconv.Itoa(*e.Status)
		}

		upstream := e.UpstreamLabel
		if upstream == "" {
			upstream = e.UpstreamID
		}

		note := e.Error
		if note == "" && e.RetryAction != "" {
			note = e.RetryAction
		}
		if e.IsStreaming {
			if note != "" {
				note = "stream, " + note
			} else {
				note = "stream"
			}
		}

		t.Data = append(t.Data, []string{
			e.Timestamp,
			strconv.Itoa(e.ListenPort),
			e.Method,
			e.Path,
			dash(e.ServiceName),
			dash(upstream),
			status,
			fmt.Sprintf("%dms", e.DurationMs),
			note,
		})
	}
	return t
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
