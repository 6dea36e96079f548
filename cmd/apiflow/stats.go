package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/apiflow/pkg/cli"
	"mercator-hq/apiflow/pkg/control"
)

var statsFlags struct {
	clear  bool
	format string
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-upstream request statistics",
	Long: `Show request totals per upstream since the process started or since the
last reset.

Examples:
  apiflow stats
  apiflow stats --format csv
  apiflow stats --clear`,
	RunE: showStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().BoolVar(&statsFlags.clear, "clear", false, "reset the statistics")
	statsCmd.Flags().StringVar(&statsFlags.format, "format", "text", "output format: text, json, csv")
}

func showStats(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(statsFlags.format, cli.FormatText, cli.FormatJSON, cli.FormatCSV)
	if err != nil {
		return err
	}

	return withClient(cmd.Context(), func(ctx context.Context, client *control.Client) error {
		if statsFlags.clear {
			if err := client.ResetStats(ctx); err != nil {
				return cli.NewCommandError("stats", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Statistics reset")
			return nil
		}

		stats, err := client.Stats(ctx)
		if err != nil {
			return cli.NewCommandError("stats", err)
		}
		if format == cli.FormatJSON {
			return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), stats)
		}
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), statsTable(stats))
	})
}

func statsTable(stats *control.StatsResponse) cli.Table {
	t := cli.Table{Headers: []string{"UPSTREAM", "TOTAL", "SUCCESS", "ERRORS", "AVG"}}
	for _, u := range stats.Upstreams {
		name := u.UpstreamID
		if u.UpstreamLabel != "" {
			name = u.UpstreamLabel
		}
		avg := "-"
		if u.TotalRequests > 0 {
			avg = fmt.Sprintf("%dms", u.TotalDurationMs/u.TotalRequests)
		}
		t.Data = append(t.Data, []string{
			name,
			strconv.FormatInt(u.TotalRequests, 10),
			strconv.FormatInt(u.SuccessCount, 10),
			strconv.FormatInt(u.ErrorCount, 10),
			avg,
		})
	}
	return t
}
