package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/apiflow/pkg/archive"
	"mercator-hq/apiflow/pkg/archive/export"
	"mercator-hq/apiflow/pkg/archive/storage"
	"mercator-hq/apiflow/pkg/cli"
	"mercator-hq/apiflow/pkg/control"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Work with the request archive",
}

var exportFlags struct {
	format  string
	since   string
	until   string
	service string
	port    int
	status  string
	limit   int
	output  string
	direct  bool
}

var archiveExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export archived requests as CSV or JSON",
	Long: `Export archived requests, newest first.

By default the export is fetched from the running instance's control API.
With --direct the archive database is read from disk instead, which
works while the gateway is not running.

Examples:
  # Everything since the start of the day as CSV
  apiflow archive export --format csv --since 2025-11-20T00:00:00Z

  # The last 100 errors of one service into a file
  apiflow archive export --service billing --status error --limit 100 -o errors.json

  # Read the database directly
  apiflow archive export --direct`,
	RunE: exportArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveExportCmd)

	f := archiveExportCmd.Flags()
	f.StringVar(&exportFlags.format, "format", export.FormatJSON, "output format: json, csv")
	f.StringVar(&exportFlags.since, "since", "", "only requests started at or after this RFC3339 time")
	f.StringVar(&exportFlags.until, "until", "", "only requests started at or before this RFC3339 time")
	f.StringVar(&exportFlags.service, "service", "", "only requests routed to this service")
	f.IntVar(&exportFlags.port, "port", 0, "only requests on this listen port")
	f.StringVar(&exportFlags.status, "status", "", "only success or error requests")
	f.IntVar(&exportFlags.limit, "limit", 0, "maximum number of requests")
	f.StringVarP(&exportFlags.output, "output", "o", "", "write to file instead of stdout")
	f.BoolVar(&exportFlags.direct, "direct", false, "read the archive database directly")
}

func exportArchive(cmd *cobra.Command, args []string) error {
	q, err := exportQuery()
	if err != nil {
		return cli.NewConfigError("query", err.Error())
	}
	if err := archive.Validate(q); err != nil {
		return cli.NewConfigError("query", err.Error())
	}
	if _, err := export.ForFormat(exportFlags.format); err != nil {
		return cli.NewConfigError("format", err.Error())
	}

	var w io.Writer = cmd.OutOrStdout()
	if exportFlags.output != "" {
		f, err := os.Create(exportFlags.output)
		if err != nil {
			return cli.NewCommandError("archive export", err)
		}
		defer f.Close()
		w = f
	}

	if exportFlags.direct {
		err = exportDirect(cmd, q, w)
	} else {
		err = withClient(cmd.Context(), func(ctx context.Context, client *control.Client) error {
			return client.Archive(ctx, q, exportFlags.format, w)
		})
	}
	if err != nil {
		return cli.NewCommandError("archive export", err)
	}
	if exportFlags.output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Export written to %s\n", exportFlags.output)
	}
	return nil
}

func exportDirect(cmd *cobra.Command, q *archive.Query, w io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := storage.Open(cfg.Archive)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	exporter, err := export.ForFormat(exportFlags.format)
	if err != nil {
		return err
	}
	return exporter.Export(cmd.Context(), entries, w)
}

func exportQuery() (*archive.Query, error) {
	q := &archive.Query{
		ServiceName: exportFlags.service,
		ListenPort:  exportFlags.port,
		Status:      exportFlags.status,
		Limit:       exportFlags.limit,
	}
	if exportFlags.since != "" {
		t, err := time.Parse(time.RFC3339, exportFlags.since)
		if err != nil {
			return nil, fmt.Errorf("invalid --since: %w", err)
		}
		q.Since = &t
	}
	if exportFlags.until != "" {
		t, err := time.Parse(time.RFC3339, exportFlags.until)
		if err != nil {
			return nil, fmt.Errorf("invalid --until: %w", err)
		}
		q.Until = &t
	}
	return q, nil
}
