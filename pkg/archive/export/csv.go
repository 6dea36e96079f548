package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"mercator-hq/apiflow/pkg/archive"
	"mercator-hq/apiflow/pkg/logstore"
)

// CSVExporter writes one row per entry. Captured headers and bodies are
// left out; the attempt trail is a JSON column.
type CSVExporter struct {
	IncludeHeader bool
}

// NewCSVExporter creates a CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// ContentType returns the MIME type of the output.
func (e *CSVExporter) ContentType() string {
	return "text/csv; charset=utf-8"
}

// Export writes entries as CSV.
func (e *CSVExporter) Export(ctx context.Context, entries []*logstore.Entry, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return archive.NewExportError("csv", len(entries), err)
		}
	}

	for i, entry := range entries {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return archive.NewExportError("csv", len(entries), err)
			}
		}
		row, err := entryToRow(entry)
		if err != nil {
			return archive.NewExportError("csv", len(entries), err)
		}
		if err := writer.Write(row); err != nil {
			return archive.NewExportError("csv", len(entries), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return archive.NewExportError("csv", len(entries), err)
	}
	return nil
}

var csvHeader = []string{
	"id", "started_at", "timestamp", "method", "path",
	"listen_port", "service_name", "base_path",
	"route_key", "upstream_id", "upstream_url", "upstream_label",
	"status", "duration_ms", "error", "is_streaming", "client_ip",
	"retry_action", "attempts",
}

func entryToRow(e *logstore.Entry) ([]string, error) {
	status := ""
	if e.Status != nil {
		status = strconv.Itoa(*e.Status)
	}

	attempts := ""
	if len(e.Attempts) > 0 {
		data, err := json.Marshal(e.Attempts)
		if err != nil {
			return nil, err
		}
		attempts = string(data)
	}

	return []string{
		e.ID,
		e.StartedAt.UTC().Format(time.RFC3339Nano),
		e.Timestamp,
		e.Method,
		e.Path,
		strconv.Itoa(e.ListenPort),
		e.ServiceName,
		e.BasePath,
		e.RouteKey,
		e.UpstreamID,
		e.UpstreamURL,
		e.UpstreamLabel,
		status,
		strconv.FormatInt(e.DurationMs, 10),
		e.Error,
		strconv.FormatBool(e.IsStreaming),
		e.ClientIP,
		e.RetryAction,
		attempts,
	}, nil
}
