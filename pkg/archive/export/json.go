package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"mercator-hq/apiflow/pkg/archive"
	"mercator-hq/apiflow/pkg/logstore"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// JSONExporter writes entries as a JSON array using the log API field names.
type JSONExporter struct {
	Pretty bool
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// ContentType returns the MIME type of the output.
func (e *JSONExporter) ContentType() string {
	return "application/json"
}

// Export writes entries as a JSON array. No entries produce "[]".
func (e *JSONExporter) Export(ctx context.Context, entries []*logstore.Entry, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return archive.NewExportError("json", len(entries), err)
	}
	if entries == nil {
		entries = []*logstore.Entry{}
	}

	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(entries); err != nil {
		return archive.NewExportError("json", len(entries), err)
	}
	return nil
}

// ForFormat returns the exporter for "json" or "csv".
func ForFormat(format string) (archive.Exporter, error) {
	switch format {
	case "", FormatJSON:
		return NewJSONExporter(true), nil
	case FormatCSV:
		return NewCSVExporter(true), nil
	default:
		return nil, archive.NewExportError(format, 0, fmt.Errorf("%w %q (must be 'json' or 'csv')", archive.ErrUnsupportedFormat, format))
	}
}
