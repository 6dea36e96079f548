package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/apiflow/pkg/cli"
	"mercator-hq/apiflow/pkg/config"
	"mercator-hq/apiflow/pkg/control"
	"mercator-hq/apiflow/pkg/gateway"
	"mercator-hq/apiflow/pkg/logstore"
	"mercator-hq/apiflow/pkg/routing"
	"mercator-hq/apiflow/pkg/settings"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Flag variables outlive a single Execute.
	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	envFile = ""
	controlAddr = ""
	token = ""
	verbose = false
	versionShort = false
	validateFlags.settingsPath = ""
	logsFlags.clear, logsFlags.port, logsFlags.format = false, 0, "text"
	statsFlags.clear, statsFlags.format = false, "text"
	statusFlags.format = "text"
	exportFlags.direct, exportFlags.output = false, ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", cfgFile}, args...))
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), err
}

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "ApiFlow "+Version) {
		t.Errorf("output = %q, want version line", out)
	}

	out, err = execute(t, "version", "--short")
	if err != nil {
		t.Fatalf("version --short: %v", err)
	}
	if out != Version+"\n" {
		t.Errorf("short output = %q, want %q", out, Version+"\n")
	}
}

func TestValidateCommand(t *testing.T) {
	valid := `{"listenPort": 8080, "services": [{"id": "openai", "name": "OpenAI",
		"basePath": "/openai", "enabled": true,
		"upstreams": [{"id": "primary", "upstreamBase": "https://api.example.com", "priority": 1, "enabled": true}]}]}`
	invalid := `{"listenPort": 0, "services": []}`

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantOut  string
	}{
		{name: "valid settings", path: writeSettings(t, valid), wantCode: cli.ExitOK, wantOut: "Settings valid: port 8080, 1 services"},
		{name: "invalid settings", path: writeSettings(t, invalid), wantCode: cli.ExitInvalidConfig, wantOut: "listenPort"},
		{name: "missing settings", path: filepath.Join(t.TempDir(), "none.json"), wantCode: cli.ExitOK, wantOut: "No settings file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "validate", tt.path)
			if got := cli.ExitCode(err); got != tt.wantCode {
				t.Errorf("ExitCode = %d, want %d (err: %v)", got, tt.wantCode, err)
			}
			if !strings.Contains(out, tt.wantOut) {
				t.Errorf("output = %q, want it to contain %q", out, tt.wantOut)
			}
		})
	}
}

func TestLogTable(t *testing.T) {
	done := logstore.NewEntry("a", time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local))
	done.ListenPort = 8080
	done.Method = "POST"
	done.Path = "/openai/v1/chat"
	done.ServiceName = "OpenAI"
	done.UpstreamID = "primary"
	done.UpstreamLabel = "Primary"
	done.SetStatus(200)
	done.DurationMs = 42
	done.IsStreaming = true
	done.RetryAction = logstore.RetryActionFallback

	pending := logstore.NewEntry("b", time.Now())
	pending.InFlight = true

	failed := logstore.NewEntry("c", time.Now())
	failed.Error = "all upstreams failed"

	table := logTable([]logstore.Entry{done, pending, failed})
	if len(table.Rows()) != 3 {
		t.Fatalf("rows = %d, want 3", len(table.Rows()))
	}

	row := table.Rows()[0]
	want := []string{"2025-01-02 03:04:05", "8080", "POST", "/openai/v1/chat", "OpenAI", "Primary", "200", "42ms", "stream, fallback"}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("row[%d] = %q, want %q", i, row[i], want[i])
		}
	}
	if got := table.Rows()[1][6]; got != "…" {
		t.Errorf("in-flight status = %q, want …", got)
	}
	if got := table.Rows()[2]; got[6] != "-" || got[8] != "all upstreams failed" {
		t.Errorf("failed row = %v", got)
	}
}

func TestStatsTable(t *testing.T) {
	table := statsTable(&control.StatsResponse{Upstreams: []routing.UpstreamStats{
		{UpstreamID: "a", UpstreamLabel: "Primary", TotalRequests: 4, SuccessCount: 3, ErrorCount: 1, TotalDurationMs: 400},
		{UpstreamID: "b"},
	}})

	rows := table.Rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if got := strings.Join(rows[0], " "); got != "Primary 4 3 1 100ms" {
		t.Errorf("row 0 = %q", got)
	}
	if got := strings.Join(rows[1], " "); got != "b 0 0 0 -" {
		t.Errorf("row 1 = %q", got)
	}
}

func TestExportQuery(t *testing.T) {
	exportFlags.since = "2025-11-20T00:00:00Z"
	exportFlags.until = ""
	exportFlags.service = "billing"
	exportFlags.limit = 10
	t.Cleanup(func() {
		exportFlags.since, exportFlags.service, exportFlags.limit = "", "", 0
	})

	q, err := exportQuery()
	if err != nil {
		t.Fatal(err)
	}
	if q.Since == nil || !q.Since.Equal(time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Since = %v", q.Since)
	}
	if q.ServiceName != "billing" || q.Limit != 10 {
		t.Errorf("query = %+v", q)
	}

	exportFlags.since = "yesterday"
	if _, err := exportQuery(); err == nil {
		t.Error("exportQuery() with bad --since returned nil error")
	}
}

func TestClientCommands(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gateway.BindHost = "127.0.0.1"
	store, err := settings.NewStore(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	mgr := gateway.New(cfg)
	api := control.New(mgr, store, control.Options{CORS: cfg.Control.CORS})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		srv.Close()
		mgr.Stop(context.Background())
	})

	out, err := execute(t, "status", "--addr", srv.URL)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "○ stopped") {
		t.Errorf("status output = %q", out)
	}

	out, err = execute(t, "stop", "--addr", srv.URL)
	if err != nil {
		t.Fatalf("stop on a stopped gateway: %v", err)
	}
	if !strings.Contains(out, "stopped") {
		t.Errorf("stop output = %q", out)
	}

	out, err = execute(t, "logs", "--addr", srv.URL)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if !strings.Contains(out, "METHOD") {
		t.Errorf("logs output = %q, want header", out)
	}

	if _, err := execute(t, "logs", "--clear", "--addr", srv.URL); err != nil {
		t.Fatalf("logs --clear: %v", err)
	}
	if _, err := execute(t, "stats", "--format", "csv", "--addr", srv.URL); err != nil {
		t.Fatalf("stats: %v", err)
	}

	// No archive is configured on this instance.
	if _, err := execute(t, "archive", "export", "--addr", srv.URL); err == nil {
		t.Error("archive export without an archive returned nil error")
	}
}

func TestStatusUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := execute(t, "status", "--addr", addr)
	if got := cli.ExitCode(err); got != cli.ExitUnavailable {
		t.Errorf("ExitCode = %d, want %d (err: %v)", got, cli.ExitUnavailable, err)
	}
}
