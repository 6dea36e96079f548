package control

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/apiflow/internal/upstreamtest"
	"mercator-hq/apiflow/pkg/archive"
	"mercator-hq/apiflow/pkg/archive/storage"
	"mercator-hq/apiflow/pkg/config"
	"mercator-hq/apiflow/pkg/gateway"
	"mercator-hq/apiflow/pkg/logstore"
	"mercator-hq/apiflow/pkg/netinfo"
	"mercator-hq/apiflow/pkg/settings"
)

type fixture struct {
	mgr      *gateway.Manager
	settings *settings.Store
	archive  *storage.MemoryStorage
	srv      *httptest.Server
	client   *Client
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Gateway.BindHost = "127.0.0.1"
	cfg.Gateway.DrainTimeout = 200 * time.Millisecond

	store, err := settings.NewStore(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	mgr := gateway.New(cfg)
	arch := storage.NewMemoryStorage()

	ip := "192.168.1.20"
	api := New(mgr, store, Options{
		Token:   token,
		CORS:    cfg.Control.CORS,
		Archive: arch,
		NetworkInfo: func() netinfo.Info {
			return netinfo.Info{LocalIP: &ip}
		},
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		srv.Close()
		mgr.Stop(context.Background())
	})

	return &fixture{
		mgr:      mgr,
		settings: store,
		archive:  arch,
		srv:      srv,
		client:   NewClient(srv.URL, token),
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func proxyConfig(port int, base string) *config.ProxyConfig {
	return &config.ProxyConfig{
		ListenPort: port,
		Services: []config.ServiceConfig{{
			ID:       "svc",
			Name:     "Service",
			BasePath: "/svc",
			Enabled:  true,
			Upstreams: []config.UpstreamEntry{{
				ID: "primary", UpstreamBase: base, Priority: 1, Enabled: true,
			}},
		}},
	}
}

func apiStatus(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func TestAPI_Lifecycle(t *testing.T) {
	up := upstreamtest.New(upstreamtest.Response{StatusCode: 200, Body: "ok"})
	defer up.Close()

	f := newFixture(t, "")
	ctx := context.Background()
	port := freePort(t)

	st, err := f.client.Start(ctx, proxyConfig(port, up.URL()))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !st.Running || st.ListenPort != port || st.State != gateway.Running {
		t.Errorf("status = %+v", st)
	}
	if want := fmt.Sprintf("ApiFlow - running (%d) · processing 0", port); st.Tray.Tooltip != want {
		t.Errorf("Tray.Tooltip = %q, want %q", st.Tray.Tooltip, want)
	}

	if _, err := f.client.Start(ctx, proxyConfig(port, up.URL())); apiStatus(err) != http.StatusConflict {
		t.Errorf("second Start() error = %v, want 409", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/svc/models", port))
	if err != nil {
		t.Fatalf("gateway request error = %v", err)
	}
	resp.Body.Close()

	entries, err := f.client.Logs(ctx, port, 10)
	if err != nil {
		t.Fatalf("Logs() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "/svc/models" || entries[0].StatusCode() != 200 {
		t.Errorf("Logs() = %+v", entries)
	}

	stats, err := f.client.Stats(ctx)
	if err != nil || len(stats.Upstreams) != 1 || stats.Upstreams[0].SuccessCount != 1 {
		t.Errorf("Stats() = %+v, %v", stats, err)
	}

	st, err = f.client.Stop(ctx, port)
	if err != nil || st.Running {
		t.Fatalf("Stop() = %+v, %v", st, err)
	}
	// Stopping again is idempotent
	if _, err := f.client.Stop(ctx, port); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestAPI_StartValidation(t *testing.T) {
	f := newFixture(t, "")

	cfg := proxyConfig(0, "not a url")
	_, err := f.client.Start(context.Background(), cfg)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("Start() error = %v, want 400", err)
	}
	if len(apiErr.Fields) == 0 {
		t.Error("validation answer has no field errors")
	}
	if f.mgr.Running() {
		t.Error("gateway running after invalid start")
	}
}

func TestAPI_StartFromSettings(t *testing.T) {
	up := upstreamtest.New(upstreamtest.Response{StatusCode: 200})
	defer up.Close()

	f := newFixture(t, "")
	ctx := context.Background()

	if _, err := f.client.Start(ctx, nil); apiStatus(err) != http.StatusNotFound {
		t.Fatalf("Start() without settings error = %v, want 404", err)
	}

	port := freePort(t)
	if _, err := f.client.SaveSettings(ctx, proxyConfig(port, up.URL())); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}
	saved, err := f.client.Settings(ctx)
	if err != nil || saved.ListenPort != port {
		t.Fatalf("Settings() = %+v, %v", saved, err)
	}

	st, err := f.client.Start(ctx, nil)
	if err != nil || st.ListenPort != port {
		t.Fatalf("Start() from settings = %+v, %v", st, err)
	}
}

func TestAPI_ReloadWithNewPortRestarts(t *testing.T) {
	up := upstreamtest.New(upstreamtest.Response{StatusCode: 200})
	defer up.Close()

	f := newFixture(t, "")
	ctx := context.Background()

	first := freePort(t)
	if _, err := f.client.Reload(ctx, proxyConfig(first, up.URL())); err != nil {
		t.Fatalf("Reload() while stopped error = %v", err)
	}

	second := freePort(t)
	st, err := f.client.Reload(ctx, proxyConfig(second, up.URL()))
	if err != nil {
		t.Fatalf("Reload() with new port error = %v", err)
	}
	if st.ListenPort != second || !st.Running {
		t.Errorf("status = %+v, want running on %d", st, second)
	}
}

func TestAPI_Token(t *testing.T) {
	f := newFixture(t, "s3cret")

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "api without token", path: "/api/status", want: http.StatusUnauthorized},
		{name: "api with bearer", path: "/api/status", header: "Bearer s3cret", want: http.StatusOK},
		{name: "api with wrong token", path: "/api/status", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "health is open", path: "/health", want: http.StatusOK},
		{name: "version is open", path: "/version", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, f.srv.URL+tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, resp.StatusCode, tt.want)
			}
		})
	}

	if _, err := f.client.Status(context.Background()); err != nil {
		t.Errorf("client with token: Status() error = %v", err)
	}
}

func TestAPI_LogsAndStatsClear(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	logs := f.mgr.Logs()
	for i, port := range []int{8080, 9090, 8080} {
		e := logstore.NewEntry(fmt.Sprintf("e%d", i), time.Now())
		e.ListenPort = port
		logs.Append(e)
	}
	f.mgr.Stats().Record("u1", "", 10, true)

	tests := []struct {
		port, limit int
		want        int
	}{
		{port: 0, limit: 0, want: 3},
		{port: 8080, limit: 0, want: 2},
		{port: 0, limit: 1, want: 1},
		{port: 7000, limit: 0, want: 0},
	}
	for _, tt := range tests {
		got, err := f.client.Logs(ctx, tt.port, tt.limit)
		if err != nil {
			t.Fatalf("Logs(%d, %d) error = %v", tt.port, tt.limit, err)
		}
		if len(got) != tt.want {
			t.Errorf("Logs(%d, %d) returned %d entries, want %d", tt.port, tt.limit, len(got), tt.want)
		}
	}

	if err := f.client.ClearLogs(ctx); err != nil {
		t.Fatalf("ClearLogs() error = %v", err)
	}
	if logs.Len() != 0 {
		t.Errorf("log store has %d entries after clear", logs.Len())
	}

	if err := f.client.ResetStats(ctx); err != nil {
		t.Fatalf("ResetStats() error = %v", err)
	}
	stats, _ := f.client.Stats(ctx)
	if len(stats.Upstreams) != 0 {
		t.Errorf("stats after reset = %+v", stats.Upstreams)
	}
}

func TestAPI_BadQuery(t *testing.T) {
	f := newFixture(t, "")
	for _, path := range []string{"/api/logs?limit=abc", "/api/archive?sort=sideways", "/api/archive?since=yesterday", "/api/archive?format=xml"} {
		resp, err := http.Get(f.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET %s = %d, want 400", path, resp.StatusCode)
		}
	}
}

func TestAPI_Network(t *testing.T) {
	up := upstreamtest.New(upstreamtest.Response{StatusCode: 200})
	defer up.Close()

	f := newFixture(t, "")
	ctx := context.Background()

	info, err := f.client.Network(ctx)
	if err != nil {
		t.Fatalf("Network() error = %v", err)
	}
	if info.LocalIP == nil || *info.LocalIP != "192.168.1.20" || len(info.URLs) != 0 {
		t.Errorf("Network() while stopped = %+v", info)
	}

	port := freePort(t)
	if _, err := f.client.Start(ctx, proxyConfig(port, up.URL())); err != nil {
		t.Fatal(err)
	}
	info, _ = f.client.Network(ctx)
	want := fmt.Sprintf("http://192.168.1.20:%d", port)
	if len(info.URLs) != 2 || info.URLs[1] != want {
		t.Errorf("URLs = %v, want LAN URL %s", info.URLs, want)
	}
}

func TestAPI_ArchiveExport(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, svc := range []string{"openai", "anthropic", "openai"} {
		e := logstore.NewEntry(fmt.Sprintf("a%d", i), base.Add(time.Duration(i)*time.Minute))
		e.ServiceName = svc
		e.SetStatus(200)
		f.archive.Store(ctx, &e)
	}

	var buf bytes.Buffer
	err := f.client.Archive(ctx, &archive.Query{ServiceName: "openai"}, "csv", &buf)
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("got %d rows, want header + 2", len(rows))
	}

	buf.Reset()
	since := base.Add(90 * time.Second)
	if err := f.client.Archive(ctx, &archive.Query{Since: &since}, "json", &buf); err != nil {
		t.Fatalf("Archive(json) error = %v", err)
	}
	if !strings.Contains(buf.String(), `"id": "a2"`) || strings.Contains(buf.String(), `"a0"`) {
		t.Errorf("json export = %s", buf.String())
	}
}

func TestAPI_NotFound(t *testing.T) {
	f := newFixture(t, "")
	resp, err := http.Get(f.srv.URL + "/api/unknown")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
