package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"mercator-hq/apiflow/internal/upstreamtest"
	"mercator-hq/apiflow/pkg/config"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Gateway.BindHost = "127.0.0.1"
	cfg.Gateway.DrainTimeout = 200 * time.Millisecond
	cfg.Forwarder.RetryBackoff = time.Millisecond
	return cfg
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

func proxyConfig(port int, bases ...string) *config.ProxyConfig {
	svc := config.ServiceConfig{ID: "svc", Name: "Service", BasePath: "/api", Enabled: true}
	for i, b := range bases {
		svc.Upstreams = append(svc.Upstreams, config.UpstreamEntry{
			ID:           fmt.Sprintf("u%d", i+1),
			UpstreamBase: b,
			Priority:     i + 1,
			Enabled:      true,
		})
	}
	return &config.ProxyConfig{ListenPort: port, Services: []config.ServiceConfig{svc}}
}

func get(t *testing.T, port int, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d%s", port, path))
	if err != nil {
		t.Fatalf("GET %s error = %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

type memPersister struct {
	mu    sync.Mutex
	saved []*config.ProxyConfig
	err   error
}

func (p *memPersister) Save(cfg *config.ProxyConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, cfg)
	return p.err
}

func (p *memPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saved)
}

func TestManager_StartServesAndLogs(t *testing.T) {
	up := upstreamtest.New(upstreamtest.Response{StatusCode: 200, Body: "hello"})
	defer up.Close()

	persister := &memPersister{}
	m := New(testConfig(), WithPersister(persister))
	port := freePort(t)

	if err := m.Start(context.Background(), proxyConfig(port, up.URL())); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop(context.Background())

	if !m.Running() || m.State() != Running {
		t.Fatalf("State() = %v, want running", m.State())
	}
	if err := m.Start(context.Background(), proxyConfig(port, up.URL())); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	status, body := get(t, port, "/api/v1/models")
	if status != 200 || body != "hello" {
		t.Errorf("response = %d %q", status, body)
	}
	status, _ = get(t, port, "/nope")
	if status != http.StatusNotFound {
		t.Errorf("unrouted status = %d, want 404", status)
	}

	entries := m.Logs().QueryPort(port, 0)
	if len(entries) != 2 {
		t.Fatalf("log has %d entries, want 2", len(entries))
	}
	if entries[1].StatusCode() != 200 || entries[1].UpstreamID != "u1" {
		t.Errorf("forwarded entry = %+v", entries[1])
	}
	if entries[0].UpstreamURL != "" {
		t.Errorf("unrouted entry has upstream %q", entries[0].UpstreamURL)
	}

	stats := m.Stats().Snapshot()
	if len(stats) != 1 || stats[0].TotalRequests != 1 || stats[0].SuccessCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if persister.count() != 1 {
		t.Errorf("persisted %d times, want 1", persister.count())
	}

	st := m.Status()
	if st.ListenPort != port || st.Version == 0 || st.Services != 1 || st.Active != 0 {
		t.Errorf("Status() = %+v", st)
	}
}

func TestManager_StartInvalidConfig(t *testing.T) {
	m := New(testConfig())

	err := m.Start(context.Background(), &config.ProxyConfig{ListenPort: 0})
	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Start() error = %v, want ValidationError", err)
	}
	if m.State() != Stopped || m.Current() != nil {
		t.Errorf("after failed start: state %v, snapshot %v", m.State(), m.Current())
	}
	if m.Status().LastError == "" {
		t.Error("LastError not recorded")
	}
}

func TestManager_StartPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	m := New(testConfig())
	err = m.Start(context.Background(), proxyConfig(port, "http://127.0.0.1:1"))

	var bindErr *BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("Start() error = %v, want *BindError", err)
	}
	if bindErr.Port != port {
		t.Errorf("BindError.Port = %d, want %d", bindErr.Port, port)
	}
	if m.State() != Stopped || m.Current() != nil {
		t.Errorf("after bind failure: state %v, snapshot %v", m.State(), m.Current())
	}
}

func TestManager_ReloadKeepsCapturedSnapshot(t *testing.T) {
	slow := upstreamtest.New(upstreamtest.Response{StatusCode: 200, Body: "old", Delay: 300 * time.Millisecond})
	defer slow.Close()
	fresh := upstreamtest.New(upstreamtest.Response{StatusCode: 200, Body: "new"})
	defer fresh.Close()

	m := New(testConfig())
	port := freePort(t)
	if err := m.Start(context.Background(), proxyConfig(port, slow.URL())); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop(context.Background())
	before := m.Current().Version

	type result struct {
		status int
		body   string
	}
	inflight := make(chan result, 1)
	go func() {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/x", port))
		if err != nil {
			inflight <- result{}
			return
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		inflight <- result{resp.StatusCode, string(b)}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for slow.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := m.Reload(context.Background(), proxyConfig(port, fresh.URL())); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := m.Current().Version; got <= before {
		t.Errorf("Version after reload = %d, want > %d", got, before)
	}

	if status, body := get(t, port, "/api/x"); status != 200 || body != "new" {
		t.Errorf("new request = %d %q, want 200 new", status, body)
	}
	if got := <-inflight; got.status != 200 || got.body != "old" {
		t.Errorf("in-flight request = %d %q, want 200 old", got.status, got.body)
	}
}

func TestManager_ReloadClosesRetiredConnections(t *testing.T) {
	closed := make(chan struct{}, 4)
	slow := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = io.WriteString(w, "old")
	}))
	slow.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateClosed {
			closed <- struct{}{}
		}
	}
	slow.Start()
	defer slow.Close()
	fresh := upstreamtest.New(upstreamtest.Response{StatusCode: 200, Body: "new"})
	defer fresh.Close()

	m := New(testConfig())
	port := freePort(t)
	if err := m.Start(context.Background(), proxyConfig(port, slow.URL)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop(context.Background())
	old := m.Current()

	done := make(chan string, 1)
	go func() {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/x", port))
		if err != nil {
			done <- ""
			return
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		done <- string(b)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for old.Active() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if old.Active() != 1 {
		t.Fatalf("old snapshot Active() = %d, want 1", old.Active())
	}

	if err := m.Reload(context.Background(), proxyConfig(port, fresh.URL())); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if body := <-done; body != "old" {
		t.Fatalf("in-flight body = %q, want old", body)
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream connection of the retired snapshot stayed open")
	}
	if old.Active() != 0 {
		t.Errorf("old snapshot Active() = %d, want 0", old.Active())
	}
}

func TestManager_ReloadRejectsPortChange(t *testing.T) {
	up := upstreamtest.New()
	defer up.Close()

	m := New(testConfig())
	port := freePort(t)
	if err := m.Start(context.Background(), proxyConfig(port, up.URL())); err != nil {
		t.Fatal(err)
	}
	defer m.Stop(context.Background())
	before := m.Current()

	err := m.Reload(context.Background(), proxyConfig(port+1, up.URL()))
	var verr config.ValidationError
	if !errors.As(err, &verr) || verr.Errors[0].Field != "listenPort" {
		t.Fatalf("Reload() error = %v, want listenPort validation error", err)
	}
	if m.Current() != before {
		t.Error("failed reload replaced the snapshot")
	}
	if m.State() != Running {
		t.Errorf("State() = %v, want running", m.State())
	}

	if err := m.Reload(context.Background(), &config.ProxyConfig{ListenPort: port}); err == nil {
		t.Error("Reload() with no services succeeded")
	}
	if m.Current() != before {
		t.Error("invalid reload replaced the snapshot")
	}
}

func TestManager_ReloadWhenStoppedStarts(t *testing.T) {
	up := upstreamtest.New()
	defer up.Close()

	m := New(testConfig())
	port := freePort(t)
	if err := m.Reload(context.Background(), proxyConfig(port, up.URL())); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	defer m.Stop(context.Background())
	if !m.Running() {
		t.Error("Reload() on a stopped gateway did not start it")
	}
}

func TestManager_StopIdempotent(t *testing.T) {
	up := upstreamtest.New()
	defer up.Close()

	m := New(testConfig())
	port := freePort(t)
	if err := m.Start(context.Background(), proxyConfig(port, up.URL())); err != nil {
		t.Fatal(err)
	}

	if err := m.StopPort(context.Background(), port+1); !errors.Is(err, ErrNotRunning) {
		t.Errorf("StopPort(other) error = %v, want ErrNotRunning", err)
	}
	if !m.Running() {
		t.Fatal("StopPort(other) stopped the gateway")
	}

	if err := m.StopPort(context.Background(), port); err != nil {
		t.Fatalf("StopPort() error = %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() error = %v, want nil", err)
	}
	if m.State() != Stopped || m.Current() != nil {
		t.Errorf("after stop: state %v, snapshot %v", m.State(), m.Current())
	}

	if _, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api", port)); err == nil {
		t.Error("port still accepts connections after Stop")
	}
}

func TestManager_Restart(t *testing.T) {
	up := upstreamtest.New(upstreamtest.Response{StatusCode: 200, Body: "ok"})
	defer up.Close()

	m := New(testConfig())
	first, second := freePort(t), freePort(t)
	if err := m.Restart(context.Background(), proxyConfig(first, up.URL())); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	if err := m.Restart(context.Background(), proxyConfig(second, up.URL())); err != nil {
		t.Fatalf("Restart() on new port error = %v", err)
	}
	defer m.Stop(context.Background())

	if got := m.Status().ListenPort; got != second {
		t.Errorf("ListenPort = %d, want %d", got, second)
	}
	if status, _ := get(t, second, "/api/x"); status != 200 {
		t.Errorf("status = %d, want 200", status)
	}

	if err := m.Restart(context.Background(), &config.ProxyConfig{}); err == nil {
		t.Error("Restart() with invalid config succeeded")
	}
	if !m.Running() {
		t.Error("invalid Restart() stopped the gateway")
	}
}

func TestManager_ClientDisconnectReleasesActive(t *testing.T) {
	up := upstreamtest.New(upstreamtest.Response{
		StatusCode:   200,
		Headers:      map[string]string{"Content-Type": "text/event-stream"},
		StreamChunks: []string{"data: 1\n\n"},
		Block:        true,
	})
	defer up.Close()

	m := New(testConfig())
	port := freePort(t)
	if err := m.Start(context.Background(), proxyConfig(port, up.URL())); err != nil {
		t.Fatal(err)
	}
	defer m.Stop(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://127.0.0.1:%d/api/stream", port), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	buf := make([]byte, 9)
	if _, err := io.ReadFull(resp.Body, buf); err != nil {
		t.Fatalf("reading first chunk: %v", err)
	}
	if m.Status().Active != 1 {
		t.Errorf("Active = %d during stream, want 1", m.Status().Active)
	}

	cancel()
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for m.Status().Active != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := m.Status().Active; got != 0 {
		t.Fatalf("Active = %d after disconnect, want 0", got)
	}
	e := m.Logs().Query(1)[0]
	if !e.IsStreaming || e.InFlight {
		t.Errorf("entry = streaming %v in flight %v", e.IsStreaming, e.InFlight)
	}
}

func TestManager_Subscribe(t *testing.T) {
	up := upstreamtest.New()
	defer up.Close()

	m := New(testConfig())
	updates, cancel := m.Subscribe()
	defer cancel()

	port := freePort(t)
	if err := m.Start(context.Background(), proxyConfig(port, up.URL())); err != nil {
		t.Fatal(err)
	}
	defer m.Stop(context.Background())

	select {
	case st := <-updates:
		if st.State != Running && st.State != Starting {
			t.Errorf("update state = %v", st.State)
		}
	case <-time.After(time.Second):
		t.Fatal("no status update after Start")
	}
}

func TestTrayStatus(t *testing.T) {
	tests := []struct {
		name        string
		status      Status
		wantTooltip string
		wantMenu    string
	}{
		{
			name:        "stopped",
			status:      Status{State: Stopped},
			wantTooltip: "ApiFlow - stopped",
			wantMenu:    "○ stopped",
		},
		{
			name:        "running idle",
			status:      Status{State: Running, Running: true, ListenPort: 8080},
			wantTooltip: "ApiFlow - running (8080)",
			wantMenu:    "● running - port 8080",
		},
		{
			name:        "running busy",
			status:      Status{State: Running, Running: true, ListenPort: 8080, Active: 2},
			wantTooltip: "ApiFlow - running (8080) · processing 2",
			wantMenu:    "● running - port 8080 · processing 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrayStatus(tt.status)
			if got.Tooltip != tt.wantTooltip {
				t.Errorf("Tooltip = %q, want %q", got.Tooltip, tt.wantTooltip)
			}
			if got.Menu != tt.wantMenu {
				t.Errorf("Menu = %q, want %q", got.Menu, tt.wantMenu)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		Stopped: "stopped", Starting: "starting", Running: "running",
		Reloading: "reloading", Stopping: "stopping",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
