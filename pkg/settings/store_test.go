package settings

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/apiflow/pkg/config"
)

func sampleConfig(port int) *config.ProxyConfig {
	return &config.ProxyConfig{
		ListenPort: port,
		GlobalKey:  "secret",
		Services: []config.ServiceConfig{{
			ID:       "openai",
			Name:     "OpenAI",
			BasePath: "/openai",
			Enabled:  true,
			Upstreams: []config.UpstreamEntry{{
				ID:           "primary",
				UpstreamBase: "https://api.example.com",
				Priority:     1,
				Enabled:      true,
			}},
		}},
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := s.Load()
	if err != nil || cfg != nil {
		t.Errorf("Load() = %v, %v, want nil, nil", cfg, err)
	}
}

func TestStore_SaveLoad(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		marker string
	}{
		{"json", "config.json", `"listenPort": 8080`},
		{"yaml", "config.yaml", "listenPort: 8080"},
		{"yml", "nested/dir/config.yml", "listenPort: 8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStore(filepath.Join(t.TempDir(), tt.file))
			if err != nil {
				t.Fatal(err)
			}
			if err := s.Save(sampleConfig(8080)); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			raw, err := os.ReadFile(s.Path())
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(raw), tt.marker) {
				t.Errorf("file content = %s, want %q", raw, tt.marker)
			}

			got, err := s.Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got.ListenPort != 8080 || got.GlobalKey != "secret" || len(got.Services) != 1 {
				t.Errorf("Load() = %+v", got)
			}
			if up := got.Services[0].Upstreams[0]; up.UpstreamBase != "https://api.example.com" || !up.Enabled {
				t.Errorf("upstream = %+v", up)
			}

			entries, _ := os.ReadDir(filepath.Dir(s.Path()))
			for _, e := range entries {
				if strings.HasSuffix(e.Name(), ".tmp") {
					t.Errorf("temporary file %s left behind", e.Name())
				}
			}
		})
	}
}

func TestStore_LoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, _ := NewStore(path)
	if _, err := s.Load(); err == nil {
		t.Error("Load() of invalid JSON succeeded")
	}
}

func TestStore_Changed(t *testing.T) {
	s, _ := NewStore(filepath.Join(t.TempDir(), "config.json"))

	if changed, _ := s.Changed(); changed {
		t.Error("Changed() = true for a missing file")
	}
	if err := s.Save(sampleConfig(8080)); err != nil {
		t.Fatal(err)
	}
	if changed, _ := s.Changed(); changed {
		t.Error("Changed() = true right after Save")
	}

	if err := os.WriteFile(s.Path(), []byte(`{"listenPort": 9090, "services": []}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if changed, _ := s.Changed(); !changed {
		t.Error("Changed() = false after an external write")
	}
}

type recordingReloader struct {
	mu    sync.Mutex
	ports []int
	seen  chan struct{}
}

func (r *recordingReloader) Reload(_ context.Context, cfg *config.ProxyConfig) error {
	r.mu.Lock()
	r.ports = append(r.ports, cfg.ListenPort)
	r.mu.Unlock()
	r.seen <- struct{}{}
	return nil
}

func TestWatcher_ReloadsExternalChanges(t *testing.T) {
	s, _ := NewStore(filepath.Join(t.TempDir(), "config.json"))
	if err := s.Save(sampleConfig(8080)); err != nil {
		t.Fatal(err)
	}

	rel := &recordingReloader{seen: make(chan struct{}, 4)}
	w := NewWatcher(s, rel, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Watch(ctx) }()

	// Allow the watch to be registered
	time.Sleep(100 * time.Millisecond)

	// Our own save must not trigger a reload
	if err := s.Save(sampleConfig(8080)); err != nil {
		t.Fatal(err)
	}

	external, _ := NewStore(s.Path())
	if err := external.Save(sampleConfig(8081)); err != nil {
		t.Fatal(err)
	}

	select {
	case <-rel.seen:
	case <-time.After(3 * time.Second):
		t.Fatal("external change did not trigger a reload")
	}

	w.Stop()
	if err := <-errCh; err != nil {
		t.Errorf("Watch() error = %v", err)
	}

	rel.mu.Lock()
	defer rel.mu.Unlock()
	if len(rel.ports) != 1 || rel.ports[0] != 8081 {
		t.Errorf("reloaded ports = %v, want [8081]", rel.ports)
	}
}
