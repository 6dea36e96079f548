package routing

import (
	"errors"
	"net/url"
	"testing"

	"mercator-hq/apiflow/pkg/config"
)

func testConfig() *config.ProxyConfig {
	return &config.ProxyConfig{
		ListenPort: 8080,
		GlobalKey:  "secret",
		Services: []config.ServiceConfig{
			{
				ID: "root", Name: "Root", BasePath: "/", Enabled: true,
				Upstreams: []config.UpstreamEntry{{ID: "r1", UpstreamBase: "http://root.example", Enabled: true}},
			},
			{
				ID: "api", Name: "API", BasePath: "/api", Enabled: true,
				Upstreams: []config.UpstreamEntry{
					{ID: "p3", UpstreamBase: "http://three.example", Priority: 3, Enabled: true},
					{ID: "p1", UpstreamBase: "http://one.example", Priority: 1, Enabled: true},
					{ID: "p2", UpstreamBase: "http://two.example/", Priority: 2, Enabled: true},
					{ID: "off", UpstreamBase: "http://off.example", Priority: 0, Enabled: false},
				},
			},
			{
				ID: "v1", Name: "API v1", BasePath: "/api/v1", Enabled: true,
				Upstreams: []config.UpstreamEntry{{ID: "v", UpstreamBase: "http://v1.example", Enabled: true}},
			},
			{
				ID: "disabled", Name: "Disabled", BasePath: "/api/v1/chat", Enabled: false,
				Upstreams: []config.UpstreamEntry{{ID: "d", UpstreamBase: "http://d.example", Enabled: true}},
			},
		},
	}
}

func TestSnapshotResolve(t *testing.T) {
	snap := NewSnapshot(testConfig(), 1, nil)

	tests := []struct {
		path        string
		wantService string
		wantSuffix  string
	}{
		{"/api/v1/chat", "v1", "/chat"},
		{"/api/v1", "v1", ""},
		{"/api/models", "api", "/models"},
		{"/api", "api", ""},
		{"/apix", "root", "/apix"},
		{"/other/path", "root", "/other/path"},
		{"", "root", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			m, err := snap.Resolve(tt.path)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.path, err)
			}
			if m.ServiceID != tt.wantService {
				t.Errorf("Resolve(%q).ServiceID = %q, want %q", tt.path, m.ServiceID, tt.wantService)
			}
			if m.Suffix != tt.wantSuffix {
				t.Errorf("Resolve(%q).Suffix = %q, want %q", tt.path, m.Suffix, tt.wantSuffix)
			}
		})
	}
}

func TestSnapshotResolveURL(t *testing.T) {
	snap := NewSnapshot(testConfig(), 1, nil)

	tests := []struct {
		target      string
		wantService string
		wantSuffix  string
	}{
		{"/api/v1/files/a%2Fb", "v1", "/files/a%2Fb"},
		{"/api/v1/q/a%3Fx=1", "v1", "/q/a%3Fx=1"},
		{"/api/h/a%23frag", "api", "/h/a%23frag"},
		{"/%61pi/models", "api", "/models"},
		{"/other/a%2Fb", "root", "/other/a%2Fb"},
		{"/api/v1", "v1", ""},
		{"/api/plain", "api", "/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			u, err := url.ParseRequestURI(tt.target)
			if err != nil {
				t.Fatalf("ParseRequestURI(%q) error = %v", tt.target, err)
			}
			m, err := snap.ResolveURL(u)
			if err != nil {
				t.Fatalf("ResolveURL(%q) error = %v", tt.target, err)
			}
			if m.ServiceID != tt.wantService {
				t.Errorf("ResolveURL(%q).ServiceID = %q, want %q", tt.target, m.ServiceID, tt.wantService)
			}
			if m.Suffix != tt.wantSuffix {
				t.Errorf("ResolveURL(%q).Suffix = %q, want %q", tt.target, m.Suffix, tt.wantSuffix)
			}
		})
	}
}

func TestSnapshotResolve_NoRoute(t *testing.T) {
	cfg := testConfig()
	cfg.Services = cfg.Services[1:] // drop "/"
	snap := NewSnapshot(cfg, 1, nil)

	_, err := snap.Resolve("/unknown")
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("Resolve() error = %v, want ErrNoRoute", err)
	}
	var nre *NoRouteError
	if !errors.As(err, &nre) || nre.Path != "/unknown" {
		t.Errorf("expected NoRouteError with path, got %v", err)
	}
}

func TestSnapshotChainOrder(t *testing.T) {
	snap := NewSnapshot(testConfig(), 1, nil)
	m, err := snap.Resolve("/api/x")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := []string{"p1", "p2", "p3"}
	if len(m.Chain) != len(want) {
		t.Fatalf("chain length = %d, want %d", len(m.Chain), len(want))
	}
	for i, id := range want {
		if m.Chain[i].ID != id {
			t.Errorf("chain[%d] = %q, want %q", i, m.Chain[i].ID, id)
		}
	}
	if m.Chain[1].Base != "http://two.example" {
		t.Errorf("chain base not trimmed: %q", m.Chain[1].Base)
	}
}

func TestSnapshotChainStableTies(t *testing.T) {
	cfg := &config.ProxyConfig{
		ListenPort: 1,
		Services: []config.ServiceConfig{{
			ID: "s", Name: "s", BasePath: "/", Enabled: true,
			Upstreams: []config.UpstreamEntry{
				{ID: "a", UpstreamBase: "http://a", Priority: 5, Enabled: true},
				{ID: "b", UpstreamBase: "http://b", Priority: 5, Enabled: true},
				{ID: "c", UpstreamBase: "http://c", Priority: 1, Enabled: true},
			},
		}},
	}
	m, _ := NewSnapshot(cfg, 1, nil).Resolve("/")
	got := []string{m.Chain[0].ID, m.Chain[1].ID, m.Chain[2].ID}
	if got[0] != "c" || got[1] != "a" || got[2] != "b" {
		t.Errorf("chain = %v, want [c a b]", got)
	}
}

func TestSnapshotImmutableAgainstConfig(t *testing.T) {
	cfg := testConfig()
	snap := NewSnapshot(cfg, 7, nil)

	cfg.Services[1].Upstreams[1].UpstreamBase = "http://changed.example"
	cfg.GlobalKey = "changed"

	if snap.GlobalKey != "secret" {
		t.Errorf("snapshot global key changed to %q", snap.GlobalKey)
	}
	if snap.Config.Services[1].Upstreams[1].UpstreamBase != "http://one.example" {
		t.Errorf("snapshot config shares memory with input")
	}
	if snap.Version != 7 {
		t.Errorf("Version = %d, want 7", snap.Version)
	}
}

func TestSnapshotEmptyChain(t *testing.T) {
	cfg := testConfig()
	cfg.Services[2].Upstreams[0].Enabled = false
	snap := NewSnapshot(cfg, 1, nil)

	m, err := snap.Resolve("/api/v1/x")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if m.ServiceID != "v1" || len(m.Chain) != 0 {
		t.Errorf("expected v1 with empty chain, got %q with %d upstreams", m.ServiceID, len(m.Chain))
	}
}

func TestUpstreamDisplayName(t *testing.T) {
	if got := (Upstream{Label: "L", Base: "http://b"}).DisplayName(); got != "L" {
		t.Errorf("DisplayName() = %q, want %q", got, "L")
	}
	if got := (Upstream{Base: "http://b"}).DisplayName(); got != "http://b" {
		t.Errorf("DisplayName() = %q, want %q", got, "http://b")
	}
}
