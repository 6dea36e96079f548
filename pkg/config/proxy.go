package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ProxyConfig is the user-editable routing configuration of the gateway: the
// listen port, the optional gateway key and egress proxy, and the services.
// It is persisted by the settings store and supplied to start and reload.
type ProxyConfig struct {
	ListenPort int             `json:"listenPort" yaml:"listenPort"`
	GlobalKey  string          `json:"globalKey,omitempty" yaml:"globalKey,omitempty"`
	ProxyURL   string          `json:"proxyUrl,omitempty" yaml:"proxyUrl,omitempty"`
	Services   []ServiceConfig `json:"services" yaml:"services"`
}

// ServiceConfig is a path-prefix routed endpoint with its upstream list.
type ServiceConfig struct {
	ID        string          `json:"id" yaml:"id"`
	Name      string          `json:"name" yaml:"name"`
	BasePath  string          `json:"basePath" yaml:"basePath"`
	Enabled   bool            `json:"enabled" yaml:"enabled"`
	Upstreams []UpstreamEntry `json:"upstreams" yaml:"upstreams"`
}

// UpstreamEntry is one provider a service can forward to. Lower priority
// values are tried first.
type UpstreamEntry struct {
	ID           string `json:"id" yaml:"id"`
	Label        string `json:"label,omitempty" yaml:"label,omitempty"`
	UpstreamBase string `json:"upstreamBase" yaml:"upstreamBase"`
	APIKey       string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Priority     int    `json:"priority" yaml:"priority"`
	Enabled      bool   `json:"enabled" yaml:"enabled"`
}

// Clone returns a deep copy of the configuration.
func (c *ProxyConfig) Clone() *ProxyConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.Services = make([]ServiceConfig, len(c.Services))
	for i, svc := range c.Services {
		svc.Upstreams = append([]UpstreamEntry(nil), svc.Upstreams...)
		out.Services[i] = svc
	}
	return &out
}

// NormalizeBasePath trims the path, maps empty to "/", adds a leading slash
// and strips trailing slashes.
func NormalizeBasePath(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}
	return p
}

// NormalizeProxyConfig returns a normalized copy of cfg. Names, labels, keys
// and URLs are trimmed, base paths normalized, upstreams without a base URL
// dropped and services left without upstreams dropped. Missing ids are
// derived from the list position. The input is not modified.
func NormalizeProxyConfig(cfg *ProxyConfig) *ProxyConfig {
	if cfg == nil {
		return nil
	}

	out := &ProxyConfig{
		ListenPort: cfg.ListenPort,
		GlobalKey:  strings.TrimSpace(cfg.GlobalKey),
		ProxyURL:   strings.TrimSpace(cfg.ProxyURL),
		Services:   make([]ServiceConfig, 0, len(cfg.Services)),
	}

	for i, svc := range cfg.Services {
		id := strings.TrimSpace(svc.ID)
		if id == "" {
			id = fmt.Sprintf("service-%d", i+1)
		}

		normalized := ServiceConfig{
			ID:        id,
			Name:      strings.TrimSpace(svc.Name),
			BasePath:  NormalizeBasePath(svc.BasePath),
			Enabled:   svc.Enabled,
			Upstreams: make([]UpstreamEntry, 0, len(svc.Upstreams)),
		}
		if normalized.Name == "" {
			normalized.Name = id
		}

		for j, up := range svc.Upstreams {
			base := strings.TrimRight(strings.TrimSpace(up.UpstreamBase), "/")
			if base == "" {
				continue
			}
			upID := strings.TrimSpace(up.ID)
			if upID == "" {
				upID = fmt.Sprintf("%s-upstream-%d", id, j+1)
			}
			normalized.Upstreams = append(normalized.Upstreams, UpstreamEntry{
				ID:           upID,
				Label:        strings.TrimSpace(up.Label),
				UpstreamBase: base,
				APIKey:       strings.TrimSpace(up.APIKey),
				Priority:     up.Priority,
				Enabled:      up.Enabled,
			})
		}

		if len(normalized.Upstreams) == 0 {
			continue
		}
		out.Services = append(out.Services, normalized)
	}

	return out
}

// ValidateProxyConfig validates a normalized ProxyConfig. It returns a
// ValidationError listing every problem, or nil.
func ValidateProxyConfig(cfg *ProxyConfig) error {
	if cfg == nil {
		return ValidationError{Errors: []FieldError{{Field: "config", Message: "configuration is required"}}}
	}

	var errs fieldErrors

	errs.between("listenPort", int64(cfg.ListenPort), 1, 65535)

	if cfg.ProxyURL != "" {
		if err := validateProxyURL(cfg.ProxyURL); err != nil {
			errs.add("proxyUrl", "%v", err)
		}
	}

	serviceIDs := make(map[string]bool)
	upstreamIDs := make(map[string]bool)
	basePaths := make(map[string]string)
	usable := 0

	for i, svc := range cfg.Services {
		prefix := fmt.Sprintf("services[%d]", i)

		if serviceIDs[svc.ID] {
			errs.add(prefix+".id", "duplicate service id %q", svc.ID)
		}
		serviceIDs[svc.ID] = true

		if svc.Enabled {
			if owner, ok := basePaths[svc.BasePath]; ok {
				errs.add(prefix+".basePath", "base path %q is already claimed by service %q", svc.BasePath, owner)
			} else {
				basePaths[svc.BasePath] = svc.ID
			}
		}

		enabledUpstreams := 0
		for j, up := range svc.Upstreams {
			upPrefix := fmt.Sprintf("%s.upstreams[%d]", prefix, j)
			if upstreamIDs[up.ID] {
				errs.add(upPrefix+".id", "duplicate upstream id %q", up.ID)
			}
			upstreamIDs[up.ID] = true

			if err := validateUpstreamBase(up.UpstreamBase); err != nil {
				errs.add(upPrefix+".upstreamBase", "%v", err)
			}
			if up.Enabled {
				enabledUpstreams++
			}
		}

		if svc.Enabled && enabledUpstreams > 0 {
			usable++
		}
	}

	if usable == 0 {
		errs.add("services", "no enabled service with at least one enabled upstream")
	}

	return errs.err()
}

// PrepareProxyConfig normalizes and validates cfg in one step.
func PrepareProxyConfig(cfg *ProxyConfig) (*ProxyConfig, error) {
	normalized := NormalizeProxyConfig(cfg)
	if err := ValidateProxyConfig(normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

func validateUpstreamBase(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}

func validateProxyURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return fmt.Errorf("scheme must be http, https, socks5 or socks5h, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}
