package routing

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"mercator-hq/apiflow/pkg/config"
)

// NewSnapshot builds a snapshot from a normalized, validated configuration.
// Disabled services are skipped; each chain keeps only enabled upstreams,
// stably sorted by priority so ties keep their list order. A service whose
// upstreams are all disabled still claims its base path with an empty chain.
func NewSnapshot(cfg *config.ProxyConfig, version uint64, client *http.Client) *Snapshot {
	s := &Snapshot{
		Version:    version,
		ListenPort: cfg.ListenPort,
		GlobalKey:  cfg.GlobalKey,
		ProxyURL:   cfg.ProxyURL,
		Client:     client,
		Config:     cfg.Clone(),
		CreatedAt:  time.Now(),
	}

	for _, svc := range cfg.Services {
		if !svc.Enabled {
			continue
		}
		route := Route{
			ServiceID:   svc.ID,
			ServiceName: svc.Name,
			BasePath:    config.NormalizeBasePath(svc.BasePath),
		}
		for _, up := range svc.Upstreams {
			if !up.Enabled {
				continue
			}
			route.Chain = append(route.Chain, Upstream{
				ID:       up.ID,
				Label:    up.Label,
				Base:     strings.TrimRight(up.UpstreamBase, "/"),
				APIKey:   up.APIKey,
				Priority: up.Priority,
			})
		}
		sort.SliceStable(route.Chain, func(i, j int) bool {
			return route.Chain[i].Priority < route.Chain[j].Priority
		})
		s.Routes = append(s.Routes, route)
	}

	sort.SliceStable(s.Routes, func(i, j int) bool {
		return len(s.Routes[i].BasePath) > len(s.Routes[j].BasePath)
	})

	return s
}

// Resolve maps an inbound path to the service with the longest matching base
// path. "/" matches every path. Other base paths match the exact path or the
// path followed by "/", so "/api" does not match "/apix". The suffix is
// the escaped form of the decoded remainder.
func (s *Snapshot) Resolve(path string) (*Match, error) {
	route, err := s.route(path)
	if err != nil {
		return nil, err
	}
	return route.match(escapePath(StripBasePath(orRoot(path), route.BasePath))), nil
}

// ResolveURL resolves u by its decoded path but keeps the suffix in the
// client's escaping, so "%2F", "%3F" and "%23" reach the upstream intact.
func (s *Snapshot) ResolveURL(u *url.URL) (*Match, error) {
	route, err := s.route(u.Path)
	if err != nil {
		return nil, err
	}
	suffix, ok := StripEscapedBasePath(orRoot(u.EscapedPath()), route.BasePath)
	if !ok {
		suffix = escapePath(StripBasePath(orRoot(u.Path), route.BasePath))
	}
	return route.match(suffix), nil
}

func (s *Snapshot) route(path string) (*Route, error) {
	path = orRoot(path)
	for i := range s.Routes {
		if MatchesBasePath(path, s.Routes[i].BasePath) {
			return &s.Routes[i], nil
		}
	}
	return nil, &NoRouteError{Path: path}
}

func (r *Route) match(suffix string) *Match {
	return &Match{
		ServiceID:   r.ServiceID,
		ServiceName: r.ServiceName,
		BasePath:    r.BasePath,
		Suffix:      suffix,
		Chain:       r.Chain,
	}
}

func orRoot(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func escapePath(path string) string {
	return (&url.URL{Path: path}).EscapedPath()
}

// Upstreams returns every upstream of the snapshot keyed by id.
func (s *Snapshot) Upstreams() map[string]Upstream {
	out := make(map[string]Upstream)
	for _, route := range s.Routes {
		for _, up := range route.Chain {
			out[up.ID] = up
		}
	}
	return out
}

// MatchesBasePath reports whether path falls under base.
func MatchesBasePath(path, base string) bool {
	if base == "/" {
		return true
	}
	return path == base || strings.HasPrefix(path, base+"/")
}
