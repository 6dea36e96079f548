// Package routing maps inbound gateway paths to services and their ordered
// upstream chains.
//
// A Snapshot is built once per accepted configuration and never changes:
//
//	snap := routing.NewSnapshot(cfg, version, client)
//	match, err := snap.ResolveURL(r.URL)
//	if errors.Is(err, routing.ErrNoRoute) {
//	    // 404
//	}
//	target := routing.BuildUpstreamURL(match.Chain[0].Base, match.Suffix, r.URL.RawQuery)
//
// Resolution is longest-prefix over enabled services and segment aware: a
// base path of "/api" matches "/api" and "/api/x" but not "/apix". A base
// path of "/" matches everything and acts as the fallback route.
//
// AtomicUpstreamStats aggregates per-upstream attempt outcomes for the
// statistics view.
package routing
