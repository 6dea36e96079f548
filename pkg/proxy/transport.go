package proxy

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"mercator-hq/apiflow/pkg/config"
)

// NewClient builds the upstream HTTP client of one snapshot. When proxyURL is
// set every upstream connection is tunneled through it; http, https, socks5
// and socks5h proxies are supported by net/http directly.
//
// The request timeout bounds the wait for response headers only, so long
// server-push streams are never cut by the client.
func NewClient(cfg config.ForwarderConfig, proxyURL string) (*http.Client, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = config.DefaultDialTimeout
	}
	headerTimeout := cfg.RequestTimeout
	if headerTimeout <= 0 {
		headerTimeout = config.DefaultRequestTimeout
	}

	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   dialTimeout,
		ExpectContinueTimeout: time.Second,
		ResponseHeaderTimeout: headerTimeout,
		// Bodies are relayed byte for byte.
		DisableCompression: true,
	}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		switch u.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
		transport.Proxy = http.ProxyURL(u)
	}

	return &http.Client{
		Transport: transport,
		// Redirects are relayed to the client, not followed.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

// CloseIdle releases the idle connections of a superseded client.
func CloseIdle(c *http.Client) {
	if c != nil {
		c.CloseIdleConnections()
	}
}
