package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mercator-hq/apiflow/pkg/archive"
	"mercator-hq/apiflow/pkg/config"
	"mercator-hq/apiflow/pkg/logstore"
)

// ErrUnreachable is returned when no control API answers at the address.
var ErrUnreachable = errors.New("control api unreachable")

// APIError is a non-2xx answer of the control API.
type APIError struct {
	StatusCode int
	Message    string
	Fields     []FieldError
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("control api: %s (HTTP %d)", e.Message, e.StatusCode)
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return fmt.Sprintf("control api: %s (HTTP %d): %s", e.Message, e.StatusCode, strings.Join(parts, "; "))
}

// Client calls a running control API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the API at addr, a host:port or a URL.
func NewClient(addr, token string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		token:   token,
		http:    &http.Client{Timeout: DefaultOperationTimeout + 5*time.Second},
	}
}

// Status returns the gateway status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start starts the gateway with cfg, or with the saved settings when cfg is
// nil.
func (c *Client) Start(ctx context.Context, cfg *config.ProxyConfig) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodPost, "/api/proxy/start", nil, bodyOrNil(cfg), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reload applies cfg, or the saved settings when cfg is nil.
func (c *Client) Reload(ctx context.Context, cfg *config.ProxyConfig) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodPost, "/api/proxy/reload", nil, bodyOrNil(cfg), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop stops the gateway on port, or whatever runs when port is zero.
func (c *Client) Stop(ctx context.Context, port int) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodPost, "/api/proxy/stop", nil, StopRequest{ListenPort: port}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logs returns up to limit entries, most recent first, optionally only
// those recorded on port.
func (c *Client) Logs(ctx context.Context, port, limit int) ([]logstore.Entry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if port > 0 {
		q.Set("port", strconv.Itoa(port))
	}
	var entries []logstore.Entry
	if err := c.do(ctx, http.MethodGet, "/api/logs", q, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ClearLogs empties the request log.
func (c *Client) ClearLogs(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/logs", nil, nil, nil)
}

// Stats returns the upstream statistics.
func (c *Client) Stats(ctx context.Context) (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResetStats clears the upstream statistics.
func (c *Client) ResetStats(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/stats", nil, nil, nil)
}

// Settings returns the saved routing config.
func (c *Client) Settings(ctx context.Context) (*config.ProxyConfig, error) {
	var cfg config.ProxyConfig
	if err := c.do(ctx, http.MethodGet, "/api/settings", nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveSettings validates and saves cfg.
func (c *Client) SaveSettings(ctx context.Context, cfg *config.ProxyConfig) (*config.ProxyConfig, error) {
	var saved config.ProxyConfig
	if err := c.do(ctx, http.MethodPut, "/api/settings", nil, cfg, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// Network returns the host's network info.
func (c *Client) Network(ctx context.Context) (*NetworkResponse, error) {
	var resp NetworkResponse
	if err := c.do(ctx, http.MethodGet, "/api/network", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Archive streams an archive export in format ("json" or "csv") to w.
func (c *Client) Archive(ctx context.Context, q *archive.Query, format string, w io.Writer) error {
	v := url.Values{}
	if format != "" {
		v.Set("format", format)
	}
	if q != nil {
		if q.Since != nil {
			v.Set("since", q.Since.Format(time.RFC3339))
		}
		if q.Until != nil {
			v.Set("until", q.Until.Format(time.RFC3339))
		}
		setNonEmpty(v, "service", q.ServiceName)
		setNonEmpty(v, "upstream", q.UpstreamID)
		setNonEmpty(v, "status", q.Status)
		setNonEmpty(v, "sort", q.SortOrder)
		if q.ListenPort > 0 {
			v.Set("port", strconv.Itoa(q.ListenPort))
		}
		if q.Limit > 0 {
			v.Set("limit", strconv.Itoa(q.Limit))
		}
		if q.Offset > 0 {
			v.Set("offset", strconv.Itoa(q.Offset))
		}
	}

	resp, err := c.send(ctx, http.MethodGet, "/api/archive", v, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read archive export: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	resp, err := c.send(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// send performs the request and turns non-2xx answers into *APIError.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w at %s: %w", ErrUnreachable, c.baseURL, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var er ErrorResponse
		if json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&er) == nil && er.Error != "" {
			apiErr.Message = er.Error
			apiErr.Fields = er.Fields
		}
		return nil, apiErr
	}
	return resp, nil
}

// bodyOrNil keeps a nil config from being sent as the JSON literal null.
func bodyOrNil(cfg *config.ProxyConfig) any {
	if cfg == nil {
		return nil
	}
	return cfg
}

func setNonEmpty(v url.Values, key, val string) {
	if val != "" {
		v.Set(key, val)
	}
}
