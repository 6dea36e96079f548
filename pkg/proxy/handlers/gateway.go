package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/apiflow/pkg/config"
	"mercator-hq/apiflow/pkg/logstore"
	"mercator-hq/apiflow/pkg/proxy"
	"mercator-hq/apiflow/pkg/proxy/types"
	"mercator-hq/apiflow/pkg/routing"
	"mercator-hq/apiflow/pkg/security/auth"
	"mercator-hq/apiflow/pkg/telemetry/logging"
	"mercator-hq/apiflow/pkg/telemetry/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// MessageNotRunning is returned when a request arrives without a published
// snapshot, which only happens while the listener is shutting down.
const MessageNotRunning = "gateway is not running"

// SnapshotSource yields the routing snapshot a new request is dispatched
// with. The request keeps that snapshot until it completes, even if a reload
// publishes a newer one meanwhile.
type SnapshotSource interface {
	Current() *routing.Snapshot
}

// Observer is notified of requests rejected before forwarding.
type Observer interface {
	ObserveAuthFailure()
	ObserveRouteMiss()
}

// GatewayOption configures a GatewayHandler.
type GatewayOption func(*GatewayHandler)

// WithMaxBodySize limits the buffered request body.
func WithMaxBodySize(n int64) GatewayOption {
	return func(h *GatewayHandler) { h.maxBody = n }
}

// WithRequestCapture bounds the request body prefix stored in the log.
func WithRequestCapture(n int) GatewayOption {
	return func(h *GatewayHandler) { h.captureRequest = n }
}

// WithHeaderMask rewrites captured header values before they are logged.
func WithHeaderMask(mask func(name, value string) string) GatewayOption {
	return func(h *GatewayHandler) { h.mask = mask }
}

// WithObserver reports rejected requests.
func WithObserver(o Observer) GatewayOption {
	return func(h *GatewayHandler) { h.observer = o }
}

// WithTracer opens a span per gateway request.
func WithTracer(t *tracing.Tracer) GatewayOption {
	return func(h *GatewayHandler) { h.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GatewayOption {
	return func(h *GatewayHandler) { h.logger = l }
}

// GatewayHandler is the catch-all handler of the gateway port. Each request
// is authorized against the snapshot's global key, routed to a service,
// forwarded along the service's upstream chain and recorded in the log
// store.
type GatewayHandler struct {
	source    SnapshotSource
	store     *logstore.Store
	forwarder *proxy.Forwarder

	maxBody        int64
	captureRequest int
	mask           func(name, value string) string
	observer       Observer
	tracer         *tracing.Tracer
	logger         *slog.Logger
}

// NewGatewayHandler creates the gateway handler.
func NewGatewayHandler(source SnapshotSource, store *logstore.Store, fwd *proxy.Forwarder, opts ...GatewayOption) *GatewayHandler {
	h := &GatewayHandler{
		source:         source,
		store:          store,
		forwarder:      fwd,
		maxBody:        config.DefaultMaxRequestBody,
		captureRequest: config.DefaultRequestBodyBytes,
		logger:         slog.Default().With("component", "proxy.gateway"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	snap := h.source.Current()
	if snap == nil {
		_ = proxy.WriteErrorResponse(w, types.NewServiceUnavailableError(MessageNotRunning))
		return
	}
	snap.Acquire()
	defer snap.Release()

	id := uuid.NewString()
	ctx := logging.WithListenPort(logging.WithRequestID(r.Context(), id), snap.ListenPort)
	ctx, span := h.startSpan(ctx, r, id, snap.ListenPort)

	entry := logstore.NewEntry(id, started)
	entry.Method = r.Method
	entry.Path = r.URL.RequestURI()
	entry.ListenPort = snap.ListenPort
	entry.ClientIP = proxy.ClientIP(r)

	reject := func(errResp *types.ErrorResponse, cause error) {
		entry.SetStatus(errResp.HTTPStatusCode())
		entry.Error = errResp.Error
		entry.DurationMs = time.Since(started).Milliseconds()
		h.store.Append(entry)
		if err := proxy.WriteErrorResponse(w, errResp); err != nil {
			h.logger.DebugContext(ctx, "failed to write error response", "error", err)
		}
		tracing.SetResultAttributes(span, errResp.HTTPStatusCode(), "", false)
		tracing.EndSpan(span, cause)
	}

	if auth.Check(snap.GlobalKey, r.Header) != auth.Authorized {
		if h.observer != nil {
			h.observer.ObserveAuthFailure()
		}
		h.logger.WarnContext(ctx, "rejected unauthorized request",
			"path", r.URL.Path,
			"client_ip", entry.ClientIP,
		)
		reject(types.NewUnauthorizedError(), auth.ErrUnauthorized)
		return
	}

	match, err := snap.ResolveURL(r.URL)
	if err != nil {
		if h.observer != nil {
			h.observer.ObserveRouteMiss()
		}
		h.logger.InfoContext(ctx, "no service matches path",
			"path", r.URL.Path,
		)
		reject(proxy.HandleError(err), err)
		return
	}
	entry.ServiceName = match.ServiceName
	entry.BasePath = match.BasePath
	tracing.SetServiceAttributes(span, match.ServiceName, match.BasePath)

	body, err := proxy.ReadBody(w, r, h.maxBody)
	if err != nil {
		reject(proxy.HandleError(err), err)
		return
	}
	entry.RequestBody = proxy.CaptureBody(body, h.captureRequest)
	if len(match.Chain) > 0 {
		first := match.Chain[0]
		setUpstream(&entry, first, routing.BuildUpstreamURL(first.Base, match.Suffix, r.URL.RawQuery))
		entry.RequestHeaders = proxy.FormatHeaders(proxy.BuildUpstreamHeaders(r.Header, first, snap.GlobalKey), h.mask)
	}

	h.store.Begin(entry)

	var res *proxy.Result
	defer func() { h.finish(ctx, span, started, id, match, res) }()

	res = h.forwarder.Forward(ctx, w, &proxy.Request{
		Method:    r.Method,
		Header:    r.Header,
		Body:      body,
		RawQuery:  r.URL.RawQuery,
		Match:     match,
		GlobalKey: snap.GlobalKey,
		Client:    snap.Client,
		OnAttempt: func(up routing.Upstream, url string) {
			h.store.Update(id, func(e *logstore.Entry) { setUpstream(e, up, url) })
		},
	})

	if res.Broken() {
		// Headers are already out; the client must see a truncated response.
		panic(http.ErrAbortHandler)
	}
}

// finish closes the in-flight entry. A nil result means the forwarder
// panicked.
func (h *GatewayHandler) finish(ctx context.Context, span trace.Span, started time.Time, id string, match *routing.Match, res *proxy.Result) {
	if res == nil {
		h.store.Finish(id, func(e *logstore.Entry) {
			e.DurationMs = time.Since(started).Milliseconds()
			e.Error = types.MessageInternal
		})
		tracing.EndSpan(span, errors.New(types.MessageInternal))
		return
	}

	h.store.Finish(id, func(e *logstore.Entry) {
		if res.UpstreamURL != "" {
			setUpstream(e, res.Upstream, res.UpstreamURL)
		}
		if status := res.RecordedStatus(); status != 0 {
			e.SetStatus(status)
		}
		e.DurationMs = time.Since(started).Milliseconds()
		e.Error = res.Error
		e.IsStreaming = res.IsStreaming
		e.RetryAction = res.RetryAction
		e.Attempts = res.Attempts
		if res.RequestHeaders != "" {
			e.RequestHeaders = res.RequestHeaders
		}
		e.ResponseHeaders = res.ResponseHeaders
		e.ResponseBody = res.ResponseBody
	})

	h.logResult(ctx, match, res)
	tracing.SetResultAttributes(span, res.Status, res.RetryAction, res.IsStreaming)
	tracing.EndSpan(span, spanError(res.Err))
}

func (h *GatewayHandler) startSpan(ctx context.Context, r *http.Request, id string, port int) (context.Context, trace.Span) {
	if h.tracer == nil || !h.tracer.Enabled() {
		return ctx, noop.Span{}
	}
	ctx = tracing.Extract(ctx, r.Header)
	ctx, span := h.tracer.Start(ctx, "gateway.request", trace.WithSpanKind(trace.SpanKindServer))
	tracing.SetRequestAttributes(span, id, r.Method, r.URL.Path, port)
	return ctx, span
}

func (h *GatewayHandler) logResult(ctx context.Context, match *routing.Match, res *proxy.Result) {
	args := []any{
		"service", match.ServiceName,
		"upstream", res.Upstream.ID,
		"status", res.Status,
		"attempts", len(res.Attempts),
		"duration_ms", res.Duration.Milliseconds(),
	}
	if res.RetryAction != "" {
		args = append(args, "retry_action", res.RetryAction)
	}
	switch {
	case errors.Is(res.Err, proxy.ErrClientDisconnected):
		h.logger.InfoContext(ctx, "client disconnected", args...)
	case res.Err != nil:
		h.logger.WarnContext(ctx, "request failed", append(args, "error", res.Error)...)
	default:
		h.logger.DebugContext(ctx, "request forwarded", args...)
	}
}

// setUpstream records the upstream an entry is being served by. The route
// key shown to users is the label, or the id when no label is configured.
func setUpstream(e *logstore.Entry, up routing.Upstream, url string) {
	e.UpstreamID = up.ID
	e.UpstreamLabel = up.Label
	e.UpstreamURL = url
	e.RouteKey = up.Label
	if e.RouteKey == "" {
		e.RouteKey = up.ID
	}
}

// spanError leaves client disconnects out of the span status.
func spanError(err error) error {
	if errors.Is(err, proxy.ErrClientDisconnected) {
		return nil
	}
	return err
}
