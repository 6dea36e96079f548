package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"mercator-hq/apiflow/pkg/config"
	"mercator-hq/apiflow/pkg/logstore"
	"mercator-hq/apiflow/pkg/proxy/types"
	"mercator-hq/apiflow/pkg/routing"
	"mercator-hq/apiflow/pkg/telemetry/tracing"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// StatsRecorder receives one record per upstream attempt.
// routing.AtomicUpstreamStats implements it.
type StatsRecorder interface {
	Record(upstreamID, label string, durationMs int64, success bool)
}

// TeeStats fans attempt records out to several recorders. Nil recorders are
// skipped.
func TeeStats(recorders ...StatsRecorder) StatsRecorder {
	out := make(teeStats, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type teeStats []StatsRecorder

func (t teeStats) Record(upstreamID, label string, durationMs int64, success bool) {
	for _, r := range t {
		r.Record(upstreamID, label, durationMs, success)
	}
}

// AttemptObserver is notified of every attempt decision, typically to export
// metrics.
type AttemptObserver interface {
	ObserveAttempt(upstreamID string, outcome string)
}

// Request is one client request ready to be forwarded.
type Request struct {
	Method string
	// Header holds the client headers as received.
	Header   http.Header
	Body     []byte
	RawQuery string

	// Match is the resolved route, including the upstream chain.
	Match *routing.Match

	// GlobalKey is the gateway credential of the snapshot in use.
	GlobalKey string

	// Client is the snapshot's upstream client.
	Client *http.Client

	// OnAttempt, when set, is called before each upstream is tried.
	OnAttempt func(up routing.Upstream, url string)
}

// Result describes how a forwarded request ended. It carries everything the
// handler needs to finalize the log entry.
type Result struct {
	// Status is the status written to the client.
	Status int

	// UpstreamStatus is the status returned by the delivering upstream, zero
	// when no upstream response was delivered.
	UpstreamStatus int

	// Upstream is the last upstream attempted.
	Upstream    routing.Upstream
	UpstreamURL string

	Attempts    []logstore.Attempt
	RetryAction string
	IsStreaming bool

	// RequestHeaders are the headers sent to the last upstream, formatted for
	// the log.
	RequestHeaders  string
	ResponseHeaders string
	ResponseBody    string

	// Err is the terminal error, nil on a clean delivery of a 2xx or 3xx.
	Err error

	// Error is the message recorded in the log entry.
	Error string

	Duration time.Duration
}

// RecordedStatus is the status stored in the log entry: the delivering
// upstream's status, 503 for a service without upstreams, and zero when no
// upstream response was delivered.
func (r *Result) RecordedStatus() int {
	if r.UpstreamStatus != 0 {
		return r.UpstreamStatus
	}
	if errors.Is(r.Err, routing.ErrNoUpstream) {
		return r.Status
	}
	return 0
}

// Broken reports whether the upstream body failed after the response headers
// were written to the client.
func (r *Result) Broken() bool {
	return errors.Is(r.Err, ErrUpstreamBodyBroken)
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithStats records per-attempt upstream statistics.
func WithStats(s StatsRecorder) Option {
	return func(f *Forwarder) { f.stats = s }
}

// WithObserver reports attempt outcomes.
func WithObserver(o AttemptObserver) Option {
	return func(f *Forwarder) { f.observer = o }
}

// WithTracer creates a span per attempt and injects trace context into
// upstream headers when tracing is enabled.
func WithTracer(t *tracing.Tracer) Option {
	return func(f *Forwarder) { f.tracer = t }
}

// WithHeaderMask rewrites captured header values before they are recorded.
func WithHeaderMask(mask func(name, value string) string) Option {
	return func(f *Forwarder) { f.mask = mask }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Forwarder) { f.logger = l }
}

// Forwarder runs the retry and fallback protocol over an upstream chain and
// relays the chosen response to the client.
type Forwarder struct {
	maxAttempts int
	backoff     time.Duration
	policy      FallbackPolicy
	capture     config.CaptureConfig

	stats    StatsRecorder
	observer AttemptObserver
	tracer   *tracing.Tracer
	mask     func(name, value string) string
	logger   *slog.Logger
}

// NewForwarder creates a forwarder from the forwarder configuration.
func NewForwarder(cfg config.ForwarderConfig, opts ...Option) *Forwarder {
	f := &Forwarder{
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.RetryBackoff,
		policy:      FallbackPolicy{FallbackOn429: cfg.FallbackOn429},
		capture:     cfg.Capture,
		logger:      slog.Default().With("component", "proxy.forwarder"),
	}
	if f.maxAttempts <= 0 {
		f.maxAttempts = config.DefaultMaxAttempts
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Policy returns the fallback policy in use.
func (f *Forwarder) Policy() FallbackPolicy {
	return f.policy
}

// Forward tries the chain in order and writes exactly one response to w.
// Retries and fallbacks are strictly sequential; nothing is written to the
// client before an attempt is chosen for delivery.
func (f *Forwarder) Forward(ctx context.Context, w http.ResponseWriter, req *Request) *Result {
	start := time.Now()
	res := &Result{}
	defer func() { res.Duration = time.Since(start) }()

	var chain []routing.Upstream
	if req.Match != nil {
		chain = req.Match.Chain
	}
	if len(chain) == 0 {
		res.Err = routing.ErrNoUpstream
		res.Error = types.MessageNoUpstream
		res.Status = http.StatusServiceUnavailable
		_ = WriteErrorResponse(w, HandleError(routing.ErrNoUpstream))
		return res
	}

	client := req.Client
	if client == nil {
		client = http.DefaultClient
	}

	retried := false
	for i, up := range chain {
		url := routing.BuildUpstreamURL(up.Base, suffixOf(req.Match), req.RawQuery)
		header := BuildUpstreamHeaders(req.Header, up, req.GlobalKey)

		res.Upstream = up
		res.UpstreamURL = url
		res.RequestHeaders = FormatHeaders(header, f.mask)
		if req.OnAttempt != nil {
			req.OnAttempt(up, url)
		}

		for attempt := 1; ; attempt++ {
			attemptStart := time.Now()
			actx, span := f.startSpan(ctx, up, url, attempt)
			resp, err := f.send(actx, client, req, url, header)

			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			outcome := decide(attemptState{
				Status:      status,
				Err:         err,
				Attempt:     attempt,
				MaxAttempts: f.maxAttempts,
				HasNext:     i < len(chain)-1,
				Canceled:    ctx.Err() != nil,
			}, f.policy)

			trail := logstore.Attempt{
				UpstreamID:  up.ID,
				UpstreamURL: url,
				Status:      status,
				Outcome:     outcome.String(),
			}
			if err != nil {
				trail.Error = err.Error()
			}
			if f.observer != nil {
				f.observer.ObserveAttempt(up.ID, outcome.String())
			}

			switch outcome {
			case Deliver:
				res.RetryAction = retryAction(retried, i > 0)
				f.deliver(ctx, w, resp, res)
				trail.DurationMs = time.Since(attemptStart).Milliseconds()
				res.Attempts = append(res.Attempts, trail)
				f.record(up, trail.DurationMs, routing.IsSuccess(status))
				endSpan(span, res.Err)
				return res

			case Retry:
				trail.DurationMs = time.Since(attemptStart).Milliseconds()
				res.Attempts = append(res.Attempts, trail)
				f.record(up, trail.DurationMs, false)
				endSpan(span, err)
				retried = true
				f.logger.DebugContext(ctx, "retrying upstream",
					"upstream", up.ID,
					"attempt", attempt,
					"error", err,
				)
				if !sleep(ctx, f.backoff) {
					return f.abort(res)
				}
				continue

			case Fallback:
				discard(resp)
				trail.DurationMs = time.Since(attemptStart).Milliseconds()
				res.Attempts = append(res.Attempts, trail)
				f.record(up, trail.DurationMs, false)
				endSpan(span, attemptError(err, status))
				f.logger.InfoContext(ctx, "falling back to next upstream",
					"upstream", up.ID,
					"status", status,
					"error", err,
				)

			case Abort:
				discard(resp)
				trail.DurationMs = time.Since(attemptStart).Milliseconds()
				res.Attempts = append(res.Attempts, trail)
				endSpan(span, ErrClientDisconnected)
				return f.abort(res)

			case Exhausted:
				res.RetryAction = retryAction(retried, i > 0)
				last := attemptError(err, status)
				if resp != nil {
					// The last upstream answered with a fallback status: relay it.
					f.deliver(ctx, w, resp, res)
				} else {
					res.Status = http.StatusBadGateway
					res.Error = err.Error()
					_ = WriteError(w, http.StatusBadGateway, err.Error())
				}
				trail.DurationMs = time.Since(attemptStart).Milliseconds()
				res.Attempts = append(res.Attempts, trail)
				f.record(up, trail.DurationMs, false)
				if !errors.Is(res.Err, ErrClientDisconnected) {
					res.Err = &ExhaustedError{Attempts: len(res.Attempts), Last: last}
				}
				endSpan(span, res.Err)
				f.logger.WarnContext(ctx, "upstream chain exhausted",
					"attempts", len(res.Attempts),
					"status", res.Status,
					"error", last,
				)
				return res
			}
			break
		}
	}

	// Unreachable: the last upstream always ends in Deliver, Abort or Exhausted.
	res.Err = &ExhaustedError{Attempts: len(res.Attempts)}
	res.Status = http.StatusBadGateway
	res.Error = res.Err.Error()
	_ = WriteError(w, http.StatusBadGateway, res.Error)
	return res
}

// send performs one upstream round trip up to response headers.
func (f *Forwarder) send(ctx context.Context, client *http.Client, req *Request, url string, header http.Header) (*http.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	out, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	out.Header = header.Clone()
	if f.tracer != nil && f.tracer.Enabled() {
		tracing.Inject(ctx, out.Header)
	}
	out.ContentLength = int64(len(req.Body))

	resp, err := client.Do(out)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// deliver writes resp to the client and fills the response side of res.
func (f *Forwarder) deliver(ctx context.Context, w http.ResponseWriter, resp *http.Response, res *Result) {
	defer resp.Body.Close()

	status := resp.StatusCode
	res.Status = status
	res.UpstreamStatus = status
	res.ResponseHeaders = FormatHeaders(resp.Header, f.mask)
	res.IsStreaming = IsStreaming(resp.Header.Get("Content-Type"))

	CopyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(status)

	limit := f.capture.ResponseBodyBytes
	if res.IsStreaming {
		limit = f.capture.StreamBodyBytes
	}
	if status >= http.StatusBadRequest {
		limit = max(limit, f.capture.ErrorSnippetChars*utf8.UTFMax)
	}
	c := newCapture(limit)

	err := relay(w, resp.Body, c, res.IsStreaming)
	body := c.String()

	switch {
	case res.IsStreaming && body == "":
		res.ResponseBody = StreamPlaceholder
	case res.IsStreaming:
		res.ResponseBody = CaptureBody([]byte(body), f.capture.StreamBodyBytes)
	default:
		res.ResponseBody = CaptureBody([]byte(body), f.capture.ResponseBodyBytes)
	}

	if status >= http.StatusBadRequest {
		res.Error = fmt.Sprintf("upstream returned %d %s: %s",
			status, http.StatusText(status), snippet(body, f.capture.ErrorSnippetChars))
	}

	switch {
	case err == nil:
	case ctx.Err() != nil || errors.Is(err, errClientWrite):
		res.Err = ErrClientDisconnected
		res.Error = types.MessageClientDisconnected
	default:
		res.Err = fmt.Errorf("%w: %w", ErrUpstreamBodyBroken, err)
		res.Error = res.Err.Error()
	}
}

func (f *Forwarder) abort(res *Result) *Result {
	res.Err = ErrClientDisconnected
	res.Error = types.MessageClientDisconnected
	return res
}

func (f *Forwarder) record(up routing.Upstream, durationMs int64, success bool) {
	if f.stats != nil {
		f.stats.Record(up.ID, up.Label, durationMs, success)
	}
}

func (f *Forwarder) startSpan(ctx context.Context, up routing.Upstream, url string, attempt int) (context.Context, trace.Span) {
	if f.tracer == nil {
		return ctx, noop.Span{}
	}
	actx, span := f.tracer.Start(ctx, "upstream.attempt")
	tracing.SetUpstreamAttributes(span, up.ID, url, attempt)
	return actx, span
}

func endSpan(span trace.Span, err error) {
	tracing.EndSpan(span, err)
}

// retryAction returns "fallback" when the delivering upstream is not the
// first one, "retry" when any retry happened, and "" otherwise.
func retryAction(retried, fellBack bool) string {
	switch {
	case fellBack:
		return logstore.RetryActionFallback
	case retried:
		return logstore.RetryActionRetry
	default:
		return ""
	}
}

// attemptError describes why an attempt did not deliver.
func attemptError(err error, status int) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("upstream returned %d %s", status, http.StatusText(status))
}

func suffixOf(m *routing.Match) string {
	if m == nil {
		return ""
	}
	return m.Suffix
}

// discard drains and closes an unused response so its connection can be
// reused.
func discard(resp *http.Response) {
	if resp == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
