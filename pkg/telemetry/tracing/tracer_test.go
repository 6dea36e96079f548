package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"mercator-hq/apiflow/pkg/config"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tr, err := NewWithProcessor("apiflow-test", sdktrace.NewSimpleSpanProcessor(exp), 1)
	if err != nil {
		t.Fatalf("NewWithProcessor() error = %v", err)
	}
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })
	return tr, exp
}

func TestNew(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("New(nil) error = nil, want error")
	}

	tr, err := New(&config.TracingConfig{Enabled: false, ServiceName: "apiflow"})
	if err != nil {
		t.Fatalf("New(disabled) error = %v", err)
	}
	if tr.Enabled() {
		t.Error("Enabled() = true for disabled config")
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}

	_, span := tr.Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("disabled tracer produced a valid span context")
	}
	span.End()
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio   float64
		wantErr bool
	}{
		{ratio: 0},
		{ratio: 0.5},
		{ratio: 1},
		{ratio: -0.1, wantErr: true},
		{ratio: 1.5, wantErr: true},
	}
	for _, tt := range tests {
		s, err := sampler(tt.ratio)
		if (err != nil) != tt.wantErr {
			t.Errorf("sampler(%v) error = %v, wantErr %v", tt.ratio, err, tt.wantErr)
			continue
		}
		if err == nil && s == nil {
			t.Errorf("sampler(%v) returned nil sampler", tt.ratio)
		}
	}
}

func TestEndSpan(t *testing.T) {
	tr, exp := newTestTracer(t)

	_, ok := tr.Start(context.Background(), "ok")
	EndSpan(ok, nil)
	_, failed := tr.Start(context.Background(), "failed")
	EndSpan(failed, errors.New("upstream refused"))

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("exported %d spans, want 2", len(spans))
	}
	if spans[0].Status.Code != codes.Ok {
		t.Errorf("ok span status = %v, want Ok", spans[0].Status.Code)
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != "upstream refused" {
		t.Errorf("failed span status = %+v", spans[1].Status)
	}
	if len(spans[1].Events) == 0 {
		t.Error("failed span has no recorded error event")
	}
}

func TestUpstreamAttributes(t *testing.T) {
	tr, exp := newTestTracer(t)

	_, span := tr.Start(context.Background(), "upstream.attempt")
	SetUpstreamAttributes(span, "primary", "http://up/v1", 2)
	SetResultAttributes(span, 0, "retry", true)
	span.End()

	got := map[attribute.Key]attribute.Value{}
	for _, kv := range exp.GetSpans()[0].Attributes {
		got[kv.Key] = kv.Value
	}
	if got[AttrUpstreamID].AsString() != "primary" {
		t.Errorf("%s = %v", AttrUpstreamID, got[AttrUpstreamID])
	}
	if got[AttrAttempt].AsInt64() != 2 {
		t.Errorf("%s = %v", AttrAttempt, got[AttrAttempt])
	}
	if _, ok := got[AttrHTTPStatus]; ok {
		t.Error("zero status must not be recorded")
	}
	if got[AttrRetryAction].AsString() != "retry" || !got[AttrStreaming].AsBool() {
		t.Errorf("result attributes = %v", got)
	}
}

func TestInjectExtract(t *testing.T) {
	tr, _ := newTestTracer(t)

	ctx, span := tr.Start(context.Background(), "gateway.request")
	defer span.End()

	h := http.Header{}
	Inject(ctx, h)
	if h.Get("traceparent") == "" {
		t.Fatal("Inject() did not set traceparent")
	}

	extracted := Extract(context.Background(), h)
	if got, want := TraceID(extracted), TraceID(ctx); got != want {
		t.Errorf("TraceID(extracted) = %q, want %q", got, want)
	}
}

func TestTraceIDWithoutSpan(t *testing.T) {
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID() = %q, want empty", got)
	}
}
