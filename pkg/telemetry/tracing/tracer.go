package tracing

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/apiflow/pkg/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	instrumentationName = "mercator-hq/apiflow"
	defaultServiceName  = "apiflow"
)

// Tracer starts the gateway.request and upstream.attempt spans. A disabled
// Tracer hands out noop spans.
type Tracer struct {
	trace.Tracer
	provider *sdktrace.TracerProvider
}

// New returns Disabled() when tracing is off. Otherwise spans are batched to
// the OTLP gRPC collector at cfg.Endpoint; the connection is made lazily, so
// a missing collector does not fail startup.
//
//	defer tracer.Shutdown(context.Background())
func New(cfg *config.TracingConfig) (*Tracer, error) {
	if cfg == nil {
		return nil, errors.New("tracing config is nil")
	}
	if !cfg.Enabled {
		return Disabled(), nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.Timeout))
	}
	exp, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tr, err := NewWithProcessor(cfg.ServiceName, sdktrace.NewBatchSpanProcessor(exp), cfg.SampleRatio)
	if err != nil {
		_ = exp.Shutdown(context.Background())
		return nil, err
	}
	return tr, nil
}

// NewWithProcessor builds an enabled tracer exporting through processor and
// installs it, with W3C trace context propagation, as the otel global.
func NewWithProcessor(serviceName string, processor sdktrace.SpanProcessor, ratio float64) (*Tracer, error) {
	s, err := sampler(ratio)
	if err != nil {
		return nil, err
	}
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithResource(resource.NewSchemaless(semconv.ServiceName(serviceName))),
		sdktrace.WithSampler(s),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return &Tracer{Tracer: provider.Tracer(instrumentationName), provider: provider}, nil
}

// Disabled returns a tracer that records nothing.
func Disabled() *Tracer {
	return &Tracer{Tracer: noop.NewTracerProvider().Tracer(instrumentationName)}
}

// Enabled reports whether spans are exported.
func (t *Tracer) Enabled() bool { return t.provider != nil }

// Shutdown flushes buffered spans and closes the exporter.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// sampler honors the caller's sampling decision and samples new traces at
// ratio, which must lie in [0, 1].
func sampler(ratio float64) (sdktrace.Sampler, error) {
	if ratio < 0 || ratio > 1 {
		return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %g", ratio)
	}
	root := sdktrace.TraceIDRatioBased(ratio)
	switch ratio {
	case 0:
		root = sdktrace.NeverSample()
	case 1:
		root = sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(root), nil
}
