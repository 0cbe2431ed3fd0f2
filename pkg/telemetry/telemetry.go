package telemetry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	tracerName = "stackcc/pkg/compiler"

	defaultDialTimeout = 5 * time.Second
)

// Provider hands out the tracer compile stages are recorded on.
type Provider interface {
	Tracer() trace.Tracer
	Shutdown(ctx context.Context) error
}

// sinks collects where finished spans go besides the OTLP endpoint.
type sinks struct {
	exporter   sdktrace.SpanExporter
	processors []sdktrace.SpanProcessor
}

func (s sinks) empty() bool {
	return s.exporter == nil && len(s.processors) == 0
}

type Option func(*sinks)

// WithSpanProcessor attaches proc synchronously; tests pass a span recorder.
func WithSpanProcessor(proc sdktrace.SpanProcessor) Option {
	return func(s *sinks) {
		if proc != nil {
			s.processors = append(s.processors, proc)
		}
	}
}

// WithExporter batches spans to exp instead of dialling Config.Endpoint.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(s *sinks) {
		if exp != nil {
			s.exporter = exp
		}
	}
}

// sdkProvider owns an SDK tracer provider for the lifetime of one run.
type sdkProvider struct {
	tp   *sdktrace.TracerProvider
	once sync.Once
	err  error
}

// New builds a Provider for cfg. With no endpoint and no sinks it returns
// Noop, so an unconfigured CLI never touches the SDK.
func New(cfg Config, opts ...Option) (Provider, error) {
	var s sinks
	for _, opt := range opts {
		opt(&s)
	}
	if !cfg.Enabled() && s.empty() {
		return Noop(), nil
	}

	res, err := resource.New(context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(resourceAttributes(cfg)...),
	)
	if err != nil {
		return nil, err
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	switch {
	case s.exporter != nil:
		tpOpts = append(tpOpts, sdktrace.WithBatcher(s.exporter))
	case cfg.Enabled():
		exp, err := dialExporter(cfg)
		if err != nil {
			return nil, err
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	}
	for _, proc := range s.processors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(proc))
	}

	return &sdkProvider{tp: sdktrace.NewTracerProvider(tpOpts...)}, nil
}

func (p *sdkProvider) Tracer() trace.Tracer {
	return p.tp.Tracer(tracerName)
}

// Shutdown flushes batched spans. Later calls return the first result.
func (p *sdkProvider) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		p.err = p.tp.Shutdown(ctx)
	})
	return p.err
}

func Noop() Provider {
	return noopProvider{}
}

type noopProvider struct{}

func (noopProvider) Tracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer(tracerName)
}

func (noopProvider) Shutdown(context.Context) error { return nil }

// Span runs fn inside a span called name that is a child of any span in
// ctx. An error from fn is recorded on the span and returned unchanged;
// otherwise the span ends with an Ok status.
func Span(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	fn func(ctx context.Context, span trace.Span) error,
	attrs ...attribute.KeyValue,
) error {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	if err := fn(ctx, span); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func dialExporter(cfg Config) (*otlptrace.Exporter, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("telemetry: no OTLP endpoint configured")
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.Insecure {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
	}
	return otlptrace.New(ctx, otlptracegrpc.NewClient(grpcOpts...))
}

// resourceAttributes describes this process to the trace backend.
func resourceAttributes(cfg Config) []attribute.KeyValue {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = DefaultServiceName
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(name),
		attribute.String("service.instance.id", uuid.NewString()),
	}
	if v := strings.TrimSpace(cfg.Version); v != "" {
		attrs = append(attrs, semconv.ServiceVersion(v))
	}
	return attrs
}
