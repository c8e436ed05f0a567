// Package tracing exports per-request OpenTelemetry spans for a benchmark run.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/torosent/poolbench/internal/config"
)

const instrumentationName = "poolbench"

// Provider owns the SDK tracer provider of one run. A Provider without an
// SDK provider hands out no-op tracers.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// exportTarget is a TracingConfig with environment fallbacks applied.
type exportTarget struct {
	endpoint string
	protocol string
	service  string
	insecure bool
	sampler  sdktrace.Sampler
}

// Init builds the provider described by cfg. OTEL_EXPORTER_OTLP_ENDPOINT and
// OTEL_SERVICE_NAME fill in blank settings. Disabled tracing, or an enabled
// config with no endpoint anywhere, yields a no-op provider.
func Init(ctx context.Context, cfg config.TracingConfig) (*Provider, error) {
	if !cfg.Enabled() {
		return &Provider{}, nil
	}
	target, err := resolveTarget(cfg)
	if err != nil {
		return nil, err
	}
	if target.endpoint == "" {
		return &Provider{}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(target.service)),
		resource.WithProcessPID(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	exporter, err := target.exporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(target.sampler)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{tp: tp, tracer: tp.Tracer(instrumentationName)}, nil
}

func resolveTarget(cfg config.TracingConfig) (exportTarget, error) {
	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		return exportTarget{}, fmt.Errorf("tracing sample_rate must be between 0.0 and 1.0, got %g", cfg.SampleRate)
	}
	target := exportTarget{
		endpoint: firstNonBlank(cfg.Endpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		protocol: strings.ToLower(firstNonBlank(cfg.Protocol, "grpc")),
		service:  firstNonBlank(cfg.ServiceName, os.Getenv("OTEL_SERVICE_NAME"), instrumentationName),
		insecure: cfg.Insecure,
		sampler:  samplerFor(cfg.SampleRate),
	}
	if target.protocol != "grpc" && target.protocol != "http" {
		return exportTarget{}, fmt.Errorf("unsupported OTLP protocol %q: use \"grpc\" or \"http\"", target.protocol)
	}
	return target, nil
}

func samplerFor(ratio float64) sdktrace.Sampler {
	switch {
	case ratio <= 0:
		return sdktrace.NeverSample()
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(ratio)
	}
}

func (t exportTarget) exporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	if t.protocol == "http" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(t.endpoint)}
		if t.insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(t.endpoint)}
	if t.insecure {
		opts = append(opts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	return otlptracegrpc.New(ctx, opts...)
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Tracer returns the run tracer, or a no-op tracer when spans are not
// exported.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return p.tracer
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	return p != nil && p.tp != nil
}

// Shutdown flushes pending spans. Safe on a nil or no-op provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
