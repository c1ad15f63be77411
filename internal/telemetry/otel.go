package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/sriramreddyM/coco-annotator/internal/config"
)

// Init installs the global tracer provider when an OTLP endpoint is configured.
// Without an endpoint it returns a noop shutdown function and leaves the
// default noop providers in place.
func Init(ctx context.Context, cfg config.ObservabilityConfig, logger *slog.Logger) (shutdown func(context.Context) error, err error) {
	if cfg.OTLPEndpoint == "" {
		logger.Info("telemetry disabled", "reason", "observability.otlp_endpoint not set")
		return func(context.Context) error { return nil }, nil
	}

	logger.Info("initializing OpenTelemetry",
		"endpoint", cfg.OTLPEndpoint,
		"protocol", cfg.OTLPProtocol,
		"service", cfg.ServiceName,
	)

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTEL resource: %w", err)
	}

	tracerProvider, err := newTracerProvider(ctx, res, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return func(ctx context.Context) error {
		logger.Info("shutting down OpenTelemetry")
		if err := tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown tracer provider: %w", err)
		}
		return nil
	}, nil
}

func newResource(cfg config.ObservabilityConfig) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
}

// newTracerProvider creates a TracerProvider with a batching OTLP HTTP exporter.
func newTracerProvider(ctx context.Context, res *resource.Resource, cfg config.ObservabilityConfig) (*sdktrace.TracerProvider, error) {
	switch cfg.OTLPProtocol {
	case "", "http/protobuf":
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q, use http/protobuf", cfg.OTLPProtocol)
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
	}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}
