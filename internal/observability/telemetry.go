// Package observability sets up OpenTelemetry tracing and metrics export
// and holds the instruments recorded by the sync coordinators.
package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/prudhvinik1/syncengine/internal/config"
	"github.com/prudhvinik1/syncengine/internal/logger"
)

const (
	exportTimeout  = 30 * time.Second
	batchTimeout   = 5 * time.Second
	maxExportBatch = 512
	metricInterval = 30 * time.Second
)

// Telemetry owns the SDK providers installed as the otel globals.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	config         config.Telemetry
}

// Initialize installs OTLP/gRPC trace and metric providers. With telemetry
// disabled the otel globals stay no-op and Shutdown does nothing.
func Initialize(ctx context.Context, cfg config.Telemetry, log *logger.Logger) (*Telemetry, error) {
	if !cfg.Enabled {
		log.Info().Str("func", "observability.Initialize").Msg("telemetry disabled")
		return &Telemetry{config: cfg}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
		resource.WithHost(),
	)
	if err != nil {
		return nil, err
	}

	t := &Telemetry{config: cfg}

	t.TracerProvider, err = initTracer(ctx, cfg.Endpoint, res)
	if err != nil {
		log.Warn().Err(err).Str("func", "observability.Initialize").Msg("continuing without tracing")
	} else {
		otel.SetTracerProvider(t.TracerProvider)
	}

	t.MeterProvider, err = initMeter(ctx, cfg.Endpoint, res)
	if err != nil {
		log.Warn().Err(err).Str("func", "observability.Initialize").Msg("continuing without metrics")
	} else {
		otel.SetMeterProvider(t.MeterProvider)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info().
		Str("func", "observability.Initialize").
		Str("endpoint", cfg.Endpoint).
		Msg("telemetry initialized")

	return t, nil
}

func initTracer(ctx context.Context, endpoint string, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(exportTimeout),
	)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(batchTimeout),
			sdktrace.WithMaxExportBatchSize(maxExportBatch),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	), nil
}

func initMeter(ctx context.Context, endpoint string, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithTimeout(exportTimeout),
	)
	if err != nil {
		return nil, err
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(metricInterval),
		)),
		sdkmetric.WithResource(res),
	), nil
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if !t.config.Enabled {
		return nil
	}

	var errs []error
	if t.TracerProvider != nil {
		if err := t.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if t.MeterProvider != nil {
		if err := t.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
