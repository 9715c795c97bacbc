package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/trusttai/api/internal/config"
)

const instrumentationName = "github.com/trusttai/api"

// Provider owns the OpenTelemetry SDK providers. A disabled Provider is
// valid and does nothing.
type Provider struct {
	tracer *sdktrace.TracerProvider
	meter  *sdkmetric.MeterProvider
	logger *sdklog.LoggerProvider
}

// Setup installs global trace, metric and log providers exporting over
// OTLP. It returns a no-op Provider when telemetry is disabled.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", cfg.ServiceName)),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	traceExp, metricExp, logExp, err := exporters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		tracer: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExp),
			sdktrace.WithResource(res),
		),
		meter: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(30*time.Second))),
			sdkmetric.WithResource(res),
		),
		logger: sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
			sdklog.WithResource(res),
		),
	}

	otel.SetTracerProvider(p.tracer)
	otel.SetMeterProvider(p.meter)
	global.SetLoggerProvider(p.logger)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if err := runtime.Start(runtime.WithMeterProvider(p.meter)); err != nil {
		_ = p.Shutdown(ctx)
		return nil, fmt.Errorf("starting runtime metrics: %w", err)
	}

	slog.Info("telemetry enabled", "component", "telemetry", "endpoint", cfg.Endpoint, "protocol", cfg.Protocol)
	return p, nil
}

func exporters(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, sdkmetric.Exporter, sdklog.Exporter, error) {
	var (
		traceExp  sdktrace.SpanExporter
		metricExp sdkmetric.Exporter
		logExp    sdklog.Exporter
		err       error
	)

	switch cfg.Protocol {
	case "grpc":
		if traceExp, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(cfg.Endpoint)); err != nil {
			return nil, nil, nil, fmt.Errorf("creating trace exporter: %w", err)
		}
		if metricExp, err = otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpointURL(cfg.Endpoint)); err != nil {
			return nil, nil, nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		if logExp, err = otlploggrpc.New(ctx, otlploggrpc.WithEndpointURL(cfg.Endpoint)); err != nil {
			return nil, nil, nil, fmt.Errorf("creating log exporter: %w", err)
		}
	default:
		if traceExp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint)); err != nil {
			return nil, nil, nil, fmt.Errorf("creating trace exporter: %w", err)
		}
		if metricExp, err = otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(cfg.Endpoint)); err != nil {
			return nil, nil, nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		if logExp, err = otlploghttp.New(ctx, otlploghttp.WithEndpointURL(cfg.Endpoint)); err != nil {
			return nil, nil, nil, fmt.Errorf("creating log exporter: %w", err)
		}
	}
	return traceExp, metricExp, logExp, nil
}

func (p *Provider) Enabled() bool {
	return p.tracer != nil
}

// LogHandler bridges slog records to the OTLP log exporter. It is nil when
// telemetry is disabled.
func (p *Provider) LogHandler() slog.Handler {
	if p.logger == nil {
		return nil
	}
	return otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(p.logger))
}

// Shutdown flushes and stops every provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracer != nil {
		errs = append(errs, p.tracer.Shutdown(ctx))
	}
	if p.meter != nil {
		errs = append(errs, p.meter.Shutdown(ctx))
	}
	if p.logger != nil {
		errs = append(errs, p.logger.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
