// Package telemetry provides OpenTelemetry instrumentation for certusage.
package telemetry

import (
	"context"
	"fmt"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/certusage/internal/config"
	"github.com/yairfalse/certusage/internal/scan"
	"github.com/yairfalse/certusage/pkg/usage"
)

// Provider wraps OTEL tracer and meter providers.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	pusher         *push.Pusher

	// Metrics
	sourceDuration metric.Float64Histogram
	recordCount    metric.Int64Counter
	matchCount     metric.Int64Counter
	sourceErrors   metric.Int64Counter
}

// NewProvider creates a new telemetry provider. When pushCfg names a
// Pushgateway, the same instruments are also exported through a Prometheus
// registry pushed on Push.
func NewProvider(ctx context.Context, cfg config.OTELConfig, pushCfg config.PushConfig) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	p := &Provider{}

	if err := p.setupTracing(ctx, cfg, res); err != nil {
		return nil, err
	}

	if err := p.setupMetrics(ctx, cfg, pushCfg, res); err != nil {
		if p.tracerProvider != nil {
			_ = p.tracerProvider.Shutdown(ctx)
		}
		return nil, err
	}

	if err := p.initMetrics(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if cfg.Traces.Enabled && cfg.Endpoint != "" {
		exp, err := createTraceExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		sampler := sdktrace.TraceIDRatioBased(cfg.Traces.SampleRate)
		opts = append(opts, sdktrace.WithBatcher(exp), sdktrace.WithSampler(sampler))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer("certusage")

	return nil
}

func (p *Provider) setupMetrics(ctx context.Context, cfg config.OTELConfig, pushCfg config.PushConfig, res *resource.Resource) error {
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}

	if cfg.Metrics.Enabled && cfg.Endpoint != "" {
		exp, err := createMetricExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}

	if pushCfg.Pushgateway != "" {
		registry := promclient.NewRegistry()
		exp, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return fmt.Errorf("create prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exp))
		p.pusher = push.New(pushCfg.Pushgateway, pushCfg.Job).Gatherer(registry)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter("certusage")

	return nil
}

func createTraceExporter(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createMetricExporter(ctx context.Context, cfg config.OTELConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func (p *Provider) initMetrics() error {
	var err error

	p.sourceDuration, err = p.meter.Float64Histogram(
		"certusage_source_duration_seconds",
		metric.WithDescription("Duration of inventory source drains"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create source_duration: %w", err)
	}

	p.recordCount, err = p.meter.Int64Counter(
		"certusage_records_scanned_total",
		metric.WithDescription("Total resource records inspected"),
	)
	if err != nil {
		return fmt.Errorf("create record_count: %w", err)
	}

	p.matchCount, err = p.meter.Int64Counter(
		"certusage_matches_total",
		metric.WithDescription("Total certificate references found"),
	)
	if err != nil {
		return fmt.Errorf("create match_count: %w", err)
	}

	p.sourceErrors, err = p.meter.Int64Counter(
		"certusage_source_errors_total",
		metric.WithDescription("Total inventory source failures"),
	)
	if err != nil {
		return fmt.Errorf("create source_errors: %w", err)
	}

	return nil
}

// SourceStarted opens one span per source drain.
func (p *Provider) SourceStarted(ctx context.Context, kind usage.Kind) context.Context {
	ctx, _ = p.tracer.Start(ctx, "source."+string(kind),
		trace.WithAttributes(attribute.String("source", string(kind))))
	return ctx
}

// SourceFinished records the drain metrics and closes the source span.
func (p *Provider) SourceFinished(ctx context.Context, stats scan.SourceStats) {
	attrs := metric.WithAttributes(attribute.String("source", string(stats.Kind)))

	p.sourceDuration.Record(ctx, stats.Duration.Seconds(), attrs)
	p.recordCount.Add(ctx, int64(stats.Records), attrs)
	p.matchCount.Add(ctx, int64(stats.Matches), attrs)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Int("records", stats.Records),
		attribute.Int("matches", stats.Matches),
	)
	if stats.Err != nil {
		p.sourceErrors.Add(ctx, 1, attrs)
		span.RecordError(stats.Err)
		span.SetStatus(codes.Error, stats.Err.Error())
	}
	span.End()
}

// Push sends the collected metrics to the Pushgateway, if one is configured.
func (p *Provider) Push(ctx context.Context) error {
	if p.pusher == nil {
		return nil
	}
	if err := p.pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	log.Debug().Msg("metrics pushed")
	return nil
}

// Shutdown flushes and shuts down the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer: %w", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter: %w", err)
		}
	}
	return nil
}
