// ABOUTME: OpenTelemetry provider implementation with metric and trace provider setup for lsmcore telemetry
// ABOUTME: Handles provider lifecycle, resource detection, instrument caching and sampling configuration

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/KevoDB/lsmcore"

// TelemetryProvider implements the Telemetry interface using OpenTelemetry SDK.
type TelemetryProvider struct {
	config         Config
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          metric.Meter
	tracer         oteltrace.Tracer
	resource       *sdkresource.Resource

	// Instruments are created lazily and reused by name
	histograms sync.Map // name -> metric.Float64Histogram
	counters   sync.Map // name -> metric.Int64Counter

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a new TelemetryProvider with the given configuration.
// Disabled configurations produce a no-op implementation.
func New(cfg Config) (Telemetry, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry resource: %w", err)
	}

	metricExporters, err := createMetricExporters(cfg)
	if err != nil {
		return nil, err
	}
	traceExporters, err := createTraceExporters(cfg)
	if err != nil {
		return nil, err
	}

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, exp := range metricExporters {
		reader := sdkmetric.NewPeriodicReader(exp,
			sdkmetric.WithInterval(cfg.BatchTimeout),
			sdkmetric.WithTimeout(cfg.ExportTimeout),
		)
		meterOpts = append(meterOpts, sdkmetric.WithReader(reader))
	}

	tracerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	}
	for _, exp := range traceExporters {
		tracerOpts = append(tracerOpts, sdktrace.WithBatcher(exp,
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
			sdktrace.WithExportTimeout(cfg.ExportTimeout),
			sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
			sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatchSize),
		))
	}

	mp := sdkmetric.NewMeterProvider(meterOpts...)
	tp := sdktrace.NewTracerProvider(tracerOpts...)

	return &TelemetryProvider{
		config:         cfg,
		meterProvider:  mp,
		tracerProvider: tp,
		meter:          mp.Meter(instrumentationName),
		tracer:         tp.Tracer(instrumentationName),
		resource:       res,
	}, nil
}

func (p *TelemetryProvider) histogram(name string) (metric.Float64Histogram, bool) {
	if h, ok := p.histograms.Load(name); ok {
		return h.(metric.Float64Histogram), true
	}
	h, err := p.meter.Float64Histogram(name)
	if err != nil {
		return nil, false
	}
	actual, _ := p.histograms.LoadOrStore(name, h)
	return actual.(metric.Float64Histogram), true
}

func (p *TelemetryProvider) counter(name string) (metric.Int64Counter, bool) {
	if c, ok := p.counters.Load(name); ok {
		return c.(metric.Int64Counter), true
	}
	c, err := p.meter.Int64Counter(name)
	if err != nil {
		return nil, false
	}
	actual, _ := p.counters.LoadOrStore(name, c)
	return actual.(metric.Int64Counter), true
}

// RecordHistogram records a histogram value with optional attributes.
func (p *TelemetryProvider) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	if h, ok := p.histogram(name); ok {
		h.Record(ctx, value, metric.WithAttributes(attrs...))
	}
}

// RecordCounter records a counter increment with optional attributes.
func (p *TelemetryProvider) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	if c, ok := p.counter(name); ok {
		c.Add(ctx, value, metric.WithAttributes(attrs...))
	}
}

// StartSpan creates a new tracing span with the given name and attributes.
func (p *TelemetryProvider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return p.tracer.Start(ctx, name, oteltrace.WithAttributes(attrs...))
}

// Shutdown flushes pending telemetry and stops both providers. Calling it
// more than once returns the first result.
func (p *TelemetryProvider) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		p.shutdownErr = errors.Join(
			p.tracerProvider.Shutdown(ctx),
			p.meterProvider.Shutdown(ctx),
		)
	})
	return p.shutdownErr
}
