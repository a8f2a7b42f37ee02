// ABOUTME: OpenTelemetry exporter factory for creating metric and trace exporters
// ABOUTME: Maps configured exporter names onto stdout-style writers

package telemetry

import (
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// exporterWriters resolves the configured exporter names to writers. An empty
// exporter list falls back to stdout.
func exporterWriters(cfg Config) []io.Writer {
	names := cfg.Exporters
	if len(names) == 0 {
		names = []string{"stdout"}
	}

	writers := make([]io.Writer, 0, len(names))
	for _, name := range names {
		switch name {
		case "stdout":
			if cfg.Output != nil {
				writers = append(writers, cfg.Output)
			} else {
				writers = append(writers, os.Stdout)
			}
		case "stderr":
			writers = append(writers, os.Stderr)
		}
	}
	return writers
}

// createMetricExporters creates metric exporters based on configuration.
func createMetricExporters(cfg Config) ([]sdkmetric.Exporter, error) {
	var exporters []sdkmetric.Exporter
	for _, w := range exporterWriters(cfg) {
		exporter, err := stdoutmetric.New(
			stdoutmetric.WithWriter(w),
			stdoutmetric.WithPrettyPrint(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}
		exporters = append(exporters, exporter)
	}
	return exporters, nil
}

// createTraceExporters creates trace exporters based on configuration.
func createTraceExporters(cfg Config) ([]sdktrace.SpanExporter, error) {
	var exporters []sdktrace.SpanExporter
	for _, w := range exporterWriters(cfg) {
		exporter, err := stdouttrace.New(
			stdouttrace.WithWriter(w),
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		exporters = append(exporters, exporter)
	}
	return exporters, nil
}
