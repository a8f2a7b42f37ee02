// ABOUTME: Block telemetry metrics interface and implementation for the on-disk read path
// ABOUTME: Tracks block decode latency, compression ratios, seeks and corruption events

package block

import (
	"context"
	"time"

	"github.com/KevoDB/lsmcore/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Metrics defines the interface for block telemetry operations.
// All metrics are optional - implementations can safely be no-op.
type Metrics interface {
	telemetry.ComponentMetrics

	// RecordDecode records opening a physical block: trailer check and decompression.
	RecordDecode(ctx context.Context, compression CompressionType, physicalSize, rawSize int64, duration time.Duration, status string)

	// RecordSeek records a seek through a block iterator.
	RecordSeek(ctx context.Context, duration time.Duration, found bool)

	// RecordCorruption records a corrupt block or entry.
	RecordCorruption(ctx context.Context, reason string)
}

// blockMetrics implements Metrics using the telemetry interface.
type blockMetrics struct {
	tel telemetry.Telemetry
}

// NewMetrics creates a new block metrics implementation.
// If tel is nil, returns a no-op implementation.
func NewMetrics(tel telemetry.Telemetry) Metrics {
	if tel == nil {
		return &noopMetrics{}
	}
	return &blockMetrics{tel: tel}
}

// NewNoopMetrics creates a no-op block metrics implementation for testing.
func NewNoopMetrics() Metrics {
	return &noopMetrics{}
}

// RecordDecode records block decode metrics.
func (m *blockMetrics) RecordDecode(ctx context.Context, compression CompressionType, physicalSize, rawSize int64, duration time.Duration, status string) {
	m.tel.RecordHistogram(ctx, "lsmcore.block.decode.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentBlock),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeBlockDecode),
		attribute.String(telemetry.AttrCompression, compression.String()),
	)

	m.tel.RecordCounter(ctx, "lsmcore.block.decode.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentBlock),
		attribute.String(telemetry.AttrCompression, compression.String()),
		attribute.String(telemetry.AttrStatus, status),
	)

	if status != telemetry.StatusSuccess {
		return
	}

	telemetry.RecordBytes(ctx, m.tel, "lsmcore.block.bytes.read", physicalSize,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentBlock),
	)

	if rawSize > 0 {
		m.tel.RecordHistogram(ctx, "lsmcore.block.compression.ratio", float64(physicalSize)/float64(rawSize),
			attribute.String(telemetry.AttrComponent, telemetry.ComponentBlock),
			attribute.String(telemetry.AttrCompression, compression.String()),
		)
	}
}

// RecordSeek records block seek metrics.
func (m *blockMetrics) RecordSeek(ctx context.Context, duration time.Duration, found bool) {
	status := telemetry.StatusSuccess
	if !found {
		status = telemetry.StatusNotFound
	}

	m.tel.RecordHistogram(ctx, "lsmcore.block.seek.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentBlock),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeBlockSeek),
	)

	m.tel.RecordCounter(ctx, "lsmcore.block.seek.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentBlock),
		attribute.String(telemetry.AttrStatus, status),
	)
}

// RecordCorruption records corruption events.
func (m *blockMetrics) RecordCorruption(ctx context.Context, reason string) {
	m.tel.RecordCounter(ctx, "lsmcore.block.corruption.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentBlock),
		attribute.String(telemetry.AttrReason, reason),
	)
}

// Close releases any resources held by the metrics implementation.
func (m *blockMetrics) Close() error {
	return nil
}

// noopMetrics provides a no-operation implementation for testing or disabled telemetry.
type noopMetrics struct{}

func (n *noopMetrics) RecordDecode(ctx context.Context, compression CompressionType, physicalSize, rawSize int64, duration time.Duration, status string) {
}

func (n *noopMetrics) RecordSeek(ctx context.Context, duration time.Duration, found bool) {}

func (n *noopMetrics) RecordCorruption(ctx context.Context, reason string) {}

// Close is a no-op.
func (n *noopMetrics) Close() error {
	return nil
}
