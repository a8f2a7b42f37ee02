// ABOUTME: MemTable telemetry metrics interface and implementation for tracking write buffer operations
// ABOUTME: Provides instrumentation for operations, flush triggers, size tracking, and memtable list state

package memtable

import (
	"context"
	"time"

	"github.com/KevoDB/lsmcore/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MemTableMetrics defines the interface for MemTable telemetry operations.
// All metrics are optional - implementations can safely be no-op.
type MemTableMetrics interface {
	telemetry.ComponentMetrics

	// RecordOperation records metrics for individual operations (put/delete/merge/get/range_query).
	RecordOperation(ctx context.Context, opType string, status string, duration time.Duration)

	// RecordFlushTrigger records when a flush is requested and why.
	RecordFlushTrigger(ctx context.Context, reason string, memTableSize int64, memTableAge float64)

	// RecordFlushDuration records how long a flush of picked memtables took.
	RecordFlushDuration(ctx context.Context, duration time.Duration, memTableSize int64, entryCount int64)

	// RecordSizeChange records changes in MemTable size for monitoring growth.
	RecordSizeChange(ctx context.Context, newSize int64, delta int64, memTableType string)

	// RecordListState records the shape of the memtable list.
	RecordListState(ctx context.Context, activeSize int64, immutableCount int, totalSize int64)

	// StartSpan starts a tracing span for a multi-table operation.
	StartSpan(ctx context.Context, opType string) (context.Context, trace.Span)
}

// memTableMetrics implements MemTableMetrics using the telemetry interface.
type memTableMetrics struct {
	tel telemetry.Telemetry
}

// NewMemTableMetrics creates a new MemTable metrics implementation.
// If tel is nil, returns a no-op implementation.
func NewMemTableMetrics(tel telemetry.Telemetry) MemTableMetrics {
	if tel == nil {
		return &noopMemTableMetrics{}
	}
	return &memTableMetrics{tel: tel}
}

// NewNoopMemTableMetrics creates a no-op MemTable metrics implementation for testing.
func NewNoopMemTableMetrics() MemTableMetrics {
	return &noopMemTableMetrics{}
}

// RecordOperation records MemTable operation metrics.
func (m *memTableMetrics) RecordOperation(ctx context.Context, opType string, status string, duration time.Duration) {
	m.tel.RecordHistogram(ctx, "lsmcore.memtable.operation.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrOperationType, opType),
	)

	m.tel.RecordCounter(ctx, "lsmcore.memtable.operations.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrOperationType, opType),
		attribute.String(telemetry.AttrStatus, status),
	)
}

// RecordFlushTrigger records flush trigger events.
func (m *memTableMetrics) RecordFlushTrigger(ctx context.Context, reason string, memTableSize int64, memTableAge float64) {
	m.tel.RecordCounter(ctx, "lsmcore.memtable.flush.trigger.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrReason, reason),
	)

	m.tel.RecordHistogram(ctx, "lsmcore.memtable.flush.trigger.size", float64(memTableSize),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrReason, reason),
	)

	m.tel.RecordHistogram(ctx, "lsmcore.memtable.flush.trigger.age", memTableAge,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrReason, reason),
	)
}

// RecordFlushDuration records flush metrics.
func (m *memTableMetrics) RecordFlushDuration(ctx context.Context, duration time.Duration, memTableSize int64, entryCount int64) {
	m.tel.RecordHistogram(ctx, "lsmcore.memtable.flush.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeFlush),
	)

	m.tel.RecordHistogram(ctx, "lsmcore.memtable.flush.size", float64(memTableSize),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
	)

	m.tel.RecordCounter(ctx, "lsmcore.memtable.flush.entries", entryCount,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
	)
}

// RecordSizeChange records MemTable size changes.
func (m *memTableMetrics) RecordSizeChange(ctx context.Context, newSize int64, delta int64, memTableType string) {
	m.tel.RecordHistogram(ctx, "lsmcore.memtable.size.bytes", float64(newSize),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String("memtable.type", memTableType),
	)

	m.tel.RecordHistogram(ctx, "lsmcore.memtable.size.delta", float64(delta),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String("memtable.type", memTableType),
	)
}

// RecordListState records memtable list state metrics.
func (m *memTableMetrics) RecordListState(ctx context.Context, activeSize int64, immutableCount int, totalSize int64) {
	m.tel.RecordHistogram(ctx, "lsmcore.memtable.list.active.size", float64(activeSize),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
	)

	m.tel.RecordHistogram(ctx, "lsmcore.memtable.list.immutable.count", float64(immutableCount),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
	)

	m.tel.RecordHistogram(ctx, "lsmcore.memtable.list.total.size", float64(totalSize),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
	)
}

// StartSpan starts a span named after the operation.
func (m *memTableMetrics) StartSpan(ctx context.Context, opType string) (context.Context, trace.Span) {
	return m.tel.StartSpan(ctx, "memtable."+opType,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrOperationType, opType),
	)
}

// Close releases any resources held by the metrics implementation.
func (m *memTableMetrics) Close() error {
	return nil
}

// noopMemTableMetrics provides a no-operation implementation for testing or disabled telemetry.
type noopMemTableMetrics struct{}

func (n *noopMemTableMetrics) RecordOperation(ctx context.Context, opType string, status string, duration time.Duration) {
}

func (n *noopMemTableMetrics) RecordFlushTrigger(ctx context.Context, reason string, memTableSize int64, memTableAge float64) {
}

func (n *noopMemTableMetrics) RecordFlushDuration(ctx context.Context, duration time.Duration, memTableSize int64, entryCount int64) {
}

func (n *noopMemTableMetrics) RecordSizeChange(ctx context.Context, newSize int64, delta int64, memTableType string) {
}

func (n *noopMemTableMetrics) RecordListState(ctx context.Context, activeSize int64, immutableCount int, totalSize int64) {
}

func (n *noopMemTableMetrics) StartSpan(ctx context.Context, opType string) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

// Close is a no-op.
func (n *noopMemTableMetrics) Close() error {
	return nil
}

// statusForResult maps a lookup outcome to a telemetry status value
func statusForResult(r GetResult) string {
	switch r.Status {
	case LookupFound:
		return telemetry.StatusSuccess
	case LookupMergeInProgress:
		return telemetry.StatusIncomplete
	case LookupFailed:
		return telemetry.StatusError
	default:
		return telemetry.StatusNotFound
	}
}

// getMemTableTypeName converts MemTable type to telemetry string
func getMemTableTypeName(immutable bool) string {
	if immutable {
		return "immutable"
	}
	return "active"
}
