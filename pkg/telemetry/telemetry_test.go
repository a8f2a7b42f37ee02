// ABOUTME: Tests for core telemetry interface and no-op implementation functionality
// ABOUTME: Validates telemetry recording, span creation, and lifecycle management using real telemetry operations

package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

func TestNoopTelemetry(t *testing.T) {
	tel := NewNoop()

	ctx := context.Background()

	tel.RecordHistogram(ctx, "test.histogram", 1.5, attribute.String("key", "value"))
	tel.RecordCounter(ctx, "test.counter", 10, attribute.String("key", "value"))

	spanCtx, span := tel.StartSpan(ctx, "test.span", attribute.String("test", "value"))
	if spanCtx == nil {
		t.Error("StartSpan returned nil context")
	}
	if span == nil {
		t.Error("StartSpan returned nil span")
	}
	span.End()

	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown returned error: %v", err)
	}
}

func TestNewForTesting(t *testing.T) {
	tel := NewForTesting()
	if tel == nil {
		t.Fatal("NewForTesting returned nil")
	}
	if _, ok := tel.(*NoopTelemetry); !ok {
		t.Errorf("expected a no-op implementation, got %T", tel)
	}
}

func TestRecordHelpers(t *testing.T) {
	tel := NewNoop()
	ctx := context.Background()
	start := time.Now()

	time.Sleep(time.Millisecond)

	RecordDuration(ctx, tel, "test.duration", start, attribute.String("op", "test"))
	RecordBytes(ctx, tel, "test.bytes", 1024, attribute.String("op", "test"))
}

func TestConstantsDefined(t *testing.T) {
	values := []string{
		AttrOperationType, AttrComponent, AttrStatus, AttrErrorType,
		AttrTableID, AttrReason, AttrCompression,
		OpTypePut, OpTypeDelete, OpTypeMerge, OpTypeUpdate, OpTypeGet,
		OpTypeRangeQuery, OpTypeFlush, OpTypeBlockDecode, OpTypeBlockSeek,
		StatusSuccess, StatusError, StatusNotFound, StatusIncomplete,
		ComponentMemTable, ComponentBlock,
	}

	for i, v := range values {
		if v == "" {
			t.Errorf("constant %d is empty", i)
		}
	}
}
