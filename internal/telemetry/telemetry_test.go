package telemetry

import (
	"context"
	"testing"
)

// TestNoop_DoesNotPanic exercises every Noop method; there is nothing to
// assert on beyond "it returns", which is the point of a discard
// implementation used in unit tests that don't care about observability.
func TestNoop_DoesNotPanic(t *testing.T) {
	ctx := context.Background()
	l := NewNoopLogger()
	l.Debug(ctx, "x")
	l.Info(ctx, "x", "k", "v")
	l.Warn(ctx, "x")
	l.Error(ctx, "x")

	m := NewNoopMetrics()
	m.IncCounter("c", 1)
	m.RecordTimer("t", 0)
	m.RecordGauge("g", 1)

	tr := NewNoopTracer()
	newCtx, span := tr.Start(ctx, "op")
	if newCtx != ctx {
		t.Fatalf("noop tracer must not replace the context")
	}
	span.AddEvent("e")
	span.SetStatus(0, "")
	span.RecordError(nil)
	span.End()
}
