package emit

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestEmitter(t *testing.T) (*OTelEmitter, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewOTelEmitter(otel.Tracer("test")), exporter
}

func attributeMap(attrs []attribute.KeyValue) map[string]any {
	m := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func TestOTelEmitter_Emit(t *testing.T) {
	emitter, exporter := newTestEmitter(t)

	emitter.Emit(Event{
		Kind:      KindExit,
		SessionID: "sess-1",
		Seq:       3,
		NodeID:    "classify",
		NodeType:  "classify",
		Iteration: 1,
		ElapsedMS: 120,
		Delta:     map[string]any{"difficulty": "easy"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "flow.exit" {
		t.Errorf("span name = %q", span.Name)
	}
	attrs := attributeMap(span.Attributes)
	if attrs["agentflow.session_id"] != "sess-1" {
		t.Errorf("session_id = %v", attrs["agentflow.session_id"])
	}
	if attrs["agentflow.seq"] != int64(3) {
		t.Errorf("seq = %v", attrs["agentflow.seq"])
	}
	if attrs["agentflow.node.latency_ms"] != int64(120) {
		t.Errorf("latency = %v", attrs["agentflow.node.latency_ms"])
	}
	if attrs["agentflow.delta.difficulty"] != "easy" {
		t.Errorf("delta = %v", attrs["agentflow.delta.difficulty"])
	}
	if !span.EndTime.After(span.StartTime) {
		t.Error("span was not ended")
	}
}

func TestOTelEmitter_EdgeAttributes(t *testing.T) {
	emitter, exporter := newTestEmitter(t)

	emitter.Emit(Event{Kind: KindEdge, NodeID: "classify", Port: "easy", Target: "answer"})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	attrs := attributeMap(spans[0].Attributes)
	if attrs["agentflow.edge.port"] != "easy" || attrs["agentflow.edge.target"] != "answer" {
		t.Errorf("edge attrs = %v", attrs)
	}
}

func TestOTelEmitter_ErrorStatus(t *testing.T) {
	emitter, exporter := newTestEmitter(t)

	emitter.Emit(Event{
		Kind:         KindError,
		NodeID:       "answer",
		ErrorType:    "model_error",
		ErrorMessage: "rate limited",
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error {
		t.Errorf("status = %v", span.Status.Code)
	}
	if span.Status.Description != "rate limited" {
		t.Errorf("description = %q", span.Status.Description)
	}
	if len(span.Events) == 0 {
		t.Error("expected a recorded error event")
	}
}

func TestOTelEmitter_Flush(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{Kind: KindEnd, StopReason: "complete"})

	if err := emitter.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(exporter.GetSpans()) != 1 {
		t.Errorf("spans after flush = %d", len(exporter.GetSpans()))
	}
}
