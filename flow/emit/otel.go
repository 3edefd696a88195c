package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by creating OpenTelemetry spans.
//
// Each event becomes a span named "flow.<kind>" carrying the event fields as
// attributes under the "agentflow" namespace. Events are points in time, so
// spans are ended immediately; batch span processors handle export.
//
// Usage:
//
//	tracer := otel.Tracer("agentflow")
//	emitter := emit.NewOTelEmitter(tracer)
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an OTelEmitter over the given tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit implements Emitter.
func (o *OTelEmitter) Emit(ev Event) {
	_, span := o.tracer.Start(context.Background(), "flow."+string(ev.Kind))
	defer span.End()

	span.SetAttributes(
		attribute.String("agentflow.session_id", ev.SessionID),
		attribute.Int("agentflow.seq", ev.Seq),
		attribute.String("agentflow.node_id", ev.NodeID),
		attribute.String("agentflow.node_type", ev.NodeType),
		attribute.Int("agentflow.iteration", ev.Iteration),
	)
	if ev.ElapsedMS > 0 {
		span.SetAttributes(attribute.Int64("agentflow.node.latency_ms", ev.ElapsedMS))
	}
	if ev.Port != "" {
		span.SetAttributes(
			attribute.String("agentflow.edge.port", ev.Port),
			attribute.String("agentflow.edge.target", ev.Target),
		)
	}
	if ev.StopReason != "" {
		span.SetAttributes(attribute.String("agentflow.stop_reason", ev.StopReason))
	}
	for k, v := range ev.StateSummary {
		setAnyAttribute(span, "agentflow.state."+k, v)
	}
	for k, v := range ev.Delta {
		setAnyAttribute(span, "agentflow.delta."+k, v)
	}

	if ev.Kind == KindError {
		span.SetStatus(codes.Error, ev.ErrorMessage)
		span.RecordError(fmt.Errorf("%s: %s", ev.ErrorType, ev.ErrorMessage))
	}
}

// Flush forces export of pending spans via the global tracer provider.
//
// Call before shutdown so batched spans reach the backend. Providers that do
// not support flushing (e.g. the noop provider) return nil.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func setAnyAttribute(span trace.Span, key string, value any) {
	switch v := value.(type) {
	case string:
		span.SetAttributes(attribute.String(key, v))
	case int:
		span.SetAttributes(attribute.Int(key, v))
	case int64:
		span.SetAttributes(attribute.Int64(key, v))
	case float64:
		span.SetAttributes(attribute.Float64(key, v))
	case bool:
		span.SetAttributes(attribute.Bool(key, v))
	default:
		span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}
