// Package emit provides execution event streaming for workflow runs.
//
// The executor emits one event when a node starts, one when it finishes (or
// fails), one for every routing decision, and one when the run ends. Emitters
// deliver those events to a log, a buffer, an OpenTelemetry tracer, or a
// per-session JSONL file.
package emit

import "time"

// Kind classifies an execution event.
type Kind string

const (
	// KindEnter is emitted before a node executes.
	KindEnter Kind = "enter"

	// KindExit is emitted after a node executes successfully.
	KindExit Kind = "exit"

	// KindEdge is emitted for every conditional routing decision.
	KindEdge Kind = "edge"

	// KindError is emitted when a node execution fails.
	KindError Kind = "error"

	// KindEnd is emitted exactly once when the run terminates.
	KindEnd Kind = "end"
)

// Event is a single execution event.
//
// Only the fields relevant to the Kind are populated: enter events carry the
// state summary, exit events carry the preview and delta summary, edge events
// carry the port and target, error events carry the error fields, and end
// events carry the stop reason.
type Event struct {
	// Kind is the event type.
	Kind Kind `json:"kind"`

	// SessionID identifies the owning session, when known.
	SessionID string `json:"session_id,omitempty"`

	// Seq is the 1-based event number within the run.
	Seq int `json:"seq"`

	// Time is when the event was produced.
	Time time.Time `json:"time"`

	// NodeID is the workflow node this event concerns. Empty for end events.
	NodeID string `json:"node_id,omitempty"`

	// NodeLabel is the node's display label.
	NodeLabel string `json:"node_label,omitempty"`

	// NodeType is the registered node type.
	NodeType string `json:"node_type,omitempty"`

	// Iteration is the state's iteration counter at emit time.
	Iteration int `json:"iteration"`

	// ElapsedMS is the node execution time in milliseconds (exit and error).
	ElapsedMS int64 `json:"elapsed_ms,omitempty"`

	// StateSummary is a compact view of the state before execution (enter).
	StateSummary map[string]any `json:"state_summary,omitempty"`

	// Preview is a truncated view of the node's primary output (exit).
	Preview string `json:"preview,omitempty"`

	// Delta summarizes the fields the node changed (exit).
	Delta map[string]any `json:"delta,omitempty"`

	// Port is the routing port chosen by a conditional edge (edge).
	Port string `json:"port,omitempty"`

	// Target is the node the routing decision selected (edge).
	Target string `json:"target,omitempty"`

	// ErrorType is the error classification (error).
	ErrorType string `json:"error_type,omitempty"`

	// ErrorMessage is the error text (error).
	ErrorMessage string `json:"error_message,omitempty"`

	// StopReason describes why the run ended (end): "complete", "error",
	// "canceled", or a gate's stop reason.
	StopReason string `json:"stop_reason,omitempty"`
}
