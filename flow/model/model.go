// Package model defines the adapter contract between workflow nodes and an
// external LLM process.
//
// The engine never talks to a model API or subprocess directly. Every model
// call goes through an Adapter, which owns the underlying transport (HTTP
// client, CLI subprocess, stdio pipe) and its lifecycle. This keeps nodes
// testable: tests swap in a MockAdapter with scripted responses.
package model

import (
	"context"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is a single chat message exchanged with the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// InvokeOptions carries per-call settings for Adapter.Invoke.
//
// Zero values mean "use the adapter's defaults". Model selects a specific
// model for this call, which the resilience layer uses to demote to fallback
// models without rebuilding the adapter.
type InvokeOptions struct {
	// Timeout bounds this single invocation. Zero uses the adapter default.
	Timeout time.Duration

	// SystemPrompt is prepended to the conversation when non-empty.
	SystemPrompt string

	// SkipPermissions forwards the permission-bypass flag to adapters that
	// drive an interactive subprocess.
	SkipPermissions bool

	// Model overrides the adapter's configured model for this call.
	Model string
}

// Result is the outcome of a single model invocation.
type Result struct {
	// Content is the model's response text.
	Content string `json:"content"`

	// StopReason describes why generation ended (e.g. "end_turn",
	// "max_tokens"). Adapter-specific; may be empty.
	StopReason string `json:"stop_reason,omitempty"`

	// CostUSD is the estimated cost of the call, when the adapter reports it.
	CostUSD float64 `json:"cost_usd,omitempty"`

	// DurationMS is the wall-clock duration of the call in milliseconds.
	DurationMS int64 `json:"duration_ms,omitempty"`

	// NumTurns is the number of internal turns the adapter used (CLI
	// adapters may loop over tool calls). Zero for single-shot adapters.
	NumTurns int `json:"num_turns,omitempty"`

	// Model is the model that actually served the call.
	Model string `json:"model,omitempty"`
}

// Metadata describes the adapter's underlying session.
type Metadata struct {
	SessionID   string
	ModelName   string
	WorkingDir  string
	StoragePath string

	// PID is the subprocess ID for adapters that own a process, 0 otherwise.
	PID int
}

// Adapter is the consumed model capability.
//
// Implementations must be safe for sequential use from a single session; the
// engine never calls Invoke concurrently for one adapter. Invoke must honor
// context cancellation and return ctx.Err() promptly when canceled.
type Adapter interface {
	// Invoke sends the conversation to the model and returns its response.
	Invoke(ctx context.Context, messages []Message, opts InvokeOptions) (Result, error)

	// Cleanup releases the adapter's resources (closes the subprocess,
	// flushes buffers). Safe to call more than once.
	Cleanup(ctx context.Context) error

	// Initialized reports whether the adapter is ready to serve calls.
	Initialized() bool

	// Metadata returns a snapshot of the adapter's session details.
	Metadata() Metadata
}
