// Package session binds a compiled workflow graph to a model adapter and a
// memory manager, and exposes the invoke/stream/cleanup surface callers use.
//
// A Session owns its adapter and memory manager: they are not shared across
// sessions. Invocations on one session are serialized; run several sessions
// for parallelism.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/agentflow-go/flow"
	"github.com/dshills/agentflow-go/flow/emit"
	"github.com/dshills/agentflow-go/flow/memory"
	"github.com/dshills/agentflow-go/flow/model"
	"github.com/dshills/agentflow-go/flow/nodes"
	"github.com/dshills/agentflow-go/flow/store"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusError    Status = "error"
	StatusStopped  Status = "stopped"
)

// Role distinguishes manager sessions from worker sessions in multi-agent
// setups.
type Role string

const (
	RoleManager Role = "manager"
	RoleWorker  Role = "worker"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultMaxTurns      = 100
	DefaultTimeout       = 1800 * time.Second
	DefaultMaxIterations = 100
)

// Config describes a session to create.
type Config struct {
	// SessionID identifies the session; auto-generated when empty.
	SessionID string

	// SessionName is a human-readable label.
	SessionName string

	// ModelName is the primary model. FallbackModels is the demotion ladder
	// tried after the primary model's retries are exhausted.
	ModelName      string
	FallbackModels []string

	// Adapter is the model adapter the session owns. Required.
	Adapter model.Adapter

	// MaxTurns caps turns per adapter invocation (forwarded to adapters
	// that drive an interactive subprocess).
	MaxTurns int

	// Timeout bounds a single model invocation.
	Timeout time.Duration

	// MaxIterations bounds graph iterations per invoke.
	MaxIterations int

	// WorkflowID selects a stored workflow definition. When empty, GraphName
	// picks a template: a name containing "autonomous" selects the
	// autonomous template, anything else the simple one.
	WorkflowID string
	GraphName  string

	// Store resolves WorkflowID and template lookups; may be nil, in which
	// case templates come from the built-in factories.
	Store store.Store

	// Registry supplies node implementations; nil uses the built-in set.
	Registry *flow.Registry

	// StoragePath is the session's working directory. When set, the session
	// logger and memory manager live under it.
	StoragePath string

	// Memory overrides the storage-path file manager; may be nil.
	Memory memory.Manager

	// Role and ManagerID describe the session's place in a multi-agent
	// hierarchy.
	Role      Role
	ManagerID string

	// Freshness overrides the staleness policy; zero values use defaults.
	Freshness Freshness

	// Metrics records execution outcomes when set.
	Metrics *flow.Metrics
}

// Info is a serializable snapshot of a session.
type Info struct {
	SessionID   string    `json:"session_id"`
	SessionName string    `json:"session_name,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	ModelName   string    `json:"model_name,omitempty"`
	Role        Role      `json:"role"`
	ManagerID   string    `json:"manager_id,omitempty"`
	WorkflowID  string    `json:"workflow_id,omitempty"`
	GraphName   string    `json:"graph_name,omitempty"`
	StoragePath string    `json:"storage_path,omitempty"`
	Error       string    `json:"error,omitempty"`
	Iterations  int       `json:"iterations"`
}

// Session is a live workflow session.
type Session struct {
	mu sync.Mutex

	cfg       Config
	id        string
	createdAt time.Time

	status  Status
	errMsg  string
	adapter model.Adapter
	mem     memory.Manager
	logger  *emit.SessionLogger
	graph   *flow.CompiledGraph
	def     *flow.Definition

	lastActivity time.Time
	iterations   int
	freshness    Freshness
}

// New creates and initializes a session: it resolves the workflow
// definition, wires memory and logging under the storage path, and compiles
// the graph against the configured adapter.
func New(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Adapter == nil {
		return nil, fmt.Errorf("session requires a model adapter")
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.MaxTurns == 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Role == "" {
		cfg.Role = RoleWorker
	}

	s := &Session{
		cfg:       cfg,
		id:        cfg.SessionID,
		createdAt: time.Now().UTC(),
		status:    StatusStarting,
		adapter:   cfg.Adapter,
		freshness: cfg.Freshness.withDefaults(),
	}

	if cfg.StoragePath != "" {
		logger, err := emit.NewSessionLogger(cfg.StoragePath, s.id)
		if err != nil {
			return nil, fmt.Errorf("failed to create session logger: %w", err)
		}
		s.logger = logger
	}

	s.mem = cfg.Memory
	if s.mem == nil && cfg.StoragePath != "" {
		s.mem = memory.NewFileManager(filepath.Join(cfg.StoragePath, "memory"))
	}
	if s.mem != nil {
		if err := s.mem.Initialize(); err != nil {
			// Memory is an enhancement, not a requirement.
			s.log("warning", "memory initialization failed", map[string]any{"error": err.Error()})
			s.mem = nil
		}
	}

	def, err := s.resolveDefinition(ctx)
	if err != nil {
		s.status = StatusError
		s.errMsg = err.Error()
		return nil, err
	}
	s.def = def

	reg := cfg.Registry
	if reg == nil {
		reg = nodes.DefaultRegistry()
	}

	ec := &flow.ExecContext{
		SessionID:      s.id,
		Model:          s.adapter,
		Memory:         s.mem,
		Logger:         s.logger,
		MaxRetries:     flow.DefaultMaxRetries,
		ModelName:      cfg.ModelName,
		FallbackModels: cfg.FallbackModels,
		InvokeTimeout:  cfg.Timeout,
		Metrics:        cfg.Metrics,
	}

	graph, err := flow.Compile(def, reg, ec)
	if err != nil {
		s.status = StatusError
		s.errMsg = err.Error()
		return nil, fmt.Errorf("failed to compile workflow %q: %w", def.Name, err)
	}
	s.graph = graph
	s.status = StatusRunning

	s.log("info", "session initialized", map[string]any{
		"workflow": def.Name,
		"model":    cfg.ModelName,
	})
	return s, nil
}

// resolveDefinition picks the workflow for this session.
//
// Resolution order: explicit WorkflowID from the store; then a template
// inferred from GraphName ("autonomous" selects the autonomous template);
// the built-in factories serve as the final fallback when the store is
// missing or does not hold the template.
func (s *Session) resolveDefinition(ctx context.Context) (*flow.Definition, error) {
	if s.cfg.WorkflowID != "" && s.cfg.Store != nil {
		def, err := s.cfg.Store.Load(ctx, s.cfg.WorkflowID)
		if err == nil {
			return def, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to load workflow %s: %w", s.cfg.WorkflowID, err)
		}
		s.log("warning", "workflow not found in store, falling back to template",
			map[string]any{"workflow_id": s.cfg.WorkflowID})
	}

	templateID := flow.TemplateSimpleID
	if strings.Contains(strings.ToLower(s.cfg.GraphName), "autonomous") {
		templateID = flow.TemplateAutonomousID
	}

	if s.cfg.Store != nil {
		def, err := s.cfg.Store.Load(ctx, templateID)
		if err == nil {
			return def, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to load template %s: %w", templateID, err)
		}
	}

	if templateID == flow.TemplateAutonomousID {
		return flow.AutonomousTemplate(), nil
	}
	return flow.SimpleTemplate(), nil
}

// Invoke runs the workflow on input and returns the final output:
// finalAnswer, falling back to answer, then lastOutput. When the run ends
// with the state's error set, the returned text is "Error: <message>".
//
// Invocations are serialized: a second Invoke blocks until the first
// returns.
func (s *Session) Invoke(ctx context.Context, input string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkFreshness(); err != nil {
		return "", err
	}
	s.lastActivity = time.Now().UTC()

	st := flow.NewState(input, s.cfg.MaxIterations)
	final, err := s.graph.Run(ctx, st)
	s.iterations += final.Iteration
	if err != nil {
		s.errMsg = err.Error()
		return "", err
	}
	if final.Error != "" {
		s.errMsg = final.Error
		return "Error: " + final.Error, nil
	}
	return final.Output(), nil
}

// Stream runs the workflow on input and returns the executor's event and
// outcome channels. The session lock is held until the run terminates, so
// concurrent invocations stay serialized.
func (s *Session) Stream(ctx context.Context, input string) (<-chan emit.Event, <-chan RunResult, error) {
	s.mu.Lock()

	if err := s.checkFreshness(); err != nil {
		s.mu.Unlock()
		return nil, nil, err
	}
	s.lastActivity = time.Now().UTC()

	st := flow.NewState(input, s.cfg.MaxIterations)
	events, outcome := s.graph.Stream(ctx, st)

	results := make(chan RunResult, 1)
	go func() {
		defer s.mu.Unlock()
		out := <-outcome
		s.iterations += out.State.Iteration
		if out.Err != nil {
			s.errMsg = out.Err.Error()
		} else if out.State.Error != "" {
			s.errMsg = out.State.Error
		}
		results <- RunResult{Output: runOutput(out), State: out.State, Err: out.Err}
	}()
	return events, results, nil
}

// RunResult is the terminal result of a streamed invocation.
type RunResult struct {
	Output string
	State  flow.State
	Err    error
}

func runOutput(out flow.RunOutcome) string {
	if out.Err != nil {
		return ""
	}
	if out.State.Error != "" {
		return "Error: " + out.State.Error
	}
	return out.State.Output()
}

// checkFreshness evaluates the staleness policy. A stale session moves to
// the error status and refuses the invocation; callers must create a new
// session.
func (s *Session) checkFreshness() error {
	if s.status == StatusError {
		return fmt.Errorf("session %s is in error state: %s", s.id, s.errMsg)
	}
	if s.status == StatusStopped {
		return fmt.Errorf("session %s is stopped", s.id)
	}

	stale, reason := s.freshness.Evaluate(s.createdAt, s.lastActivity, s.iterations)
	if !stale {
		return nil
	}
	s.status = StatusError
	s.errMsg = "Session stale: " + reason
	s.log("warning", "session is stale and should be recreated", map[string]any{"reason": reason})
	return fmt.Errorf("session %s is stale and should be recreated: %s", s.id, reason)
}

// Cleanup flushes the transcript to long-term memory (best-effort), releases
// the model adapter, and retires the session. Safe to call more than once.
func (s *Session) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusStopped {
		return nil
	}

	if s.mem != nil {
		if err := s.mem.AutoFlush(); err != nil {
			s.log("warning", "memory flush failed during cleanup", map[string]any{"error": err.Error()})
		}
	}

	var cleanupErr error
	if s.adapter != nil {
		cleanupErr = s.adapter.Cleanup(ctx)
	}

	if s.logger != nil {
		_ = s.logger.Close()
	}

	s.graph = nil
	s.status = StatusStopped
	return cleanupErr
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Info{
		SessionID:   s.id,
		SessionName: s.cfg.SessionName,
		Status:      s.status,
		CreatedAt:   s.createdAt,
		ModelName:   s.cfg.ModelName,
		Role:        s.cfg.Role,
		ManagerID:   s.cfg.ManagerID,
		WorkflowID:  s.cfg.WorkflowID,
		GraphName:   s.cfg.GraphName,
		StoragePath: s.cfg.StoragePath,
		Error:       s.errMsg,
		Iterations:  s.iterations,
	}
}

// Workflow returns the resolved workflow definition.
func (s *Session) Workflow() *flow.Definition { return s.def }

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) log(level, msg string, data map[string]any) {
	if s.logger != nil {
		s.logger.Log(level, msg, data)
	}
}
