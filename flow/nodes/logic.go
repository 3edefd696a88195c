package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/agentflow-go/flow"
)

// ── conditional_router ──

type conditionalRouterNode struct{}

func conditionalRouterSpec() *flow.Spec {
	return &flow.Spec{
		Type:        "conditional_router",
		Label:       "Conditional Router",
		Description: "Route based on a state field value",
		Category:    "logic",
		Icon:        "🔀",
		Color:       "#6366f1",
		Params: []flow.Param{
			{Name: "routing_field", Label: "Routing State Field", Type: flow.ParamString,
				Default: "difficulty", Required: true, Group: "routing",
				Description: "Name of the state field to read for routing decisions."},
			{Name: "route_map", Label: "Route Mapping (JSON)", Type: flow.ParamJSON,
				Default: `{"easy": "easy", "medium": "medium", "hard": "hard"}`, Required: true, Group: "routing",
				Description: `JSON object mapping field values to output port IDs. Example: {"value1": "port_a", "value2": "port_b"}`},
			{Name: "default_port", Label: "Default Port", Type: flow.ParamString,
				Default: flow.DefaultPort, Group: "routing",
				Description: "Port to use when the field value doesn't match any route."},
		},
		Ports: []flow.Port{
			{ID: flow.DefaultPort, Label: "Default", Description: "Fallback route"},
		},
		Node: conditionalRouterNode{},
	}
}

func (conditionalRouterNode) Execute(context.Context, flow.State, *flow.ExecContext, flow.Config) (flow.Delta, error) {
	// Pure routing: the decision happens in Router after the merge.
	return flow.Delta{CurrentStep: flow.Ptr("routed")}, nil
}

func (conditionalRouterNode) Router(cfg flow.Config) func(flow.State) string {
	routingField := cfg.Str("routing_field", "difficulty")
	defaultPort := cfg.Str("default_port", flow.DefaultPort)
	routeMap := routeMapFrom(cfg)

	return func(st flow.State) string {
		value, ok := st.Field(routingField)
		if !ok || value == nil {
			return defaultPort
		}
		key := strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
		if port, ok := routeMap[key]; ok {
			return port
		}
		return defaultPort
	}
}

func (conditionalRouterNode) DynamicPorts(cfg flow.Config) []flow.Port {
	routeMap := routeMapFrom(cfg)
	defaultPort := cfg.Str("default_port", flow.DefaultPort)

	var ports []flow.Port
	seen := map[string]bool{}
	for _, portID := range routeMap {
		if seen[portID] {
			continue
		}
		seen[portID] = true
		ports = append(ports, flow.Port{ID: portID, Label: capitalize(portID)})
	}
	if !seen[defaultPort] {
		ports = append(ports, flow.Port{ID: defaultPort, Label: "Default"})
	}
	return ports
}

func routeMapFrom(cfg flow.Config) map[string]string {
	raw := cfg.Map("route_map")
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if port, ok := v.(string); ok {
			out[strings.ToLower(k)] = port
		}
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ── iteration_gate ──

type iterationGateNode struct{}

func iterationGateSpec() *flow.Spec {
	return &flow.Spec{
		Type:        "iteration_gate",
		Label:       "Iteration Gate",
		Description: "Prevent infinite loops by checking iteration limits and context budget",
		Category:    "logic",
		Icon:        "🚧",
		Color:       "#6366f1",
		Params: []flow.Param{
			{Name: "max_iterations_override", Label: "Max Iterations Override", Type: flow.ParamNumber,
				Default: 0, Min: num(0), Max: num(500), Group: "behavior",
				Description: "Override the global max iterations. 0 = use default."},
		},
		Ports: []flow.Port{
			{ID: "continue", Label: "Continue", Description: "Loop can proceed"},
			{ID: "stop", Label: "Stop", Description: "Limit exceeded, exit loop"},
		},
		Node: iterationGateNode{},
	}
}

func (iterationGateNode) Execute(_ context.Context, st flow.State, ec *flow.ExecContext, cfg flow.Config) (flow.Delta, error) {
	maxIterations := st.MaxIterations
	if override := cfg.Int("max_iterations_override", 0); override > 0 {
		maxIterations = override
	}

	var stopReason string
	switch {
	case st.Iteration >= maxIterations:
		stopReason = fmt.Sprintf("Iteration limit (%d/%d)", st.Iteration, maxIterations)
	case st.ContextBudget != nil && flow.ShouldBlock(st.ContextBudget.Status):
		stopReason = fmt.Sprintf("Context budget %s", st.ContextBudget.Status)
	case st.CompletionSignal == flow.SignalComplete,
		st.CompletionSignal == flow.SignalBlocked,
		st.CompletionSignal == flow.SignalError:
		stopReason = fmt.Sprintf("Completion signal: %s", st.CompletionSignal)
	}

	if stopReason == "" {
		return flow.Delta{}, nil
	}

	if ec != nil && ec.Logger != nil {
		ec.Logger.Log("warning", "iteration gate stop", map[string]any{"reason": stopReason})
	}
	md := make(map[string]any, len(st.Metadata)+1)
	for k, v := range st.Metadata {
		md[k] = v
	}
	md["stop_reason"] = stopReason
	return flow.Delta{IsComplete: flow.Ptr(true), Metadata: md}, nil
}

func (iterationGateNode) Router(flow.Config) func(flow.State) string {
	return func(st flow.State) string {
		if st.IsComplete || st.Error != "" {
			return "stop"
		}
		return "continue"
	}
}

// ── check_progress ──

type checkProgressNode struct{}

func checkProgressSpec() *flow.Spec {
	return &flow.Spec{
		Type:        "check_progress",
		Label:       "Check Progress",
		Description: "Check TODO list completion progress",
		Category:    "logic",
		Icon:        "📊",
		Color:       "#6366f1",
		Ports: []flow.Port{
			{ID: "continue", Label: "Continue", Description: "More TODOs remaining"},
			{ID: "complete", Label: "Complete", Description: "All TODOs done"},
		},
		Node: checkProgressNode{},
	}
}

func (checkProgressNode) Execute(_ context.Context, st flow.State, _ *flow.ExecContext, _ flow.Config) (flow.Delta, error) {
	completed, failed := 0, 0
	for _, t := range st.Todos {
		switch t.Status {
		case flow.TodoCompleted:
			completed++
		case flow.TodoFailed:
			failed++
		}
	}

	md := make(map[string]any, len(st.Metadata)+3)
	for k, v := range st.Metadata {
		md[k] = v
	}
	md["completed_todos"] = completed
	md["failed_todos"] = failed
	md["total_todos"] = len(st.Todos)

	return flow.Delta{CurrentStep: flow.Ptr("progress_checked"), Metadata: md}, nil
}

func (checkProgressNode) Router(flow.Config) func(flow.State) string {
	return func(st flow.State) string {
		if st.IsComplete || st.Error != "" {
			return "complete"
		}
		if st.CompletionSignal == flow.SignalComplete || st.CompletionSignal == flow.SignalBlocked {
			return "complete"
		}
		if st.CurrentTodoIndex >= len(st.Todos) {
			return "complete"
		}
		return "continue"
	}
}

// ── state_setter ──

type stateSetterNode struct{}

func stateSetterSpec() *flow.Spec {
	return &flow.Spec{
		Type:        "state_setter",
		Label:       "State Setter",
		Description: "Set state fields to specific values",
		Category:    "logic",
		Icon:        "✏️",
		Color:       "#6366f1",
		Params: []flow.Param{
			{Name: "state_updates", Label: "State Updates (JSON)", Type: flow.ParamJSON,
				Default: "{}", Required: true, Group: "general",
				Description: `JSON object of state field updates. Example: {"is_complete": true, "review_count": 0}`},
		},
		Node: stateSetterNode{},
	}
}

func (stateSetterNode) Execute(_ context.Context, st flow.State, _ *flow.ExecContext, cfg flow.Config) (flow.Delta, error) {
	updates := cfg.Map("state_updates")
	if len(updates) == 0 {
		return flow.Delta{}, nil
	}
	return deltaFromMap(st, updates), nil
}

// deltaFromMap converts a field-name → value map into a typed Delta. JSON
// numbers arrive as float64 and are narrowed per field; unknown names go
// into metadata (preserving prior entries).
func deltaFromMap(st flow.State, updates map[string]any) flow.Delta {
	var d flow.Delta
	var custom map[string]any

	asInt := func(v any) (int, bool) {
		switch n := v.(type) {
		case float64:
			return int(n), true
		case int:
			return n, true
		}
		return 0, false
	}

	for name, value := range updates {
		switch name {
		case "input", "current_step", "last_output", "difficulty", "answer",
			"review_result", "review_feedback", "final_answer",
			"completion_detail", "error":
			if s, ok := value.(string); ok {
				setStringField(st, &d, name, s)
			}
		case "completion_signal":
			if s, ok := value.(string); ok {
				d.CompletionSignal = flow.Ptr(flow.Signal(s))
			}
		case "iteration":
			if n, ok := asInt(value); ok {
				d.Iteration = flow.Ptr(n)
			}
		case "max_iterations":
			if n, ok := asInt(value); ok {
				d.MaxIterations = flow.Ptr(n)
			}
		case "review_count":
			if n, ok := asInt(value); ok {
				d.ReviewCount = flow.Ptr(n)
			}
		case "current_todo_index":
			if n, ok := asInt(value); ok {
				d.CurrentTodoIndex = flow.Ptr(n)
			}
		case "is_complete":
			if b, ok := value.(bool); ok {
				d.IsComplete = flow.Ptr(b)
			}
		default:
			if custom == nil {
				custom = make(map[string]any, len(st.Metadata)+1)
				for k, v := range st.Metadata {
					custom[k] = v
				}
			}
			custom[name] = value
		}
	}
	if custom != nil {
		d.Metadata = custom
	}
	return d
}
