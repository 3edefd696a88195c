// Package nodes provides the built-in node set for workflow graphs: model
// invocation nodes, task decomposition nodes, control-flow logic nodes,
// memory nodes, and the resilience guard nodes.
//
// Register wires every built-in type into a flow.Registry; DefaultRegistry
// returns a fresh registry with all of them installed.
package nodes

import (
	"context"

	"github.com/dshills/agentflow-go/flow"
)

// Register installs all built-in node types plus the start/end pseudo-types
// into the registry.
func Register(r *flow.Registry) error {
	specs := []*flow.Spec{
		startSpec(),
		endSpec(),
		llmCallSpec(),
		classifySpec(),
		directAnswerSpec(),
		answerSpec(),
		reviewSpec(),
		createTodosSpec(),
		executeTodoSpec(),
		checkProgressSpec(),
		finalReviewSpec(),
		finalAnswerSpec(),
		conditionalRouterSpec(),
		iterationGateSpec(),
		stateSetterSpec(),
		memoryInjectSpec(),
		transcriptRecordSpec(),
		contextGuardSpec(),
		postModelSpec(),
	}
	for _, s := range specs {
		if err := r.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// DefaultRegistry returns a new registry with all built-in nodes installed.
func DefaultRegistry() *flow.Registry {
	r := flow.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}

// noopNode backs the start/end pseudo-types. The compiler never executes
// them, but registering them keeps editor lookups uniform.
type noopNode struct{}

func (noopNode) Execute(context.Context, flow.State, *flow.ExecContext, flow.Config) (flow.Delta, error) {
	return flow.Delta{}, nil
}

func startSpec() *flow.Spec {
	return &flow.Spec{
		Type:        flow.TypeStart,
		Label:       "Start",
		Description: "Workflow entry point",
		Category:    "boundary",
		Icon:        "▶️",
		Color:       "#22c55e",
		Node:        noopNode{},
	}
}

func endSpec() *flow.Spec {
	return &flow.Spec{
		Type:        flow.TypeEnd,
		Label:       "End",
		Description: "Workflow exit point",
		Category:    "boundary",
		Icon:        "⏹️",
		Color:       "#64748b",
		Node:        noopNode{},
	}
}

func num(v float64) *float64 { return &v }
