package flow

import (
	"context"
	"fmt"
)

// TerminalNode is the sentinel target meaning "the run is over". Edges into
// any end pseudo-node resolve to it during compilation.
const TerminalNode = "__end__"

// compiledNode is one executable node of a compiled graph.
type compiledNode struct {
	id       string
	label    string
	nodeType string
	config   Config
	node     Node

	// route selects an output port after execution; nil for direct nodes.
	route func(State) string

	// targets maps port → next node for conditional nodes.
	targets map[string]string

	// next is the single successor for direct nodes.
	next string
}

// CompiledGraph is an executable workflow: the validated definition resolved
// against the registry, with routing decided per node and the execution
// context bound. A compiled graph belongs to one session and is safe for
// sequential reuse across invocations.
type CompiledGraph struct {
	def     *Definition
	ec      *ExecContext
	entry   string
	nodes   map[string]*compiledNode
	metrics *Metrics

	// MaxSteps caps total node executions per run as a hard stop for
	// graphs with ungated cycles. Zero means DefaultMaxSteps.
	MaxSteps int
}

// DefaultMaxSteps is the executor's hard cap on node executions per run.
const DefaultMaxSteps = 1000

// Compile validates the definition, resolves every node type against the
// registry, and wires the edges into an adjacency form:
//
//   - edges are grouped by source node;
//   - a source with one distinct target gets a direct successor, whatever
//     ports its edges name;
//   - a source with multiple distinct targets becomes conditional: the
//     node's own router decides the port when it implements RoutingNode,
//     otherwise a fallback router always picks the first edge's port;
//   - targets of type "end" resolve to the terminal sentinel.
func Compile(def *Definition, reg *Registry, ec *ExecContext) (*CompiledGraph, error) {
	if problems := def.Validate(); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	if reg == nil {
		return nil, &FlowError{Message: "nil registry", Code: CodeCompile}
	}
	if ec == nil {
		ec = &ExecContext{}
	}

	endIDs := make(map[string]bool)
	for _, n := range def.EndNodes() {
		endIDs[n.ID] = true
	}
	resolve := func(target string) string {
		if endIDs[target] {
			return TerminalNode
		}
		return target
	}

	g := &CompiledGraph{
		def:     def,
		ec:      ec,
		nodes:   make(map[string]*compiledNode),
		metrics: ec.Metrics,
	}

	start, _ := def.StartNode()
	startEdges := def.EdgesFrom(start.ID)
	g.entry = resolve(startEdges[0].Target)

	for _, n := range def.Nodes {
		if n.Type == TypeStart || n.Type == TypeEnd {
			continue
		}
		spec, ok := reg.Get(n.Type)
		if !ok {
			return nil, fmt.Errorf("%w: %q (node %s)", ErrUnknownNodeType, n.Type, n.ID)
		}

		cn := &compiledNode{
			id:       n.ID,
			label:    n.DisplayLabel(),
			nodeType: n.Type,
			config:   n.Config,
			node:     spec.Node,
		}

		edges := def.EdgesFrom(n.ID)
		distinct := make(map[string]bool)
		for _, e := range edges {
			distinct[e.Target] = true
		}

		switch {
		case len(edges) == 0:
			// Dangling non-end node: the run terminates after it.
			cn.next = TerminalNode
		case len(distinct) == 1:
			cn.next = resolve(edges[0].Target)
		default:
			cn.targets = make(map[string]string, len(edges))
			for _, e := range edges {
				cn.targets[e.Port()] = resolve(e.Target)
			}
			if rn, ok := spec.Node.(RoutingNode); ok {
				cn.route = rn.Router(n.Config)
			} else {
				// No router on the node type: always take the first
				// edge's port.
				first := edges[0].Port()
				cn.route = func(State) string { return first }
			}
		}

		g.nodes[n.ID] = cn
	}

	return g, nil
}

// Definition returns the definition this graph was compiled from.
func (g *CompiledGraph) Definition() *Definition { return g.def }

// Entry returns the ID of the first node executed per run.
func (g *CompiledGraph) Entry() string { return g.entry }

func (g *CompiledGraph) maxSteps() int {
	if g.MaxSteps > 0 {
		return g.MaxSteps
	}
	return DefaultMaxSteps
}

// executeNode runs one node, honoring context cancellation inside the node
// via ctx.
func (cn *compiledNode) execute(ctx context.Context, st State, ec *ExecContext) (Delta, error) {
	delta, err := cn.node.Execute(ctx, st, ec, cn.config)
	if err != nil {
		return Delta{}, &NodeError{
			Message: "execution failed",
			Code:    CodeNode,
			NodeID:  cn.id,
			Cause:   err,
		}
	}
	return delta, nil
}
