package flow

import (
	"context"
	"time"

	"github.com/dshills/agentflow-go/flow/emit"
)

// RunOutcome is the final result of a streamed run.
type RunOutcome struct {
	State State
	Err   error
}

// Run executes the graph from the given initial state and returns the final
// state. Execution is a sequential cooperative loop: one node at a time,
// with ctx checked between nodes and threaded into every node execution.
//
// On a node error the executor sets the state's error field, marks the run
// complete, emits error and end events, and returns the error alongside the
// final state.
func (g *CompiledGraph) Run(ctx context.Context, st State) (State, error) {
	return g.run(ctx, st, g.ec.emitter())
}

// Invoke runs the graph on a fresh state for the given input and returns
// the primary output: finalAnswer, falling back to answer, then lastOutput.
func (g *CompiledGraph) Invoke(ctx context.Context, input string, maxIterations int) (string, error) {
	final, err := g.Run(ctx, NewState(input, maxIterations))
	if err != nil {
		return "", err
	}
	return final.Output(), nil
}

// Stream executes the graph in a goroutine and returns a channel of
// execution events plus a single-value outcome channel. The event channel
// is closed when the run terminates; the outcome is sent afterwards.
func (g *CompiledGraph) Stream(ctx context.Context, st State) (<-chan emit.Event, <-chan RunOutcome) {
	events := make(chan emit.Event, 64)
	outcome := make(chan RunOutcome, 1)

	sink := emit.MultiEmitter{g.ec.emitter(), chanEmitter(events)}
	go func() {
		defer close(events)
		final, err := g.run(ctx, st, sink)
		outcome <- RunOutcome{State: final, Err: err}
	}()
	return events, outcome
}

// chanEmitter forwards events to a channel, dropping when the consumer
// falls behind rather than stalling the run.
type chanEmitter chan<- emit.Event

func (c chanEmitter) Emit(ev emit.Event) {
	select {
	case c <- ev:
	default:
	}
}

// emitter returns the context's event sinks: the session logger plus any
// configured emitter, or a null emitter when neither is set.
func (ec *ExecContext) emitter() emit.Emitter {
	var sinks emit.MultiEmitter
	if ec.Logger != nil {
		sinks = append(sinks, ec.Logger)
	}
	if len(sinks) == 0 {
		return emit.NullEmitter{}
	}
	return sinks
}

func (g *CompiledGraph) run(ctx context.Context, st State, sink emit.Emitter) (State, error) {
	g.metrics.RunStarted()
	defer g.metrics.RunFinished()

	seq := 0
	send := func(ev emit.Event) {
		seq++
		ev.Seq = seq
		ev.SessionID = g.ec.SessionID
		ev.Time = time.Now().UTC()
		sink.Emit(ev)
	}
	fail := func(st State, cn *compiledNode, err error) (State, error) {
		st = Merge(st, Delta{Error: Ptr(err.Error()), IsComplete: Ptr(true)})
		ev := emit.Event{Kind: emit.KindError, Iteration: st.Iteration,
			ErrorType: errorType(err), ErrorMessage: err.Error()}
		if cn != nil {
			ev.NodeID, ev.NodeLabel, ev.NodeType = cn.id, cn.label, cn.nodeType
		}
		send(ev)
		send(emit.Event{Kind: emit.KindEnd, Iteration: st.Iteration, StopReason: "error"})
		return st, err
	}

	current := g.entry
	steps := 0
	for current != TerminalNode {
		if err := ctx.Err(); err != nil {
			return fail(st, nil, err)
		}
		steps++
		if steps > g.maxSteps() {
			return fail(st, nil, ErrMaxStepsExceeded)
		}

		cn, ok := g.nodes[current]
		if !ok {
			return fail(st, nil, &FlowError{
				Message: "edge leads to unknown node: " + current,
				Code:    CodeCompile,
			})
		}

		send(emit.Event{Kind: emit.KindEnter, NodeID: cn.id, NodeLabel: cn.label,
			NodeType: cn.nodeType, Iteration: st.Iteration, StateSummary: st.Summary()})

		started := time.Now()
		delta, err := cn.execute(ctx, st, g.ec)
		elapsed := time.Since(started)
		if err != nil {
			g.metrics.RecordNodeExecution(cn.nodeType, elapsed, "error")
			return fail(st, cn, err)
		}
		g.metrics.RecordNodeExecution(cn.nodeType, elapsed, "success")

		st = Merge(st, delta)
		send(emit.Event{Kind: emit.KindExit, NodeID: cn.id, NodeLabel: cn.label,
			NodeType: cn.nodeType, Iteration: st.Iteration,
			ElapsedMS: elapsed.Milliseconds(), Preview: delta.Preview(),
			Delta: delta.Changes()})

		next := cn.next
		if cn.route != nil {
			port := cn.route(st)
			target, ok := cn.targets[port]
			if !ok {
				return fail(st, cn, &NodeError{
					Message: "router selected unwired port " + port,
					Code:    CodeNode,
					NodeID:  cn.id,
				})
			}
			send(emit.Event{Kind: emit.KindEdge, NodeID: cn.id, NodeLabel: cn.label,
				NodeType: cn.nodeType, Iteration: st.Iteration, Port: port, Target: target})
			next = target
		}
		current = next
	}

	stop := "complete"
	if st.Error != "" {
		stop = "error"
	}
	send(emit.Event{Kind: emit.KindEnd, Iteration: st.Iteration, StopReason: stop})
	return st, nil
}
