package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Emitter receives execution events.
//
// Emit must not block for long: the executor calls it inline between node
// executions. Implementations that do slow I/O should buffer internally.
// Emit must be safe for concurrent use; one emitter may serve many sessions.
type Emitter interface {
	Emit(Event)
}

// NullEmitter discards all events.
type NullEmitter struct{}

// Emit implements Emitter.
func (NullEmitter) Emit(Event) {}

// LogEmitter writes events to an io.Writer, one per line.
//
// With JSON set, each event is written as a JSON object; otherwise a short
// human-readable line is written. Writes are serialized with a mutex so a
// single LogEmitter can be shared across sessions.
type LogEmitter struct {
	mu   sync.Mutex
	w    io.Writer
	json bool
}

// NewLogEmitter returns a LogEmitter writing human-readable lines to w.
func NewLogEmitter(w io.Writer) *LogEmitter {
	return &LogEmitter{w: w}
}

// NewJSONEmitter returns a LogEmitter writing one JSON object per line to w.
func NewJSONEmitter(w io.Writer) *LogEmitter {
	return &LogEmitter{w: w, json: true}
}

// Emit implements Emitter.
func (e *LogEmitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.json {
		b, err := json.Marshal(ev)
		if err != nil {
			return
		}
		e.w.Write(append(b, '\n'))
		return
	}
	e.w.Write([]byte(e.format(ev)))
}

func (e *LogEmitter) format(ev Event) string {
	switch ev.Kind {
	case KindEnter:
		return fmt.Sprintf("[%03d] → %s (%s) iter=%d\n", ev.Seq, ev.NodeID, ev.NodeType, ev.Iteration)
	case KindExit:
		if ev.Preview != "" {
			return fmt.Sprintf("[%03d] ← %s %dms %q\n", ev.Seq, ev.NodeID, ev.ElapsedMS, ev.Preview)
		}
		return fmt.Sprintf("[%03d] ← %s %dms\n", ev.Seq, ev.NodeID, ev.ElapsedMS)
	case KindEdge:
		return fmt.Sprintf("[%03d] %s: %s → %s\n", ev.Seq, ev.NodeID, ev.Port, ev.Target)
	case KindError:
		return fmt.Sprintf("[%03d] ✗ %s %s: %s\n", ev.Seq, ev.NodeID, ev.ErrorType, ev.ErrorMessage)
	case KindEnd:
		return fmt.Sprintf("[%03d] end: %s\n", ev.Seq, ev.StopReason)
	}
	return fmt.Sprintf("[%03d] %s %s\n", ev.Seq, ev.Kind, ev.NodeID)
}

// BufferedEmitter retains the most recent events in memory.
//
// It is primarily a test and debugging aid: run a workflow, then inspect
// Events(). When a capacity is set, older events are dropped first.
type BufferedEmitter struct {
	mu     sync.Mutex
	events []Event
	cap    int
}

// NewBufferedEmitter returns an unbounded buffered emitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{}
}

// NewBoundedEmitter returns a buffered emitter that keeps at most capacity
// events, discarding the oldest on overflow.
func NewBoundedEmitter(capacity int) *BufferedEmitter {
	return &BufferedEmitter{cap: capacity}
}

// Emit implements Emitter.
func (b *BufferedEmitter) Emit(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	if b.cap > 0 && len(b.events) > b.cap {
		b.events = b.events[len(b.events)-b.cap:]
	}
}

// Events returns a copy of the buffered events in emit order.
func (b *BufferedEmitter) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Reset discards all buffered events.
func (b *BufferedEmitter) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

// MultiEmitter fans events out to several emitters in order.
type MultiEmitter []Emitter

// Emit implements Emitter.
func (m MultiEmitter) Emit(ev Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ev)
		}
	}
}
