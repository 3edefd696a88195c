package flow

import (
	"testing"

	"github.com/dshills/agentflow-go/flow/model"
)

func TestNewState(t *testing.T) {
	st := NewState("build a web app", 25)

	if st.Input != "build a web app" {
		t.Errorf("expected input preserved, got %q", st.Input)
	}
	if st.CurrentStep != "start" {
		t.Errorf("expected currentStep 'start', got %q", st.CurrentStep)
	}
	if st.MaxIterations != 25 {
		t.Errorf("expected maxIterations 25, got %d", st.MaxIterations)
	}
	if st.CompletionSignal != SignalNone {
		t.Errorf("expected signal none, got %q", st.CompletionSignal)
	}
	if st.IsComplete {
		t.Error("new state must not be complete")
	}
}

func TestNewState_DefaultMaxIterations(t *testing.T) {
	for _, n := range []int{0, -5} {
		st := NewState("x", n)
		if st.MaxIterations != DefaultMaxIterations {
			t.Errorf("maxIterations=%d: expected default %d, got %d", n, DefaultMaxIterations, st.MaxIterations)
		}
	}
}

func TestMerge_MessagesAppend(t *testing.T) {
	st := NewState("q", 10)
	st = Merge(st, Delta{Messages: []model.Message{{Role: model.RoleUser, Content: "q"}}})
	st = Merge(st, Delta{Messages: []model.Message{{Role: model.RoleAssistant, Content: "a"}}})

	if len(st.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(st.Messages))
	}
	if st.Messages[0].Content != "q" || st.Messages[1].Content != "a" {
		t.Errorf("messages out of order: %+v", st.Messages)
	}
}

func TestMerge_MessagesPrefixConsistent(t *testing.T) {
	// Append-only: every merge preserves the existing prefix.
	st := NewState("q", 10)
	st = Merge(st, Delta{Messages: []model.Message{{Role: model.RoleUser, Content: "first"}}})
	before := append([]model.Message(nil), st.Messages...)

	st = Merge(st, Delta{Messages: []model.Message{{Role: model.RoleAssistant, Content: "second"}}})

	for i, m := range before {
		if st.Messages[i] != m {
			t.Fatalf("prefix broken at %d: %+v vs %+v", i, st.Messages[i], m)
		}
	}
}

func TestMerge_TodosMergeByID(t *testing.T) {
	st := NewState("q", 10)
	st = Merge(st, Delta{Todos: []TodoItem{
		{ID: 1, Title: "a", Status: TodoPending},
		{ID: 2, Title: "b", Status: TodoPending},
	}})

	// Same ID updates in place, new ID appends.
	st = Merge(st, Delta{Todos: []TodoItem{
		{ID: 2, Title: "b", Status: TodoCompleted, Result: "done"},
		{ID: 3, Title: "c", Status: TodoPending},
	}})

	if len(st.Todos) != 3 {
		t.Fatalf("expected 3 todos, got %d", len(st.Todos))
	}
	if st.Todos[1].Status != TodoCompleted || st.Todos[1].Result != "done" {
		t.Errorf("todo 2 not updated: %+v", st.Todos[1])
	}
	if st.Todos[0].ID != 1 || st.Todos[2].ID != 3 {
		t.Errorf("ordering or ids wrong: %+v", st.Todos)
	}
}

func TestMerge_TodosNeverLoseIDs(t *testing.T) {
	st := NewState("q", 10)
	st = Merge(st, Delta{Todos: []TodoItem{{ID: 1}, {ID: 2}, {ID: 3}}})
	st = Merge(st, Delta{Todos: []TodoItem{{ID: 2, Status: TodoFailed}}})

	ids := map[int]bool{}
	for _, td := range st.Todos {
		ids[td.ID] = true
	}
	for _, want := range []int{1, 2, 3} {
		if !ids[want] {
			t.Errorf("id %d lost after merge", want)
		}
	}
}

func TestMerge_MemoryRefsDedupeByFilename(t *testing.T) {
	st := NewState("q", 10)
	st = Merge(st, Delta{MemoryRefs: []MemoryRef{
		{Filename: "notes.md", CharCount: 100},
	}})
	st = Merge(st, Delta{MemoryRefs: []MemoryRef{
		{Filename: "notes.md", CharCount: 200},
		{Filename: "plan.md", CharCount: 50},
	}})

	if len(st.MemoryRefs) != 2 {
		t.Fatalf("expected 2 refs, got %d: %+v", len(st.MemoryRefs), st.MemoryRefs)
	}
	seen := map[string]int{}
	for _, r := range st.MemoryRefs {
		seen[r.Filename]++
	}
	if seen["notes.md"] != 1 || seen["plan.md"] != 1 {
		t.Errorf("duplicate filenames after merge: %v", seen)
	}
}

func TestMerge_IsCompleteMonotonic(t *testing.T) {
	st := NewState("q", 10)
	st = Merge(st, Delta{IsComplete: Ptr(true)})
	if !st.IsComplete {
		t.Fatal("expected complete after set")
	}

	// A later false never un-completes the run.
	st = Merge(st, Delta{IsComplete: Ptr(false)})
	if !st.IsComplete {
		t.Error("isComplete must be monotonic")
	}
}

func TestMerge_MetadataWholeMapReplace(t *testing.T) {
	st := NewState("q", 10)
	st = Merge(st, Delta{Metadata: map[string]any{"a": 1, "b": 2}})
	st = Merge(st, Delta{Metadata: map[string]any{"c": 3}})

	if len(st.Metadata) != 1 {
		t.Fatalf("expected whole-map replace, got %v", st.Metadata)
	}
	if st.Metadata["c"] != 3 {
		t.Errorf("expected c=3, got %v", st.Metadata)
	}
}

func TestMerge_LastWinsIdempotent(t *testing.T) {
	st := NewState("q", 10)
	d := Delta{
		Answer:      Ptr("forty-two"),
		Difficulty:  Ptr(DifficultyMedium),
		Iteration:   Ptr(7),
		CurrentStep: Ptr("answered"),
	}

	once := Merge(st, d)
	twice := Merge(once, d)

	if once.Answer != twice.Answer || once.Difficulty != twice.Difficulty ||
		once.Iteration != twice.Iteration || once.CurrentStep != twice.CurrentStep {
		t.Errorf("merging a last-wins delta twice changed the state: %+v vs %+v", once, twice)
	}
}

func TestMerge_NilPointersLeaveFieldsUntouched(t *testing.T) {
	st := NewState("q", 10)
	st.Answer = "keep"
	st.Iteration = 3

	st = Merge(st, Delta{CurrentStep: Ptr("next")})

	if st.Answer != "keep" || st.Iteration != 3 {
		t.Errorf("untouched fields changed: %+v", st)
	}
}

func TestState_Output(t *testing.T) {
	tests := []struct {
		name string
		st   State
		want string
	}{
		{"final answer first", State{FinalAnswer: "f", Answer: "a", LastOutput: "l"}, "f"},
		{"answer second", State{Answer: "a", LastOutput: "l"}, "a"},
		{"last output third", State{LastOutput: "l"}, "l"},
		{"empty", State{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.st.Output(); got != tt.want {
				t.Errorf("Output() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDelta_IsZero(t *testing.T) {
	if !(Delta{}).IsZero() {
		t.Error("empty delta must be zero")
	}
	if (Delta{Answer: Ptr("x")}).IsZero() {
		t.Error("delta with a field must not be zero")
	}
}

func TestDelta_Preview(t *testing.T) {
	d := Delta{Answer: Ptr("short answer"), LastOutput: Ptr("raw")}
	if got := d.Preview(); got != "short answer" {
		t.Errorf("preview priority wrong: %q", got)
	}

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	d = Delta{LastOutput: Ptr(string(long))}
	if got := d.Preview(); len(got) > 203 {
		t.Errorf("preview not capped: %d chars", len(got))
	}
}

func TestState_Field(t *testing.T) {
	st := NewState("q", 10)
	st.Difficulty = DifficultyHard
	st.Metadata = map[string]any{"custom": "v"}

	if v, ok := st.Field("difficulty"); !ok || v != DifficultyHard {
		t.Errorf("difficulty lookup failed: %v %v", v, ok)
	}
	if v, ok := st.Field("custom"); !ok || v != "v" {
		t.Errorf("metadata fallthrough failed: %v %v", v, ok)
	}
	if _, ok := st.Field("nope"); ok {
		t.Error("unknown field must report !ok")
	}
}
