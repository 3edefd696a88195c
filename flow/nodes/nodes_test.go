package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dshills/agentflow-go/flow"
	"github.com/dshills/agentflow-go/flow/memory"
	"github.com/dshills/agentflow-go/flow/model"
)

func execCtx(adapter model.Adapter) *flow.ExecContext {
	return &flow.ExecContext{
		SessionID:  "test",
		Model:      adapter,
		ModelName:  "mock",
		MaxRetries: -1, // no retry sleeps in tests
	}
}

func TestRegister_AllBuiltins(t *testing.T) {
	r := flow.NewRegistry()
	if err := Register(r); err != nil {
		t.Fatal(err)
	}
	for _, typ := range []string{
		flow.TypeStart, flow.TypeEnd, "llm_call", "classify", "direct_answer",
		"answer", "review", "create_todos", "execute_todo", "check_progress",
		"final_review", "final_answer", "conditional_router", "iteration_gate",
		"state_setter", "memory_inject", "transcript_record", "context_guard",
		"post_model",
	} {
		if _, ok := r.Get(typ); !ok {
			t.Errorf("built-in type %q not registered", typ)
		}
	}
}

// ── renderTemplate ──

func TestRenderTemplate(t *testing.T) {
	vars := map[string]string{"input": "hello", "name": "x"}
	tests := []struct {
		name string
		tmpl string
		want string
		ok   bool
	}{
		{"plain", "no placeholders", "no placeholders", true},
		{"substitution", "say {input} to {name}", "say hello to x", true},
		{"escaped braces", "literal {{input}} stays", "literal {input} stays", true},
		{"unknown placeholder", "needs {missing}", "", false},
		{"unterminated brace", "open {input", "", false},
		{"invalid placeholder name", "json {\"key\": 1}", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := renderTemplate(tt.tmpl, vars)
			if ok != tt.ok || got != tt.want {
				t.Errorf("renderTemplate(%q) = %q, %v; want %q, %v", tt.tmpl, got, ok, tt.want, tt.ok)
			}
		})
	}
}

// ── classify ──

func TestClassify_Execute(t *testing.T) {
	tests := []struct {
		response string
		want     flow.Difficulty
	}{
		{"easy", flow.DifficultyEasy},
		{"This task is EASY overall.", flow.DifficultyEasy},
		{"medium complexity", flow.DifficultyMedium},
		{"hard", flow.DifficultyHard},
		{"no recognizable category", flow.DifficultyMedium},
	}
	for _, tt := range tests {
		t.Run(tt.response, func(t *testing.T) {
			adapter := model.NewMockAdapter(tt.response)
			st := flow.NewState("what is 2+2", 10)

			d, err := classifyNode{}.Execute(context.Background(), st, execCtx(adapter), nil)
			if err != nil {
				t.Fatal(err)
			}
			if d.Difficulty == nil || *d.Difficulty != tt.want {
				t.Errorf("difficulty = %v, want %v", d.Difficulty, tt.want)
			}
		})
	}
}

func TestClassify_ModelFailureAbsorbed(t *testing.T) {
	adapter := &model.MockAdapter{Errs: []error{errors.New("down")}}
	st := flow.NewState("task", 10)

	d, err := classifyNode{}.Execute(context.Background(), st, execCtx(adapter), nil)
	if err != nil {
		t.Fatalf("model failure must not fail the node: %v", err)
	}
	if d.Error == nil || *d.Error == "" {
		t.Error("error must be recorded in the delta")
	}
	if d.IsComplete == nil || !*d.IsComplete {
		t.Error("failure must terminate the run")
	}
}

func TestClassify_Router(t *testing.T) {
	router := classifyNode{}.Router(nil)
	tests := []struct {
		name string
		st   flow.State
		want string
	}{
		{"error", flow.State{Error: "boom"}, "end"},
		{"easy", flow.State{Difficulty: flow.DifficultyEasy}, "easy"},
		{"medium", flow.State{Difficulty: flow.DifficultyMedium}, "medium"},
		{"hard", flow.State{Difficulty: flow.DifficultyHard}, "hard"},
		{"unset defaults hard", flow.State{}, "hard"},
	}
	for _, tt := range tests {
		if got := router(tt.st); got != tt.want {
			t.Errorf("%s: port %q, want %q", tt.name, got, tt.want)
		}
	}
}

// ── answer ──

func TestAnswer_UsesRetryPromptAfterRejection(t *testing.T) {
	adapter := model.NewMockAdapter("second draft")
	st := flow.NewState("write a poem", 10)
	st.ReviewFeedback = "too short"
	st.ReviewCount = 1

	d, err := answerNode{}.Execute(context.Background(), st, execCtx(adapter), nil)
	if err != nil {
		t.Fatal(err)
	}
	prompt := adapter.Calls[0].Messages[0].Content
	if !strings.Contains(prompt, "too short") {
		t.Errorf("retry prompt must carry the feedback, got %q", prompt)
	}
	if d.Answer == nil || *d.Answer != "second draft" {
		t.Errorf("answer = %v", d.Answer)
	}
}

func TestAnswer_FirstPassUsesInput(t *testing.T) {
	adapter := model.NewMockAdapter("first draft")
	st := flow.NewState("write a poem", 10)

	if _, err := (answerNode{}).Execute(context.Background(), st, execCtx(adapter), nil); err != nil {
		t.Fatal(err)
	}
	if got := adapter.Calls[0].Messages[0].Content; got != "write a poem" {
		t.Errorf("prompt = %q", got)
	}
}

// ── review ──

func TestParseReview(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		verdict  flow.ReviewResult
		feedback string
	}{
		{"approved", "VERDICT: approved\nFEEDBACK: solid work", flow.ReviewApproved, "solid work"},
		{"rejected", "VERDICT: rejected\nFEEDBACK: missing detail\nmore lines", flow.ReviewRejected, "missing detail\nmore lines"},
		{"no verdict line", "looks fine to me", flow.ReviewApproved, "looks fine to me"},
		{"verdict only", "VERDICT: rejected", flow.ReviewRejected, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, feedback := parseReview(tt.text)
			if verdict != tt.verdict || feedback != tt.feedback {
				t.Errorf("parseReview = %q, %q; want %q, %q", verdict, feedback, tt.verdict, tt.feedback)
			}
		})
	}
}

func TestReview_Approval(t *testing.T) {
	adapter := model.NewMockAdapter("VERDICT: approved\nFEEDBACK: good")
	st := flow.NewState("q", 10)
	st.Answer = "the answer"

	d, err := reviewNode{}.Execute(context.Background(), st, execCtx(adapter), nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.ReviewResult == nil || *d.ReviewResult != flow.ReviewApproved {
		t.Errorf("verdict = %v", d.ReviewResult)
	}
	if d.FinalAnswer == nil || *d.FinalAnswer != "the answer" {
		t.Error("approval must promote the answer to final")
	}
	if d.IsComplete == nil || !*d.IsComplete {
		t.Error("approval must complete the run")
	}
	if d.ReviewCount == nil || *d.ReviewCount != 1 {
		t.Errorf("review count = %v", d.ReviewCount)
	}
}

func TestReview_RejectionKeepsLooping(t *testing.T) {
	adapter := model.NewMockAdapter("VERDICT: rejected\nFEEDBACK: fix it")
	st := flow.NewState("q", 10)
	st.Answer = "draft"

	d, err := reviewNode{}.Execute(context.Background(), st, execCtx(adapter), nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.ReviewResult == nil || *d.ReviewResult != flow.ReviewRejected {
		t.Errorf("verdict = %v", d.ReviewResult)
	}
	if d.IsComplete != nil {
		t.Error("rejection below the limit must not complete")
	}
	if d.ReviewFeedback == nil || *d.ReviewFeedback != "fix it" {
		t.Errorf("feedback = %v", d.ReviewFeedback)
	}
}

func TestReview_ForcedApprovalAtLimit(t *testing.T) {
	adapter := model.NewMockAdapter("VERDICT: rejected\nFEEDBACK: still bad")
	st := flow.NewState("q", 10)
	st.Answer = "draft"
	st.ReviewCount = 2 // third review hits the default limit of 3

	d, err := reviewNode{}.Execute(context.Background(), st, execCtx(adapter), nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.ReviewResult == nil || *d.ReviewResult != flow.ReviewApproved {
		t.Errorf("verdict = %v, want forced approval", d.ReviewResult)
	}
	if d.IsComplete == nil || !*d.IsComplete {
		t.Error("forced approval must complete the run")
	}
}

func TestReview_Router(t *testing.T) {
	router := reviewNode{}.Router(nil)
	tests := []struct {
		name string
		st   flow.State
		want string
	}{
		{"complete", flow.State{IsComplete: true}, "end"},
		{"error", flow.State{Error: "x"}, "end"},
		{"signal complete", flow.State{CompletionSignal: flow.SignalComplete}, "approved"},
		{"signal blocked", flow.State{CompletionSignal: flow.SignalBlocked}, "approved"},
		{"approved", flow.State{ReviewResult: flow.ReviewApproved}, "approved"},
		{"rejected", flow.State{ReviewResult: flow.ReviewRejected}, "retry"},
	}
	for _, tt := range tests {
		if got := router(tt.st); got != tt.want {
			t.Errorf("%s: port %q, want %q", tt.name, got, tt.want)
		}
	}
}

// ── create_todos ──

func TestCreateTodos_ParsesPlan(t *testing.T) {
	adapter := model.NewMockAdapter(`[{"id": 1, "title": "Research"}, {"id": 2, "title": "Write", "description": "draft it"}]`)
	st := flow.NewState("write a report", 10)

	d, err := createTodosNode{}.Execute(context.Background(), st, execCtx(adapter), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Todos) != 2 {
		t.Fatalf("todos = %+v", d.Todos)
	}
	if d.Todos[0].Title != "Research" || d.Todos[0].Status != flow.TodoPending {
		t.Errorf("todo[0] = %+v", d.Todos[0])
	}
	if d.Todos[1].Description != "draft it" {
		t.Errorf("todo[1] = %+v", d.Todos[1])
	}
	if d.CurrentTodoIndex == nil || *d.CurrentTodoIndex != 0 {
		t.Error("todo index must reset to 0")
	}
}

func TestCreateTodos_CorrectionRetry(t *testing.T) {
	adapter := model.NewMockAdapter(
		"I'll make a plan shortly.",
		`{"todos": [{"id": 1, "title": "Only item"}]}`,
	)
	st := flow.NewState("task", 10)

	d, err := createTodosNode{}.Execute(context.Background(), st, execCtx(adapter), nil)
	if err != nil {
		t.Fatal(err)
	}
	if adapter.CallCount() != 2 {
		t.Fatalf("expected a correction retry, got %d calls", adapter.CallCount())
	}
	correction := adapter.Calls[1].Messages[0].Content
	if !strings.Contains(correction, "could not be parsed") {
		t.Errorf("second call must be a correction prompt, got %q", correction)
	}
	if len(d.Todos) != 1 || d.Todos[0].Title != "Only item" {
		t.Errorf("todos = %+v", d.Todos)
	}
}

func TestCreateTodos_FallbackSingleItem(t *testing.T) {
	// Both attempts produce unparseable output.
	adapter := model.NewMockAdapter("not json", "still not json")
	st := flow.NewState("do the thing", 10)

	d, err := createTodosNode{}.Execute(context.Background(), st, execCtx(adapter), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Todos) != 1 {
		t.Fatalf("todos = %+v", d.Todos)
	}
	todo := d.Todos[0]
	if todo.ID != 1 || todo.Title != "Execute task" || todo.Description != "do the thing" {
		t.Errorf("fallback todo = %+v", todo)
	}
}

func TestCreateTodos_CapsPlanSize(t *testing.T) {
	var items []string
	for i := 1; i <= 10; i++ {
		items = append(items, fmt.Sprintf(`{"id": %d, "title": "step %d"}`, i, i))
	}
	adapter := model.NewMockAdapter("[" + strings.Join(items, ",") + "]")
	st := flow.NewState("task", 10)

	d, err := createTodosNode{}.Execute(context.Background(), st, execCtx(adapter), flow.Config{"max_todos": 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Todos) != 3 {
		t.Errorf("plan must be capped at 3, got %d", len(d.Todos))
	}
}

// ── execute_todo ──

func TestExecuteTodo_Success(t *testing.T) {
	adapter := model.NewMockAdapter("item done")
	st := flow.NewState("goal", 10)
	st.Todos = []flow.TodoItem{
		{ID: 1, Title: "first", Status: flow.TodoCompleted, Result: "earlier result"},
		{ID: 2, Title: "second", Status: flow.TodoPending},
	}
	st.CurrentTodoIndex = 1

	d, err := executeTodoNode{}.Execute(context.Background(), st, execCtx(adapter), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Todos) != 1 || d.Todos[0].ID != 2 {
		t.Fatalf("delta todos = %+v", d.Todos)
	}
	if d.Todos[0].Status != flow.TodoCompleted || d.Todos[0].Result != "item done" {
		t.Errorf("todo = %+v", d.Todos[0])
	}
	if d.CurrentTodoIndex == nil || *d.CurrentTodoIndex != 2 {
		t.Errorf("index = %v", d.CurrentTodoIndex)
	}
	// Previous results feed the prompt.
	if prompt := adapter.Calls[0].Messages[0].Content; !strings.Contains(prompt, "earlier result") {
		t.Errorf("prompt missing previous results: %q", prompt)
	}
}

func TestExecuteTodo_FailureAbsorbed(t *testing.T) {
	adapter := &model.MockAdapter{Errs: []error{errors.New("boom")}}
	st := flow.NewState("goal", 10)
	st.Todos = []flow.TodoItem{{ID: 1, Title: "only", Status: flow.TodoPending}}

	d, err := executeTodoNode{}.Execute(context.Background(), st, execCtx(adapter), nil)
	if err != nil {
		t.Fatalf("invocation failure must be absorbed: %v", err)
	}
	if d.Todos[0].Status != flow.TodoFailed {
		t.Errorf("status = %q", d.Todos[0].Status)
	}
	if d.Todos[0].Result != "Error: boom" {
		t.Errorf("result = %q", d.Todos[0].Result)
	}
	if d.CurrentTodoIndex == nil || *d.CurrentTodoIndex != 1 {
		t.Error("index must advance past the failed item")
	}
	if d.CurrentStep == nil || *d.CurrentStep != "todo_1_failed" {
		t.Errorf("step = %v", d.CurrentStep)
	}
}

func TestExecuteTodo_IndexPastEnd(t *testing.T) {
	adapter := model.NewMockAdapter("never")
	st := flow.NewState("goal", 10)
	st.Todos = []flow.TodoItem{{ID: 1, Title: "done", Status: flow.TodoCompleted}}
	st.CurrentTodoIndex = 1

	d, err := executeTodoNode{}.Execute(context.Background(), st, execCtx(adapter), nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.CurrentStep == nil || *d.CurrentStep != "todos_complete" {
		t.Errorf("step = %v", d.CurrentStep)
	}
	if adapter.CallCount() != 0 {
		t.Error("no invocation expected past the end of the plan")
	}
}

// ── check_progress ──

func TestCheckProgress_CountsStatuses(t *testing.T) {
	st := flow.NewState("goal", 10)
	st.Todos = []flow.TodoItem{
		{ID: 1, Status: flow.TodoCompleted},
		{ID: 2, Status: flow.TodoFailed},
		{ID: 3, Status: flow.TodoPending},
	}

	d, err := checkProgressNode{}.Execute(context.Background(), st, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Metadata["completed_todos"] != 1 || d.Metadata["failed_todos"] != 1 || d.Metadata["total_todos"] != 3 {
		t.Errorf("metadata = %v", d.Metadata)
	}
}

func TestCheckProgress_Router(t *testing.T) {
	router := checkProgressNode{}.Router(nil)
	twoTodos := []flow.TodoItem{{ID: 1}, {ID: 2}}
	tests := []struct {
		name string
		st   flow.State
		want string
	}{
		{"more remaining", flow.State{Todos: twoTodos, CurrentTodoIndex: 1}, "continue"},
		{"index at end", flow.State{Todos: twoTodos, CurrentTodoIndex: 2}, "complete"},
		{"empty plan", flow.State{}, "complete"},
		{"is complete", flow.State{Todos: twoTodos, IsComplete: true}, "complete"},
		{"error", flow.State{Todos: twoTodos, Error: "x"}, "complete"},
		{"signal complete", flow.State{Todos: twoTodos, CompletionSignal: flow.SignalComplete}, "complete"},
	}
	for _, tt := range tests {
		if got := router(tt.st); got != tt.want {
			t.Errorf("%s: port %q, want %q", tt.name, got, tt.want)
		}
	}
}

// ── iteration_gate ──

func TestIterationGate_StopReasons(t *testing.T) {
	tests := []struct {
		name string
		st   flow.State
		cfg  flow.Config
		want string
	}{
		{
			"iteration limit",
			flow.State{Iteration: 5, MaxIterations: 5},
			nil,
			"Iteration limit (5/5)",
		},
		{
			"override lowers limit",
			flow.State{Iteration: 3, MaxIterations: 100},
			flow.Config{"max_iterations_override": float64(3)},
			"Iteration limit (3/3)",
		},
		{
			"context budget",
			flow.State{MaxIterations: 100, ContextBudget: &flow.ContextBudget{Status: flow.BudgetOverflow}},
			nil,
			"Context budget overflow",
		},
		{
			"completion signal",
			flow.State{MaxIterations: 100, CompletionSignal: flow.SignalComplete},
			nil,
			"Completion signal: complete",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := iterationGateNode{}.Execute(context.Background(), tt.st, nil, tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			if d.IsComplete == nil || !*d.IsComplete {
				t.Fatal("gate must mark the run complete")
			}
			if got := d.Metadata["stop_reason"]; got != tt.want {
				t.Errorf("stop_reason = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestIterationGate_PassesThrough(t *testing.T) {
	st := flow.State{Iteration: 1, MaxIterations: 10, CompletionSignal: flow.SignalContinue}
	d, err := iterationGateNode{}.Execute(context.Background(), st, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsZero() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestIterationGate_Router(t *testing.T) {
	router := iterationGateNode{}.Router(nil)
	if got := router(flow.State{IsComplete: true}); got != "stop" {
		t.Errorf("complete: %q", got)
	}
	if got := router(flow.State{Error: "x"}); got != "stop" {
		t.Errorf("error: %q", got)
	}
	if got := router(flow.State{}); got != "continue" {
		t.Errorf("running: %q", got)
	}
}

// ── conditional_router ──

func TestConditionalRouter(t *testing.T) {
	cfg := flow.Config{
		"routing_field": "difficulty",
		"route_map":     map[string]any{"Easy": "a", "hard": "b"},
		"default_port":  "fallthrough",
	}
	router := conditionalRouterNode{}.Router(cfg)

	// Map keys and state values match case-insensitively.
	if got := router(flow.State{Difficulty: flow.DifficultyEasy}); got != "a" {
		t.Errorf("easy: %q", got)
	}
	if got := router(flow.State{Difficulty: "HARD"}); got != "b" {
		t.Errorf("hard: %q", got)
	}
	if got := router(flow.State{Difficulty: flow.DifficultyMedium}); got != "fallthrough" {
		t.Errorf("unmapped: %q", got)
	}
	if got := router(flow.State{}); got != "fallthrough" {
		t.Errorf("empty field: %q", got)
	}
}

func TestConditionalRouter_MetadataField(t *testing.T) {
	cfg := flow.Config{
		"routing_field": "phase",
		"route_map":     map[string]any{"build": "builder"},
	}
	router := conditionalRouterNode{}.Router(cfg)
	st := flow.State{Metadata: map[string]any{"phase": "build"}}
	if got := router(st); got != "builder" {
		t.Errorf("metadata routing: %q", got)
	}
}

func TestConditionalRouter_DynamicPorts(t *testing.T) {
	cfg := flow.Config{
		"route_map": map[string]any{"x": "left", "y": "left", "z": "right"},
	}
	ports := conditionalRouterNode{}.DynamicPorts(cfg)
	ids := map[string]bool{}
	for _, p := range ports {
		ids[p.ID] = true
	}
	// Duplicate targets collapse; the default port is always present.
	if len(ports) != 3 || !ids["left"] || !ids["right"] || !ids[flow.DefaultPort] {
		t.Errorf("ports = %+v", ports)
	}
}

// ── state_setter ──

func TestStateSetter_TypedFields(t *testing.T) {
	st := flow.NewState("in", 10)
	cfg := flow.Config{"state_updates": map[string]any{
		"answer":       "forty-two",
		"is_complete":  true,
		"review_count": float64(2),
		"difficulty":   "hard",
		"custom_key":   "custom_value",
	}}

	d, err := stateSetterNode{}.Execute(context.Background(), st, nil, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if d.Answer == nil || *d.Answer != "forty-two" {
		t.Errorf("answer = %v", d.Answer)
	}
	if d.IsComplete == nil || !*d.IsComplete {
		t.Error("is_complete not set")
	}
	if d.ReviewCount == nil || *d.ReviewCount != 2 {
		t.Errorf("review_count = %v", d.ReviewCount)
	}
	if d.Difficulty == nil || *d.Difficulty != flow.DifficultyHard {
		t.Errorf("difficulty = %v", d.Difficulty)
	}
	if d.Metadata["custom_key"] != "custom_value" {
		t.Errorf("metadata = %v", d.Metadata)
	}
}

func TestStateSetter_PreservesExistingMetadata(t *testing.T) {
	st := flow.NewState("in", 10)
	st.Metadata = map[string]any{"kept": 1}
	cfg := flow.Config{"state_updates": map[string]any{"added": 2}}

	d, err := stateSetterNode{}.Execute(context.Background(), st, nil, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if d.Metadata["kept"] != 1 || d.Metadata["added"] != 2 {
		t.Errorf("metadata = %v", d.Metadata)
	}
}

func TestStateSetter_EmptyUpdates(t *testing.T) {
	d, err := stateSetterNode{}.Execute(context.Background(), flow.State{}, nil, flow.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsZero() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

// ── memory_inject ──

func TestMemoryInject(t *testing.T) {
	mgr := &memory.MockManager{
		Results: []memory.SearchResult{
			{Entry: memory.Entry{Filename: "notes.md", Source: "memory", CharCount: 42}, Score: 2},
		},
	}
	ec := execCtx(model.NewMockAdapter("unused"))
	ec.Memory = mgr
	st := flow.NewState("find my notes", 10)

	d, err := memoryInjectNode{}.Execute(context.Background(), st, ec, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.MemoryRefs) != 1 || d.MemoryRefs[0].Filename != "notes.md" {
		t.Errorf("refs = %+v", d.MemoryRefs)
	}
	if len(mgr.Recorded) != 1 || mgr.Recorded[0].Content != "find my notes" {
		t.Errorf("input not recorded to transcript: %+v", mgr.Recorded)
	}
	if len(mgr.Searches) != 1 {
		t.Errorf("searches = %v", mgr.Searches)
	}
}

func TestMemoryInject_NoManager(t *testing.T) {
	ec := execCtx(model.NewMockAdapter("unused"))
	d, err := memoryInjectNode{}.Execute(context.Background(), flow.NewState("x", 10), ec, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsZero() {
		t.Error("missing memory manager must be a no-op")
	}
}

func TestMemoryInject_SearchFailureAbsorbed(t *testing.T) {
	mgr := &memory.MockManager{SearchErr: errors.New("disk gone")}
	ec := execCtx(model.NewMockAdapter("unused"))
	ec.Memory = mgr

	d, err := memoryInjectNode{}.Execute(context.Background(), flow.NewState("x", 10), ec, nil)
	if err != nil {
		t.Fatalf("memory failure must not fail the node: %v", err)
	}
	if !d.IsZero() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

// ── transcript_record ──

func TestTranscriptRecord(t *testing.T) {
	mgr := &memory.MockManager{}
	ec := execCtx(model.NewMockAdapter("unused"))
	ec.Memory = mgr
	st := flow.NewState("x", 10)
	st.LastOutput = strings.Repeat("y", 200)

	if _, err := (transcriptRecordNode{}).Execute(context.Background(), st, ec, flow.Config{"max_length": 100}); err != nil {
		t.Fatal(err)
	}
	if len(mgr.Recorded) != 1 || len(mgr.Recorded[0].Content) != 100 {
		t.Errorf("recorded = %+v", mgr.Recorded)
	}
}

// ── context_guard ──

func TestContextGuard_SetsBudget(t *testing.T) {
	ec := execCtx(model.NewMockAdapter("unused"))
	ec.Guard = flow.NewContextGuard(1000)
	st := flow.NewState("x", 10)
	st.Messages = []model.Message{{Role: model.RoleUser, Content: strings.Repeat("a", 400)}}

	d, err := contextGuardNode{}.Execute(context.Background(), st, ec, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.ContextBudget == nil || d.ContextBudget.Status != flow.BudgetOK {
		t.Errorf("budget = %+v", d.ContextBudget)
	}
}

func TestContextGuard_CompactionCount(t *testing.T) {
	ec := execCtx(model.NewMockAdapter("unused"))
	ec.Guard = flow.NewContextGuard(100) // block at 85 tokens
	st := flow.NewState("x", 10)
	st.Messages = []model.Message{{Role: model.RoleUser, Content: strings.Repeat("a", 400)}}
	st.ContextBudget = &flow.ContextBudget{Status: flow.BudgetWarn, CompactionCount: 1}

	d, err := contextGuardNode{}.Execute(context.Background(), st, ec, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.ContextBudget == nil || !flow.ShouldBlock(d.ContextBudget.Status) {
		t.Fatalf("budget = %+v", d.ContextBudget)
	}
	// Prior count carries over and increments on a blocking check.
	if d.ContextBudget.CompactionCount != 2 {
		t.Errorf("compaction count = %d, want 2", d.ContextBudget.CompactionCount)
	}
}

// ── post_model ──

func TestPostModel_IncrementsIteration(t *testing.T) {
	st := flow.NewState("x", 10)
	st.Iteration = 3

	d, err := postModelNode{}.Execute(context.Background(), st, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Iteration == nil || *d.Iteration != 4 {
		t.Errorf("iteration = %v", d.Iteration)
	}
}

func TestPostModel_DetectsSignal(t *testing.T) {
	st := flow.NewState("x", 10)
	st.LastOutput = "All done. [TASK_COMPLETE]"

	d, err := postModelNode{}.Execute(context.Background(), st, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.CompletionSignal == nil || *d.CompletionSignal != flow.SignalComplete {
		t.Errorf("signal = %v", d.CompletionSignal)
	}
}

func TestPostModel_DetectionDisabled(t *testing.T) {
	st := flow.NewState("x", 10)
	st.LastOutput = "[TASK_COMPLETE]"

	d, err := postModelNode{}.Execute(context.Background(), st, nil, flow.Config{"detect_completion": false})
	if err != nil {
		t.Fatal(err)
	}
	if d.CompletionSignal != nil {
		t.Errorf("signal detection must be off, got %v", *d.CompletionSignal)
	}
}

func TestPostModel_RecordsTranscript(t *testing.T) {
	mgr := &memory.MockManager{}
	ec := execCtx(model.NewMockAdapter("unused"))
	ec.Memory = mgr
	st := flow.NewState("x", 10)
	st.LastOutput = "model said this"

	if _, err := (postModelNode{}).Execute(context.Background(), st, ec, nil); err != nil {
		t.Fatal(err)
	}
	if len(mgr.Recorded) != 1 || mgr.Recorded[0].Content != "model said this" {
		t.Errorf("recorded = %+v", mgr.Recorded)
	}
}
