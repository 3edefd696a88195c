// Package flow is the core of the workflow engine: the shared execution
// state with per-field reducers, the node registry and capability contract,
// workflow definitions with validation, the compiler, and the sequential
// executor with event streaming.
package flow

import (
	"fmt"
	"strings"

	"github.com/dshills/agentflow-go/flow/model"
)

// Difficulty is a task classification produced by the classify node.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ReviewResult is the verdict of an answer review cycle.
type ReviewResult string

const (
	ReviewApproved ReviewResult = "approved"
	ReviewRejected ReviewResult = "rejected"
)

// Signal is a structured completion signal parsed from model output.
type Signal string

const (
	SignalNone     Signal = "none"
	SignalContinue Signal = "continue"
	SignalComplete Signal = "complete"
	SignalBlocked  Signal = "blocked"
	SignalError    Signal = "error"
)

// TodoStatus tracks the lifecycle of a plan item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
	TodoFailed     TodoStatus = "failed"
)

// BudgetStatus classifies the context window usage ratio.
type BudgetStatus string

const (
	BudgetOK       BudgetStatus = "ok"
	BudgetWarn     BudgetStatus = "warn"
	BudgetBlock    BudgetStatus = "block"
	BudgetOverflow BudgetStatus = "overflow"
)

// TodoItem is one entry of the hard-path execution plan.
type TodoItem struct {
	ID          int        `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TodoStatus `json:"status"`
	Result      string     `json:"result,omitempty"`
}

// ContextBudget is the token accounting snapshot maintained by guard nodes.
type ContextBudget struct {
	EstimatedTokens int          `json:"estimated_tokens"`
	ContextLimit    int          `json:"context_limit"`
	UsageRatio      float64      `json:"usage_ratio"`
	Status          BudgetStatus `json:"status"`
	CompactionCount int          `json:"compaction_count"`
}

// FallbackRecord traces a model demotion performed by the resilience layer.
type FallbackRecord struct {
	OriginalModel string `json:"original_model"`
	CurrentModel  string `json:"current_model"`
	Attempts      int    `json:"attempts"`
}

// MemoryRef indexes one memory entry injected into the conversation.
type MemoryRef struct {
	Filename       string `json:"filename"`
	Source         string `json:"source"`
	CharCount      int    `json:"char_count"`
	InjectedAtTurn int    `json:"injected_at_turn"`
}

// State is the shared record passed through every node of a run.
//
// Nodes never mutate State directly: each node returns a Delta and the
// executor merges it with Merge, applying each field's reducer. State values
// are copied between nodes, so holding an old State is always safe.
type State struct {
	Input            string          `json:"input"`
	Messages         []model.Message `json:"messages,omitempty"`
	CurrentStep      string          `json:"current_step"`
	LastOutput       string          `json:"last_output,omitempty"`
	Iteration        int             `json:"iteration"`
	MaxIterations    int             `json:"max_iterations"`
	Difficulty       Difficulty      `json:"difficulty,omitempty"`
	Answer           string          `json:"answer,omitempty"`
	ReviewResult     ReviewResult    `json:"review_result,omitempty"`
	ReviewFeedback   string          `json:"review_feedback,omitempty"`
	ReviewCount      int             `json:"review_count"`
	Todos            []TodoItem      `json:"todos,omitempty"`
	CurrentTodoIndex int             `json:"current_todo_index"`
	FinalAnswer      string          `json:"final_answer,omitempty"`
	CompletionSignal Signal          `json:"completion_signal"`
	CompletionDetail string          `json:"completion_detail,omitempty"`
	Error            string          `json:"error,omitempty"`
	IsComplete       bool            `json:"is_complete"`
	ContextBudget    *ContextBudget  `json:"context_budget,omitempty"`
	Fallback         *FallbackRecord `json:"fallback,omitempty"`
	MemoryRefs       []MemoryRef     `json:"memory_refs,omitempty"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
}

// DefaultMaxIterations is used when NewState is called with a non-positive
// iteration limit.
const DefaultMaxIterations = 50

// NewState builds the initial state for one invocation.
func NewState(input string, maxIterations int) State {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return State{
		Input:            input,
		CurrentStep:      "start",
		MaxIterations:    maxIterations,
		CompletionSignal: SignalNone,
	}
}

// Delta is a node's requested state change. Nil pointer fields leave the
// corresponding state field untouched; slice fields are merged by that
// field's reducer (append for Messages, merge-by-id for Todos, dedupe by
// filename for MemoryRefs). Metadata replaces the whole map when non-nil.
type Delta struct {
	Input            *string
	Messages         []model.Message
	CurrentStep      *string
	LastOutput       *string
	Iteration        *int
	MaxIterations    *int
	Difficulty       *Difficulty
	Answer           *string
	ReviewResult     *ReviewResult
	ReviewFeedback   *string
	ReviewCount      *int
	Todos            []TodoItem
	CurrentTodoIndex *int
	FinalAnswer      *string
	CompletionSignal *Signal
	CompletionDetail *string
	Error            *string
	IsComplete       *bool
	ContextBudget    *ContextBudget
	Fallback         *FallbackRecord
	MemoryRefs       []MemoryRef
	Metadata         map[string]any
}

// Ptr returns a pointer to v, for building Delta literals.
func Ptr[T any](v T) *T { return &v }

// IsZero reports whether the delta requests no changes.
func (d Delta) IsZero() bool {
	return d.Input == nil && len(d.Messages) == 0 && d.CurrentStep == nil &&
		d.LastOutput == nil && d.Iteration == nil && d.MaxIterations == nil &&
		d.Difficulty == nil && d.Answer == nil && d.ReviewResult == nil &&
		d.ReviewFeedback == nil && d.ReviewCount == nil && len(d.Todos) == 0 &&
		d.CurrentTodoIndex == nil && d.FinalAnswer == nil &&
		d.CompletionSignal == nil && d.CompletionDetail == nil &&
		d.Error == nil && d.IsComplete == nil && d.ContextBudget == nil &&
		d.Fallback == nil && len(d.MemoryRefs) == 0 && d.Metadata == nil
}

// Merge applies a delta to a state, honoring each field's reducer, and
// returns the resulting state. The receiver is not modified.
func Merge(prev State, d Delta) State {
	next := prev

	if d.Input != nil {
		next.Input = *d.Input
	}
	if len(d.Messages) > 0 {
		merged := make([]model.Message, 0, len(prev.Messages)+len(d.Messages))
		merged = append(merged, prev.Messages...)
		merged = append(merged, d.Messages...)
		next.Messages = merged
	}
	if d.CurrentStep != nil {
		next.CurrentStep = *d.CurrentStep
	}
	if d.LastOutput != nil {
		next.LastOutput = *d.LastOutput
	}
	if d.Iteration != nil {
		next.Iteration = *d.Iteration
	}
	if d.MaxIterations != nil {
		next.MaxIterations = *d.MaxIterations
	}
	if d.Difficulty != nil {
		next.Difficulty = *d.Difficulty
	}
	if d.Answer != nil {
		next.Answer = *d.Answer
	}
	if d.ReviewResult != nil {
		next.ReviewResult = *d.ReviewResult
	}
	if d.ReviewFeedback != nil {
		next.ReviewFeedback = *d.ReviewFeedback
	}
	if d.ReviewCount != nil {
		next.ReviewCount = *d.ReviewCount
	}
	if len(d.Todos) > 0 {
		next.Todos = mergeTodos(prev.Todos, d.Todos)
	}
	if d.CurrentTodoIndex != nil {
		next.CurrentTodoIndex = *d.CurrentTodoIndex
	}
	if d.FinalAnswer != nil {
		next.FinalAnswer = *d.FinalAnswer
	}
	if d.CompletionSignal != nil {
		next.CompletionSignal = *d.CompletionSignal
	}
	if d.CompletionDetail != nil {
		next.CompletionDetail = *d.CompletionDetail
	}
	if d.Error != nil {
		next.Error = *d.Error
	}
	if d.IsComplete != nil {
		// isComplete is monotonic: once set it cannot be cleared.
		next.IsComplete = prev.IsComplete || *d.IsComplete
	}
	if d.ContextBudget != nil {
		budget := *d.ContextBudget
		next.ContextBudget = &budget
	}
	if d.Fallback != nil {
		fb := *d.Fallback
		next.Fallback = &fb
	}
	if len(d.MemoryRefs) > 0 {
		next.MemoryRefs = mergeMemoryRefs(prev.MemoryRefs, d.MemoryRefs)
	}
	if d.Metadata != nil {
		md := make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			md[k] = v
		}
		next.Metadata = md
	}

	return next
}

// mergeTodos merges incoming items into prev by id: matching ids are
// replaced in place, new ids are appended in incoming order.
func mergeTodos(prev, incoming []TodoItem) []TodoItem {
	merged := make([]TodoItem, len(prev))
	copy(merged, prev)
	index := make(map[int]int, len(merged))
	for i, t := range merged {
		index[t.ID] = i
	}
	for _, t := range incoming {
		if i, ok := index[t.ID]; ok {
			merged[i] = t
			continue
		}
		index[t.ID] = len(merged)
		merged = append(merged, t)
	}
	return merged
}

// mergeMemoryRefs appends incoming refs, dropping filenames already present.
func mergeMemoryRefs(prev, incoming []MemoryRef) []MemoryRef {
	merged := make([]MemoryRef, len(prev))
	copy(merged, prev)
	seen := make(map[string]bool, len(merged))
	for _, r := range merged {
		seen[r.Filename] = true
	}
	for _, r := range incoming {
		if seen[r.Filename] {
			continue
		}
		seen[r.Filename] = true
		merged = append(merged, r)
	}
	return merged
}

// Summary returns the compact state view attached to node enter events.
func (s State) Summary() map[string]any {
	sum := map[string]any{
		"messages_count": len(s.Messages),
		"iteration":      s.Iteration,
		"is_complete":    s.IsComplete,
		"has_error":      s.Error != "",
	}
	if s.Difficulty != "" {
		sum["difficulty"] = string(s.Difficulty)
	}
	if s.CompletionSignal != "" && s.CompletionSignal != SignalNone {
		sum["completion_signal"] = string(s.CompletionSignal)
	}
	return sum
}

// Output returns the state's primary output text: finalAnswer, falling back
// to answer, then lastOutput.
func (s State) Output() string {
	if s.FinalAnswer != "" {
		return s.FinalAnswer
	}
	if s.Answer != "" {
		return s.Answer
	}
	return s.LastOutput
}

// previewLimit caps the output preview attached to node exit events.
const previewLimit = 200

// Preview returns a truncated view of the delta's primary output for exit
// events: answer, then finalAnswer, then lastOutput.
func (d Delta) Preview() string {
	var text string
	switch {
	case d.Answer != nil && *d.Answer != "":
		text = *d.Answer
	case d.FinalAnswer != nil && *d.FinalAnswer != "":
		text = *d.FinalAnswer
	case d.LastOutput != nil && *d.LastOutput != "":
		text = *d.LastOutput
	default:
		return ""
	}
	return truncate(text, previewLimit)
}

// Changes summarizes the delta for exit events: long strings become
// "N chars", slices become "N items", maps become "{...} (N keys)".
func (d Delta) Changes() map[string]any {
	out := map[string]any{}
	put := func(key string, v any) {
		switch val := v.(type) {
		case string:
			if len(val) > 50 {
				out[key] = fmt.Sprintf("%d chars", len(val))
			} else {
				out[key] = val
			}
		default:
			out[key] = v
		}
	}

	if d.Input != nil {
		put("input", *d.Input)
	}
	if n := len(d.Messages); n > 0 {
		out["messages"] = fmt.Sprintf("%d items", n)
	}
	if d.CurrentStep != nil {
		put("current_step", *d.CurrentStep)
	}
	if d.LastOutput != nil {
		put("last_output", *d.LastOutput)
	}
	if d.Iteration != nil {
		out["iteration"] = *d.Iteration
	}
	if d.MaxIterations != nil {
		out["max_iterations"] = *d.MaxIterations
	}
	if d.Difficulty != nil {
		out["difficulty"] = string(*d.Difficulty)
	}
	if d.Answer != nil {
		put("answer", *d.Answer)
	}
	if d.ReviewResult != nil {
		out["review_result"] = string(*d.ReviewResult)
	}
	if d.ReviewFeedback != nil {
		put("review_feedback", *d.ReviewFeedback)
	}
	if d.ReviewCount != nil {
		out["review_count"] = *d.ReviewCount
	}
	if n := len(d.Todos); n > 0 {
		out["todos"] = fmt.Sprintf("%d items", n)
	}
	if d.CurrentTodoIndex != nil {
		out["current_todo_index"] = *d.CurrentTodoIndex
	}
	if d.FinalAnswer != nil {
		put("final_answer", *d.FinalAnswer)
	}
	if d.CompletionSignal != nil {
		out["completion_signal"] = string(*d.CompletionSignal)
	}
	if d.CompletionDetail != nil {
		put("completion_detail", *d.CompletionDetail)
	}
	if d.Error != nil {
		put("error", *d.Error)
	}
	if d.IsComplete != nil {
		out["is_complete"] = *d.IsComplete
	}
	if d.ContextBudget != nil {
		out["context_budget"] = fmt.Sprintf("{...} (%d keys)", 5)
	}
	if d.Fallback != nil {
		out["fallback"] = fmt.Sprintf("{...} (%d keys)", 3)
	}
	if n := len(d.MemoryRefs); n > 0 {
		out["memory_refs"] = fmt.Sprintf("%d items", n)
	}
	if d.Metadata != nil {
		out["metadata"] = fmt.Sprintf("{...} (%d keys)", len(d.Metadata))
	}
	return out
}

// Field returns the state value for a snake_case field name. Used by the
// conditional router and the state inspector.
func (s State) Field(name string) (any, bool) {
	switch name {
	case "input":
		return s.Input, true
	case "messages":
		return s.Messages, true
	case "current_step":
		return s.CurrentStep, true
	case "last_output":
		return s.LastOutput, true
	case "iteration":
		return s.Iteration, true
	case "max_iterations":
		return s.MaxIterations, true
	case "difficulty":
		return string(s.Difficulty), true
	case "answer":
		return s.Answer, true
	case "review_result":
		return string(s.ReviewResult), true
	case "review_feedback":
		return s.ReviewFeedback, true
	case "review_count":
		return s.ReviewCount, true
	case "todos":
		return s.Todos, true
	case "current_todo_index":
		return s.CurrentTodoIndex, true
	case "final_answer":
		return s.FinalAnswer, true
	case "completion_signal":
		return string(s.CompletionSignal), true
	case "completion_detail":
		return s.CompletionDetail, true
	case "error":
		return s.Error, true
	case "is_complete":
		return s.IsComplete, true
	case "context_budget":
		return s.ContextBudget, true
	case "fallback":
		return s.Fallback, true
	case "memory_refs":
		return s.MemoryRefs, true
	case "metadata":
		return s.Metadata, true
	}
	if s.Metadata != nil {
		if v, ok := s.Metadata[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// TemplateVars returns the string-renderable state fields for prompt
// template substitution.
func (s State) TemplateVars() map[string]string {
	return map[string]string{
		"input":             s.Input,
		"current_step":      s.CurrentStep,
		"last_output":       s.LastOutput,
		"iteration":         fmt.Sprintf("%d", s.Iteration),
		"max_iterations":    fmt.Sprintf("%d", s.MaxIterations),
		"difficulty":        string(s.Difficulty),
		"answer":            s.Answer,
		"review_result":     string(s.ReviewResult),
		"review_feedback":   s.ReviewFeedback,
		"review_count":      fmt.Sprintf("%d", s.ReviewCount),
		"final_answer":      s.FinalAnswer,
		"completion_signal": string(s.CompletionSignal),
		"completion_detail": s.CompletionDetail,
		"error":             s.Error,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
