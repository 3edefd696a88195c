package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/agentflow-go/flow"
	"github.com/dshills/agentflow-go/flow/model"
	"github.com/dshills/agentflow-go/flow/structured"
)

// MaxTodoItems caps generated plans to prevent runaway execution.
const MaxTodoItems = 20

// Budget-aware truncation limits for previous-result context.
const (
	execResultChars         = 500
	execResultCharsCompact  = 200
	synthResultChars        = 2000
	synthResultCharsCompact = 500
)

// ── create_todos ──

type createTodosNode struct{}

func createTodosSpec() *flow.Spec {
	return &flow.Spec{
		Type:        "create_todos",
		Label:       "Create TODOs",
		Description: "Break a complex task into a structured TODO list",
		Category:    "task",
		Icon:        "📝",
		Color:       "#ef4444",
		Params: []flow.Param{
			{Name: "prompt_template", Label: "Prompt Template", Type: flow.ParamPromptTemplate,
				Default: createTodosPrompt, Group: "prompt",
				Description: "Prompt template for generating the TODO list."},
			{Name: "max_todos", Label: "Max TODO Items", Type: flow.ParamNumber,
				Default: MaxTodoItems, Min: num(1), Max: num(50), Group: "behavior",
				Description: "Maximum number of TODO items to prevent runaway execution."},
		},
		Node: createTodosNode{},
	}
}

func (createTodosNode) Execute(ctx context.Context, st flow.State, ec *flow.ExecContext, cfg flow.Config) (flow.Delta, error) {
	template := cfg.Str("prompt_template", createTodosPrompt)
	maxTodos := cfg.Int("max_todos", MaxTodoItems)

	prompt, ok := renderTemplate(template, map[string]string{"input": st.Input})
	if !ok {
		prompt = template
	}

	res, fb, err := ec.ResilientInvoke(ctx, []model.Message{{Role: model.RoleUser, Content: prompt}}, model.InvokeOptions{})
	if err != nil {
		return failDelta(err), nil
	}

	opts := structured.Options{ListField: structured.CreateTodosSchema.ListField}
	parsed, pr := structured.Parse[structured.CreateTodosOutput](res.Content, opts)
	if !pr.Success {
		// One correction retry before falling back to a single catch-all
		// item.
		correction := structured.CreateTodosSchema.CorrectionPrompt(res.Content, pr.Err)
		res2, fb2, err2 := ec.ResilientInvoke(ctx, []model.Message{{Role: model.RoleUser, Content: correction}}, model.InvokeOptions{})
		if err2 == nil {
			parsed, pr = structured.Parse[structured.CreateTodosOutput](res2.Content, opts)
			if pr.Success {
				res, fb = res2, fb2
			}
		}
	}

	var todos []flow.TodoItem
	if pr.Success {
		for _, item := range parsed.Todos {
			id := item.ID
			if id == 0 {
				id = len(todos) + 1
			}
			title := item.Title
			if title == "" {
				title = fmt.Sprintf("Task %d", len(todos)+1)
			}
			todos = append(todos, flow.TodoItem{
				ID:          id,
				Title:       title,
				Description: item.Description,
				Status:      flow.TodoPending,
			})
		}
	}
	if len(todos) == 0 {
		todos = []flow.TodoItem{{
			ID: 1, Title: "Execute task", Description: st.Input, Status: flow.TodoPending,
		}}
	}
	if len(todos) > maxTodos {
		todos = todos[:maxTodos]
	}

	d := flow.Delta{
		Todos:            todos,
		CurrentTodoIndex: flow.Ptr(0),
		Messages:         []model.Message{{Role: model.RoleAssistant, Content: res.Content}},
		LastOutput:       flow.Ptr(res.Content),
		CurrentStep:      flow.Ptr("todos_created"),
	}
	return withFallback(d, fb), nil
}

// ── execute_todo ──

type executeTodoNode struct{}

func executeTodoSpec() *flow.Spec {
	return &flow.Spec{
		Type:        "execute_todo",
		Label:       "Execute TODO",
		Description: "Execute a single TODO item with context from previous results",
		Category:    "task",
		Icon:        "🔨",
		Color:       "#ef4444",
		Params: []flow.Param{
			{Name: "prompt_template", Label: "Prompt Template", Type: flow.ParamPromptTemplate,
				Default: executeTodoPrompt, Group: "prompt",
				Description: "Prompt for executing a TODO item."},
		},
		Node: executeTodoNode{},
	}
}

func (executeTodoNode) Execute(ctx context.Context, st flow.State, ec *flow.ExecContext, cfg flow.Config) (flow.Delta, error) {
	idx := st.CurrentTodoIndex
	if idx >= len(st.Todos) {
		return flow.Delta{CurrentStep: flow.Ptr("todos_complete")}, nil
	}
	todo := st.Todos[idx]
	template := cfg.Str("prompt_template", executeTodoPrompt)

	maxChars := execResultChars
	if compacting(st) {
		maxChars = execResultCharsCompact
	}

	var prev strings.Builder
	for i, t := range st.Todos {
		if i >= idx || t.Result == "" {
			continue
		}
		fmt.Fprintf(&prev, "\n[%s]: %s", t.Title, clip(t.Result, maxChars))
		if len(t.Result) > maxChars {
			prev.WriteString("...")
		}
		prev.WriteString("\n")
	}
	previousResults := prev.String()
	if previousResults == "" {
		previousResults = "(No previous items completed)"
	}

	prompt, ok := renderTemplate(template, map[string]string{
		"goal":             st.Input,
		"title":            todo.Title,
		"description":      todo.Description,
		"previous_results": previousResults,
	})
	if !ok {
		prompt = template
	}

	res, fb, err := ec.ResilientInvoke(ctx, []model.Message{{Role: model.RoleUser, Content: prompt}}, model.InvokeOptions{})
	if err != nil {
		// Mark the item failed and move on; the progress checker decides
		// whether the plan can still finish.
		failed := todo
		failed.Status = flow.TodoFailed
		failed.Result = "Error: " + err.Error()
		return flow.Delta{
			Todos:            []flow.TodoItem{failed},
			CurrentTodoIndex: flow.Ptr(idx + 1),
			LastOutput:       flow.Ptr("Error: " + err.Error()),
			CurrentStep:      flow.Ptr(fmt.Sprintf("todo_%d_failed", idx+1)),
		}, nil
	}

	done := todo
	done.Status = flow.TodoCompleted
	done.Result = res.Content

	d := flow.Delta{
		Todos:            []flow.TodoItem{done},
		CurrentTodoIndex: flow.Ptr(idx + 1),
		Messages:         []model.Message{{Role: model.RoleAssistant, Content: res.Content}},
		LastOutput:       flow.Ptr(res.Content),
		CurrentStep:      flow.Ptr(fmt.Sprintf("todo_%d_complete", idx+1)),
	}
	return withFallback(d, fb), nil
}

// formatTodoResults renders completed plan items for synthesis prompts,
// truncating long results by the current budget.
func formatTodoResults(st flow.State) string {
	maxChars := synthResultChars
	if compacting(st) {
		maxChars = synthResultCharsCompact
	}
	var sb strings.Builder
	for _, t := range st.Todos {
		status := t.Status
		if status == "" {
			status = flow.TodoPending
		}
		result := t.Result
		if result == "" {
			result = "No result"
		}
		if len(result) > maxChars {
			result = clip(result, maxChars) + "... (truncated)"
		}
		fmt.Fprintf(&sb, "\n### %s [%s]\n%s\n", t.Title, status, result)
	}
	return sb.String()
}

// ── final_review ──

type finalReviewNode struct{}

func finalReviewSpec() *flow.Spec {
	return &flow.Spec{
		Type:        "final_review",
		Label:       "Final Review",
		Description: "Comprehensive review of all completed TODO results",
		Category:    "task",
		Icon:        "✅",
		Color:       "#ef4444",
		Params: []flow.Param{
			{Name: "prompt_template", Label: "Prompt Template", Type: flow.ParamPromptTemplate,
				Default: finalReviewPrompt, Group: "prompt",
				Description: "Prompt for the final review of all work."},
		},
		Node: finalReviewNode{},
	}
}

func (finalReviewNode) Execute(ctx context.Context, st flow.State, ec *flow.ExecContext, cfg flow.Config) (flow.Delta, error) {
	template := cfg.Str("prompt_template", finalReviewPrompt)
	prompt, ok := renderTemplate(template, map[string]string{
		"input":        st.Input,
		"todo_results": formatTodoResults(st),
	})
	if !ok {
		prompt = template
	}

	res, fb, err := ec.ResilientInvoke(ctx, []model.Message{{Role: model.RoleUser, Content: prompt}}, model.InvokeOptions{})
	if err != nil {
		// A failed final review degrades to a note; synthesis proceeds.
		msg := "Review failed: " + err.Error()
		return flow.Delta{
			ReviewFeedback: flow.Ptr(msg),
			LastOutput:     flow.Ptr(msg),
			CurrentStep:    flow.Ptr("final_review_failed"),
		}, nil
	}

	d := flow.Delta{
		ReviewFeedback: flow.Ptr(res.Content),
		Messages:       []model.Message{{Role: model.RoleAssistant, Content: res.Content}},
		LastOutput:     flow.Ptr(res.Content),
		CurrentStep:    flow.Ptr("final_review_complete"),
	}
	return withFallback(d, fb), nil
}

// ── final_answer ──

type finalAnswerNode struct{}

func finalAnswerSpec() *flow.Spec {
	return &flow.Spec{
		Type:        "final_answer",
		Label:       "Final Answer",
		Description: "Synthesize the final comprehensive answer from all results",
		Category:    "task",
		Icon:        "🎯",
		Color:       "#ef4444",
		Params: []flow.Param{
			{Name: "prompt_template", Label: "Prompt Template", Type: flow.ParamPromptTemplate,
				Default: finalAnswerPrompt, Group: "prompt",
				Description: "Prompt for synthesizing the final answer."},
		},
		Node: finalAnswerNode{},
	}
}

func (finalAnswerNode) Execute(ctx context.Context, st flow.State, ec *flow.ExecContext, cfg flow.Config) (flow.Delta, error) {
	template := cfg.Str("prompt_template", finalAnswerPrompt)

	review := st.ReviewFeedback
	if len(review) > synthResultChars {
		review = clip(review, synthResultChars) + "... (truncated)"
	}

	prompt, ok := renderTemplate(template, map[string]string{
		"input":           st.Input,
		"todo_results":    formatTodoResults(st),
		"review_feedback": review,
	})
	if !ok {
		prompt = template
	}

	res, fb, err := ec.ResilientInvoke(ctx, []model.Message{{Role: model.RoleUser, Content: prompt}}, model.InvokeOptions{})
	if err != nil {
		// Degraded synthesis: return whatever the plan produced.
		var sb strings.Builder
		for _, t := range st.Todos {
			if t.Result != "" {
				fmt.Fprintf(&sb, "%s: %s\n", t.Title, t.Result)
			}
		}
		return flow.Delta{
			FinalAnswer: flow.Ptr("Task completed with errors.\n\nResults:\n" + sb.String()),
			LastOutput:  flow.Ptr("Error in final_answer: " + err.Error()),
			Error:       flow.Ptr(err.Error()),
			IsComplete:  flow.Ptr(true),
		}, nil
	}

	d := flow.Delta{
		FinalAnswer: flow.Ptr(res.Content),
		Messages:    []model.Message{{Role: model.RoleAssistant, Content: res.Content}},
		LastOutput:  flow.Ptr(res.Content),
		CurrentStep: flow.Ptr("complete"),
		IsComplete:  flow.Ptr(true),
	}
	return withFallback(d, fb), nil
}
