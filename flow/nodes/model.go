package nodes

import (
	"context"
	"strings"

	"github.com/dshills/agentflow-go/flow"
	"github.com/dshills/agentflow-go/flow/model"
)

// withFallback carries a resilience demotion record into a node's delta.
func withFallback(d flow.Delta, fb flow.Delta) flow.Delta {
	if fb.Fallback != nil {
		d.Fallback = fb.Fallback
	}
	return d
}

// failDelta converts a handled model failure into a terminal state change.
// Model nodes absorb invocation errors instead of failing the run so the
// graph can finish cleanly with the error recorded in state.
func failDelta(err error) flow.Delta {
	return flow.Delta{Error: flow.Ptr(err.Error()), IsComplete: flow.Ptr(true)}
}

// setStringField writes a string value to the named state field in the
// delta. Unknown names land in the metadata map (preserving prior entries)
// so custom fields keep working.
func setStringField(st flow.State, d *flow.Delta, name, value string) {
	switch name {
	case "input":
		d.Input = flow.Ptr(value)
	case "current_step":
		d.CurrentStep = flow.Ptr(value)
	case "last_output":
		d.LastOutput = flow.Ptr(value)
	case "difficulty":
		d.Difficulty = flow.Ptr(flow.Difficulty(value))
	case "answer":
		d.Answer = flow.Ptr(value)
	case "review_result":
		d.ReviewResult = flow.Ptr(flow.ReviewResult(value))
	case "review_feedback":
		d.ReviewFeedback = flow.Ptr(value)
	case "final_answer":
		d.FinalAnswer = flow.Ptr(value)
	case "completion_detail":
		d.CompletionDetail = flow.Ptr(value)
	case "error":
		d.Error = flow.Ptr(value)
	default:
		md := make(map[string]any, len(st.Metadata)+1)
		for k, v := range st.Metadata {
			md[k] = v
		}
		md[name] = value
		d.Metadata = md
	}
}

func compacting(st flow.State) bool {
	return st.ContextBudget != nil && flow.ShouldBlock(st.ContextBudget.Status)
}

// ── llm_call ──

type llmCallNode struct{}

func llmCallSpec() *flow.Spec {
	return &flow.Spec{
		Type:        "llm_call",
		Label:       "LLM Call",
		Description: "Invoke the language model with a configurable prompt template",
		Category:    "model",
		Icon:        "🤖",
		Color:       "#8b5cf6",
		Params: []flow.Param{
			{Name: "prompt_template", Label: "Prompt Template", Type: flow.ParamPromptTemplate,
				Default: "{input}", Required: true, Group: "prompt",
				Description: "Prompt sent to the model. Use {field_name} for state variable substitution."},
			{Name: "output_field", Label: "Output State Field", Type: flow.ParamString,
				Default: "last_output", Group: "output",
				Description: "State field to store the model response in."},
			{Name: "set_complete", Label: "Mark Complete After", Type: flow.ParamBoolean,
				Default: false, Group: "output",
				Description: "Set is_complete after execution."},
		},
		Node: llmCallNode{},
	}
}

func (llmCallNode) Execute(ctx context.Context, st flow.State, ec *flow.ExecContext, cfg flow.Config) (flow.Delta, error) {
	template := cfg.Str("prompt_template", "{input}")
	outputField := cfg.Str("output_field", "last_output")
	setComplete := cfg.Bool("set_complete", false)

	prompt, ok := renderTemplate(template, st.TemplateVars())
	if !ok {
		prompt = template
	}

	res, fb, err := ec.ResilientInvoke(ctx, []model.Message{{Role: model.RoleUser, Content: prompt}}, model.InvokeOptions{})
	if err != nil {
		return flow.Delta{}, err
	}

	d := flow.Delta{
		Messages:    []model.Message{{Role: model.RoleAssistant, Content: res.Content}},
		LastOutput:  flow.Ptr(res.Content),
		CurrentStep: flow.Ptr("llm_call_complete"),
	}
	setStringField(st, &d, outputField, res.Content)
	if setComplete {
		d.IsComplete = flow.Ptr(true)
	}
	return withFallback(d, fb), nil
}

// ── classify ──

type classifyNode struct{}

func classifySpec() *flow.Spec {
	return &flow.Spec{
		Type:        "classify",
		Label:       "Classify",
		Description: "Classify the input task difficulty (easy/medium/hard)",
		Category:    "model",
		Icon:        "🔀",
		Color:       "#3b82f6",
		Params: []flow.Param{
			{Name: "prompt_template", Label: "Classification Prompt", Type: flow.ParamPromptTemplate,
				Default: classifyPrompt, Group: "prompt",
				Description: "Prompt template for difficulty classification."},
		},
		Ports: []flow.Port{
			{ID: "easy", Label: "Easy", Description: "Simple, direct tasks"},
			{ID: "medium", Label: "Medium", Description: "Moderate complexity"},
			{ID: "hard", Label: "Hard", Description: "Complex, multi-step tasks"},
			{ID: "end", Label: "End", Description: "Error / early termination"},
		},
		Node: classifyNode{},
	}
}

func (classifyNode) Execute(ctx context.Context, st flow.State, ec *flow.ExecContext, cfg flow.Config) (flow.Delta, error) {
	template := cfg.Str("prompt_template", classifyPrompt)
	prompt, ok := renderTemplate(template, map[string]string{"input": st.Input})
	if !ok {
		prompt = template
	}

	res, fb, err := ec.ResilientInvoke(ctx, []model.Message{{Role: model.RoleUser, Content: prompt}}, model.InvokeOptions{})
	if err != nil {
		return failDelta(err), nil
	}

	text := strings.ToLower(strings.TrimSpace(res.Content))
	difficulty := flow.DifficultyMedium
	switch {
	case strings.Contains(text, "easy"):
		difficulty = flow.DifficultyEasy
	case strings.Contains(text, "medium"):
		difficulty = flow.DifficultyMedium
	case strings.Contains(text, "hard"):
		difficulty = flow.DifficultyHard
	}

	d := flow.Delta{
		Difficulty:  flow.Ptr(difficulty),
		CurrentStep: flow.Ptr("difficulty_classified"),
		Messages:    []model.Message{{Role: model.RoleUser, Content: st.Input}},
		LastOutput:  flow.Ptr(res.Content),
	}
	return withFallback(d, fb), nil
}

func (classifyNode) Router(flow.Config) func(flow.State) string {
	return func(st flow.State) string {
		if st.Error != "" {
			return "end"
		}
		switch st.Difficulty {
		case flow.DifficultyEasy:
			return "easy"
		case flow.DifficultyMedium:
			return "medium"
		}
		return "hard"
	}
}

// ── direct_answer ──

type directAnswerNode struct{}

func directAnswerSpec() *flow.Spec {
	return &flow.Spec{
		Type:        "direct_answer",
		Label:       "Direct Answer",
		Description: "Generate a direct answer for easy/simple tasks",
		Category:    "model",
		Icon:        "⚡",
		Color:       "#10b981",
		Params: []flow.Param{
			{Name: "prompt_template", Label: "Prompt Template", Type: flow.ParamPromptTemplate,
				Default: "{input}", Group: "prompt",
				Description: "Prompt template. {input} is the user request."},
		},
		Node: directAnswerNode{},
	}
}

func (directAnswerNode) Execute(ctx context.Context, st flow.State, ec *flow.ExecContext, cfg flow.Config) (flow.Delta, error) {
	template := cfg.Str("prompt_template", "{input}")
	prompt, ok := renderTemplate(template, map[string]string{"input": st.Input})
	if !ok {
		prompt = st.Input
	}

	res, fb, err := ec.ResilientInvoke(ctx, []model.Message{{Role: model.RoleUser, Content: prompt}}, model.InvokeOptions{})
	if err != nil {
		return failDelta(err), nil
	}

	d := flow.Delta{
		Answer:      flow.Ptr(res.Content),
		FinalAnswer: flow.Ptr(res.Content),
		Messages:    []model.Message{{Role: model.RoleAssistant, Content: res.Content}},
		LastOutput:  flow.Ptr(res.Content),
		CurrentStep: flow.Ptr("direct_answer_complete"),
		IsComplete:  flow.Ptr(true),
	}
	return withFallback(d, fb), nil
}

// ── answer ──

type answerNode struct{}

func answerSpec() *flow.Spec {
	return &flow.Spec{
		Type:        "answer",
		Label:       "Answer",
		Description: "Generate an answer with optional review feedback integration",
		Category:    "model",
		Icon:        "💬",
		Color:       "#f59e0b",
		Params: []flow.Param{
			{Name: "prompt_template", Label: "Prompt Template", Type: flow.ParamPromptTemplate,
				Default: "{input}", Group: "prompt",
				Description: "Prompt for the initial answer."},
			{Name: "retry_template", Label: "Retry Prompt Template", Type: flow.ParamPromptTemplate,
				Default: retryPrompt, Group: "prompt",
				Description: "Prompt template when retrying after review rejection."},
		},
		Node: answerNode{},
	}
}

func (answerNode) Execute(ctx context.Context, st flow.State, ec *flow.ExecContext, cfg flow.Config) (flow.Delta, error) {
	var prompt string
	if st.ReviewFeedback != "" && st.ReviewCount > 0 {
		feedback := st.ReviewFeedback
		if compacting(st) {
			feedback = clip(feedback, 500) + "... (truncated)"
		}
		retryTemplate := cfg.Str("retry_template", retryPrompt)
		rendered, ok := renderTemplate(retryTemplate, map[string]string{
			"previous_feedback": feedback,
			"input_text":        st.Input,
		})
		if !ok {
			rendered = st.Input
		}
		prompt = rendered
	} else {
		template := cfg.Str("prompt_template", "{input}")
		rendered, ok := renderTemplate(template, map[string]string{"input": st.Input})
		if !ok {
			rendered = st.Input
		}
		prompt = rendered
	}

	res, fb, err := ec.ResilientInvoke(ctx, []model.Message{{Role: model.RoleUser, Content: prompt}}, model.InvokeOptions{})
	if err != nil {
		return failDelta(err), nil
	}

	d := flow.Delta{
		Answer:      flow.Ptr(res.Content),
		Messages:    []model.Message{{Role: model.RoleAssistant, Content: res.Content}},
		LastOutput:  flow.Ptr(res.Content),
		CurrentStep: flow.Ptr("answer_generated"),
	}
	return withFallback(d, fb), nil
}

// ── review ──

type reviewNode struct{}

func reviewSpec() *flow.Spec {
	return &flow.Spec{
		Type:        "review",
		Label:       "Review",
		Description: "Quality review of a generated answer",
		Category:    "model",
		Icon:        "📋",
		Color:       "#f59e0b",
		Params: []flow.Param{
			{Name: "prompt_template", Label: "Review Prompt", Type: flow.ParamPromptTemplate,
				Default: reviewPrompt, Group: "prompt",
				Description: "Prompt template for the quality review."},
			{Name: "max_retries", Label: "Max Review Retries", Type: flow.ParamNumber,
				Default: 3, Min: num(1), Max: num(10), Group: "behavior",
				Description: "Force approval after this many retries."},
		},
		Ports: []flow.Port{
			{ID: "approved", Label: "Approved", Description: "Answer passed review"},
			{ID: "retry", Label: "Retry", Description: "Answer needs improvement"},
			{ID: "end", Label: "End", Description: "Completed or error"},
		},
		Node: reviewNode{},
	}
}

func (reviewNode) Execute(ctx context.Context, st flow.State, ec *flow.ExecContext, cfg flow.Config) (flow.Delta, error) {
	reviewCount := st.ReviewCount + 1
	maxRetries := cfg.Int("max_retries", 3)

	template := cfg.Str("prompt_template", reviewPrompt)
	prompt, ok := renderTemplate(template, map[string]string{
		"question": st.Input,
		"answer":   st.Answer,
	})
	if !ok {
		prompt = template
	}

	res, fb, err := ec.ResilientInvoke(ctx, []model.Message{{Role: model.RoleUser, Content: prompt}}, model.InvokeOptions{})
	if err != nil {
		return failDelta(err), nil
	}

	verdict, feedback := parseReview(res.Content)

	complete := false
	if verdict == flow.ReviewRejected && reviewCount >= maxRetries {
		// Forced approval: the review loop must not run forever.
		verdict = flow.ReviewApproved
		complete = true
	} else if verdict == flow.ReviewApproved {
		complete = true
	}

	d := flow.Delta{
		ReviewResult:   flow.Ptr(verdict),
		ReviewFeedback: flow.Ptr(feedback),
		ReviewCount:    flow.Ptr(reviewCount),
		Messages:       []model.Message{{Role: model.RoleAssistant, Content: res.Content}},
		LastOutput:     flow.Ptr(res.Content),
		CurrentStep:    flow.Ptr("review_complete"),
	}
	if complete {
		d.FinalAnswer = flow.Ptr(st.Answer)
		d.IsComplete = flow.Ptr(true)
	}
	return withFallback(d, fb), nil
}

func (reviewNode) Router(flow.Config) func(flow.State) string {
	return func(st flow.State) string {
		if st.IsComplete || st.Error != "" {
			return "end"
		}
		if st.CompletionSignal == flow.SignalComplete || st.CompletionSignal == flow.SignalBlocked {
			return "approved"
		}
		if st.ReviewResult == flow.ReviewApproved {
			return "approved"
		}
		return "retry"
	}
}

// parseReview extracts the verdict and feedback from VERDICT:/FEEDBACK:
// formatted review output. Output without a VERDICT: line is treated as an
// approval with the whole text as feedback.
func parseReview(text string) (flow.ReviewResult, string) {
	verdict := flow.ReviewApproved
	feedback := ""

	if !strings.Contains(text, "VERDICT:") {
		return verdict, text
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "VERDICT:") {
			v := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "VERDICT:")))
			if strings.Contains(v, "rejected") {
				verdict = flow.ReviewRejected
			}
			continue
		}
		if strings.HasPrefix(line, "FEEDBACK:") {
			first := strings.TrimSpace(strings.TrimPrefix(line, "FEEDBACK:"))
			parts := append([]string{first}, lines[i+1:]...)
			feedback = strings.Join(parts, "\n")
			break
		}
	}
	return verdict, feedback
}
