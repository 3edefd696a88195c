package nodes

import (
	"context"
	"fmt"

	"github.com/dshills/agentflow-go/flow"
)

// ── context_guard ──

type contextGuardNode struct{}

func contextGuardSpec() *flow.Spec {
	return &flow.Spec{
		Type:        "context_guard",
		Label:       "Context Guard",
		Description: "Check context window budget and token usage",
		Category:    "resilience",
		Icon:        "🛡️",
		Color:       "#6b7280",
		Params: []flow.Param{
			{Name: "position_label", Label: "Position Label", Type: flow.ParamString,
				Default: "general", Group: "general",
				Description: "Descriptive label for logging (e.g. 'classify', 'execute')."},
		},
		Node: contextGuardNode{},
	}
}

func (contextGuardNode) Execute(_ context.Context, st flow.State, ec *flow.ExecContext, cfg flow.Config) (flow.Delta, error) {
	position := cfg.Str("position_label", "general")

	guard := ec.Guard
	if guard == nil {
		guard = flow.NewContextGuard(0)
	}

	budget := guard.Check(st.Messages, "")
	if st.ContextBudget != nil {
		budget.CompactionCount = st.ContextBudget.CompactionCount
	}

	if flow.ShouldBlock(budget.Status) {
		if ec.Logger != nil {
			ec.Logger.Log("warning", fmt.Sprintf("guard_%s: context budget %s", position, budget.Status),
				map[string]any{
					"estimated_tokens": budget.EstimatedTokens,
					"context_limit":    budget.ContextLimit,
					"usage_ratio":      budget.UsageRatio,
				})
		}
		budget.CompactionCount++
	}

	return flow.Delta{ContextBudget: &budget}, nil
}

// ── post_model ──

type postModelNode struct{}

func postModelSpec() *flow.Spec {
	return &flow.Spec{
		Type:        "post_model",
		Label:       "Post Model",
		Description: "Post-processing: iteration increment, signal detection, transcript recording",
		Category:    "resilience",
		Icon:        "📌",
		Color:       "#6b7280",
		Params: []flow.Param{
			{Name: "detect_completion", Label: "Detect Completion Signals", Type: flow.ParamBoolean,
				Default: true, Group: "behavior",
				Description: "Parse structured completion signals from the output."},
			{Name: "record_transcript", Label: "Record Transcript", Type: flow.ParamBoolean,
				Default: true, Group: "behavior",
				Description: "Record the output to short-term memory."},
		},
		Node: postModelNode{},
	}
}

func (postModelNode) Execute(_ context.Context, st flow.State, ec *flow.ExecContext, cfg flow.Config) (flow.Delta, error) {
	detect := cfg.Bool("detect_completion", true)
	record := cfg.Bool("record_transcript", true)

	d := flow.Delta{
		Iteration:   flow.Ptr(st.Iteration + 1),
		CurrentStep: flow.Ptr("post_model"),
	}

	if detect && st.LastOutput != "" {
		signal, detail := flow.DetectSignal(st.LastOutput)
		d.CompletionSignal = flow.Ptr(signal)
		d.CompletionDetail = flow.Ptr(detail)
		if ec != nil && ec.Metrics != nil {
			ec.Metrics.RecordSignal(signal)
		}
		if signal == flow.SignalComplete || signal == flow.SignalBlocked || signal == flow.SignalError {
			if ec != nil && ec.Logger != nil {
				ec.Logger.Log("info", "post_model: completion signal",
					map[string]any{"signal": string(signal), "detail": detail})
			}
		}
	}

	if record && ec != nil && ec.Memory != nil && st.LastOutput != "" {
		if err := ec.Memory.RecordMessage("assistant", clip(st.LastOutput, defaultTranscriptChars)); err != nil {
			if ec.Logger != nil {
				ec.Logger.Log("debug", "post_model: transcript record failed", map[string]any{"error": err.Error()})
			}
		}
	}

	return d, nil
}
