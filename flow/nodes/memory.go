package nodes

import (
	"context"

	"github.com/dshills/agentflow-go/flow"
)

// Transcript recording cap, matching the memory manager's entry sizing.
const defaultTranscriptChars = 5000

// ── memory_inject ──

type memoryInjectNode struct{}

func memoryInjectSpec() *flow.Spec {
	return &flow.Spec{
		Type:        "memory_inject",
		Label:       "Memory Inject",
		Description: "Load relevant memory context into the graph state",
		Category:    "memory",
		Icon:        "🧠",
		Color:       "#ec4899",
		Params: []flow.Param{
			{Name: "max_results", Label: "Max Memory Results", Type: flow.ParamNumber,
				Default: 5, Min: num(1), Max: num(20), Group: "behavior",
				Description: "Maximum number of memory chunks to load."},
			{Name: "search_chars", Label: "Search Input Length", Type: flow.ParamNumber,
				Default: 500, Min: num(50), Max: num(5000), Group: "behavior",
				Description: "Character limit of input text used for memory search."},
		},
		Node: memoryInjectNode{},
	}
}

func (memoryInjectNode) Execute(_ context.Context, st flow.State, ec *flow.ExecContext, cfg flow.Config) (flow.Delta, error) {
	if ec == nil || ec.Memory == nil {
		return flow.Delta{}, nil
	}
	maxResults := cfg.Int("max_results", 5)
	searchChars := cfg.Int("search_chars", 500)

	// Memory failures never fail the run: log and continue.
	if err := ec.Memory.RecordMessage("user", clip(st.Input, defaultTranscriptChars)); err != nil {
		if ec.Logger != nil {
			ec.Logger.Log("debug", "memory_inject: transcript record failed", map[string]any{"error": err.Error()})
		}
	}

	results, err := ec.Memory.Search(clip(st.Input, searchChars), maxResults)
	if err != nil {
		if ec.Logger != nil {
			ec.Logger.Log("warning", "memory_inject: search failed", map[string]any{"error": err.Error()})
		}
		return flow.Delta{}, nil
	}

	refs := make([]flow.MemoryRef, 0, len(results))
	for _, r := range results {
		filename := r.Entry.Filename
		if filename == "" {
			filename = "unknown"
		}
		refs = append(refs, flow.MemoryRef{
			Filename:  filename,
			Source:    r.Entry.Source,
			CharCount: r.Entry.CharCount,
		})
	}
	if len(refs) == 0 {
		return flow.Delta{}, nil
	}
	return flow.Delta{MemoryRefs: refs}, nil
}

// ── transcript_record ──

type transcriptRecordNode struct{}

func transcriptRecordSpec() *flow.Spec {
	return &flow.Spec{
		Type:        "transcript_record",
		Label:       "Transcript Record",
		Description: "Record the latest output to memory transcript",
		Category:    "memory",
		Icon:        "📝",
		Color:       "#ec4899",
		Params: []flow.Param{
			{Name: "max_length", Label: "Max Content Length", Type: flow.ParamNumber,
				Default: defaultTranscriptChars, Min: num(100), Max: num(50000), Group: "behavior",
				Description: "Maximum characters to record from the output."},
		},
		Node: transcriptRecordNode{},
	}
}

func (transcriptRecordNode) Execute(_ context.Context, st flow.State, ec *flow.ExecContext, cfg flow.Config) (flow.Delta, error) {
	if ec == nil || ec.Memory == nil || st.LastOutput == "" {
		return flow.Delta{}, nil
	}
	maxLength := cfg.Int("max_length", defaultTranscriptChars)
	if err := ec.Memory.RecordMessage("assistant", clip(st.LastOutput, maxLength)); err != nil {
		if ec.Logger != nil {
			ec.Logger.Log("debug", "transcript_record failed", map[string]any{"error": err.Error()})
		}
	}
	return flow.Delta{}, nil
}
