package flow

// State field registry: authoritative metadata for every built-in state
// field, consumed by editors to render field pickers and by the workflow
// inspector to report per-node state usage.

// FieldCategory groups state fields for editor display.
type FieldCategory string

const (
	CategoryCore       FieldCategory = "core"
	CategoryIteration  FieldCategory = "iteration"
	CategoryDifficulty FieldCategory = "difficulty"
	CategoryReview     FieldCategory = "review"
	CategoryTodo       FieldCategory = "todo"
	CategoryOutput     FieldCategory = "output"
	CategoryCompletion FieldCategory = "completion"
	CategoryResilience FieldCategory = "resilience"
	CategoryMemory     FieldCategory = "memory"
	CategoryMeta       FieldCategory = "meta"
)

// Reducer names the merge strategy of a state field.
type Reducer string

const (
	ReducerLastWins    Reducer = "last_wins"
	ReducerAppend      Reducer = "append"
	ReducerMergeByID   Reducer = "merge_by_id"
	ReducerDeduplicate Reducer = "deduplicate"
)

// FieldDef is the metadata for one built-in state field.
type FieldDef struct {
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Description string        `json:"description"`
	Category    FieldCategory `json:"category"`
	Default     any           `json:"default,omitempty"`
	Reducer     Reducer       `json:"reducer"`
	Required    bool          `json:"required,omitempty"`
	IsList      bool          `json:"is_list,omitempty"`
	IsDict      bool          `json:"is_dict,omitempty"`
}

// StateFields returns the built-in field registry in definition order.
func StateFields() []FieldDef {
	out := make([]FieldDef, len(builtinFields))
	copy(out, builtinFields)
	return out
}

// StateField looks up a built-in field by name.
func StateField(name string) (FieldDef, bool) {
	for _, f := range builtinFields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

var builtinFields = []FieldDef{
	{Name: "input", Type: "string", Description: "Original user input / task description. Set once at graph start.", Category: CategoryCore, Default: "", Reducer: ReducerLastWins, Required: true},
	{Name: "messages", Type: "[]Message", Description: "Accumulated LLM conversation messages. Append-only across steps.", Category: CategoryCore, Reducer: ReducerAppend, IsList: true},
	{Name: "current_step", Type: "string", Description: "Label of the current execution step (for logging/debugging).", Category: CategoryCore, Default: "start", Reducer: ReducerLastWins},
	{Name: "last_output", Type: "string", Description: "Raw text output from the most recent model call.", Category: CategoryCore, Reducer: ReducerLastWins},
	{Name: "iteration", Type: "int", Description: "Global iteration counter incremented by post-model nodes.", Category: CategoryIteration, Default: 0, Reducer: ReducerLastWins},
	{Name: "max_iterations", Type: "int", Description: "Maximum iterations before the graph force-stops.", Category: CategoryIteration, Default: DefaultMaxIterations, Reducer: ReducerLastWins},
	{Name: "difficulty", Type: "string", Description: "Task difficulty classification (easy/medium/hard or custom categories).", Category: CategoryDifficulty, Reducer: ReducerLastWins},
	{Name: "answer", Type: "string", Description: "Generated answer text (medium path, before review).", Category: CategoryReview, Reducer: ReducerLastWins},
	{Name: "review_result", Type: "string", Description: "Review verdict (approved/rejected or custom verdicts).", Category: CategoryReview, Reducer: ReducerLastWins},
	{Name: "review_feedback", Type: "string", Description: "Detailed feedback from the review node.", Category: CategoryReview, Reducer: ReducerLastWins},
	{Name: "review_count", Type: "int", Description: "Number of review cycles completed.", Category: CategoryReview, Default: 0, Reducer: ReducerLastWins},
	{Name: "todos", Type: "[]TodoItem", Description: "Structured TODO list for complex task decomposition.", Category: CategoryTodo, Reducer: ReducerMergeByID, IsList: true},
	{Name: "current_todo_index", Type: "int", Description: "Index of the next TODO item to execute.", Category: CategoryTodo, Default: 0, Reducer: ReducerLastWins},
	{Name: "final_answer", Type: "string", Description: "Synthesized final answer after all processing.", Category: CategoryOutput, Reducer: ReducerLastWins},
	{Name: "completion_signal", Type: "string", Description: "Structured completion signal (continue/complete/blocked/error/none).", Category: CategoryCompletion, Default: string(SignalNone), Reducer: ReducerLastWins},
	{Name: "completion_detail", Type: "string", Description: "Detail text from the completion signal (e.g. next action).", Category: CategoryCompletion, Reducer: ReducerLastWins},
	{Name: "error", Type: "string", Description: "Error message if a node fails.", Category: CategoryCompletion, Reducer: ReducerLastWins},
	{Name: "is_complete", Type: "bool", Description: "Flag indicating the workflow has finished execution.", Category: CategoryCompletion, Default: false, Reducer: ReducerLastWins},
	{Name: "context_budget", Type: "ContextBudget", Description: "Context window usage tracking (tokens, limit, status).", Category: CategoryResilience, Reducer: ReducerLastWins, IsDict: true},
	{Name: "fallback", Type: "FallbackRecord", Description: "Model fallback tracking (original model, current model, attempts).", Category: CategoryResilience, Reducer: ReducerLastWins, IsDict: true},
	{Name: "memory_refs", Type: "[]MemoryRef", Description: "References to loaded memory chunks, deduplicated by filename.", Category: CategoryMemory, Reducer: ReducerDeduplicate, IsList: true},
	{Name: "metadata", Type: "map[string]any", Description: "Extensible metadata map for custom data.", Category: CategoryMeta, Reducer: ReducerLastWins, IsDict: true},
}

// NodeUsage reports the state fields one node reads and writes.
type NodeUsage struct {
	NodeID   string   `json:"node_id"`
	Label    string   `json:"node_label"`
	NodeType string   `json:"node_type"`
	Reads    []string `json:"reads"`
	Writes   []string `json:"writes"`
}

// FieldUsage reports which nodes touch one state field.
type FieldUsage struct {
	Field     FieldDef `json:"field_def"`
	Name      string   `json:"field_name"`
	IsBuiltin bool     `json:"is_builtin"`
	ReadBy    []string `json:"read_by"`
	WrittenBy []string `json:"written_by"`
	IsUsed    bool     `json:"is_used"`
}

// UsageReport is the full state-usage analysis of a workflow definition.
type UsageReport struct {
	Nodes  []NodeUsage  `json:"nodes"`
	Fields []FieldUsage `json:"all_fields"`
	Used   []FieldUsage `json:"used_fields"`
	Unused []FieldUsage `json:"unused_builtin"`
	Custom []FieldUsage `json:"custom_fields"`
}

// AnalyzeState infers which state fields each node of a definition reads
// and writes, and aggregates the per-field usage. Inference is a heuristic
// keyed by node type and config, not a data-flow analysis.
func AnalyzeState(def *Definition) UsageReport {
	var report UsageReport
	fieldReads := map[string][]string{}
	fieldWrites := map[string][]string{}

	for _, inst := range def.Nodes {
		if inst.Type == TypeStart || inst.Type == TypeEnd {
			continue
		}
		reads := inferReads(inst.Type, inst.Config)
		writes := inferWrites(inst.Type, inst.Config)
		label := inst.DisplayLabel()
		for _, r := range reads {
			fieldReads[r] = append(fieldReads[r], label)
		}
		for _, w := range writes {
			fieldWrites[w] = append(fieldWrites[w], label)
		}
		report.Nodes = append(report.Nodes, NodeUsage{
			NodeID: inst.ID, Label: label, NodeType: inst.Type,
			Reads: reads, Writes: writes,
		})
	}

	builtin := map[string]bool{}
	for _, f := range builtinFields {
		builtin[f.Name] = true
		usage := FieldUsage{
			Field: f, Name: f.Name, IsBuiltin: true,
			ReadBy: fieldReads[f.Name], WrittenBy: fieldWrites[f.Name],
		}
		usage.IsUsed = len(usage.ReadBy) > 0 || len(usage.WrittenBy) > 0
		report.Fields = append(report.Fields, usage)
		if usage.IsUsed {
			report.Used = append(report.Used, usage)
		} else {
			report.Unused = append(report.Unused, usage)
		}
	}

	// Fields referenced by nodes but unknown to the registry are custom:
	// they live in the state's metadata map.
	seen := map[string]bool{}
	collect := func(m map[string][]string) {
		for name := range m {
			if builtin[name] || seen[name] {
				continue
			}
			seen[name] = true
			usage := FieldUsage{
				Name: name, ReadBy: fieldReads[name], WrittenBy: fieldWrites[name], IsUsed: true,
			}
			report.Fields = append(report.Fields, usage)
			report.Used = append(report.Used, usage)
			report.Custom = append(report.Custom, usage)
		}
	}
	collect(fieldReads)
	collect(fieldWrites)

	return report
}

func inferReads(ntype string, cfg Config) []string {
	var fields []string
	switch ntype {
	case "classify", "direct_answer", "answer", "llm_call":
		fields = append(fields, "input", "messages")
		if ntype == "llm_call" {
			if cond := cfg.Str("conditional_field", ""); cond != "" {
				fields = append(fields, cond)
			}
		}
		if ntype == "answer" {
			fields = append(fields,
				cfg.Str("feedback_field", "review_feedback"),
				cfg.Str("count_field", "review_count"))
		}
	case "review":
		fields = append(fields, "input",
			cfg.Str("answer_field", "answer"),
			cfg.Str("count_field", "review_count"))
	case "final_review", "final_answer":
		fields = append(fields, "input", "messages", cfg.Str("list_field", "todos"))
		if ntype == "final_answer" {
			fields = append(fields, cfg.Str("feedback_field", "review_feedback"))
		}
	case "execute_todo":
		fields = append(fields, "input",
			cfg.Str("list_field", "todos"),
			cfg.Str("index_field", "current_todo_index"),
			"context_budget")
	case "create_todos":
		fields = append(fields, "input")
	case "memory_inject":
		fields = append(fields, cfg.Str("search_field", "input"))
	case "context_guard":
		fields = append(fields, cfg.Str("messages_field", "messages"))
	case "post_model":
		fields = append(fields,
			cfg.Str("source_field", "last_output"),
			cfg.Str("increment_field", "iteration"))
	case "check_progress":
		fields = append(fields,
			cfg.Str("list_field", "todos"),
			cfg.Str("index_field", "current_todo_index"),
			"is_complete", "completion_signal", "error")
	case "iteration_gate":
		fields = append(fields, "iteration", "max_iterations", "is_complete",
			"error", "completion_signal", "context_budget")
		if custom := cfg.Str("custom_stop_field", ""); custom != "" {
			fields = append(fields, custom)
		}
	case "conditional_router":
		if rf := cfg.Str("routing_field", ""); rf != "" {
			fields = append(fields, rf)
		}
	case "transcript_record":
		fields = append(fields, cfg.Str("source_field", "last_output"))
	}
	return dedupe(fields)
}

func inferWrites(ntype string, cfg Config) []string {
	var fields []string
	switch ntype {
	case "classify":
		fields = append(fields, cfg.Str("output_field", "difficulty"),
			"current_step", "messages", "last_output")
	case "review":
		fields = append(fields, cfg.Str("output_field", "review_result"),
			"review_feedback", cfg.Str("count_field", "review_count"),
			"messages", "last_output", "current_step", "final_answer", "is_complete")
	case "direct_answer":
		fields = append(fields, "messages", "last_output", "current_step", "is_complete",
			"answer", "final_answer")
	case "answer":
		fields = append(fields, "messages", "last_output", "current_step", "answer")
	case "llm_call":
		fields = append(fields, cfg.Str("output_field", "last_output"),
			"messages", "last_output", "current_step")
		if cfg.Bool("set_complete", false) {
			fields = append(fields, "is_complete")
		}
	case "create_todos":
		fields = append(fields, cfg.Str("output_list_field", "todos"),
			cfg.Str("output_index_field", "current_todo_index"),
			"messages", "last_output", "current_step")
	case "execute_todo":
		fields = append(fields, cfg.Str("list_field", "todos"),
			cfg.Str("index_field", "current_todo_index"),
			"messages", "last_output", "current_step")
	case "final_review":
		fields = append(fields, cfg.Str("output_field", "review_feedback"),
			"messages", "last_output", "current_step", "metadata")
	case "final_answer":
		fields = append(fields, cfg.Str("output_field", "final_answer"),
			"messages", "last_output", "current_step", "metadata", "is_complete")
	case "memory_inject":
		fields = append(fields, "memory_refs")
	case "context_guard":
		fields = append(fields, "context_budget")
	case "post_model":
		fields = append(fields, cfg.Str("increment_field", "iteration"),
			"current_step", "completion_signal", "completion_detail", "is_complete")
	case "check_progress":
		fields = append(fields, "current_step", "metadata")
	case "iteration_gate":
		fields = append(fields, "is_complete", "metadata")
	case "conditional_router":
		fields = append(fields, "current_step")
	case "state_setter":
		if updates := cfg.Map("state_updates"); updates != nil {
			for k := range updates {
				fields = append(fields, k)
			}
		}
	}
	return dedupe(fields)
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
