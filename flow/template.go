package flow

import "github.com/google/uuid"

// Built-in template IDs.
const (
	TemplateSimpleID     = "template-simple"
	TemplateAutonomousID = "template-autonomous"
)

// SimpleTemplate builds the basic agent loop:
// memory → guard → LLM call → post-processing → end.
func SimpleTemplate() *Definition {
	def := NewDefinition("Simple Agent",
		"Basic agent loop: memory → guard → LLM call → post-processing → end.")
	def.ID = TemplateSimpleID
	def.IsTemplate = true
	def.TemplateName = "simple"

	def.Nodes = []NodeInstance{
		{ID: "start", Type: TypeStart, Label: "Start", Position: Position{X: 400, Y: 0}},
		{ID: "mem", Type: "memory_inject", Label: "Memory Inject", Position: Position{X: 400, Y: 96}},
		{ID: "guard", Type: "context_guard", Label: "Context Guard", Position: Position{X: 400, Y: 192},
			Config: Config{"position_label": "main"}},
		{ID: "llm", Type: "llm_call", Label: "LLM Call", Position: Position{X: 400, Y: 304},
			Config: Config{"prompt_template": "{input}", "output_field": "last_output", "set_complete": true}},
		{ID: "post", Type: "post_model", Label: "Post Model", Position: Position{X: 400, Y: 416}},
		{ID: "end", Type: TypeEnd, Label: "End", Position: Position{X: 400, Y: 544}},
	}
	def.Edges = []Edge{
		tedge("start", "mem", "", ""),
		tedge("mem", "guard", "", ""),
		tedge("guard", "llm", "", ""),
		tedge("llm", "post", "", ""),
		tedge("post", "end", "", ""),
	}
	return def
}

// AutonomousTemplate builds the full autonomous graph: difficulty
// classification fanning into easy/medium/hard paths with review loops,
// TODO management, iteration gates, and context guards before every model
// call.
//
// Topology:
//
//	START → memory_inject → guard_classify → classify
//	  ↓ [easy / medium / hard / end]
//
//	EASY:   guard_direct → direct_answer → post_direct → END
//	MEDIUM: guard_answer → answer → post_answer → guard_review
//	        → review → [approved→END | retry→gate_med | end→END]
//	        gate_med → [continue→guard_answer | stop→END]
//	HARD:   guard_todo → create_todos → post_todos
//	        → guard_exec → execute_todo → post_exec → check_progress
//	        → [continue→gate_hard | complete→guard_fr]
//	        gate_hard → [continue→guard_exec | stop→guard_fr]
//	        → final_review → post_fr → guard_fa → final_answer
//	        → post_fa → END
//
// Node positions are hand-tuned for readability in the visual editor.
func AutonomousTemplate() *Definition {
	def := NewDefinition("Autonomous Difficulty-Based",
		"Full autonomous execution graph with difficulty classification, "+
			"easy/medium/hard paths, review loops, TODO management, "+
			"and resilience infrastructure.")
	def.ID = TemplateAutonomousID
	def.IsTemplate = true
	def.TemplateName = "autonomous"

	add := func(ntype, nid, label string, x, y float64, cfg Config) {
		def.Nodes = append(def.Nodes, NodeInstance{
			ID: nid, Type: ntype, Label: label,
			Position: Position{X: x, Y: y}, Config: cfg,
		})
	}
	edge := func(src, tgt, port, lbl string) {
		def.Edges = append(def.Edges, tedge(src, tgt, port, lbl))
	}

	// Start and common entry.
	add(TypeStart, "start", "Start", 288, 160, nil)
	add("memory_inject", "mem_inject", "Memory Inject", 288, 256, nil)
	add("context_guard", "guard_cls", "Guard (Classify)", 288, 368, Config{"position_label": "classify"})
	add("classify", "classify", "Classify", 288, 480, nil)

	edge("start", "mem_inject", "", "")
	edge("mem_inject", "guard_cls", "", "")
	edge("guard_cls", "classify", "", "")

	// Easy path.
	add("context_guard", "guard_dir", "Guard (Direct)", 32, 688, Config{"position_label": "direct"})
	add("direct_answer", "dir_ans", "Direct Answer", 32, 800, nil)
	add("post_model", "post_dir", "Post Direct", 32, 928, nil)

	edge("guard_dir", "dir_ans", "", "")
	edge("dir_ans", "post_dir", "", "")

	// Medium path.
	add("context_guard", "guard_ans", "Guard (Answer)", 304, 688, Config{"position_label": "answer"})
	add("answer", "answer", "Answer", 304, 784, nil)
	add("post_model", "post_ans", "Post Answer", 304, 880, Config{"detect_completion": false})
	add("context_guard", "guard_rev", "Guard (Review)", 304, 976, Config{"position_label": "review"})
	add("review", "review", "Review", 304, 1120, nil)
	add("iteration_gate", "gate_med", "Iter Gate (Medium)", 304, 1424, nil)

	edge("guard_ans", "answer", "", "")
	edge("answer", "post_ans", "", "")
	edge("post_ans", "guard_rev", "", "")
	edge("guard_rev", "review", "", "")

	// Hard path.
	add("context_guard", "guard_todo", "Guard (Todos)", 560, 688, Config{"position_label": "create_todos"})
	add("create_todos", "mk_todos", "Create TODOs", 880, 688, nil)
	add("post_model", "post_todos", "Post Create Todos", 560, 832, Config{"detect_completion": false})
	add("context_guard", "guard_exec", "Guard (Execute)", 944, 1184, Config{"position_label": "execute"})
	add("execute_todo", "exec_todo", "Execute TODO", 560, 960, nil)
	add("post_model", "post_exec", "Post Execute", 560, 1104, nil)
	add("check_progress", "chk_prog", "Check Progress", 560, 1248, nil)
	add("iteration_gate", "gate_hard", "Iter Gate (Hard)", 960, 1424, nil)
	add("context_guard", "guard_fr", "Guard (Final Review)", 576, 1504, Config{"position_label": "final_review"})
	add("final_review", "fin_rev", "Final Review", 576, 1600, nil)
	add("post_model", "post_fr", "Post Final Review", 576, 1712, nil)
	add("context_guard", "guard_fa", "Guard (Final Answer)", 576, 1808, Config{"position_label": "final_answer"})
	add("final_answer", "fin_ans", "Final Answer", 576, 1904, nil)
	add("post_model", "post_fa", "Post Final Answer", 576, 2000, nil)

	edge("guard_todo", "mk_todos", "", "")
	edge("mk_todos", "post_todos", "", "")
	edge("post_todos", "guard_exec", "", "")
	edge("guard_exec", "exec_todo", "", "")
	edge("exec_todo", "post_exec", "", "")
	edge("post_exec", "chk_prog", "", "")

	add(TypeEnd, "end", "End", 64, 2144, nil)

	// Classify fan-out.
	edge("classify", "guard_dir", "easy", "Easy")
	edge("classify", "guard_ans", "medium", "Medium")
	edge("classify", "guard_todo", "hard", "Hard")
	edge("classify", "end", "end", "End")

	// Easy → END.
	edge("post_dir", "end", "", "")

	// Review self-routing.
	edge("review", "end", "approved", "Approved")
	edge("review", "gate_med", "retry", "Retry")
	edge("review", "end", "end", "End")

	// Medium iteration gate.
	edge("gate_med", "guard_ans", "continue", "Continue")
	edge("gate_med", "end", "stop", "Stop")

	// Hard progress check.
	edge("chk_prog", "gate_hard", "continue", "Continue")
	edge("chk_prog", "guard_fr", "complete", "Complete")

	// Hard iteration gate.
	edge("gate_hard", "guard_exec", "continue", "Continue")
	edge("gate_hard", "guard_fr", "stop", "Stop")

	// Hard final chain.
	edge("guard_fr", "fin_rev", "", "")
	edge("fin_rev", "post_fr", "", "")
	edge("post_fr", "guard_fa", "", "")
	edge("guard_fa", "fin_ans", "", "")
	edge("fin_ans", "post_fa", "", "")
	edge("post_fa", "end", "", "")

	return def
}

// Templates returns fresh copies of all built-in templates.
func Templates() []*Definition {
	return []*Definition{AutonomousTemplate(), SimpleTemplate()}
}

func tedge(src, tgt, port, lbl string) Edge {
	return Edge{
		ID:         uuid.NewString(),
		Source:     src,
		Target:     tgt,
		SourcePort: port,
		Label:      lbl,
	}
}
