package structured

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestExtract_Direct(t *testing.T) {
	v, method := Extract(`  {"verdict": "approved"}  `)
	if method != MethodDirect {
		t.Fatalf("method = %q, want %q", method, MethodDirect)
	}
	obj, ok := v.(map[string]any)
	if !ok || obj["verdict"] != "approved" {
		t.Errorf("extracted = %v", v)
	}
}

func TestExtract_CodeBlock(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"json fence", "Here you go:\n```json\n{\"classification\": \"easy\"}\n```\nDone."},
		{"anonymous fence", "```\n{\"classification\": \"easy\"}\n```"},
		{"second fence has the JSON", "```\nnot json\n```\nthen\n```json\n{\"classification\": \"easy\"}\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, method := Extract(tt.text)
			if method != MethodCodeBlock {
				t.Fatalf("method = %q, want %q", method, MethodCodeBlock)
			}
			obj, ok := v.(map[string]any)
			if !ok || obj["classification"] != "easy" {
				t.Errorf("extracted = %v", v)
			}
		})
	}
}

func TestExtract_BracketMatch(t *testing.T) {
	text := `Sure! The answer is {"title": "use {braces} and \"quotes\" freely"} as requested.`
	v, method := Extract(text)
	if method != MethodBracket {
		t.Fatalf("method = %q, want %q", method, MethodBracket)
	}
	obj, ok := v.(map[string]any)
	if !ok || obj["title"] != `use {braces} and "quotes" freely` {
		t.Errorf("extracted = %v", v)
	}
}

func TestExtract_BracketMatch_Array(t *testing.T) {
	v, method := Extract(`The list: [{"id": 1, "title": "a"}] done`)
	if method != MethodBracket {
		t.Fatalf("method = %q, want %q", method, MethodBracket)
	}
	list, ok := v.([]any)
	if !ok || len(list) != 1 {
		t.Errorf("extracted = %v", v)
	}
}

func TestExtract_None(t *testing.T) {
	for _, text := range []string{"no json here", "", "{broken", "```\nstill not json\n```"} {
		if v, method := Extract(text); method != MethodNone || v != nil {
			t.Errorf("Extract(%q) = %v, %q; want nil, none", text, v, method)
		}
	}
}

func TestParse_TypedDecode(t *testing.T) {
	out, res := Parse[ReviewOutput](`{"verdict": "approved", "feedback": "looks good"}`, Options{})
	if !res.Success {
		t.Fatalf("parse failed: %s", res.Err)
	}
	if out.Verdict != "approved" || out.Feedback != "looks good" {
		t.Errorf("decoded = %+v", out)
	}
	if res.Method != MethodDirect {
		t.Errorf("method = %q", res.Method)
	}
}

func TestParse_ListFieldWrapsBareArray(t *testing.T) {
	text := `[{"id": 1, "title": "first"}, {"id": 2, "title": "second"}]`
	out, res := Parse[CreateTodosOutput](text, Options{ListField: "todos"})
	if !res.Success {
		t.Fatalf("parse failed: %s", res.Err)
	}
	if len(out.Todos) != 2 || out.Todos[1].Title != "second" {
		t.Errorf("todos = %+v", out.Todos)
	}
}

func TestParse_CoercesEnumField(t *testing.T) {
	text := `{"classification": "This looks EASY to me", "reasoning": "short"}`
	out, res := Parse[ClassifyOutput](text, Options{
		CoerceField:   "classification",
		CoerceValues:  []string{"easy", "medium", "hard"},
		CoerceDefault: "medium",
	})
	if !res.Success {
		t.Fatalf("parse failed: %s", res.Err)
	}
	if out.Classification != "easy" {
		t.Errorf("classification = %q, want coerced easy", out.Classification)
	}
}

func TestParse_NoJSON(t *testing.T) {
	_, res := Parse[ReviewOutput]("I cannot answer that.", Options{})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Method != MethodNone || res.Err != "No JSON found in response" {
		t.Errorf("result = %+v", res)
	}
}

func TestParse_NonObject(t *testing.T) {
	_, res := Parse[ReviewOutput](`["just", "a", "list"]`, Options{})
	if res.Success || !strings.Contains(res.Err, "Expected JSON object") {
		t.Errorf("result = %+v", res)
	}
}

// Rendering a typed output and parsing it back must yield the same value.
func TestParse_RoundTrip(t *testing.T) {
	want := CreateTodosOutput{Todos: []TodoOutput{
		{ID: 1, Title: "Research", Description: "gather sources"},
		{ID: 2, Title: "Write"},
	}}
	b, err := json.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	got, res := Parse[CreateTodosOutput](string(b), Options{ListField: "todos"})
	if !res.Success {
		t.Fatalf("parse failed: %s", res.Err)
	}
	if len(got.Todos) != 2 || got.Todos[0] != want.Todos[0] || got.Todos[1] != want.Todos[1] {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestCoerce(t *testing.T) {
	allowed := []string{"approved", "rejected"}
	tests := []struct {
		raw  string
		def  string
		want string
	}{
		{"approved", "", "approved"},
		{"  APPROVED ", "", "approved"},
		{"the work is rejected, see feedback", "", "rejected"},
		{"no verdict at all", "rejected", "rejected"},
		{"no verdict at all", "", "approved"}, // first allowed value
	}
	for _, tt := range tests {
		if got := Coerce(tt.raw, allowed, tt.def); got != tt.want {
			t.Errorf("Coerce(%q, def=%q) = %q, want %q", tt.raw, tt.def, got, tt.want)
		}
	}
	if got := Coerce("anything", nil, ""); got != "anything" {
		t.Errorf("no allowed values must pass through, got %q", got)
	}
}

func TestSchema_Instruction(t *testing.T) {
	out := ClassifySchema.Instruction("Categories: easy, medium, hard")
	if !strings.Contains(out, ClassifySchema.JSON) {
		t.Error("instruction must embed the schema JSON")
	}
	if !strings.Contains(out, "Categories: easy, medium, hard") {
		t.Error("instruction must append the extra block")
	}
}

func TestSchema_CorrectionPrompt_CapsRaw(t *testing.T) {
	raw := strings.Repeat("x", correctionRawLimit+500)
	out := ReviewSchema.CorrectionPrompt(raw, "unexpected end of input")
	if strings.Contains(out, raw) {
		t.Error("raw response must be truncated")
	}
	if !strings.Contains(out, raw[:correctionRawLimit]) {
		t.Error("truncated raw must still be present")
	}
	if !strings.Contains(out, "unexpected end of input") {
		t.Error("error message must be present")
	}
}
