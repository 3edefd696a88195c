package structured

import "fmt"

// Typed outputs for the built-in structured nodes.

// ClassifyOutput is the classify node's structured verdict.
type ClassifyOutput struct {
	Classification string `json:"classification"`
	Confidence     string `json:"confidence,omitempty"`
	Reasoning      string `json:"reasoning,omitempty"`
}

// ReviewOutput is the review node's structured verdict.
type ReviewOutput struct {
	Verdict  string   `json:"verdict"`
	Feedback string   `json:"feedback"`
	Issues   []string `json:"issues,omitempty"`
}

// TodoOutput is one plan item in a CreateTodosOutput.
type TodoOutput struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// CreateTodosOutput is the create_todos node's structured plan.
type CreateTodosOutput struct {
	Todos []TodoOutput `json:"todos"`
}

// FinalReviewOutput is the final_review node's structured assessment.
type FinalReviewOutput struct {
	OverallQuality   string   `json:"overall_quality"`
	CompletedSummary string   `json:"completed_summary"`
	IssuesFound      []string `json:"issues_found,omitempty"`
	Recommendations  string   `json:"recommendations,omitempty"`
}

// Schema pairs a JSON Schema document (shown to the model) with parsing
// hints for the matching Go type.
type Schema struct {
	Name string
	JSON string

	// ListField names the schema's single list field, enabling bare-array
	// wrapping. Empty when not applicable.
	ListField string
}

var (
	// ClassifySchema describes ClassifyOutput. The classification enum is
	// injected per instance since categories are configurable.
	ClassifySchema = Schema{
		Name: "ClassifyOutput",
		JSON: `{
  "type": "object",
  "properties": {
    "classification": {"type": "string", "description": "The classification category"},
    "confidence": {"type": "string", "enum": ["low", "medium", "high"]},
    "reasoning": {"type": "string", "description": "Brief reasoning for the classification"}
  },
  "required": ["classification"]
}`,
	}

	// ReviewSchema describes ReviewOutput.
	ReviewSchema = Schema{
		Name: "ReviewOutput",
		JSON: `{
  "type": "object",
  "properties": {
    "verdict": {"type": "string", "description": "The review verdict"},
    "feedback": {"type": "string", "description": "Detailed feedback explaining the verdict"},
    "issues": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["verdict", "feedback"]
}`,
	}

	// CreateTodosSchema describes CreateTodosOutput.
	CreateTodosSchema = Schema{
		Name:      "CreateTodosOutput",
		ListField: "todos",
		JSON: `{
  "type": "object",
  "properties": {
    "todos": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "integer"},
          "title": {"type": "string"},
          "description": {"type": "string"}
        },
        "required": ["id", "title"]
      }
    }
  },
  "required": ["todos"]
}`,
	}

	// FinalReviewSchema describes FinalReviewOutput.
	FinalReviewSchema = Schema{
		Name: "FinalReviewOutput",
		JSON: `{
  "type": "object",
  "properties": {
    "overall_quality": {"type": "string", "enum": ["excellent", "good", "needs_improvement", "poor"]},
    "completed_summary": {"type": "string", "description": "Concise summary of what was accomplished"},
    "issues_found": {"type": "array", "items": {"type": "string"}},
    "recommendations": {"type": "string", "description": "Actionable suggestions for the final answer"}
  },
  "required": ["completed_summary"]
}`,
	}
)

// Instruction builds the response-format block appended to a node's prompt.
func (s Schema) Instruction(extra string) string {
	out := fmt.Sprintf(`═══ RESPONSE FORMAT (MANDATORY) ═══
You MUST respond with a single JSON object matching this schema.
Do NOT include any text before or after the JSON.
Do NOT wrap it in markdown code blocks.

Schema:
`+"```json\n%s\n```", s.JSON)
	if extra != "" {
		out += "\n\n" + extra
	}
	return out
}

// correctionRawLimit caps how much of the failed response is echoed back.
const correctionRawLimit = 1000

// CorrectionPrompt builds the follow-up prompt sent after a parse or
// validation failure, asking the model to fix its output.
func (s Schema) CorrectionPrompt(raw, errMsg string) string {
	if len(raw) > correctionRawLimit {
		raw = raw[:correctionRawLimit]
	}
	return fmt.Sprintf(`Your previous response could not be parsed as valid JSON.

Error: %s

Your response was:
%s

Please respond ONLY with a valid JSON object matching this schema:
`+"```json\n%s\n```\n"+`Do NOT include any other text.`, errMsg, raw, s.JSON)
}
