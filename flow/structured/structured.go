// Package structured parses typed JSON outputs out of raw LLM text.
//
// Models are prompted with a JSON schema instruction, but their output still
// arrives as free text: bare JSON, JSON inside a markdown fence, or JSON
// buried in prose. Extraction runs layered strategies in reliability order
// (whole-text parse, code fence, bracket scan) and validation decodes into a
// caller-supplied struct with optional value coercion for enum fields.
package structured

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Extraction method names reported in Result.Method.
const (
	MethodDirect    = "direct"
	MethodCodeBlock = "code_block"
	MethodBracket   = "bracket_match"
	MethodNone      = "none"
)

// Result describes one parse attempt.
type Result struct {
	Success bool
	Method  string
	Raw     string
	Err     string
}

// Extract pulls a JSON value out of LLM text using layered strategies and
// reports which one succeeded.
func Extract(text string) (any, string) {
	if v, ok := tryDirect(text); ok {
		return v, MethodDirect
	}
	if v, ok := tryCodeBlock(text); ok {
		return v, MethodCodeBlock
	}
	if v, ok := tryBracketMatch(text); ok {
		return v, MethodBracket
	}
	return nil, MethodNone
}

func tryDirect(text string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &v); err != nil {
		return nil, false
	}
	return v, v != nil
}

// tryCodeBlock extracts the body of the first ```json fence, then the first
// anonymous ``` fence.
func tryCodeBlock(text string) (any, bool) {
	for _, marker := range []string{"```json", "```"} {
		rest := text
		for {
			start := strings.Index(rest, marker)
			if start < 0 {
				break
			}
			body := rest[start+len(marker):]
			end := strings.Index(body, "```")
			if end < 0 {
				break
			}
			if v, ok := tryDirect(body[:end]); ok {
				return v, true
			}
			rest = body[end+3:]
		}
	}
	return nil, false
}

// tryBracketMatch finds the first well-formed JSON object, then array, by
// bracket-depth tracking with string and escape awareness. No regex: model
// output regularly contains braces inside strings that a pattern match
// would trip over.
func tryBracketMatch(text string) (any, bool) {
	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		openCh, closeCh := pair[0], pair[1]
		depth := 0
		start := -1
		inString := false
		escapeNext := false

		for i := 0; i < len(text); i++ {
			c := text[i]
			if escapeNext {
				escapeNext = false
				continue
			}
			if c == '\\' {
				if inString {
					escapeNext = true
				}
				continue
			}
			if c == '"' {
				inString = !inString
				continue
			}
			if inString {
				continue
			}
			switch c {
			case openCh:
				if depth == 0 {
					start = i
				}
				depth++
			case closeCh:
				depth--
				if depth == 0 && start >= 0 {
					if v, ok := tryDirect(text[start : i+1]); ok {
						return v, true
					}
					start = -1
				}
				if depth < 0 {
					depth = 0
				}
			}
		}
	}
	return nil, false
}

// Options tunes Parse behavior for one schema.
type Options struct {
	// ListField wraps a bare JSON array as {ListField: [...]} so schemas
	// with a single list field accept models that skip the wrapper object.
	ListField string

	// CoerceField restricts a string field to CoerceValues, matching
	// exactly, then case-insensitively, then by substring, then falling
	// back to CoerceDefault (or the first allowed value).
	CoerceField   string
	CoerceValues  []string
	CoerceDefault string
}

// Parse extracts JSON from text and decodes it into T.
func Parse[T any](text string, opts Options) (T, Result) {
	var out T
	extracted, method := Extract(text)
	if extracted == nil {
		return out, Result{Method: MethodNone, Raw: text, Err: "No JSON found in response"}
	}

	if list, ok := extracted.([]any); ok && opts.ListField != "" {
		extracted = map[string]any{opts.ListField: list}
	}

	obj, ok := extracted.(map[string]any)
	if !ok {
		return out, Result{Method: method, Raw: text,
			Err: fmt.Sprintf("Expected JSON object, got %T", extracted)}
	}

	if opts.CoerceField != "" && len(opts.CoerceValues) > 0 {
		if raw, ok := obj[opts.CoerceField].(string); ok {
			obj[opts.CoerceField] = Coerce(raw, opts.CoerceValues, opts.CoerceDefault)
		}
	}

	b, err := json.Marshal(obj)
	if err != nil {
		return out, Result{Method: method, Raw: text, Err: err.Error()}
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, Result{Method: method, Raw: text,
			Err: "Validation error: " + err.Error()}
	}
	return out, Result{Success: true, Method: method, Raw: text}
}

// Coerce maps a raw string onto one of the allowed values: exact match,
// then case-insensitive, then substring, then the default (or the first
// allowed value when no default is given).
func Coerce(raw string, allowed []string, def string) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for _, v := range allowed {
		if strings.ToLower(v) == normalized {
			return v
		}
	}
	for _, v := range allowed {
		if strings.Contains(normalized, strings.ToLower(v)) {
			return v
		}
	}
	if def != "" {
		return def
	}
	if len(allowed) > 0 {
		return allowed[0]
	}
	return raw
}
