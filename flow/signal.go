package flow

import "strings"

// Completion signal grammar: a model declares run status by emitting one of
// these tags in its output. [TASK_COMPLETE] has no payload; the bracketed
// forms carry a detail string up to the closing bracket.
const (
	tagComplete = "[TASK_COMPLETE]"
	tagContinue = "[CONTINUE:"
	tagBlocked  = "[BLOCKED:"
	tagError    = "[ERROR:"
)

// DetectSignal scans text for a completion signal tag. When multiple tags
// appear, the first by source order wins. Returns SignalNone and an empty
// detail when no tag is present.
func DetectSignal(text string) (Signal, string) {
	type match struct {
		idx    int
		signal Signal
		tag    string
		detail bool
	}
	candidates := []match{
		{strings.Index(text, tagComplete), SignalComplete, tagComplete, false},
		{strings.Index(text, tagContinue), SignalContinue, tagContinue, true},
		{strings.Index(text, tagBlocked), SignalBlocked, tagBlocked, true},
		{strings.Index(text, tagError), SignalError, tagError, true},
	}

	best := match{idx: -1}
	for _, c := range candidates {
		if c.idx < 0 {
			continue
		}
		if best.idx < 0 || c.idx < best.idx {
			best = c
		}
	}
	if best.idx < 0 {
		return SignalNone, ""
	}
	if !best.detail {
		return best.signal, ""
	}

	rest := text[best.idx+len(best.tag):]
	end := strings.Index(rest, "]")
	if end < 0 {
		// Unterminated tag: treat everything to end of line as the detail.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[:nl]
		}
		return best.signal, strings.TrimSpace(rest)
	}
	return best.signal, strings.TrimSpace(rest[:end])
}
