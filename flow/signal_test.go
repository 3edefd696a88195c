package flow

import "testing"

func TestDetectSignal(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantSignal Signal
		wantDetail string
	}{
		{"none", "just a plain answer", SignalNone, ""},
		{"complete", "done. [TASK_COMPLETE]", SignalComplete, ""},
		{"continue", "[CONTINUE: need more context]", SignalContinue, "need more context"},
		{"blocked", "[BLOCKED: waiting on credentials]", SignalBlocked, "waiting on credentials"},
		{"error", "[ERROR: compile failed]", SignalError, "compile failed"},
		{"earliest wins", "[BLOCKED: x] then [TASK_COMPLETE]", SignalBlocked, "x"},
		{"complete before blocked", "[TASK_COMPLETE] [BLOCKED: y]", SignalComplete, ""},
		{"unterminated to line end", "[CONTINUE: still working\nmore text", SignalContinue, "still working"},
		{"unterminated at end", "[ERROR: oops", SignalError, "oops"},
		{"empty text", "", SignalNone, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal, detail := DetectSignal(tt.text)
			if signal != tt.wantSignal {
				t.Errorf("signal = %q, want %q", signal, tt.wantSignal)
			}
			if detail != tt.wantDetail {
				t.Errorf("detail = %q, want %q", detail, tt.wantDetail)
			}
		})
	}
}

func TestDetectSignal_NoneIffNoTag(t *testing.T) {
	// SignalNone exactly when no tag substring is present.
	withTags := []string{"[TASK_COMPLETE]", "a [CONTINUE: b]", "[BLOCKED: c]", "[ERROR: d]"}
	for _, text := range withTags {
		if s, _ := DetectSignal(text); s == SignalNone {
			t.Errorf("%q: expected a signal, got none", text)
		}
	}
	withoutTags := []string{"", "TASK_COMPLETE", "[CONTINUE]", "[blocked: x]"}
	for _, text := range withoutTags {
		if s, _ := DetectSignal(text); s != SignalNone {
			t.Errorf("%q: expected none, got %q", text, s)
		}
	}
}
