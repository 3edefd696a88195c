package flow

import "github.com/dshills/agentflow-go/flow/model"

// Default context guard thresholds as usage ratios of the context limit.
const (
	DefaultContextLimit  = 200000
	warnThreshold        = 0.70
	blockThreshold       = 0.85
	overflowThreshold    = 0.95
	charsPerTokenDivisor = 4
)

// ContextGuard estimates conversation token usage against a context limit.
//
// Estimation is a chars/4 heuristic: precise counting would require the
// model's tokenizer, and the guard only needs to be directionally right to
// stop a run before the provider rejects the request.
type ContextGuard struct {
	limit int
}

// NewContextGuard returns a guard for the given context limit. Non-positive
// limits use DefaultContextLimit.
func NewContextGuard(contextLimit int) *ContextGuard {
	if contextLimit <= 0 {
		contextLimit = DefaultContextLimit
	}
	return &ContextGuard{limit: contextLimit}
}

// Limit returns the configured context limit in tokens.
func (g *ContextGuard) Limit() int { return g.limit }

// EstimateTokens estimates the token count of the conversation plus any
// extra text about to be added.
func (g *ContextGuard) EstimateTokens(messages []model.Message, extra string) int {
	chars := len(extra)
	for _, m := range messages {
		chars += len(m.Content) + len(m.Role)
	}
	return chars / charsPerTokenDivisor
}

// Check returns the budget snapshot for the conversation. Status thresholds:
// warn at 70%, block at 85%, overflow at 95% of the limit.
func (g *ContextGuard) Check(messages []model.Message, extra string) ContextBudget {
	tokens := g.EstimateTokens(messages, extra)
	ratio := float64(tokens) / float64(g.limit)
	status := BudgetOK
	switch {
	case ratio >= overflowThreshold:
		status = BudgetOverflow
	case ratio >= blockThreshold:
		status = BudgetBlock
	case ratio >= warnThreshold:
		status = BudgetWarn
	}
	return ContextBudget{
		EstimatedTokens: tokens,
		ContextLimit:    g.limit,
		UsageRatio:      ratio,
		Status:          status,
	}
}

// ShouldBlock reports whether the budget status forbids further model calls.
func ShouldBlock(status BudgetStatus) bool {
	return status == BudgetBlock || status == BudgetOverflow
}
