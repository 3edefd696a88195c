package flow

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/dshills/agentflow-go/flow/emit"
	"github.com/dshills/agentflow-go/flow/memory"
	"github.com/dshills/agentflow-go/flow/model"
)

// DefaultMaxRetries bounds transient-failure retries per model in
// ResilientInvoke.
const DefaultMaxRetries = 2

// Backoff bounds for retry delays between model invocation attempts.
const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 8 * time.Second
)

// ExecContext carries the per-session capabilities handed to every node
// execution: the model adapter, the memory manager, the session logger, the
// context guard, and the resilience settings.
//
// One ExecContext is shared by all nodes of a compiled graph; it must not be
// mutated after compilation.
type ExecContext struct {
	// SessionID identifies the owning session in events and logs.
	SessionID string

	// Model is the session's model adapter. Required for model nodes.
	Model model.Adapter

	// Memory is the session's memory manager; may be nil.
	Memory memory.Manager

	// Logger is the per-session JSONL logger; may be nil.
	Logger *emit.SessionLogger

	// Guard estimates context-window usage; may be nil, in which case guard
	// nodes create one with the default limit.
	Guard *ContextGuard

	// MaxRetries bounds transient-failure retries per model. Zero means
	// DefaultMaxRetries; negative disables retries.
	MaxRetries int

	// ModelName is the primary model for this session.
	ModelName string

	// FallbackModels is the demotion ladder tried in order after the primary
	// model's retries are exhausted.
	FallbackModels []string

	// InvokeTimeout bounds each individual model call. Zero leaves the
	// adapter default in place.
	InvokeTimeout time.Duration

	// Metrics records model invocation outcomes when set.
	Metrics *Metrics
}

func (ec *ExecContext) maxRetries() int {
	if ec.MaxRetries == 0 {
		return DefaultMaxRetries
	}
	if ec.MaxRetries < 0 {
		return 0
	}
	return ec.MaxRetries
}

func (ec *ExecContext) log(level, msg string, data map[string]any) {
	if ec.Logger != nil {
		ec.Logger.Log(level, msg, data)
	}
}

// ResilientInvoke calls the model with retry and fallback-ladder demotion.
//
// For each model in [primary, fallbacks...]: attempt the call, retrying
// transient failures up to MaxRetries with exponential backoff. On success
// after a demotion, the returned Delta records the fallback so the graph
// state carries the demotion trace. Context cancellation aborts immediately
// without demotion.
func (ec *ExecContext) ResilientInvoke(ctx context.Context, messages []model.Message, opts model.InvokeOptions) (model.Result, Delta, error) {
	if ec.Model == nil {
		return model.Result{}, Delta{}, &FlowError{Message: "no model adapter configured", Code: CodeModel}
	}

	primary := opts.Model
	if primary == "" {
		primary = ec.ModelName
	}
	ladder := append([]string{primary}, ec.FallbackModels...)
	if opts.Timeout == 0 {
		opts.Timeout = ec.InvokeTimeout
	}

	retries := ec.maxRetries()
	attempts := 0
	var lastErr error

	for mi, name := range ladder {
		for attempt := 0; attempt <= retries; attempt++ {
			if err := ctx.Err(); err != nil {
				return model.Result{}, Delta{}, err
			}
			attempts++

			callOpts := opts
			callOpts.Model = name
			res, err := ec.Model.Invoke(ctx, messages, callOpts)
			if err == nil {
				if ec.Metrics != nil {
					ec.Metrics.RecordModelInvocation(name, "ok")
				}
				var d Delta
				if mi > 0 {
					d.Fallback = &FallbackRecord{
						OriginalModel: ladder[0],
						CurrentModel:  name,
						Attempts:      attempts,
					}
					if ec.Metrics != nil {
						ec.Metrics.RecordModelFallback(ladder[0], name)
					}
					ec.log("warning", "model demoted to fallback", map[string]any{
						"from": ladder[0], "to": name, "attempts": attempts,
					})
				}
				return res, d, nil
			}

			lastErr = err
			if ec.Metrics != nil {
				ec.Metrics.RecordModelInvocation(name, "error")
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return model.Result{}, Delta{}, err
			}
			ec.log("warning", "model invocation failed", map[string]any{
				"model": name, "attempt": attempt + 1, "error": err.Error(),
			})
			if attempt < retries {
				if err := sleepCtx(ctx, computeBackoff(attempt, retryBaseDelay, retryMaxDelay)); err != nil {
					return model.Result{}, Delta{}, err
				}
			}
		}
	}

	return model.Result{}, Delta{}, &FlowError{
		Message: "model invocation failed after retries and fallbacks: " + lastErr.Error(),
		Code:    CodeModel,
	}
}

// computeBackoff returns min(base * 2^attempt, maxDelay) plus jitter in
// [0, base) to avoid synchronized retries.
func computeBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	delay := base * (1 << attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay + time.Duration(rand.Int63n(int64(base)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
