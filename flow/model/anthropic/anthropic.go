// Package anthropic provides a model.Adapter backed by Anthropic's Messages
// API.
package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/agentflow-go/flow/model"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-20250514"

// DefaultMaxTokens bounds the response length of a single call.
const DefaultMaxTokens = 4096

// Adapter implements model.Adapter using the official anthropic-sdk-go
// client. Safe for concurrent use after creation.
type Adapter struct {
	client    *anthropic.Client
	modelName string
	maxTokens int64
	timeout   time.Duration
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithMaxTokens overrides the response token cap.
func WithMaxTokens(n int64) Option {
	return func(a *Adapter) { a.maxTokens = n }
}

// WithTimeout sets the default per-invoke timeout. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// New creates an Anthropic adapter.
//
// apiKey must be non-empty. modelName selects the model for calls that do
// not override it; empty uses DefaultModel.
func New(apiKey, modelName string, opts ...Option) (*Adapter, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	a := &Adapter{
		client:    &client,
		modelName: modelName,
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Invoke implements model.Adapter.
func (a *Adapter) Invoke(ctx context.Context, messages []model.Message, opts model.InvokeOptions) (model.Result, error) {
	if err := ctx.Err(); err != nil {
		return model.Result{}, err
	}

	timeout := a.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	modelName := a.modelName
	if opts.Model != "" {
		modelName = opts.Model
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelName),
		MaxTokens: a.maxTokens,
		Messages:  convertMessages(messages),
	}
	if opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: opts.SystemPrompt},
		}
	}

	start := time.Now()

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return model.Result{}, mapError(err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return model.Result{
		Content:    sb.String(),
		StopReason: string(message.StopReason),
		DurationMS: time.Since(start).Milliseconds(),
		Model:      modelName,
	}, nil
}

// Cleanup implements model.Adapter.
func (a *Adapter) Cleanup(context.Context) error { return nil }

// Initialized implements model.Adapter.
func (a *Adapter) Initialized() bool { return a.client != nil }

// Metadata implements model.Adapter.
func (a *Adapter) Metadata() model.Metadata {
	return model.Metadata{ModelName: a.modelName}
}

// convertMessages maps chat messages to Anthropic message params. System
// messages in the slice are folded into user turns because the Messages API
// carries the system prompt separately.
func convertMessages(messages []model.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

// mapError normalizes Anthropic API failures, passing context errors
// through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	lowerErr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErr, "rate limit"),
		strings.Contains(lowerErr, "429"):
		return errors.New("Anthropic API rate limit exceeded: " + err.Error())
	case strings.Contains(lowerErr, "401"),
		strings.Contains(lowerErr, "403"),
		strings.Contains(lowerErr, "authentication"),
		strings.Contains(lowerErr, "invalid api key"):
		return errors.New("Anthropic API key is invalid or expired")
	case strings.Contains(lowerErr, "overloaded"),
		strings.Contains(lowerErr, "529"):
		return errors.New("Anthropic API overloaded: " + err.Error())
	}
	return err
}
