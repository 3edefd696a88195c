// Package openai provides a model.Adapter backed by OpenAI's Chat
// Completions API.
package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/agentflow-go/flow/model"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

// Adapter implements model.Adapter using the official OpenAI Go SDK.
//
// The underlying client is safe for concurrent use; the adapter itself holds
// no mutable state after construction.
type Adapter struct {
	client    *openai.Client
	modelName string
	timeout   time.Duration
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout sets the default per-invoke timeout. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// New creates an OpenAI adapter.
//
// apiKey must be non-empty. modelName selects the model for calls that do
// not override it (e.g. "gpt-4o", "gpt-4-turbo"); empty uses DefaultModel.
func New(apiKey, modelName string, opts ...Option) (*Adapter, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
	)

	a := &Adapter{
		client:    &client,
		modelName: modelName,
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

	start := time.Now()

	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelName),
		Messages: convertMessages(messages, opts.SystemPrompt),
	})
	if err != nil {
		return model.Result{}, mapError(err)
	}

	if len(completion.Choices) == 0 {
		return model.Result{}, errors.New("no response from OpenAI API")
	}
	choice := completion.Choices[0]

	return model.Result{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		DurationMS: time.Since(start).Milliseconds(),
		Model:      modelName,
	}, nil
}

// Cleanup implements model.Adapter. The HTTP client holds no resources that
// need explicit release.
func (a *Adapter) Cleanup(context.Context) error { return nil }

// Initialized implements model.Adapter.
func (a *Adapter) Initialized() bool { return a.client != nil }

// Metadata implements model.Adapter.
func (a *Adapter) Metadata() model.Metadata {
	return model.Metadata{ModelName: a.modelName}
}

// convertMessages maps chat messages to the SDK's union params. A non-empty
// systemPrompt is prepended as a system message.
func convertMessages(messages []model.Message, systemPrompt string) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(systemPrompt),
				},
			},
		})
	}
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			})
		case model.RoleAssistant:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			})
		default:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			})
		}
	}
	return out
}

// mapError normalizes OpenAI API failures. Context errors pass through so
// the retry layer can distinguish cancellation from transient faults.
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
		strings.Contains(lowerErr, "429"),
		strings.Contains(lowerErr, "too many requests"):
		return errors.New("OpenAI API rate limit exceeded: " + err.Error())
	case strings.Contains(lowerErr, "invalid api key"),
		strings.Contains(lowerErr, "incorrect api key"),
		strings.Contains(lowerErr, "401"),
		strings.Contains(lowerErr, "unauthorized"):
		return errors.New("OpenAI API key is invalid or expired")
	case strings.Contains(lowerErr, "quota"),
		strings.Contains(lowerErr, "billing"):
		return errors.New("OpenAI API quota exceeded: " + err.Error())
	}
	return err
}
