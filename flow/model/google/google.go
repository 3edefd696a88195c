// Package google provides a model.Adapter backed by Google's Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/agentflow-go/flow/model"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Adapter implements model.Adapter for Google's Gemini API.
//
// The genai client is created per call and closed afterward: the SDK client
// is cheap to construct and per-call construction keeps the adapter free of
// connection lifecycle state.
type Adapter struct {
	apiKey    string
	modelName string
	timeout   time.Duration
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout sets the default per-invoke timeout. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// New creates a Gemini adapter. apiKey must be non-empty; an empty modelName
// uses DefaultModel.
func New(apiKey, modelName string, opts ...Option) (*Adapter, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	a := &Adapter{apiKey: apiKey, modelName: modelName}
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

	client, err := genai.NewClient(ctx, option.WithAPIKey(a.apiKey))
	if err != nil {
		return model.Result{}, fmt.Errorf("failed to create Google client: %w", err)
	}
	defer func() { _ = client.Close() }()

	genModel := client.GenerativeModel(modelName)
	if opts.SystemPrompt != "" {
		genModel.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(opts.SystemPrompt)},
		}
	}

	start := time.Now()

	resp, err := genModel.GenerateContent(ctx, convertMessages(messages)...)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return model.Result{}, err
		}
		return model.Result{}, fmt.Errorf("google API error: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return model.Result{}, errors.New("no response from Google API")
	}
	candidate := resp.Candidates[0]

	var sb strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}

	return model.Result{
		Content:    sb.String(),
		StopReason: candidate.FinishReason.String(),
		DurationMS: time.Since(start).Milliseconds(),
		Model:      modelName,
	}, nil
}

// Cleanup implements model.Adapter.
func (a *Adapter) Cleanup(context.Context) error { return nil }

// Initialized implements model.Adapter.
func (a *Adapter) Initialized() bool { return a.apiKey != "" }

// Metadata implements model.Adapter.
func (a *Adapter) Metadata() model.Metadata {
	return model.Metadata{ModelName: a.modelName}
}

// convertMessages flattens the conversation into text parts. Gemini sets the
// system prompt via SystemInstruction, so system turns are skipped here.
func convertMessages(messages []model.Message) []genai.Part {
	var parts []genai.Part
	for _, msg := range messages {
		if msg.Role == model.RoleSystem || msg.Content == "" {
			continue
		}
		parts = append(parts, genai.Text(msg.Content))
	}
	return parts
}
