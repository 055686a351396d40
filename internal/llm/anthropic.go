package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pandora-run/pandora/internal/backoff"
)

// AnthropicProvider implements Provider against Anthropic's Messages API.
// Transport-level retries happen here, before any chunk is delivered; a
// stream that has started is never silently restarted.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	maxRetries   int
	retryPolicy  backoff.BackoffPolicy
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
}

// NewAnthropicProvider constructs a provider bound to the given API key.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: model,
		maxRetries:   maxRetries,
		retryPolicy:  backoff.DefaultPolicy(),
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Models() []Model {
	return []Model{
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextSize: 200000},
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000},
		{ID: "claude-haiku-4-20250514", Name: "Claude Haiku 4", ContextSize: 200000},
	}
}

func (p *AnthropicProvider) model(req *CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *AnthropicProvider) maxTokens(req *CompletionRequest) int64 {
	if req.MaxTokens > 0 {
		return int64(req.MaxTokens)
	}
	return 4096
}

// Complete streams a completion. Transport-level failures (connection
// refused, rate limit, 5xx) are retried with backoff before the stream is
// ever handed to the caller; once streaming begins, an error mid-stream is
// surfaced as a chunk and the caller decides whether it was a format/parse
// failure worth a single phase-level retry.
func (p *AnthropicProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	chunks := make(chan *CompletionChunk)

	go func() {
		defer close(chunks)

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(p.model(req)),
			MaxTokens: p.maxTokens(req),
			Messages:  convertMessages(req.Messages),
		}
		if req.System != "" {
			params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
		}
		if req.Temperature > 0 {
			params.Temperature = anthropic.Float(req.Temperature)
		}

		result, err := backoff.RetryWithBackoff(ctx, p.retryPolicy, p.maxRetries, func(int) (*anthropic.Message, error) {
			return p.client.Messages.New(ctx, params)
		})
		if err != nil {
			chunks <- &CompletionChunk{Error: fmt.Errorf("anthropic: %w", err)}
			return
		}
		msg := result.Value

		var text string
		for _, block := range msg.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}

		chunks <- &CompletionChunk{
			Text:         text,
			Done:         true,
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		}
	}()

	return chunks, nil
}

func convertMessages(messages []CompletionMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}
