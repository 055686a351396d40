package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pandora-run/pandora/internal/backoff"
)

// OpenAIProvider implements Provider against OpenAI's chat completion API;
// used as the fallback_chain entry behind AnthropicProvider. Single-shot
// calls only, which is all the phases need.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
	maxRetries   int
	retryPolicy  backoff.BackoffPolicy
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
}

// NewOpenAIProvider constructs a provider bound to the given API key.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.DefaultModel
	if model == "" {
		model = openai.GPT4o
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: model,
		maxRetries:   maxRetries,
		retryPolicy:  backoff.DefaultPolicy(),
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Models() []Model {
	return []Model{
		{ID: openai.GPT4o, Name: "GPT-4o", ContextSize: 128000},
		{ID: openai.GPT4oMini, Name: "GPT-4o mini", ContextSize: 128000},
	}
}

func (p *OpenAIProvider) model(req *CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *OpenAIProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	chunks := make(chan *CompletionChunk)

	go func() {
		defer close(chunks)

		messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
		if req.System != "" {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: req.System,
			})
		}
		for _, m := range req.Messages {
			role := openai.ChatMessageRoleUser
			if m.Role == "assistant" {
				role = openai.ChatMessageRoleAssistant
			}
			messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
		}

		creq := openai.ChatCompletionRequest{
			Model:       p.model(req),
			Messages:    messages,
			Temperature: float32(req.Temperature),
		}
		if req.MaxTokens > 0 {
			creq.MaxTokens = req.MaxTokens
		}

		result, err := backoff.RetryWithBackoff(ctx, p.retryPolicy, p.maxRetries, func(int) (openai.ChatCompletionResponse, error) {
			return p.client.CreateChatCompletion(ctx, creq)
		})
		if err != nil {
			chunks <- &CompletionChunk{Error: fmt.Errorf("openai: %w", err)}
			return
		}
		resp := result.Value

		var text string
		if len(resp.Choices) > 0 {
			text = resp.Choices[0].Message.Content
		}

		chunks <- &CompletionChunk{
			Text:         text,
			Done:         true,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}()

	return chunks, nil
}
