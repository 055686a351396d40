package llm

import (
	"context"
	"fmt"
	"math"

	"google.golang.org/genai"

	"github.com/pandora-run/pandora/internal/backoff"
)

// GoogleProvider implements Provider against the Gemini API. Like the other
// providers it issues single-shot calls; Gemini's streaming surface is not
// needed for phase completions.
type GoogleProvider struct {
	client       *genai.Client
	defaultModel string
	maxRetries   int
	retryPolicy  backoff.BackoffPolicy
}

// GoogleConfig configures a GoogleProvider.
type GoogleConfig struct {
	APIKey       string
	DefaultModel string
	MaxRetries   int
}

// NewGoogleProvider constructs a provider bound to the given API key.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google: api key is required")
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "gemini-2.0-flash"
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}

	return &GoogleProvider{
		client:       client,
		defaultModel: model,
		maxRetries:   maxRetries,
		retryPolicy:  backoff.DefaultPolicy(),
	}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Models() []Model {
	return []Model{
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", ContextSize: 1000000},
		{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", ContextSize: 2000000},
	}
}

func (p *GoogleProvider) model(req *CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *GoogleProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	chunks := make(chan *CompletionChunk)

	go func() {
		defer close(chunks)

		contents := make([]*genai.Content, 0, len(req.Messages))
		for _, m := range req.Messages {
			role := genai.RoleUser
			if m.Role == "assistant" {
				role = genai.RoleModel
			}
			contents = append(contents, &genai.Content{
				Role:  role,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}

		temperature := float32(req.Temperature)
		config := &genai.GenerateContentConfig{
			Temperature: &temperature,
		}
		if req.System != "" {
			config.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: req.System}},
			}
		}
		if req.MaxTokens > 0 && req.MaxTokens <= math.MaxInt32 {
			config.MaxOutputTokens = int32(req.MaxTokens)
		}

		model := p.model(req)
		result, err := backoff.RetryWithBackoff(ctx, p.retryPolicy, p.maxRetries, func(int) (*genai.GenerateContentResponse, error) {
			return p.client.Models.GenerateContent(ctx, model, contents, config)
		})
		if err != nil {
			chunks <- &CompletionChunk{Error: fmt.Errorf("google: %w", err)}
			return
		}
		resp := result.Value

		var text string
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				text += part.Text
			}
			break
		}

		chunk := &CompletionChunk{Text: text, Done: true}
		if resp.UsageMetadata != nil {
			chunk.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
			chunk.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		chunks <- chunk
	}()

	return chunks, nil
}
