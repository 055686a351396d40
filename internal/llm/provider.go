// Package llm defines the provider-agnostic completion contract every Phase
// Runner drives: a single request/response shape, a streaming-chunk
// channel, and a Manager that bounds concurrency and enforces the call
// timeout on top of whichever provider is configured.
//
// There is no tool-calling or vision plumbing here: the Tool Router
// dispatches tool calls directly rather than through provider-native
// function calling, so a provider only ever produces text.
package llm

import "context"

// Provider is the interface every LLM backend implements.
type Provider interface {
	// Complete sends a prompt and returns a streaming response channel; the
	// channel is closed once the final chunk (Done or Error) is sent.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name identifies the provider for logging, metrics, and fallback-chain
	// selection (e.g. "anthropic", "openai").
	Name() string

	// Models lists the provider's known models.
	Models() []Model
}

// CompletionRequest is one phase's LLM call.
type CompletionRequest struct {
	Model       string               `json:"model"`
	System      string               `json:"system,omitempty"`
	Messages    []CompletionMessage  `json:"messages"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
	Temperature float64              `json:"temperature"`
}

// CompletionMessage is one turn of the conversation sent to the provider.
type CompletionMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// CompletionChunk is one unit of a streaming response.
type CompletionChunk struct {
	Text         string `json:"text,omitempty"`
	Done         bool   `json:"done,omitempty"`
	Error        error  `json:"-"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// Model describes one model a provider exposes.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContextSize int    `json:"context_size"`
}

// Collect drains a completion channel into a single string, returning the
// first error encountered (transport errors are distinguished from format
// errors only by the caller, which parses Text itself; Collect is agnostic).
func Collect(chunks <-chan *CompletionChunk) (text string, inputTokens, outputTokens int, err error) {
	for chunk := range chunks {
		if chunk.Error != nil {
			return text, inputTokens, outputTokens, chunk.Error
		}
		text += chunk.Text
		if chunk.InputTokens > 0 {
			inputTokens = chunk.InputTokens
		}
		if chunk.OutputTokens > 0 {
			outputTokens = chunk.OutputTokens
		}
		if chunk.Done {
			break
		}
	}
	return text, inputTokens, outputTokens, err
}
