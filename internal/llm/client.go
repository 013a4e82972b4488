// Package llm provides the streaming text-generation providers used by the
// shopping consultant.
package llm

import (
	"context"
	"fmt"
)

// StreamCallback is called for each text fragment during streaming, in
// arrival order. Returning an error aborts the stream.
type StreamCallback func(token string, index int) error

// CompletionRequest represents a streaming completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents the outcome of a finished stream.
type CompletionResponse struct {
	Content    string
	Model      string
	Chunks     int
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// CompleteStream sends a streaming completion request.
	CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderOffline   Provider = "offline"
)

// NewClient creates a new LLM client based on provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	case ProviderOffline:
		return NewOfflineClient(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

// SupportsModel reports whether c lists model.
func SupportsModel(c Client, model string) bool {
	for _, m := range c.Models() {
		if m == model {
			return true
		}
	}
	return false
}
