// Package llm provides chat-completion clients and the text post-processors
// built on them.
package llm

import (
	"context"
	"net/http"
	"time"

	"go.aimuz.me/dawn/internal/types"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	defaultTimeout = 60 * time.Second
)

// Message represents a chat message. ImageURL, when set on a user message,
// is sent as an image part ahead of the text.
type Message struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Options configures LLM completion behavior.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Completer performs chat completions.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, types.Usage, error)
}

// completerConfig holds all parameters needed by completers.
type completerConfig struct {
	http        *http.Client
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
}

// NewCompleter creates a Completer for an OpenAI-compatible API.
// An empty baseURL selects Groq.
func NewCompleter(apiKey, baseURL, model string, opts Options) Completer {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return newOpenAICompleter(completerConfig{
		http:        &http.Client{Timeout: defaultTimeout},
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	})
}
