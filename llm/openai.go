package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"go.aimuz.me/dawn/internal/types"
)

// ErrNoChoices is returned when the API answers without a completion.
var ErrNoChoices = errors.New("no choices")

// openaiCompleter implements Completer for OpenAI and compatible APIs.
type openaiCompleter struct {
	cfg    completerConfig
	client openai.Client
}

func newOpenAICompleter(cfg completerConfig) *openaiCompleter {
	return &openaiCompleter{
		cfg: cfg,
		client: openai.NewClient(
			option.WithAPIKey(cfg.apiKey),
			option.WithBaseURL(cfg.baseURL),
			option.WithHTTPClient(cfg.http),
			option.WithMaxRetries(1),
		),
	}
}

func (c *openaiCompleter) Complete(ctx context.Context, messages []Message) (string, types.Usage, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.cfg.model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(c.cfg.temperature),
	}
	if c.cfg.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.cfg.maxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", types.Usage{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", types.Usage{}, ErrNoChoices
	}

	usage := types.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return resp.Choices[0].Message.Content, usage, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			if m.ImageURL == "" {
				out = append(out, openai.UserMessage(m.Content))
				continue
			}
			out = append(out, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: m.ImageURL}),
				openai.TextContentPart(m.Content),
			}))
		}
	}
	return out
}
