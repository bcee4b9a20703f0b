package llm

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.aimuz.me/dawn/cache"
	"go.aimuz.me/dawn/internal/types"
)

// DefaultEnhanceModel is the small model used for formatting.
const DefaultEnhanceModel = "llama-3.1-8b-instant"

//go:embed prompts/enhance.txt
var enhancePrompt string

// Enhancer applies spoken formatting commands to a transcript.
// Results are cached when a cache is configured.
type Enhancer struct {
	completer Completer
	model     string
	cache     *cache.Cache
}

// NewEnhancer creates an Enhancer. c may be nil to disable caching.
func NewEnhancer(completer Completer, model string, c *cache.Cache) *Enhancer {
	return &Enhancer{completer: completer, model: model, cache: c}
}

// Enhance returns the formatted text. On failure it returns text unchanged
// together with the error.
func (e *Enhancer) Enhance(ctx context.Context, text string) (string, types.Usage, error) {
	if strings.TrimSpace(text) == "" {
		return text, types.Usage{}, nil
	}

	key := cache.GenerateKey("enhance", e.model, text)
	if out, usage, ok := e.getCached(key); ok {
		return out, usage, nil
	}

	msgs := []Message{
		{Role: "system", Content: enhancePrompt},
		{Role: "user", Content: text},
	}
	out, usage, err := e.completer.Complete(ctx, msgs)
	if err != nil {
		return text, usage, fmt.Errorf("enhance: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return text, usage, fmt.Errorf("enhance: %w", ErrEmptyReply)
	}

	e.setCache(key, out, usage)
	return out, usage, nil
}

func (e *Enhancer) getCached(key string) (string, types.Usage, bool) {
	if e.cache == nil {
		return "", types.Usage{}, false
	}
	entry, found := e.cache.Get(key)
	if !found {
		return "", types.Usage{}, false
	}
	return entry.Text, types.Usage{
		PromptTokens:     entry.Usage.PromptTokens,
		CompletionTokens: entry.Usage.CompletionTokens,
		TotalTokens:      entry.Usage.TotalTokens,
		CacheHit:         true,
	}, true
}

func (e *Enhancer) setCache(key, text string, usage types.Usage) {
	if e.cache == nil {
		return
	}
	entry := &cache.Entry{
		Text: text,
		Usage: cache.Usage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		},
		CreatedAt: time.Now(),
	}
	if err := e.cache.Set(key, entry, cache.DefaultTTL); err != nil {
		slog.Debug("cache enhancement", "error", err)
	}
}
