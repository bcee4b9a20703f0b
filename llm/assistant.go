package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.aimuz.me/dawn/internal/types"
)

// DefaultAssistantModel is the vision-capable model used for assistant requests.
const DefaultAssistantModel = "meta-llama/llama-4-maverick-17b-128e-instruct"

const (
	editorPrompt    = "You are a text editor that rewrites text based on instructions. Output ONLY the edited text with no preambles or explanations."
	generatorPrompt = "You are a helpful text generation assistant."
)

// ErrEmptyReply is returned when the model answers with no text.
var ErrEmptyReply = errors.New("empty reply")

// AssistantRequest is one spoken instruction plus its ambient context.
type AssistantRequest struct {
	Instructions string
	SelectedText string // edits this text when non-empty
	Screenshot   string // optional PNG data URL
}

// Assistant turns spoken instructions into text, editing the selection
// when there is one.
type Assistant struct {
	completer Completer
}

// NewAssistant creates an Assistant.
func NewAssistant(c Completer) *Assistant {
	return &Assistant{completer: c}
}

// Run executes req and returns the text to paste.
func (a *Assistant) Run(ctx context.Context, req AssistantRequest) (string, types.Usage, error) {
	text, usage, err := a.completer.Complete(ctx, BuildAssistantMessages(req))
	if err != nil {
		return "", usage, fmt.Errorf("assistant: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", usage, fmt.Errorf("assistant: %w", ErrEmptyReply)
	}
	return text, usage, nil
}

// BuildAssistantMessages returns the chat messages for req.
func BuildAssistantMessages(req AssistantRequest) []Message {
	system, content := generatorPrompt, req.Instructions
	if req.SelectedText != "" {
		system = editorPrompt
		content = fmt.Sprintf("Original text: %s\n\nInstructions: %s", req.SelectedText, req.Instructions)
	}
	return []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: content, ImageURL: req.Screenshot},
	}
}
