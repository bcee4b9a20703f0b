// Package types provides shared type definitions for the application.
package types

// Usage represents token usage statistics from LLM API calls.
type Usage struct {
	PromptTokens     int  `json:"promptTokens"`
	CompletionTokens int  `json:"completionTokens"`
	TotalTokens      int  `json:"totalTokens"`
	CacheHit         bool `json:"cacheHit"`
}

// PhrasePair is a user-defined replacement applied to every transcript.
type PhrasePair struct {
	ID          string `json:"id"`
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Transcription Types
// ─────────────────────────────────────────────────────────────────────────────

// Transcription is one finished dictation as stored in history.
type Transcription struct {
	ID        string  `json:"id"`        // Unique identifier
	Text      string  `json:"text"`      // Final pasted text
	RawText   string  `json:"rawText"`   // Transcript before post-processing
	Timestamp int64   `json:"timestamp"` // Unix timestamp in milliseconds
	WordsIn   int     `json:"wordsIn"`   // Words in the raw transcript
	WordsOut  int     `json:"wordsOut"`  // Words in the final text
	Duration  float64 `json:"duration"`  // Recording length in seconds
	Mode      string  `json:"mode"`      // push-to-talk, transcription or assistant
	Provider  string  `json:"provider"`  // Provider that produced the transcript
	Language  string  `json:"language"`  // Detected language code
}

// TranscriptionError is broadcast when a session produced no text.
type TranscriptionError struct {
	Mode          string `json:"mode"`
	Message       string `json:"message"`
	Configuration bool   `json:"configuration"` // Caused by settings rather than a runtime failure
}

// ProviderInfo represents information about an STT provider.
type ProviderInfo struct {
	Name        string `json:"name"`        // Provider identifier
	DisplayName string `json:"displayName"` // Human-readable name
	IsLocal     bool   `json:"isLocal"`     // Whether it runs locally
	IsReady     bool   `json:"isReady"`     // Whether the provider is ready to use
}

// CapturedContext is the ambient context taken when an assistant session starts.
type CapturedContext struct {
	HasSelection bool   `json:"hasSelection"`
	SelectedText string `json:"selectedText,omitempty"`
	Screenshot   string `json:"-"` // PNG data URL, never broadcast
	HasImage     bool   `json:"hasImage"`
}
