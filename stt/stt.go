// Package stt provides speech-to-text provider interface and implementations.
package stt

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotReady is returned by providers that lack credentials or a server.
	ErrNotReady = errors.New("provider not ready")
	// ErrEmptyAudio is returned for recordings with no data.
	ErrEmptyAudio = errors.New("empty audio")
)

// Audio is one encoded recording.
type Audio struct {
	Data     []byte
	MIMEType string // e.g. "audio/wav"
	Duration time.Duration
}

// Filename returns an upload file name matching the MIME type.
func (a Audio) Filename() string {
	switch a.MIMEType {
	case "audio/webm":
		return "audio.webm"
	case "audio/mpeg":
		return "audio.mp3"
	case "audio/ogg":
		return "audio.ogg"
	default:
		return "audio.wav"
	}
}

// Options tune a single transcription.
type Options struct {
	Language    string  // empty or "auto" for auto-detect
	Prompt      string  // vocabulary hint
	Temperature float64 // 0 for deterministic decoding
}

// TranscribeResult represents the result of a transcription.
type TranscribeResult struct {
	Text     string        `json:"text"`     // Transcribed text
	Language string        `json:"language"` // Detected language code
	Duration time.Duration `json:"duration"` // Audio length reported by the provider
	Segments []Segment     `json:"segments"` // Time-stamped segments
}

// Segment represents a time-stamped audio segment.
type Segment struct {
	Text  string        `json:"text"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Provider defines the interface for speech-to-text providers.
// Both the cloud API and the local WhisperKit servers satisfy it.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// DisplayName returns the human-readable provider name.
	DisplayName() string

	// IsLocal returns true if the provider runs locally without API calls.
	IsLocal() bool

	// IsReady returns true if the provider is ready to use.
	IsReady() bool

	// Transcribe converts a recording to text.
	Transcribe(ctx context.Context, audio Audio, opts Options) (*TranscribeResult, error)

	// Close releases resources held by the provider.
	Close() error
}

// Registry holds registered STT providers. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider, replacing and closing any provider with the
// same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	old := r.providers[p.Name()]
	r.providers[p.Name()] = p
	r.mu.Unlock()

	if old != nil && old != p {
		_ = old.Close()
	}
}

// Unregister removes and closes the named provider.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	p := r.providers[name]
	delete(r.providers, name)
	r.mu.Unlock()

	if p != nil {
		_ = p.Close()
	}
}

// Get returns a provider by name.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// List returns all registered providers ordered by name.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	result := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, p)
	}
	r.mu.RUnlock()

	slices.SortFunc(result, func(a, b Provider) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return result
}

// Close releases all providers.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.providers, name)
	}
	return errors.Join(errs...)
}
