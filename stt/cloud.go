package stt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	// DefaultCloudBaseURL is Groq's OpenAI-compatible endpoint.
	DefaultCloudBaseURL = "https://api.groq.com/openai/v1"
	// DefaultCloudModel is the hosted Whisper model.
	DefaultCloudModel = "whisper-large-v3-turbo"

	// CloudName is the registry name of the cloud provider.
	CloudName = "cloud"

	cloudTimeout = 60 * time.Second
)

// Cloud transcribes through a hosted OpenAI-compatible Whisper API.
// Retries are left to the caller, so the SDK's own retries are off.
type Cloud struct {
	client openai.Client
	model  string
	ready  bool
}

// CloudConfig holds configuration for Cloud.
type CloudConfig struct {
	APIKey  string
	BaseURL string // Optional, defaults to Groq
	Model   string // Optional, defaults to whisper-large-v3-turbo
}

// NewCloud creates a cloud provider. It is not ready without an API key.
func NewCloud(cfg CloudConfig) *Cloud {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCloudBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultCloudModel
	}
	return &Cloud{
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
			option.WithMaxRetries(0),
			option.WithRequestTimeout(cloudTimeout),
		),
		model: cfg.Model,
		ready: cfg.APIKey != "",
	}
}

func (c *Cloud) Name() string        { return CloudName }
func (c *Cloud) DisplayName() string { return "Cloud Whisper" }
func (c *Cloud) IsLocal() bool       { return false }
func (c *Cloud) IsReady() bool       { return c.ready }
func (c *Cloud) Close() error        { return nil }

// Transcribe uploads the recording and returns the verbose transcript.
func (c *Cloud) Transcribe(ctx context.Context, audio Audio, opts Options) (*TranscribeResult, error) {
	if !c.ready {
		return nil, ErrNotReady
	}
	if len(audio.Data) == 0 {
		return nil, ErrEmptyAudio
	}

	params := openai.AudioTranscriptionNewParams{
		File:           openai.File(bytes.NewReader(audio.Data), audio.Filename(), audio.MIMEType),
		Model:          openai.AudioModel(c.model),
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
		Temperature:    openai.Float(opts.Temperature),
	}
	if opts.Language != "" && opts.Language != "auto" {
		params.Language = openai.String(opts.Language)
	}
	if opts.Prompt != "" {
		params.Prompt = openai.String(opts.Prompt)
	}

	resp, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("cloud transcribe: %w", err)
	}

	res := &TranscribeResult{
		Text:     resp.Text,
		Language: resp.Language,
		Duration: seconds(resp.Duration),
		Segments: make([]Segment, len(resp.Segments)),
	}
	for i, seg := range resp.Segments {
		res.Segments[i] = Segment{
			Text:  seg.Text,
			Start: seconds(seg.Start),
			End:   seconds(seg.End),
		}
	}
	return res, nil
}
