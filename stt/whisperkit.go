package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const whisperKitTimeout = 60 * time.Second

// WhisperKit transcribes against one local whisperkit-cli server, which
// speaks the OpenAI transcription wire format.
type WhisperKit struct {
	baseURL string
	model   string
	http    *http.Client
}

// WhisperKitConfig holds configuration for WhisperKit.
type WhisperKitConfig struct {
	BaseURL string // e.g. http://127.0.0.1:50060
	Model   string
	Client  *http.Client // Optional, defaults to a 60s timeout client
}

// NewWhisperKit creates a provider for the server at cfg.BaseURL.
func NewWhisperKit(cfg WhisperKitConfig) *WhisperKit {
	c := cfg.Client
	if c == nil {
		c = &http.Client{Timeout: whisperKitTimeout}
	}
	return &WhisperKit{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		http:    c,
	}
}

func (w *WhisperKit) Name() string        { return "whisperkit:" + w.model }
func (w *WhisperKit) DisplayName() string { return "WhisperKit (" + w.model + ")" }
func (w *WhisperKit) IsLocal() bool       { return true }
func (w *WhisperKit) IsReady() bool       { return w.baseURL != "" }
func (w *WhisperKit) Close() error        { return nil }

// Transcribe posts the recording to /v1/audio/transcriptions.
func (w *WhisperKit) Transcribe(ctx context.Context, audio Audio, opts Options) (*TranscribeResult, error) {
	if !w.IsReady() {
		return nil, ErrNotReady
	}
	if len(audio.Data) == 0 {
		return nil, ErrEmptyAudio
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", audio.Filename())
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}

	fields := [][2]string{
		{"model", w.model},
		{"response_format", "verbose_json"},
		{"temperature", strconv.FormatFloat(opts.Temperature, 'f', -1, 64)},
	}
	// The server treats a missing language as auto-detect.
	if opts.Language != "" && opts.Language != "auto" {
		fields = append(fields, [2]string{"language", opts.Language})
	}
	if opts.Prompt != "" {
		fields = append(fields, [2]string{"prompt", opts.Prompt})
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("write %s field: %w", f[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisperkit error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out verboseResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return out.result(), nil
}

// verboseResponse is the verbose_json transcription body.
type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
}

func (r verboseResponse) result() *TranscribeResult {
	res := &TranscribeResult{
		Text:     r.Text,
		Language: r.Language,
		Duration: seconds(r.Duration),
		Segments: make([]Segment, len(r.Segments)),
	}
	for i, seg := range r.Segments {
		res.Segments[i] = Segment{
			Text:  seg.Text,
			Start: seconds(seg.Start),
			End:   seconds(seg.End),
		}
	}
	return res
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
