package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"go.aimuz.me/dawn/hotkey"
	"go.aimuz.me/dawn/internal/types"
	"go.aimuz.me/dawn/langdetect"
	"go.aimuz.me/dawn/llm"
	"go.aimuz.me/dawn/stt"
)

// Pipeline defaults.
const (
	DefaultCloudAttempts = 3
	DefaultCloudBackoff  = time.Second
)

// ServerPool is the part of the inference server pool the pipeline needs.
type ServerPool interface {
	EnsureRunning(ctx context.Context, modelID string) error
	BaseURL(modelID string) (string, bool)
	BaseModelID() string
}

// Assistant runs spoken instructions against the language model.
type Assistant interface {
	Run(ctx context.Context, req llm.AssistantRequest) (string, types.Usage, error)
}

// Enhancer applies formatting commands to a transcript. On failure it
// returns the input text together with the error.
type Enhancer interface {
	Enhance(ctx context.Context, text string) (string, types.Usage, error)
}

// LocalFactory builds a provider for a ready local server.
type LocalFactory func(baseURL, modelID string) stt.Provider

// Request is one recording to be resolved into text.
type Request struct {
	Audio          stt.Audio
	Mode           hotkey.Mode
	CloudEnabled   bool
	LocalEnabled   bool
	SmartEnabled   bool
	SelectedModel  string
	Language       string // "auto" or empty to detect
	AssistantModel string
	Phrases        []types.PhrasePair
	Context        *types.CapturedContext
}

// Result is the text produced for a Request.
type Result struct {
	Text     string
	RawText  string
	WordsIn  int
	WordsOut int
	Duration time.Duration
	Provider string
	Language string
	Usage    types.Usage
}

// PipelineConfig tunes retries.
type PipelineConfig struct {
	CloudAttempts int
	CloudBackoff  time.Duration
}

// DefaultPipelineConfig returns the production retry policy.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{CloudAttempts: DefaultCloudAttempts, CloudBackoff: DefaultCloudBackoff}
}

// Pipeline resolves audio into text through the cloud provider, the
// selected local model and the base model, in that order.
type Pipeline struct {
	cfg       PipelineConfig
	providers *stt.Registry
	pool      ServerPool
	local     LocalFactory
	assistant func(model string) Assistant
	enhancer  Enhancer
	detector  *langdetect.Detector
	sleep     func(ctx context.Context, d time.Duration) error
}

// PipelineDeps are the collaborators of a Pipeline. Assistant and
// Enhancer may be nil to disable post-processing.
type PipelineDeps struct {
	Providers *stt.Registry
	Pool      ServerPool
	Local     LocalFactory
	Assistant func(model string) Assistant
	Enhancer  Enhancer
	Detector  *langdetect.Detector
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg PipelineConfig, deps PipelineDeps) *Pipeline {
	if cfg.CloudAttempts <= 0 {
		cfg.CloudAttempts = DefaultCloudAttempts
	}
	if cfg.CloudBackoff < 0 {
		cfg.CloudBackoff = 0
	}
	if deps.Providers == nil {
		deps.Providers = stt.NewRegistry()
	}
	if deps.Local == nil {
		deps.Local = func(baseURL, modelID string) stt.Provider {
			return stt.NewWhisperKit(stt.WhisperKitConfig{BaseURL: baseURL, Model: modelID})
		}
	}
	if deps.Detector == nil {
		deps.Detector = langdetect.Default()
	}
	return &Pipeline{
		cfg:       cfg,
		providers: deps.Providers,
		pool:      deps.Pool,
		local:     deps.Local,
		assistant: deps.Assistant,
		enhancer:  deps.Enhancer,
		detector:  deps.Detector,
		sleep:     sleepCtx,
	}
}

// Resolve transcribes req.Audio and post-processes the transcript for req.Mode.
func (p *Pipeline) Resolve(ctx context.Context, req Request) (Result, error) {
	tr, provider, err := p.transcribe(ctx, req)
	if err != nil {
		return Result{}, err
	}

	raw := ApplyPhrases(tr.Text, req.Phrases)
	res := Result{
		RawText:  raw,
		WordsIn:  CountWords(raw),
		Duration: req.Audio.Duration,
		Provider: provider,
		Language: tr.Language,
	}

	text, usage, err := p.postProcess(ctx, req, raw)
	if err != nil {
		return Result{}, err
	}
	res.Text = text
	res.WordsOut = CountWords(text)
	res.Usage = usage
	if res.Language == "" || res.Language == "auto" {
		res.Language = p.detector.Detect(text)
	}
	return res, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Provider chain
// ─────────────────────────────────────────────────────────────────────────────

func (p *Pipeline) transcribe(ctx context.Context, req Request) (*stt.TranscribeResult, string, error) {
	if !req.CloudEnabled && !req.LocalEnabled {
		return nil, "", &AllProvidersFailedError{Reason: ReasonBothDisabled}
	}

	opts := stt.Options{Language: req.Language}
	var causes []error

	if req.CloudEnabled {
		tr, name, err := p.transcribeCloud(ctx, req.Audio, opts, &causes)
		if err == nil {
			return tr, name, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		if !req.LocalEnabled {
			return nil, "", &AllProvidersFailedError{Reason: ReasonCloudFailedLocalUnavailable, Causes: causes}
		}
	}

	for _, id := range p.localChain(req.SelectedModel) {
		tr, name, err := p.transcribeLocal(ctx, id, req.Audio, opts)
		if err == nil {
			return tr, name, nil
		}
		slog.Warn("local transcription failed", "model", id, "error", err)
		causes = append(causes, &ProviderMissError{Provider: "local:" + id, Err: err})
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
	}

	return nil, "", &AllProvidersFailedError{Reason: ReasonAllMethodsFailed, Causes: causes}
}

func (p *Pipeline) transcribeCloud(ctx context.Context, audio stt.Audio, opts stt.Options, causes *[]error) (*stt.TranscribeResult, string, error) {
	provider := p.providers.Get(stt.CloudName)
	if provider == nil || !provider.IsReady() {
		err := &ProviderMissError{Provider: stt.CloudName, Err: ErrProviderMissing}
		*causes = append(*causes, err)
		return nil, "", err
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.CloudAttempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, time.Duration(attempt-1)*p.cfg.CloudBackoff); err != nil {
				return nil, "", err
			}
		}
		tr, err := transcribeClean(ctx, provider, audio, opts)
		if err == nil {
			return tr, provider.Name(), nil
		}
		slog.Warn("cloud transcription failed", "attempt", attempt, "error", err)
		lastErr = &ProviderMissError{Provider: provider.Name(), Attempt: attempt, Err: err}
		*causes = append(*causes, lastErr)
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
	}
	return nil, "", lastErr
}

func (p *Pipeline) localChain(selected string) []string {
	if p.pool == nil {
		return nil
	}
	base := p.pool.BaseModelID()
	if selected == "" || selected == base {
		return []string{base}
	}
	return []string{selected, base}
}

func (p *Pipeline) transcribeLocal(ctx context.Context, modelID string, audio stt.Audio, opts stt.Options) (*stt.TranscribeResult, string, error) {
	if err := p.pool.EnsureRunning(ctx, modelID); err != nil {
		return nil, "", fmt.Errorf("start server: %w", err)
	}
	baseURL, ok := p.pool.BaseURL(modelID)
	if !ok {
		return nil, "", stt.ErrNotReady
	}
	provider := p.local(baseURL, modelID)
	defer provider.Close()
	tr, err := transcribeClean(ctx, provider, audio, opts)
	if err != nil {
		return nil, "", err
	}
	return tr, provider.Name(), nil
}

// transcribeClean runs one provider call and treats an empty cleaned
// transcript as a miss.
func transcribeClean(ctx context.Context, provider stt.Provider, audio stt.Audio, opts stt.Options) (*stt.TranscribeResult, error) {
	tr, err := provider.Transcribe(ctx, audio, opts)
	if err != nil {
		return nil, err
	}
	tr.Text = CleanTranscript(tr.Text)
	if tr.Text == "" {
		return nil, ErrEmptyTranscript
	}
	return tr, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Post-processing
// ─────────────────────────────────────────────────────────────────────────────

func (p *Pipeline) postProcess(ctx context.Context, req Request, raw string) (string, types.Usage, error) {
	switch {
	case req.Mode == hotkey.ModeAssistant:
		if p.assistant == nil {
			return "", types.Usage{}, &PostProcessError{Err: errors.New("assistant not configured")}
		}
		areq := llm.AssistantRequest{Instructions: raw}
		if c := req.Context; c != nil {
			if c.HasSelection {
				areq.SelectedText = c.SelectedText
			}
			areq.Screenshot = c.Screenshot
		}
		text, usage, err := p.assistant(req.AssistantModel).Run(ctx, areq)
		if err != nil {
			return "", usage, &PostProcessError{Err: err}
		}
		return text, usage, nil

	case req.Mode == hotkey.ModeTranscription && req.SmartEnabled && p.enhancer != nil:
		text, usage, err := p.enhancer.Enhance(ctx, raw)
		if err != nil {
			slog.Warn("enhance transcript, using raw text", "error", err)
			return raw, usage, nil
		}
		return text, usage, nil

	default:
		return raw, types.Usage{}, nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Text helpers
// ─────────────────────────────────────────────────────────────────────────────

var (
	// regexTimestamp matches segment timestamps like [00:00:00.000 --> 00:00:04.000].
	regexTimestamp = regexp.MustCompile(`\[\d{2}:\d{2}:\d{2}\.\d{3}\s-->\s\d{2}:\d{2}:\d{2}\.\d{3}\]`)
	// regexArtifacts matches non-speech markers such as [BLANK_AUDIO] and [MUSIC].
	regexArtifacts = regexp.MustCompile(`\[[A-Z][A-Z_ ]*\]`)
	// regexTokens matches leaked special tokens like <|endoftext|>.
	regexTokens = regexp.MustCompile(`<\|[^|>]*\|>`)
	regexSpaces = regexp.MustCompile(`\s+`)
)

// CleanTranscript strips whisper artifacts and collapses whitespace.
func CleanTranscript(text string) string {
	text = regexTimestamp.ReplaceAllString(text, "")
	text = regexArtifacts.ReplaceAllString(text, "")
	text = regexTokens.ReplaceAllString(text, "")
	return strings.TrimSpace(regexSpaces.ReplaceAllString(text, " "))
}

// ApplyPhrases replaces every whole-phrase, case-insensitive occurrence of
// each pair's original with its replacement, in order.
func ApplyPhrases(text string, pairs []types.PhrasePair) string {
	if len(pairs) == 0 {
		return text
	}
	text = norm.NFC.String(text)
	for _, pair := range pairs {
		orig := strings.TrimSpace(norm.NFC.String(pair.Original))
		if orig == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)` + boundary(orig, true) + regexp.QuoteMeta(orig) + boundary(orig, false))
		if err != nil {
			continue
		}
		repl := strings.ReplaceAll(pair.Replacement, "$", "$$")
		text = re.ReplaceAllString(text, repl)
	}
	return text
}

// boundary returns a word boundary assertion when the phrase starts (or
// ends) with a word character. Phrases edged by punctuation match as is.
func boundary(phrase string, start bool) string {
	var c byte
	if start {
		c = phrase[0]
	} else {
		c = phrase[len(phrase)-1]
	}
	if c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
		return `\b`
	}
	return ""
}

// CountWords counts whitespace-separated tokens.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
