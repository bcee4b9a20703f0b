// Package config handles application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"go.aimuz.me/dawn/hotkey"
	"go.aimuz.me/dawn/internal/types"
)

const (
	appName        = "dawn"
	configFileName = "config.json"
)

// ErrPhraseNotFound is returned for an unknown phrase replacement id.
var ErrPhraseNotFound = errors.New("phrase replacement not found")

// Hotkeys holds the display strings of each mode's chord.
type Hotkeys struct {
	PushToTalk    string `json:"pushToTalk"`
	Transcription string `json:"transcription"`
	Assistant     string `json:"assistant"`
}

// Config represents the persisted user settings.
type Config struct {
	Hotkeys Hotkeys `json:"hotkeys"`

	// Modes
	PushToTalk           bool `json:"pushToTalk"`
	AssistantModeEnabled bool `json:"assistantModeEnabled"`

	// Transcription
	CloudTranscription bool               `json:"cloudTranscription"`
	LocalTranscription bool               `json:"localTranscription"`
	SelectedModel      string             `json:"selectedModel"`
	SmartTranscription bool               `json:"smartTranscription"`
	Language           string             `json:"language"` // "auto" to detect
	PhraseReplacements []types.PhrasePair `json:"phraseReplacements"`

	// Assistant
	AssistantScreenshotEnabled bool   `json:"assistantScreenshotEnabled"`
	AssistantModel             string `json:"assistantModel"`

	// Output and feedback
	SoundEffects    bool   `json:"soundEffects"`
	AutoMute        bool   `json:"autoMute"`
	AutoCopy        bool   `json:"autoCopy"`
	PressEnterAfter bool   `json:"pressEnterAfter"`
	InputDevice     string `json:"inputDevice"`

	path string
}

// Defaults returns the settings used before anything is saved.
func Defaults() *Config {
	return &Config{
		Hotkeys: Hotkeys{
			PushToTalk:    hotkey.DefaultPushToTalk,
			Transcription: hotkey.DefaultTranscription,
			Assistant:     hotkey.DefaultAssistant,
		},
		PushToTalk:           true,
		AssistantModeEnabled: true,
		CloudTranscription:   true,
		LocalTranscription:   true,
		SelectedModel:        "openai_whisper-base",
		Language:             "auto",
		PhraseReplacements:   []types.PhrasePair{},
		AssistantModel:       "meta-llama/llama-4-maverick-17b-128e-instruct",
		AutoMute:             true,
		AutoCopy:             true,
		InputDevice:          "default",
	}
}

// Load loads configuration from the user config directory.
// Returns default config if file doesn't exist.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return LoadFrom(path)
}

// LoadFrom loads configuration from path over the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Defaults()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.PhraseReplacements == nil {
		cfg.PhraseReplacements = []types.PhrasePair{}
	}
	return cfg, nil
}

// Path returns the file the config is saved to.
func (c *Config) Path() string { return c.path }

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		p, err := configPath()
		if err != nil {
			return fmt.Errorf("get config path: %w", err)
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// Write then rename so a crash never leaves a truncated file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	cp.PhraseReplacements = slices.Clone(c.PhraseReplacements)
	return &cp
}

// Hotkey returns the chord display string for mode.
func (c *Config) Hotkey(mode hotkey.Mode) string {
	switch mode {
	case hotkey.ModePushToTalk:
		return c.Hotkeys.PushToTalk
	case hotkey.ModeTranscription:
		return c.Hotkeys.Transcription
	case hotkey.ModeAssistant:
		return c.Hotkeys.Assistant
	}
	return ""
}

// SetHotkey stores the chord display string for mode.
func (c *Config) SetHotkey(mode hotkey.Mode, display string) {
	switch mode {
	case hotkey.ModePushToTalk:
		c.Hotkeys.PushToTalk = display
	case hotkey.ModeTranscription:
		c.Hotkeys.Transcription = display
	case hotkey.ModeAssistant:
		c.Hotkeys.Assistant = display
	}
}

// ModeEnabled reports whether mode may start sessions. Transcription
// mode is always available.
func (c *Config) ModeEnabled(mode hotkey.Mode) bool {
	switch mode {
	case hotkey.ModePushToTalk:
		return c.PushToTalk
	case hotkey.ModeAssistant:
		return c.AssistantModeEnabled
	}
	return true
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Phrase Replacements
// ─────────────────────────────────────────────────────────────────────────────

// AddPhrase adds a replacement and returns it with its new id.
func (c *Config) AddPhrase(original, replacement string) (types.PhrasePair, error) {
	original = strings.TrimSpace(original)
	if original == "" {
		return types.PhrasePair{}, fmt.Errorf("original phrase required")
	}
	p := types.PhrasePair{
		ID:          uuid.New().String(),
		Original:    original,
		Replacement: replacement,
	}
	c.PhraseReplacements = append(c.PhraseReplacements, p)
	return p, nil
}

// UpdatePhrase replaces the pair with id, keeping the id.
func (c *Config) UpdatePhrase(id string, p types.PhrasePair) error {
	idx := slices.IndexFunc(c.PhraseReplacements, func(x types.PhrasePair) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("%w: %s", ErrPhraseNotFound, id)
	}
	p.Original = strings.TrimSpace(p.Original)
	if p.Original == "" {
		return fmt.Errorf("original phrase required")
	}

	p.ID = id // Preserve ID
	c.PhraseReplacements[idx] = p
	return nil
}

// RemovePhrase deletes the pair with id.
func (c *Config) RemovePhrase(id string) error {
	idx := slices.IndexFunc(c.PhraseReplacements, func(x types.PhrasePair) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("%w: %s", ErrPhraseNotFound, id)
	}
	c.PhraseReplacements = slices.Delete(c.PhraseReplacements, idx, idx+1)
	return nil
}
