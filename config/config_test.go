package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.aimuz.me/dawn/hotkey"
	"go.aimuz.me/dawn/internal/types"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if !cfg.PushToTalk || !cfg.LocalTranscription || !cfg.AutoCopy || cfg.SoundEffects {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Hotkey(hotkey.ModeAssistant) != hotkey.DefaultAssistant {
		t.Errorf("assistant hotkey = %q", cfg.Hotkey(hotkey.ModeAssistant))
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q", cfg.Path())
	}
}

func TestLoadOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"soundEffects":true,"hotkeys":{"pushToTalk":"Ctrl ⌃"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if !cfg.SoundEffects {
		t.Error("saved soundEffects not applied")
	}
	if !cfg.AutoMute {
		t.Error("missing autoMute lost its default")
	}
	if cfg.Hotkeys.PushToTalk != "Ctrl ⌃" || cfg.Hotkeys.Transcription != "" {
		t.Errorf("hotkeys = %+v", cfg.Hotkeys)
	}
	if cfg.PhraseReplacements == nil {
		t.Error("PhraseReplacements is nil")
	}

	if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom() with bad JSON should fail")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg, _ := LoadFrom(path)
	cfg.SetHotkey(hotkey.ModeTranscription, "Cmd ⌘ + T")
	cfg.SelectedModel = "openai_whisper-large-v3_947MB"
	if _, err := cfg.AddPhrase("gonna", "going to"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if got.Hotkey(hotkey.ModeTranscription) != "Cmd ⌘ + T" || got.SelectedModel != cfg.SelectedModel {
		t.Errorf("reloaded = %+v", got)
	}
	if len(got.PhraseReplacements) != 1 || got.PhraseReplacements[0].Replacement != "going to" {
		t.Errorf("phrases = %+v", got.PhraseReplacements)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestPhraseCRUD(t *testing.T) {
	cfg := Defaults()

	if _, err := cfg.AddPhrase("  ", "x"); err == nil {
		t.Error("AddPhrase() with blank original should fail")
	}
	p, err := cfg.AddPhrase(" dawn ", "Dawn")
	if err != nil || p.ID == "" || p.Original != "dawn" {
		t.Fatalf("AddPhrase() = %+v, %v", p, err)
	}

	if err := cfg.UpdatePhrase(p.ID, types.PhrasePair{ID: "other", Original: "dawn app", Replacement: "Dawn"}); err != nil {
		t.Fatalf("UpdatePhrase() error = %v", err)
	}
	if cfg.PhraseReplacements[0].ID != p.ID || cfg.PhraseReplacements[0].Original != "dawn app" {
		t.Errorf("after update = %+v", cfg.PhraseReplacements[0])
	}
	if err := cfg.UpdatePhrase("missing", types.PhrasePair{Original: "x"}); !errors.Is(err, ErrPhraseNotFound) {
		t.Errorf("UpdatePhrase(missing) error = %v", err)
	}

	clone := cfg.Clone()
	if err := cfg.RemovePhrase(p.ID); err != nil {
		t.Fatalf("RemovePhrase() error = %v", err)
	}
	if len(cfg.PhraseReplacements) != 0 || len(clone.PhraseReplacements) != 1 {
		t.Error("Clone() shares phrase storage")
	}
	if err := cfg.RemovePhrase(p.ID); !errors.Is(err, ErrPhraseNotFound) {
		t.Errorf("second RemovePhrase() error = %v", err)
	}
}

func TestModeEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.PushToTalk = false
	cfg.AssistantModeEnabled = false
	tests := []struct {
		mode hotkey.Mode
		want bool
	}{
		{hotkey.ModePushToTalk, false},
		{hotkey.ModeTranscription, true},
		{hotkey.ModeAssistant, false},
	}
	for _, tt := range tests {
		if got := cfg.ModeEnabled(tt.mode); got != tt.want {
			t.Errorf("ModeEnabled(%v) = %v, want %v", tt.mode, got, tt.want)
		}
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_test")
	t.Setenv("DAWN_MIN_HOLD", "300ms")
	t.Setenv("DAWN_READY_MAX_ATTEMPTS", "10")

	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if e.GroqAPIKey != "gsk_test" || e.MinHold != 300*time.Millisecond || e.ReadyMaxAttempts != 10 {
		t.Errorf("env = %+v", e)
	}
	if e.ContextTimeout != time.Second || e.ReadyInterval != 500*time.Millisecond || e.CloudModel != "whisper-large-v3-turbo" {
		t.Errorf("defaults not applied: %+v", e)
	}

	fs := flag.NewFlagSet("dawn", flag.ContinueOnError)
	e.RegisterFlags(fs)
	if err := fs.Parse([]string{"-min-hold", "50ms", "-listen", "127.0.0.1:9000"}); err != nil {
		t.Fatal(err)
	}
	if e.MinHold != 50*time.Millisecond || e.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("flags did not override: %+v", e)
	}
}
