package hotkey

import (
	"errors"
	"testing"
)

func TestBindingsRebind(t *testing.T) {
	b := NewBindings()
	before := b.Get(ModeAssistant)

	if err := b.Rebind(ModeTranscription, "Cmd ⌘ + Shift ⇧ + D"); err != nil {
		t.Fatalf("Rebind: %v", err)
	}

	got := b.Get(ModeTranscription)
	if got.Display != "Cmd ⌘ + Shift ⇧ + D" {
		t.Errorf("Display = %q", got.Display)
	}
	if !IsSatisfied(got.Chord, NewKeySet(KeyRightMeta, KeyLeftShift, KeyD)) {
		t.Error("new chord not satisfied by its own keys")
	}

	after := b.Get(ModeAssistant)
	if !after.Chord.Equal(before.Chord) || after.Display != before.Display {
		t.Errorf("assistant binding changed: %+v -> %+v", before, after)
	}
}

func TestBindingsRebindMalformed(t *testing.T) {
	b := NewBindings()

	err := b.Rebind(ModePushToTalk, "nonsense")
	var perr *BindingParseError
	if !errors.As(err, &perr) || !perr.Fallback {
		t.Fatalf("Rebind error = %v, want fallback *BindingParseError", err)
	}

	got := b.Get(ModePushToTalk)
	if !got.Chord.Equal(DefaultChord()) {
		t.Errorf("Chord = %v, want default", got.Chord)
	}
	if got.Display != DefaultPushToTalk {
		t.Errorf("Display = %q, want %q", got.Display, DefaultPushToTalk)
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range Modes() {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseMode("dictate"); err == nil {
		t.Error("ParseMode(dictate) should fail")
	}
	if !ModeAssistant.Toggle() || ModePushToTalk.Toggle() {
		t.Error("Toggle() mismatch")
	}
}
