package feedback

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestPlayer(t *testing.T) {
	var freqs []float64
	var notes []string
	p := &Player{
		beep: func(f float64, _ int) error { freqs = append(freqs, f); return nil },
		notify: func(title, msg string, _ any) error {
			notes = append(notes, title+": "+msg)
			return errors.New("no notification daemon")
		},
	}
	p.RecordStart()
	p.RecordStop()
	p.Notify("No speech detected")

	if !slices.Equal(freqs, []float64{startFreq, stopFreq}) {
		t.Errorf("tones = %v", freqs)
	}
	if len(notes) != 1 || notes[0] != "Dawn: No speech detected" {
		t.Errorf("notifications = %v", notes)
	}
}

type fakeScripts struct {
	volume string
	calls  []string
}

func (f *fakeScripts) run(_ context.Context, script string) (string, error) {
	f.calls = append(f.calls, script)
	if script == "output volume of (get volume settings)" {
		return f.volume, nil
	}
	return "", nil
}

func TestMuter(t *testing.T) {
	f := &fakeScripts{volume: "42"}
	m := &Muter{run: f.run, saved: -1}
	ctx := context.Background()

	if err := m.Restore(ctx); err != nil || len(f.calls) != 0 {
		t.Fatalf("Restore() before Mute ran %v, err %v", f.calls, err)
	}
	if err := m.Mute(ctx); err != nil {
		t.Fatalf("Mute() error = %v", err)
	}
	f.volume = "0"
	if err := m.Mute(ctx); err != nil {
		t.Fatalf("second Mute() error = %v", err)
	}
	if err := m.Restore(ctx); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	want := []string{
		"output volume of (get volume settings)",
		"set volume output volume 0",
		"set volume output volume 0",
		"set volume output volume 42",
	}
	if !slices.Equal(f.calls, want) {
		t.Errorf("scripts = %v, want %v", f.calls, want)
	}
}

func TestMuterBadVolume(t *testing.T) {
	f := &fakeScripts{volume: "missing value"}
	m := &Muter{run: f.run, saved: -1}
	if err := m.Mute(context.Background()); err == nil {
		t.Fatal("Mute() should fail on unparsable volume")
	}
	if len(f.calls) != 1 {
		t.Errorf("muted despite unknown volume: %v", f.calls)
	}
}

func TestMuterUnsupported(t *testing.T) {
	m := &Muter{saved: -1}
	if m.Supported() {
		t.Fatal("Supported() = true without runner")
	}
	if err := m.Mute(context.Background()); err != nil {
		t.Errorf("Mute() error = %v", err)
	}
}
