package clipboard

import (
	"errors"
	"slices"
	"testing"
	"time"
)

// fakeBoard records every call in order.
type fakeBoard struct {
	text     string
	pasteErr error
	calls    []string
}

func (f *fakeBoard) ReadText() (string, error) {
	f.calls = append(f.calls, "read")
	return f.text, nil
}

func (f *fakeBoard) WriteText(s string) error {
	f.calls = append(f.calls, "write:"+s)
	f.text = s
	return nil
}

func (f *fakeBoard) SimulatePaste() error {
	f.calls = append(f.calls, "paste")
	return f.pasteErr
}

func (f *fakeBoard) SimulateEnter() error {
	f.calls = append(f.calls, "enter")
	return nil
}

func TestPaste(t *testing.T) {
	tests := []struct {
		name      string
		opts      PasteOptions
		wantCalls []string
		wantSleep []time.Duration
		wantFinal string
	}{
		{
			name:      "restore clipboard",
			opts:      PasteOptions{},
			wantCalls: []string{"read", "write:hello", "paste", "write:saved"},
			wantSleep: []time.Duration{restoreDelay},
			wantFinal: "saved",
		},
		{
			name:      "keep copy",
			opts:      PasteOptions{KeepCopy: true},
			wantCalls: []string{"read", "write:hello", "paste"},
			wantFinal: "hello",
		},
		{
			name:      "press enter",
			opts:      PasteOptions{PressEnter: true, KeepCopy: true},
			wantCalls: []string{"read", "write:hello", "paste", "enter"},
			wantSleep: []time.Duration{enterDelay},
			wantFinal: "hello",
		},
		{
			name:      "enter then restore",
			opts:      PasteOptions{PressEnter: true},
			wantCalls: []string{"read", "write:hello", "paste", "enter", "write:saved"},
			wantSleep: []time.Duration{enterDelay, restoreDelay},
			wantFinal: "saved",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBoard{text: "saved"}
			var slept []time.Duration
			p := NewPaster(b)
			p.sleep = func(d time.Duration) { slept = append(slept, d) }

			if err := p.Paste("hello", tt.opts); err != nil {
				t.Fatalf("Paste() error = %v", err)
			}
			if !slices.Equal(b.calls, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", b.calls, tt.wantCalls)
			}
			if !slices.Equal(slept, tt.wantSleep) {
				t.Errorf("sleeps = %v, want %v", slept, tt.wantSleep)
			}
			if b.text != tt.wantFinal {
				t.Errorf("clipboard = %q, want %q", b.text, tt.wantFinal)
			}
		})
	}
}

func TestPasteKeystrokeFailure(t *testing.T) {
	b := &fakeBoard{text: "saved", pasteErr: errors.New("no accessibility")}
	p := NewPaster(b)
	p.sleep = func(time.Duration) {}
	if err := p.Paste("hello", PasteOptions{}); err == nil {
		t.Fatal("Paste() should fail when the keystroke fails")
	}
}
