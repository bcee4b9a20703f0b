package hotkey

import (
	"fmt"
	"sync"
)

// Mode is a recording mode.
type Mode uint8

const (
	// ModePushToTalk records while the chord is held.
	ModePushToTalk Mode = iota
	// ModeTranscription toggles dictation on each press.
	ModeTranscription
	// ModeAssistant toggles an instruction recording for the LLM assistant.
	ModeAssistant

	modeCount
)

// Default display bindings.
const (
	DefaultPushToTalk    = "Option ⌥"
	DefaultTranscription = "Option ⌥ + Shift ⇧ + Z"
	DefaultAssistant     = "Option ⌥ + Shift ⇧ + S"
)

var modeNames = [modeCount]string{
	ModePushToTalk:    "push-to-talk",
	ModeTranscription: "transcription",
	ModeAssistant:     "assistant",
}

// Modes returns all recording modes in priority order.
func Modes() []Mode {
	return []Mode{ModePushToTalk, ModeTranscription, ModeAssistant}
}

// ParseMode parses the wire name of a mode.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return Mode(m), nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

func (m Mode) String() string {
	if m >= modeCount {
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
	return modeNames[m]
}

// Toggle reports whether m starts and stops on successive presses.
func (m Mode) Toggle() bool {
	return m == ModeTranscription || m == ModeAssistant
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Binding is the chord currently assigned to a mode.
type Binding struct {
	Mode    Mode   `json:"mode"`
	Display string `json:"display"`
	Chord   Chord  `json:"-"`
	Enabled bool   `json:"enabled"`
}

// Bindings maps each mode to its chord. It is safe for concurrent use.
type Bindings struct {
	mu sync.RWMutex
	b  [modeCount]Binding
}

// NewBindings returns a table with the default chords, all modes enabled.
func NewBindings() *Bindings {
	t := &Bindings{}
	for m, s := range map[Mode]string{
		ModePushToTalk:    DefaultPushToTalk,
		ModeTranscription: DefaultTranscription,
		ModeAssistant:     DefaultAssistant,
	} {
		c := MustParseChord(s)
		t.b[m] = Binding{Mode: m, Display: FormatChord(c), Chord: c, Enabled: true}
	}
	return t
}

// Rebind assigns a new chord to mode. The parsed chord is applied even when
// a *BindingParseError is returned, so a malformed binding degrades to the
// recognized keys or the default chord. Other modes are not affected.
func (t *Bindings) Rebind(mode Mode, display string) error {
	if mode >= modeCount {
		return fmt.Errorf("rebind: unknown mode %d", mode)
	}
	c, err := ParseChord(display)

	t.mu.Lock()
	t.b[mode].Chord = c
	t.b[mode].Display = FormatChord(c)
	t.mu.Unlock()

	return err
}

// SetEnabled enables or disables a mode. Disabled modes never start.
func (t *Bindings) SetEnabled(mode Mode, enabled bool) {
	if mode >= modeCount {
		return
	}
	t.mu.Lock()
	t.b[mode].Enabled = enabled
	t.mu.Unlock()
}

// Get returns the binding of mode.
func (t *Bindings) Get(mode Mode) Binding {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if mode >= modeCount {
		return Binding{}
	}
	return t.b[mode]
}

// Snapshot returns all bindings in mode order.
func (t *Bindings) Snapshot() []Binding {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Binding, modeCount)
	copy(out, t.b[:])
	return out
}
