package hotkey

import (
	"time"
)

// EventKind is the kind of a session event.
type EventKind uint8

const (
	// EventStart begins a recording session.
	EventStart EventKind = iota + 1
	// EventStop ends a session; its audio should be transcribed.
	EventStop
	// EventCancel ends a session; its audio must be discarded.
	EventCancel
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Event is a session transition emitted by Machine.
type Event struct {
	Kind EventKind
	Mode Mode
	At   time.Time
	// Elapsed is the session length for stop and cancel events.
	Elapsed time.Duration
}

// Defaults for MachineConfig.
const (
	DefaultMinHold       = 200 * time.Millisecond
	DefaultPromoteWindow = 600 * time.Millisecond
)

// MachineConfig tunes the session state machine.
type MachineConfig struct {
	// MinHold is the shortest push-to-talk hold that is transcribed.
	// Shorter holds are cancelled as accidental taps.
	MinHold time.Duration

	// PromoteWindow is how long after a push-to-talk start a chord that
	// extends the push-to-talk chord may still take over the session.
	// Zero disables promotion.
	PromoteWindow time.Duration
}

// DefaultMachineConfig returns the default tuning.
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{MinHold: DefaultMinHold, PromoteWindow: DefaultPromoteWindow}
}

// Machine derives recording sessions from key transitions.
//
// At most one mode is active at a time. Push-to-talk starts when its chord
// becomes satisfied and ends when it stops being satisfied; a release before
// MinHold cancels instead of stopping. Toggle modes start on one full press
// of their chord and stop on the next. While a mode is active, other modes'
// chords are ignored.
//
// Machine is not safe for concurrent use; feed it from a single goroutine.
type Machine struct {
	bindings *Bindings
	cfg      MachineConfig

	held      KeySet
	satisfied [modeCount]bool

	active    Mode
	isActive  bool
	startedAt time.Time
}

// NewMachine returns an idle machine reading chords from bindings.
func NewMachine(bindings *Bindings, cfg MachineConfig) *Machine {
	return &Machine{bindings: bindings, cfg: cfg}
}

// Active returns the active mode, if any.
func (m *Machine) Active() (Mode, bool) {
	return m.active, m.isActive
}

// Held returns the currently held keys.
func (m *Machine) Held() KeySet {
	return m.held
}

// KeyDown records a key press at time at and returns the resulting events.
// Repeated presses of an already held key are ignored.
func (m *Machine) KeyDown(k Key, at time.Time) []Event {
	if !k.Valid() || m.held.Has(k) {
		return nil
	}
	m.held = m.held.With(k)

	bindings := m.bindings.Snapshot()
	rising := m.update(bindings)
	best, ok := pick(bindings, rising)
	if !ok {
		return nil
	}

	if !m.isActive {
		return []Event{m.start(best, at)}
	}

	switch {
	case m.active.Toggle():
		if rising[m.active] {
			return []Event{m.end(EventStop, at)}
		}
	case m.active == ModePushToTalk:
		if m.canPromote(bindings, best, at) {
			return []Event{m.end(EventCancel, at), m.start(best, at)}
		}
	}
	return nil
}

// KeyUp records a key release at time at and returns the resulting events.
func (m *Machine) KeyUp(k Key, at time.Time) []Event {
	if !k.Valid() || !m.held.Has(k) {
		return nil
	}
	m.held = m.held.Without(k)
	m.update(m.bindings.Snapshot())

	if m.isActive && m.active == ModePushToTalk && !m.satisfied[ModePushToTalk] {
		if at.Sub(m.startedAt) < m.cfg.MinHold {
			return []Event{m.end(EventCancel, at)}
		}
		return []Event{m.end(EventStop, at)}
	}
	return nil
}

// Reset forgets all held keys. An active session is cancelled.
func (m *Machine) Reset(at time.Time) []Event {
	var out []Event
	if m.isActive {
		out = append(out, m.end(EventCancel, at))
	}
	m.held = KeySet{}
	m.satisfied = [modeCount]bool{}
	return out
}

// update recomputes chord satisfaction and reports the modes whose chord
// became satisfied. Disabled modes never rise, except the active mode, so a
// session can still be stopped after its mode is turned off.
func (m *Machine) update(bindings []Binding) [modeCount]bool {
	var rising [modeCount]bool
	for _, b := range bindings {
		now := IsSatisfied(b.Chord, m.held)
		live := b.Enabled || (m.isActive && m.active == b.Mode)
		if now && !m.satisfied[b.Mode] && live {
			rising[b.Mode] = true
		}
		m.satisfied[b.Mode] = now
	}
	return rising
}

// pick returns the rising mode with the most specific chord. Ties go to the
// earlier mode.
func pick(bindings []Binding, rising [modeCount]bool) (Mode, bool) {
	var (
		best  Mode
		found bool
	)
	for _, b := range bindings {
		if !rising[b.Mode] {
			continue
		}
		if !found || len(b.Chord) > len(bindings[best].Chord) {
			best, found = b.Mode, true
		}
	}
	return best, found
}

func (m *Machine) canPromote(bindings []Binding, to Mode, at time.Time) bool {
	if to == ModePushToTalk || m.cfg.PromoteWindow <= 0 {
		return false
	}
	if at.Sub(m.startedAt) >= m.cfg.PromoteWindow {
		return false
	}
	return bindings[to].Chord.Extends(bindings[ModePushToTalk].Chord)
}

func (m *Machine) start(mode Mode, at time.Time) Event {
	m.active, m.isActive, m.startedAt = mode, true, at
	return Event{Kind: EventStart, Mode: mode, At: at}
}

func (m *Machine) end(kind EventKind, at time.Time) Event {
	ev := Event{Kind: kind, Mode: m.active, At: at, Elapsed: at.Sub(m.startedAt)}
	m.isActive = false
	m.startedAt = time.Time{}
	return ev
}
