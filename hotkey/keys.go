// Package hotkey turns raw global key events into recording session events.
//
// The package is split into three layers: key normalization (Key, KeySet,
// Normalize), chord bindings (Chord, Bindings, ParseChord), and the session
// state machine (Machine). Listener wires them to the OS keyboard hook.
package hotkey

import (
	"math/bits"
	"strings"
)

// Key is a canonical, platform-independent key identifier.
type Key uint8

// Canonical keys. Left and right modifiers are distinct keys; chords that
// accept either side list both in the same group.
const (
	KeyUnmapped Key = iota

	KeyLeftAlt
	KeyRightAlt
	KeyLeftShift
	KeyRightShift
	KeyLeftCtrl
	KeyRightCtrl
	KeyLeftMeta
	KeyRightMeta

	KeySpace
	KeyReturn
	KeyEscape
	KeyTab
	KeyBackspace

	KeyUp
	KeyDown
	KeyLeft
	KeyRight

	Key0
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9

	KeyA
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
	KeyG
	KeyH
	KeyI
	KeyJ
	KeyK
	KeyL
	KeyM
	KeyN
	KeyO
	KeyP
	KeyQ
	KeyR
	KeyS
	KeyT
	KeyU
	KeyV
	KeyW
	KeyX
	KeyY
	KeyZ

	KeyMinus
	KeyEqual
	KeyLeftBracket
	KeyRightBracket
	KeyBackslash
	KeySemicolon
	KeyQuote
	KeyComma
	KeyPeriod
	KeySlash
	KeyBacktick

	keyCount
)

// IsModifier reports whether k is one of the eight modifier keys.
func (k Key) IsModifier() bool {
	return k >= KeyLeftAlt && k <= KeyRightMeta
}

// Valid reports whether k is a mapped key.
func (k Key) Valid() bool {
	return k > KeyUnmapped && k < keyCount
}

func (k Key) String() string {
	if !k.Valid() {
		return "Unmapped"
	}
	return keyNames[k]
}

var keyNames = func() [keyCount]string {
	names := [keyCount]string{
		KeyUnmapped:     "Unmapped",
		KeyLeftAlt:      "LeftAlt",
		KeyRightAlt:     "RightAlt",
		KeyLeftShift:    "LeftShift",
		KeyRightShift:   "RightShift",
		KeyLeftCtrl:     "LeftCtrl",
		KeyRightCtrl:    "RightCtrl",
		KeyLeftMeta:     "LeftMeta",
		KeyRightMeta:    "RightMeta",
		KeySpace:        "Space",
		KeyReturn:       "Return",
		KeyEscape:       "Escape",
		KeyTab:          "Tab",
		KeyBackspace:    "Backspace",
		KeyUp:           "Up",
		KeyDown:         "Down",
		KeyLeft:         "Left",
		KeyRight:        "Right",
		KeyMinus:        "Minus",
		KeyEqual:        "Equal",
		KeyLeftBracket:  "LeftBracket",
		KeyRightBracket: "RightBracket",
		KeyBackslash:    "Backslash",
		KeySemicolon:    "Semicolon",
		KeyQuote:        "Quote",
		KeyComma:        "Comma",
		KeyPeriod:       "Period",
		KeySlash:        "Slash",
		KeyBacktick:     "Backtick",
	}
	for i := range 10 {
		names[Key0+Key(i)] = string(rune('0' + i))
	}
	for i := range 26 {
		names[KeyA+Key(i)] = string(rune('A' + i))
	}
	return names
}()

// ─────────────────────────────────────────────────────────────────────────────
// Raw code mapping
// ─────────────────────────────────────────────────────────────────────────────

// rawCodes maps libuiohook virtual key codes (as delivered by gohook in
// Event.Keycode) to canonical keys. Several raw codes may share a key.
var rawCodes = map[uint16]Key{
	0x0038: KeyLeftAlt,
	0x0E38: KeyRightAlt,
	0x002A: KeyLeftShift,
	0x0036: KeyRightShift,
	0x001D: KeyLeftCtrl,
	0x0E1D: KeyRightCtrl,
	0x0E5B: KeyLeftMeta,
	0x0E5C: KeyRightMeta,

	0x0039: KeySpace,
	0x001C: KeyReturn,
	0x0E1C: KeyReturn, // keypad enter
	0x0001: KeyEscape,
	0x000F: KeyTab,
	0x000E: KeyBackspace,

	0xE048: KeyUp,
	0xE050: KeyDown,
	0xE04B: KeyLeft,
	0xE04D: KeyRight,
	0xEE48: KeyUp, // keypad arrows with num lock off
	0xEE50: KeyDown,
	0xEE4B: KeyLeft,
	0xEE4D: KeyRight,

	0x000B: Key0,
	0x0002: Key1,
	0x0003: Key2,
	0x0004: Key3,
	0x0005: Key4,
	0x0006: Key5,
	0x0007: Key6,
	0x0008: Key7,
	0x0009: Key8,
	0x000A: Key9,

	0x001E: KeyA,
	0x0030: KeyB,
	0x002E: KeyC,
	0x0020: KeyD,
	0x0012: KeyE,
	0x0021: KeyF,
	0x0022: KeyG,
	0x0023: KeyH,
	0x0017: KeyI,
	0x0024: KeyJ,
	0x0025: KeyK,
	0x0026: KeyL,
	0x0032: KeyM,
	0x0031: KeyN,
	0x0018: KeyO,
	0x0019: KeyP,
	0x0010: KeyQ,
	0x0013: KeyR,
	0x001F: KeyS,
	0x0014: KeyT,
	0x0016: KeyU,
	0x002F: KeyV,
	0x0011: KeyW,
	0x002D: KeyX,
	0x0015: KeyY,
	0x002C: KeyZ,

	0x000C: KeyMinus,
	0x000D: KeyEqual,
	0x001A: KeyLeftBracket,
	0x001B: KeyRightBracket,
	0x002B: KeyBackslash,
	0x0027: KeySemicolon,
	0x0028: KeyQuote,
	0x0033: KeyComma,
	0x0034: KeyPeriod,
	0x0035: KeySlash,
	0x0029: KeyBacktick,
}

// Normalize maps a raw libuiohook key code to its canonical key.
// Unknown codes yield KeyUnmapped.
func Normalize(raw uint16) Key {
	if k, ok := rawCodes[raw]; ok {
		return k
	}
	return KeyUnmapped
}

// ─────────────────────────────────────────────────────────────────────────────
// KeySet
// ─────────────────────────────────────────────────────────────────────────────

// KeySet is a fixed-size set of keys. The zero value is empty and KeySet
// values are comparable with ==.
type KeySet [2]uint64

// NewKeySet returns a set containing keys. KeyUnmapped is never added.
func NewKeySet(keys ...Key) KeySet {
	var s KeySet
	for _, k := range keys {
		s = s.With(k)
	}
	return s
}

// With returns s with k added.
func (s KeySet) With(k Key) KeySet {
	if k.Valid() {
		s[k/64] |= 1 << (k % 64)
	}
	return s
}

// Without returns s with k removed.
func (s KeySet) Without(k Key) KeySet {
	if k.Valid() {
		s[k/64] &^= 1 << (k % 64)
	}
	return s
}

// Has reports whether k is in s.
func (s KeySet) Has(k Key) bool {
	return k.Valid() && s[k/64]&(1<<(k%64)) != 0
}

// Intersects reports whether s and o share at least one key.
func (s KeySet) Intersects(o KeySet) bool {
	return s[0]&o[0] != 0 || s[1]&o[1] != 0
}

// Contains reports whether every key of o is in s.
func (s KeySet) Contains(o KeySet) bool {
	return s[0]&o[0] == o[0] && s[1]&o[1] == o[1]
}

// Empty reports whether s has no keys.
func (s KeySet) Empty() bool {
	return s == KeySet{}
}

// Len returns the number of keys in s.
func (s KeySet) Len() int {
	return bits.OnesCount64(s[0]) + bits.OnesCount64(s[1])
}

// Keys returns the members of s in ascending order.
func (s KeySet) Keys() []Key {
	keys := make([]Key, 0, s.Len())
	for k := KeyUnmapped + 1; k < keyCount; k++ {
		if s.Has(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (s KeySet) String() string {
	names := make([]string, 0, s.Len())
	for _, k := range s.Keys() {
		names = append(names, k.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}
