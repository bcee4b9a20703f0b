package hotkey

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Chord is an ordered list of key groups. A chord is satisfied when every
// group has at least one held key: keys within a group are alternatives,
// groups are all required.
type Chord []KeySet

// DefaultChord is the chord used when a binding string resolves to nothing.
func DefaultChord() Chord {
	return Chord{NewKeySet(KeyLeftAlt, KeyRightAlt)}
}

// Equal reports whether c and o have the same groups in the same order.
func (c Chord) Equal(o Chord) bool {
	return slices.Equal(c, o)
}

// Extends reports whether c requires every group of o plus at least one more.
func (c Chord) Extends(o Chord) bool {
	if len(c) <= len(o) || len(o) == 0 {
		return false
	}
	for _, g := range o {
		if !slices.Contains(c, g) {
			return false
		}
	}
	return true
}

// Keys returns the union of all groups.
func (c Chord) Keys() KeySet {
	var all KeySet
	for _, g := range c {
		all[0] |= g[0]
		all[1] |= g[1]
	}
	return all
}

func (c Chord) String() string {
	return FormatChord(c)
}

// IsSatisfied reports whether held satisfies every group of chord.
// An empty chord is never satisfied.
func IsSatisfied(chord Chord, held KeySet) bool {
	if len(chord) == 0 {
		return false
	}
	for _, g := range chord {
		if !held.Intersects(g) {
			return false
		}
	}
	return true
}

// BindingParseError reports binding tokens that did not resolve to a key.
// The chord returned alongside it is still usable.
type BindingParseError struct {
	Input    string
	Unknown  []string
	Fallback bool // nothing resolved; the default chord was used
}

func (e *BindingParseError) Error() string {
	msg := fmt.Sprintf("parse binding %q: unknown keys %q", e.Input, e.Unknown)
	if e.Fallback {
		msg += ", using default"
	}
	return msg
}

// ─────────────────────────────────────────────────────────────────────────────
// Display tokens
// ─────────────────────────────────────────────────────────────────────────────

// token is one display string and the group it denotes.
type token struct {
	display string
	aliases []string
	group   KeySet
}

// tokens lists named groups in lookup order. Formatting picks the first
// token whose group matches exactly, so paired modifiers come first.
var tokens = []token{
	{"Cmd ⌘", []string{"Cmd", "Command", "Meta", "Super", "Win", "⌘"}, NewKeySet(KeyLeftMeta, KeyRightMeta)},
	{"Ctrl ⌃", []string{"Ctrl", "Control", "⌃"}, NewKeySet(KeyLeftCtrl, KeyRightCtrl)},
	{"Option ⌥", []string{"Option", "Alt", "⌥"}, NewKeySet(KeyLeftAlt, KeyRightAlt)},
	{"Shift ⇧", []string{"Shift", "⇧"}, NewKeySet(KeyLeftShift, KeyRightShift)},

	{"Left Cmd ⌘", []string{"Left Cmd", "LCmd"}, NewKeySet(KeyLeftMeta)},
	{"Right Cmd ⌘", []string{"Right Cmd", "RCmd"}, NewKeySet(KeyRightMeta)},
	{"Left Ctrl ⌃", []string{"Left Ctrl", "LCtrl"}, NewKeySet(KeyLeftCtrl)},
	{"Right Ctrl ⌃", []string{"Right Ctrl", "RCtrl"}, NewKeySet(KeyRightCtrl)},
	{"Left Option ⌥", []string{"Left Option", "Left Alt", "LAlt"}, NewKeySet(KeyLeftAlt)},
	{"Right Option ⌥", []string{"Right Option", "Right Alt", "RAlt", "AltGr"}, NewKeySet(KeyRightAlt)},
	{"Left Shift ⇧", []string{"Left Shift", "LShift"}, NewKeySet(KeyLeftShift)},
	{"Right Shift ⇧", []string{"Right Shift", "RShift"}, NewKeySet(KeyRightShift)},

	{"Space ␣", []string{"Space", "␣"}, NewKeySet(KeySpace)},
	{"Return ↵", []string{"Return", "Enter", "↵"}, NewKeySet(KeyReturn)},
	{"Esc ⎋", []string{"Esc", "Escape", "⎋"}, NewKeySet(KeyEscape)},
	{"Tab ⇥", []string{"Tab", "⇥"}, NewKeySet(KeyTab)},
	{"Delete ⌫", []string{"Delete", "Backspace", "⌫"}, NewKeySet(KeyBackspace)},

	{"↑", []string{"Up"}, NewKeySet(KeyUp)},
	{"↓", []string{"Down"}, NewKeySet(KeyDown)},
	{"←", []string{"Left"}, NewKeySet(KeyLeft)},
	{"→", []string{"Right"}, NewKeySet(KeyRight)},

	{"-", nil, NewKeySet(KeyMinus)},
	{"=", nil, NewKeySet(KeyEqual)},
	{"[", nil, NewKeySet(KeyLeftBracket)},
	{"]", nil, NewKeySet(KeyRightBracket)},
	{`\`, nil, NewKeySet(KeyBackslash)},
	{";", nil, NewKeySet(KeySemicolon)},
	{"'", nil, NewKeySet(KeyQuote)},
	{",", nil, NewKeySet(KeyComma)},
	{".", nil, NewKeySet(KeyPeriod)},
	{"/", nil, NewKeySet(KeySlash)},
	{"`", nil, NewKeySet(KeyBacktick)},
}

var (
	lookup  = map[string]KeySet{}
	display = map[KeySet]string{}
)

func init() {
	for i := range 10 {
		k := Key0 + Key(i)
		tokens = append(tokens, token{display: k.String(), group: NewKeySet(k)})
	}
	for i := range 26 {
		k := KeyA + Key(i)
		tokens = append(tokens, token{display: k.String(), group: NewKeySet(k)})
	}

	for _, t := range tokens {
		for _, name := range append([]string{t.display}, t.aliases...) {
			f := fold(name)
			if _, dup := lookup[f]; !dup {
				lookup[f] = t.group
			}
		}
		if _, dup := display[t.group]; !dup {
			display[t.group] = t.display
		}
	}
}

// fold canonicalizes a token for lookup: NFC, trimmed, case-folded.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// ─────────────────────────────────────────────────────────────────────────────
// Parse / Format
// ─────────────────────────────────────────────────────────────────────────────

const (
	groupSep = " + "
	altSep   = " / "
)

// ParseChord parses a display string such as "Option ⌥ + Shift ⇧ + Z".
//
// Tokens are separated by " + ". A token may list explicit alternatives
// separated by " / ". Unknown tokens are dropped and reported through a
// *BindingParseError; if no token resolves, the default chord is returned
// together with the error. The returned chord is always usable.
func ParseChord(s string) (Chord, error) {
	var (
		chord   Chord
		unknown []string
	)
	for _, part := range strings.Split(s, groupSep) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		var g KeySet
		for _, alt := range strings.Split(part, altSep) {
			set, ok := lookup[fold(alt)]
			if !ok {
				unknown = append(unknown, strings.TrimSpace(alt))
				continue
			}
			g[0] |= set[0]
			g[1] |= set[1]
		}
		if g.Empty() || slices.Contains(chord, g) {
			continue
		}
		chord = append(chord, g)
	}

	if len(chord) == 0 {
		return DefaultChord(), &BindingParseError{Input: s, Unknown: unknown, Fallback: true}
	}
	if len(unknown) > 0 {
		return chord, &BindingParseError{Input: s, Unknown: unknown}
	}
	return chord, nil
}

// MustParseChord is like ParseChord but panics on error.
func MustParseChord(s string) Chord {
	c, err := ParseChord(s)
	if err != nil {
		panic(err)
	}
	return c
}

// FormatChord renders c as a display string accepted by ParseChord.
func FormatChord(c Chord) string {
	parts := make([]string, 0, len(c))
	for _, g := range c {
		parts = append(parts, formatGroup(g))
	}
	return strings.Join(parts, groupSep)
}

func formatGroup(g KeySet) string {
	if name, ok := display[g]; ok {
		return name
	}

	// Prefer paired modifier names, then single keys.
	var alts []string
	rest := g
	for _, t := range tokens {
		if t.group.Len() > 1 && rest.Contains(t.group) {
			alts = append(alts, t.display)
			rest[0] &^= t.group[0]
			rest[1] &^= t.group[1]
		}
	}
	for _, k := range rest.Keys() {
		alts = append(alts, display[NewKeySet(k)])
	}
	return strings.Join(alts, altSep)
}
