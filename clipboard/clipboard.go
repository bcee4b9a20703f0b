// Package clipboard reads and writes the system clipboard and simulates the
// copy, paste and enter keystrokes.
package clipboard

import (
	"fmt"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

// System is the clipboard and keyboard of the running desktop.
type System struct {
	mu sync.Mutex
	kb *keybd_event.KeyBonding
}

// NewSystem returns the desktop clipboard.
func NewSystem() *System {
	return &System{}
}

// ReadText returns the clipboard text.
func (s *System) ReadText() (string, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	return text, nil
}

// WriteText replaces the clipboard contents with text.
func (s *System) WriteText(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}

// SimulateCopy presses the platform copy shortcut.
func (s *System) SimulateCopy() error {
	return s.press(keybd_event.VK_C, true)
}

// SimulatePaste presses the platform paste shortcut.
func (s *System) SimulatePaste() error {
	return s.press(keybd_event.VK_V, true)
}

// SimulateEnter presses Return.
func (s *System) SimulateEnter() error {
	return s.press(keybd_event.VK_ENTER, false)
}

func (s *System) press(key int, shortcut bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kb == nil {
		kb, err := keybd_event.NewKeyBonding()
		if err != nil {
			return fmt.Errorf("create key bonding: %w", err)
		}
		s.kb = &kb
	}

	s.kb.Clear()
	s.kb.SetKeys(key)
	if shortcut {
		setShortcutModifier(s.kb)
	}
	if err := s.kb.Launching(); err != nil {
		return fmt.Errorf("send keystroke: %w", err)
	}
	return nil
}
