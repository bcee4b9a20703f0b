//go:build !darwin

package clipboard

import "github.com/micmonay/keybd_event"

// setShortcutModifier holds Ctrl.
func setShortcutModifier(kb *keybd_event.KeyBonding) {
	kb.HasCTRL(true)
}
