//go:build darwin

package clipboard

import "github.com/micmonay/keybd_event"

// setShortcutModifier holds Cmd.
func setShortcutModifier(kb *keybd_event.KeyBonding) {
	kb.HasSuper(true)
}
