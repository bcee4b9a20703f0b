//go:build !darwin

package hotkey

func hasInputPermission() bool {
	return true
}
