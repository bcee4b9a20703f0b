//go:build !darwin

package screenshot

// HasPermission reports whether the process may capture the screen.
// Other platforms do not gate capture.
func HasPermission() bool {
	return true
}

// RequestPermission is a no-op outside macOS.
func RequestPermission() {}
