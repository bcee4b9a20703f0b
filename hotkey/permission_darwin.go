//go:build darwin

package hotkey

/*
#cgo LDFLAGS: -framework ApplicationServices
#include <ApplicationServices/ApplicationServices.h>
*/
import "C"

// hasInputPermission reports whether the process is trusted for
// accessibility, which the global key hook requires on macOS.
func hasInputPermission() bool {
	return bool(C.AXIsProcessTrusted())
}
