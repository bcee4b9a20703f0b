package screenshot

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework Foundation
#import <CoreGraphics/CoreGraphics.h>
#import <Foundation/Foundation.h>

bool hasScreenCaptureAccess() {
    if (@available(macOS 11.0, *)) {
        return CGPreflightScreenCaptureAccess();
    }
    return true;
}

void requestScreenCaptureAccess() {
    if (@available(macOS 11.0, *)) {
        CGRequestScreenCaptureAccess();
    }
}
*/
import "C"

// HasPermission reports whether the process may capture the screen.
func HasPermission() bool {
	return bool(C.hasScreenCaptureAccess())
}

// RequestPermission shows the system prompt for screen recording access.
func RequestPermission() {
	C.requestScreenCaptureAccess()
}
