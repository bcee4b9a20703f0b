// Package screenshot captures the screen for assistant requests.
package screenshot

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/kbinani/screenshot"
)

// MaxWidth bounds the width of encoded captures.
const MaxWidth = 1280

// ErrNoDisplay is returned when no display is active.
var ErrNoDisplay = errors.New("no active display")

// CapturePrimary captures the primary display.
func CapturePrimary() (image.Image, error) {
	if screenshot.NumActiveDisplays() <= 0 {
		return nil, ErrNoDisplay
	}
	img, err := screenshot.CaptureRect(screenshot.GetDisplayBounds(0))
	if err != nil {
		return nil, fmt.Errorf("capture display: %w", err)
	}
	return img, nil
}

// CaptureDataURL captures the primary display as a PNG data URL.
func CaptureDataURL() (string, error) {
	if !HasPermission() {
		RequestPermission()
		return "", errors.New("screen recording permission not granted")
	}
	img, err := CapturePrimary()
	if err != nil {
		return "", err
	}
	return EncodeDataURL(img)
}

// EncodeDataURL scales img down to MaxWidth and encodes it as a PNG data URL.
func EncodeDataURL(img image.Image) (string, error) {
	if w := img.Bounds().Dx(); w > MaxWidth {
		h := img.Bounds().Dy()
		newH := max(1, int(math.Round(float64(h)*float64(MaxWidth)/float64(w))))
		img = resizeNearest(img, MaxWidth, newH)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func resizeNearest(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	for y := range h {
		sy := b.Min.Y + y*sh/h
		for x := range w {
			sx := b.Min.X + x*sw/w
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}
