package screenshot

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func decodeDataURL(t *testing.T, url string) image.Image {
	t.Helper()
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("bad prefix: %.40s", url)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

func TestEncodeDataURL(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"small kept", 200, 100, 200, 100},
		{"wide scaled", 2560, 1440, 1280, 720},
		{"thin strip", 5000, 1, 1280, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := image.NewRGBA(image.Rect(0, 0, tt.w, tt.h))
			src.Set(0, 0, color.RGBA{R: 255, A: 255})

			url, err := EncodeDataURL(src)
			if err != nil {
				t.Fatalf("EncodeDataURL() error = %v", err)
			}
			img := decodeDataURL(t, url)
			if b := img.Bounds(); b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("size = %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
			if r, _, _, _ := img.At(0, 0).RGBA(); r == 0 {
				t.Error("top-left pixel lost")
			}
		})
	}
}
