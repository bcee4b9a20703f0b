package stt

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVMIMEType is the MIME type of EncodeWAV output.
const WAVMIMEType = "audio/wav"

// EncodeWAV encodes mono float32 PCM samples in [-1, 1] as 16-bit WAV.
// The encoder needs a seekable writer, so the data goes through a
// temporary file.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	f, err := os.CreateTemp("", "dawn-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		s = max(-1, min(1, s))
		data[i] = int(s * 32767)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek wav: %w", err)
	}
	out, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	return out, nil
}

// NewWAVAudio encodes samples into an Audio ready for upload.
func NewWAVAudio(samples []float32, sampleRate int) (Audio, error) {
	if len(samples) == 0 {
		return Audio{}, ErrEmptyAudio
	}
	data, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		return Audio{}, err
	}
	return Audio{
		Data:     data,
		MIMEType: WAVMIMEType,
		Duration: time.Duration(len(samples)) * time.Second / time.Duration(sampleRate),
	}, nil
}
