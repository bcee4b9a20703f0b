package app

import (
	"fmt"
	"log/slog"
	"sync"

	"go.aimuz.me/dawn/audiocapture"
	"go.aimuz.me/dawn/stt"
)

// Recorder captures one recording at a time.
type Recorder interface {
	Start() error
	Stop() (stt.Audio, error)
	Cancel()
	Levels() <-chan float32
}

// MicRecorder adapts audiocapture.Capture to Recorder. Recordings that
// never rise above the silence threshold fail with ErrNoSpeech.
type MicRecorder struct {
	mu        sync.Mutex
	capture   *audiocapture.Capture
	threshold float32
	levels    chan float32
}

// NewMicRecorder wraps c. A non-positive threshold uses
// audiocapture.DefaultSilenceThreshold.
func NewMicRecorder(c *audiocapture.Capture, threshold float32) *MicRecorder {
	if threshold <= 0 {
		threshold = audiocapture.DefaultSilenceThreshold
	}
	r := &MicRecorder{
		capture:   c,
		threshold: threshold,
		levels:    make(chan float32, 64),
	}
	c.OnLevel(r.level)
	return r
}

// level forwards a buffer level without ever blocking the audio callback.
func (r *MicRecorder) level(v float32) {
	select {
	case r.levels <- v:
	default:
	}
}

// SetDevice selects the input device for the next recording.
func (r *MicRecorder) SetDevice(name string) {
	r.capture.SetDevice(name)
}

// Start begins capturing.
func (r *MicRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.capture.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	slog.Debug("audio capture started")
	return nil
}

// Stop ends capturing and encodes the recording as WAV.
func (r *MicRecorder) Stop() (stt.Audio, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.capture.Stop()
	if err != nil {
		return stt.Audio{}, fmt.Errorf("stop capture: %w", err)
	}
	slog.Debug("audio capture stopped", "duration", rec.Duration, "peak", rec.PeakLevel)

	if !rec.HasSpeech(r.threshold) {
		return stt.Audio{}, ErrNoSpeech
	}
	audio, err := stt.NewWAVAudio(rec.Samples, rec.SampleRate)
	if err != nil {
		return stt.Audio{}, fmt.Errorf("encode recording: %w", err)
	}
	return audio, nil
}

// Cancel discards the current recording.
func (r *MicRecorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capture.Cancel()
}

// Levels returns RMS levels of captured buffers. Levels are dropped when
// the reader falls behind.
func (r *MicRecorder) Levels() <-chan float32 {
	return r.levels
}
