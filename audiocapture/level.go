package audiocapture

import (
	"math"
	"sync"
)

// DefaultSilenceThreshold is the peak RMS below which a recording is
// treated as containing no speech.
const DefaultSilenceThreshold float32 = 0.01

// RMS returns the root mean square of samples.
func RMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}

// Meter tracks the peak RMS across a recording.
type Meter struct {
	mu   sync.Mutex
	peak float32
}

// Add measures one buffer and returns its RMS.
func (m *Meter) Add(samples []float32) float32 {
	level := RMS(samples)
	m.mu.Lock()
	m.peak = max(m.peak, level)
	m.mu.Unlock()
	return level
}

// Peak returns the highest level seen since Reset.
func (m *Meter) Peak() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// Reset clears the peak.
func (m *Meter) Reset() {
	m.mu.Lock()
	m.peak = 0
	m.mu.Unlock()
}

// HasSpeech reports whether a recording's peak level clears threshold.
func (r Recording) HasSpeech(threshold float32) bool {
	return len(r.Samples) > 0 && r.PeakLevel >= threshold
}
