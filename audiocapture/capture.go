// Package audiocapture records the microphone through PortAudio.
package audiocapture

import (
	"errors"
	"sync"
	"time"
)

// ErrNotCapturing is returned when trying to stop while not capturing.
var ErrNotCapturing = errors.New("not capturing audio")

// ErrAlreadyCapturing is returned when trying to start capture while already capturing.
var ErrAlreadyCapturing = errors.New("already capturing audio")

// Recording is the audio captured between Start and Stop.
type Recording struct {
	Samples    []float32 // mono, [-1, 1]
	SampleRate int
	Duration   time.Duration
	PeakLevel  float32 // highest per-buffer RMS
}

// Capture records one microphone session at a time.
type Capture struct {
	mu sync.RWMutex

	// State
	capturing  bool
	startTime  time.Time
	sampleRate int
	device     string

	// Recording buffer, bounded by Config.MaxDuration
	buffer *RingBuffer
	meter  Meter

	// Callbacks
	onLevel []func(level float32)

	// Platform-specific implementation
	impl captureImpl
}

// captureImpl is the device backend.
type captureImpl interface {
	start(sampleRate int, device string, callback func(samples []float32)) error
	stop() error
}

// Config holds configuration for audio capture.
type Config struct {
	SampleRate  int           // Sample rate, default 16000 Hz (optimal for Whisper)
	MaxDuration time.Duration // Longest recording kept, default 10 minutes
	Device      string        // Input device name, "" or "default" for the system default
}

// DefaultConfig returns the default capture configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:  16000, // Whisper expects 16kHz
		MaxDuration: 10 * time.Minute,
	}
}

// New creates a capture backed by PortAudio.
func New(cfg Config) *Capture {
	return newCapture(cfg, &portaudioImpl{})
}

func newCapture(cfg Config, impl captureImpl) *Capture {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = 10 * time.Minute
	}
	return &Capture{
		sampleRate: cfg.SampleRate,
		device:     cfg.Device,
		buffer:     NewRingBuffer(int(cfg.MaxDuration.Seconds()) * cfg.SampleRate),
		impl:       impl,
	}
}

// SetDevice selects the input device for the next Start.
func (c *Capture) SetDevice(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.device = name
}

// Start begins a new recording.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing {
		return ErrAlreadyCapturing
	}

	c.buffer.Clear()
	c.meter.Reset()
	if err := c.impl.start(c.sampleRate, c.device, c.handleAudio); err != nil {
		return err
	}

	c.capturing = true
	c.startTime = time.Now()
	return nil
}

// Stop ends the recording and returns it.
func (c *Capture) Stop() (Recording, error) {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return Recording{}, ErrNotCapturing
	}
	c.capturing = false
	c.mu.Unlock()

	// The backend may be inside handleAudio; stop it without holding mu.
	err := c.impl.stop()

	samples := c.buffer.Read(c.buffer.Len())
	c.buffer.Clear()
	rec := Recording{
		Samples:    samples,
		SampleRate: c.sampleRate,
		Duration:   time.Duration(len(samples)) * time.Second / time.Duration(c.sampleRate),
		PeakLevel:  c.meter.Peak(),
	}
	return rec, err
}

// Cancel ends the recording and discards it.
func (c *Capture) Cancel() {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return
	}
	c.capturing = false
	c.mu.Unlock()

	_ = c.impl.stop()
	c.buffer.Clear()
}

// IsCapturing returns true if currently capturing audio.
func (c *Capture) IsCapturing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capturing
}

// Duration returns how long capture has been running.
func (c *Capture) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.capturing {
		return 0
	}
	return time.Since(c.startTime)
}

// OnLevel registers a callback receiving the RMS level of each buffer.
func (c *Capture) OnLevel(callback func(level float32)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLevel = append(c.onLevel, callback)
}

// handleAudio processes incoming audio samples.
func (c *Capture) handleAudio(samples []float32) {
	c.mu.RLock()
	callbacks := c.onLevel
	c.mu.RUnlock()

	c.buffer.Write(samples)
	level := c.meter.Add(samples)

	for _, cb := range callbacks {
		cb(level)
	}
}

// SampleRate returns the configured sample rate.
func (c *Capture) SampleRate() int {
	return c.sampleRate
}

// RingBuffer is a thread-safe circular buffer for audio samples.
// Recordings longer than its capacity keep only the most recent audio.
type RingBuffer struct {
	mu       sync.RWMutex
	data     []float32
	writePos int
	size     int
	filled   int // How many samples have been written (up to size)
}

// NewRingBuffer creates a new ring buffer with the given capacity.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		data: make([]float32, size),
		size: size,
	}
}

// Write adds samples to the buffer.
func (rb *RingBuffer) Write(samples []float32) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == 0 {
		return
	}
	for _, s := range samples {
		rb.data[rb.writePos] = s
		rb.writePos = (rb.writePos + 1) % rb.size
		if rb.filled < rb.size {
			rb.filled++
		}
	}
}

// Read returns the last n samples from the buffer.
func (rb *RingBuffer) Read(n int) []float32 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	n = min(n, rb.filled)
	if n == 0 {
		return nil
	}

	result := make([]float32, n)
	startPos := (rb.writePos - n + rb.size) % rb.size
	for i := range n {
		result[i] = rb.data[(startPos+i)%rb.size]
	}
	return result
}

// Clear empties the buffer.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.writePos = 0
	rb.filled = 0
}

// Len returns the number of samples in the buffer.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.filled
}
