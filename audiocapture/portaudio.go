package audiocapture

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// portaudioImpl reads int16 frames from an input stream on its own goroutine.
type portaudioImpl struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	done   chan struct{}
	wg     sync.WaitGroup
}

func (p *portaudioImpl) start(sampleRate int, device string, callback func(samples []float32)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return ErrAlreadyCapturing
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}

	in := make([]int16, framesPerBuffer)
	stream, err := openStream(device, sampleRate, in)
	if err != nil {
		_ = portaudio.Terminate()
		return err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("start stream: %w", err)
	}

	p.stream = stream
	p.done = make(chan struct{})
	p.wg.Add(1)
	go p.readLoop(stream, in, p.done, callback)
	return nil
}

func (p *portaudioImpl) readLoop(stream *portaudio.Stream, in []int16, done <-chan struct{}, callback func([]float32)) {
	defer p.wg.Done()
	for {
		select {
		case <-done:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			// Input overflow drops a buffer but the stream stays usable.
			slog.Debug("read audio stream", "error", err)
			continue
		}
		samples := make([]float32, len(in))
		for i, v := range in {
			samples[i] = float32(v) / 32768
		}
		callback(samples)
	}
}

func (p *portaudioImpl) stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return nil
	}
	close(p.done)
	p.wg.Wait()

	err := p.stream.Stop()
	if cerr := p.stream.Close(); err == nil {
		err = cerr
	}
	p.stream = nil
	_ = portaudio.Terminate()
	if err != nil {
		return fmt.Errorf("close stream: %w", err)
	}
	return nil
}

func openStream(device string, sampleRate int, in []int16) (*portaudio.Stream, error) {
	if device == "" || device == "default" {
		stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(in), in)
		if err != nil {
			return nil, fmt.Errorf("open default stream: %w", err)
		}
		return stream, nil
	}

	dev, err := findInput(device)
	if err != nil {
		return nil, err
	}
	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = len(in)
	stream, err := portaudio.OpenStream(params, in)
	if err != nil {
		return nil, fmt.Errorf("open stream %q: %w", device, err)
	}
	return stream, nil
}

func findInput(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("input device %q not found", name)
}

// InputDevices lists the names of devices that can record.
func InputDevices() ([]string, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	var names []string
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			names = append(names, d.Name)
		}
	}
	return names, nil
}
