package hotkey

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	hook "github.com/robotn/gohook"
)

// KeyEvent is a normalized physical key transition.
type KeyEvent struct {
	Key  Key
	Down bool
	At   time.Time
}

// ErrListenerRunning is returned by Start when the hook is already active.
var ErrListenerRunning = errors.New("hotkey listener already running")

// Listener reads global key events from the OS hook and normalizes them.
//
// The hook observes keys but cannot consume them, so a bound chord still
// reaches the focused application.
type Listener struct {
	mu       sync.Mutex
	running  bool
	done     chan struct{}
	onStatus func(granted bool)
}

// NewListener returns a stopped listener.
func NewListener() *Listener {
	return &Listener{}
}

// SetStatusCallback registers a callback that receives the input-monitoring
// permission state each time the listener starts.
func (l *Listener) SetStatusCallback(fn func(granted bool)) {
	l.mu.Lock()
	l.onStatus = fn
	l.mu.Unlock()
}

// Start installs the global hook. The returned channel is closed after Stop.
func (l *Listener) Start() (<-chan KeyEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil, ErrListenerRunning
	}

	granted := hasInputPermission()
	if l.onStatus != nil {
		l.onStatus(granted)
	}
	if !granted {
		slog.Warn("input monitoring permission not granted, hotkeys may not fire")
	}

	l.done = make(chan struct{})
	l.running = true

	out := make(chan KeyEvent, 64)
	go l.pump(hook.Start(), out, l.done)

	slog.Info("hotkey listener started")
	return out, nil
}

// Stop removes the hook. It is safe to call more than once.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	close(l.done)
	hook.End()
	l.running = false
	slog.Info("hotkey listener stopped")
}

func (l *Listener) pump(src chan hook.Event, out chan<- KeyEvent, done <-chan struct{}) {
	defer close(out)
	for {
		select {
		case <-done:
			return
		case ev, ok := <-src:
			if !ok {
				return
			}

			var down bool
			switch ev.Kind {
			case hook.KeyHold:
				down = true
			case hook.KeyUp:
				down = false
			default:
				continue
			}

			k := Normalize(ev.Keycode)
			if k == KeyUnmapped {
				continue
			}

			select {
			case out <- KeyEvent{Key: k, Down: down, At: time.Now()}:
			case <-done:
				return
			}
		}
	}
}
