package feedback

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const scriptTimeout = 2 * time.Second

// scriptRunner runs an AppleScript and returns its trimmed output.
type scriptRunner func(ctx context.Context, script string) (string, error)

// Muter silences system output and restores the previous volume.
type Muter struct {
	run scriptRunner

	mu    sync.Mutex
	saved int // -1 when nothing is saved
}

// Supported reports whether muting does anything on this platform.
func (m *Muter) Supported() bool { return m.run != nil }

// Mute saves the current output volume and sets it to zero.
// Calling Mute twice keeps the first saved volume.
func (m *Muter) Mute(ctx context.Context) error {
	if m.run == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	if m.saved < 0 {
		out, err := m.run(ctx, "output volume of (get volume settings)")
		if err != nil {
			return fmt.Errorf("read volume: %w", err)
		}
		vol, err := strconv.Atoi(strings.TrimSpace(out))
		if err != nil {
			return fmt.Errorf("parse volume %q: %w", out, err)
		}
		m.saved = vol
	}
	if _, err := m.run(ctx, "set volume output volume 0"); err != nil {
		return fmt.Errorf("mute: %w", err)
	}
	return nil
}

// Restore sets the volume saved by Mute. It is a no-op if nothing is saved.
func (m *Muter) Restore(ctx context.Context) error {
	if m.run == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saved < 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	if _, err := m.run(ctx, fmt.Sprintf("set volume output volume %d", m.saved)); err != nil {
		return fmt.Errorf("restore volume: %w", err)
	}
	m.saved = -1
	return nil
}
