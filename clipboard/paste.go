package clipboard

import (
	"fmt"
	"log/slog"
	"time"
)

const (
	enterDelay   = 100 * time.Millisecond
	restoreDelay = 500 * time.Millisecond
)

// Board is the clipboard surface the paste flow needs.
type Board interface {
	ReadText() (string, error)
	WriteText(text string) error
	SimulatePaste() error
	SimulateEnter() error
}

// PasteOptions tune Paste.
type PasteOptions struct {
	PressEnter bool // press Return after pasting
	KeepCopy   bool // leave text on the clipboard instead of restoring it
}

// Paster types text into the focused application through the clipboard.
type Paster struct {
	board Board
	sleep func(time.Duration)
}

// NewPaster creates a Paster over b.
func NewPaster(b Board) *Paster {
	return &Paster{board: b, sleep: time.Sleep}
}

// Paste writes text to the clipboard and presses paste. Unless KeepCopy is
// set, the previous clipboard text is put back afterwards.
func (p *Paster) Paste(text string, opts PasteOptions) error {
	saved, err := p.board.ReadText()
	if err != nil {
		slog.Debug("read clipboard before paste", "error", err)
	}

	if err := p.board.WriteText(text); err != nil {
		return fmt.Errorf("paste: %w", err)
	}
	if err := p.board.SimulatePaste(); err != nil {
		return fmt.Errorf("paste: %w", err)
	}

	if opts.PressEnter {
		p.sleep(enterDelay)
		if err := p.board.SimulateEnter(); err != nil {
			slog.Warn("press enter after paste", "error", err)
		}
	}

	if !opts.KeepCopy {
		p.sleep(restoreDelay)
		if err := p.board.WriteText(saved); err != nil {
			slog.Warn("restore clipboard", "error", err)
		}
	}
	return nil
}
