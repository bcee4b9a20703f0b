// Package feedback plays recording tones, shows desktop notifications and
// mutes system output while recording.
package feedback

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

const (
	appTitle = "Dawn"

	startFreq = 880.0
	stopFreq  = 660.0
	toneMs    = 90
)

// Player emits audible and visual feedback. The zero value is not usable;
// create via New.
type Player struct {
	beep   func(freq float64, duration int) error
	notify func(title, message string, icon any) error
}

// New returns a Player backed by beeep.
func New() *Player {
	return &Player{beep: beeep.Beep, notify: beeep.Notify}
}

// RecordStart plays the start tone.
func (p *Player) RecordStart() {
	p.tone(startFreq)
}

// RecordStop plays the stop tone.
func (p *Player) RecordStop() {
	p.tone(stopFreq)
}

func (p *Player) tone(freq float64) {
	if err := p.beep(freq, toneMs); err != nil {
		slog.Debug("play tone", "error", err)
	}
}

// Notify shows a desktop notification.
func (p *Player) Notify(message string) {
	if err := p.notify(appTitle, message, ""); err != nil {
		slog.Debug("show notification", "error", err)
	}
}
