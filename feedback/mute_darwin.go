package feedback

import (
	"context"
	"os/exec"
	"strings"
)

// NewMuter returns a Muter that drives the volume through osascript.
func NewMuter() *Muter {
	return &Muter{run: osascript, saved: -1}
}

func osascript(ctx context.Context, script string) (string, error) {
	out, err := exec.CommandContext(ctx, "osascript", "-e", script).Output()
	return strings.TrimSpace(string(out)), err
}
