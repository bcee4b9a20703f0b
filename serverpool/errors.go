package serverpool

import (
	"errors"
	"fmt"
)

var (
	// ErrModelNotInstalled is returned when a model has no files on disk.
	ErrModelNotInstalled = errors.New("model not installed")

	// ErrStopped is returned to callers waiting on a start that was
	// interrupted by Stop or StopAll.
	ErrStopped = errors.New("server stopped")

	// ErrNoFreePort is returned when every port in the span is held by
	// another live instance.
	ErrNoFreePort = errors.New("no free port")
)

// SpawnError reports that a server process could not be started or exited
// before becoming ready.
type SpawnError struct {
	ModelID string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn server %s: %v", e.ModelID, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ReadinessTimeoutError reports that a started server never answered its
// health probe within the attempt budget.
type ReadinessTimeoutError struct {
	ModelID  string
	Port     int
	Attempts int
	Err      error // last probe error
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("server %s on port %d not ready after %d attempts: %v", e.ModelID, e.Port, e.Attempts, e.Err)
}

func (e *ReadinessTimeoutError) Unwrap() error { return e.Err }
