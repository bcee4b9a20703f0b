package app

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyTranscript is returned when a provider answered with no text.
	ErrEmptyTranscript = errors.New("empty transcript")
	// ErrProviderMissing is returned when no cloud provider is registered.
	ErrProviderMissing = errors.New("provider not configured")
	// ErrNoSpeech is returned for recordings that never rose above the silence threshold.
	ErrNoSpeech = errors.New("no speech detected")
)

// ContextCaptureError reports a failed ambient context capture.
// The session continues with an empty context.
type ContextCaptureError struct {
	Step string
	Err  error
}

func (e *ContextCaptureError) Error() string {
	return fmt.Sprintf("capture context: %s: %v", e.Step, e.Err)
}

func (e *ContextCaptureError) Unwrap() error { return e.Err }

// ProviderMissError records one provider attempt that produced no text.
type ProviderMissError struct {
	Provider string
	Attempt  int
	Err      error
}

func (e *ProviderMissError) Error() string {
	if e.Attempt > 0 {
		return fmt.Sprintf("%s (attempt %d): %v", e.Provider, e.Attempt, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderMissError) Unwrap() error { return e.Err }

// FailureReason explains why no provider produced a transcript.
type FailureReason uint8

const (
	// ReasonBothDisabled means cloud and local transcription are both off.
	ReasonBothDisabled FailureReason = iota + 1
	// ReasonCloudFailedLocalUnavailable means the cloud failed and local was off.
	ReasonCloudFailedLocalUnavailable
	// ReasonAllMethodsFailed means every enabled method was tried and failed.
	ReasonAllMethodsFailed
)

func (r FailureReason) String() string {
	switch r {
	case ReasonBothDisabled:
		return "both cloud and local transcription are disabled"
	case ReasonCloudFailedLocalUnavailable:
		return "cloud transcription failed and local transcription is disabled"
	case ReasonAllMethodsFailed:
		return "all transcription methods failed"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// AllProvidersFailedError is the terminal pipeline failure.
type AllProvidersFailedError struct {
	Reason FailureReason
	Causes []error
}

func (e *AllProvidersFailedError) Error() string {
	if len(e.Causes) == 0 {
		return "transcribe: " + e.Reason.String()
	}
	msgs := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		msgs[i] = c.Error()
	}
	return fmt.Sprintf("transcribe: %s: %s", e.Reason, strings.Join(msgs, "; "))
}

func (e *AllProvidersFailedError) Unwrap() []error { return e.Causes }

// Configuration reports whether the failure was caused by settings
// rather than by a runtime error.
func (e *AllProvidersFailedError) Configuration() bool {
	return e.Reason == ReasonBothDisabled
}

// PostProcessError reports a failed assistant call. Nothing is pasted.
type PostProcessError struct {
	Err error
}

func (e *PostProcessError) Error() string {
	return fmt.Sprintf("post-process: %v", e.Err)
}

func (e *PostProcessError) Unwrap() error { return e.Err }
