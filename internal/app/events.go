// Package app orchestrates recording sessions: hotkeys in, text out.
package app

import (
	"go.aimuz.me/dawn/hotkey"
	"go.aimuz.me/dawn/internal/types"
)

// Event names broadcast to UI listeners.
const (
	EventRecordStart       = "record:start"
	EventRecordStop        = "record:stop"
	EventRecordCancel      = "record:cancel"
	EventTranscriptionAdd  = "transcription:add"
	EventTranscriptionErr  = "transcription:error"
	EventAudioLevel        = "audio:level"
	EventModelStatus       = "model:status"
	EventDownloadProgress  = "model:download-progress"
	EventDownloadError     = "model:download-error"
	EventContextCaptured   = "context:captured"
	EventAccessibilityPerm = "accessibility-permission"
)

// Emitter delivers events to UI listeners. Emit must not block.
type Emitter interface {
	Emit(name string, data any)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(name string, data any)

// Emit calls f(name, data).
func (f EmitterFunc) Emit(name string, data any) { f(name, data) }

// RecordEvent is the payload of the record:* events.
type RecordEvent struct {
	Mode hotkey.Mode `json:"mode"`
	At   int64       `json:"at"` // Unix milliseconds
}

// ContextEvent is the payload of context:captured.
type ContextEvent struct {
	Mode    hotkey.Mode           `json:"mode"`
	Context types.CapturedContext `json:"context"`
}

// ModelEvent is the payload of model:status and model:download-progress.
type ModelEvent struct {
	ModelID string `json:"modelId"`
	Data    any    `json:"data"`
}
