package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/dawn/clipboard"
	"go.aimuz.me/dawn/config"
	"go.aimuz.me/dawn/hotkey"
	"go.aimuz.me/dawn/internal/types"
	"go.aimuz.me/dawn/models"
	"go.aimuz.me/dawn/serverpool"
)

var (
	// ErrStopped is returned by commands issued after the loop has exited.
	ErrStopped = errors.New("service stopped")
	// ErrModelInUse is returned when deleting the current or fallback model.
	ErrModelInUse = errors.New("model in use")
)

// Default context-capture timings.
const (
	DefaultContextTimeout = time.Second
	DefaultContextSettle  = 150 * time.Millisecond
)

// ─────────────────────────────────────────────────────────────────────────────
// Collaborators
// ─────────────────────────────────────────────────────────────────────────────

// Clipboard reads and writes the system clipboard and simulates the
// copy, paste and enter keystrokes.
type Clipboard interface {
	ReadText() (string, error)
	WriteText(text string) error
	SimulateCopy() error
	SimulatePaste() error
	SimulateEnter() error
}

// Transcriber resolves a recording into text.
type Transcriber interface {
	Resolve(ctx context.Context, req Request) (Result, error)
}

// ModelPool manages the local inference servers.
type ModelPool interface {
	ServerPool
	SwitchTo(ctx context.Context, modelID string) error
	Stop(modelID string)
	Current() string
	Snapshot() []serverpool.Status
}

// ModelStore installs and removes model files.
type ModelStore interface {
	Available() []models.Info
	Info(modelID string) models.Info
	Download(ctx context.Context, modelID string, progress func(models.Progress)) error
	Delete(modelID string) error
}

// HistorySink stores finished transcriptions.
type HistorySink interface {
	Add(t types.Transcription) error
	Recent(n int) ([]types.Transcription, error)
}

// Feedback plays tones and shows notifications.
type Feedback interface {
	RecordStart()
	RecordStop()
	Notify(message string)
}

// Muter silences system output while recording.
type Muter interface {
	Mute(ctx context.Context) error
	Restore(ctx context.Context) error
}

// Deps are the collaborators of a Service. Feedback, Muter, Screenshot
// and Emitter are optional.
type Deps struct {
	Config      *config.Config
	Recorder    Recorder
	Transcriber Transcriber
	Pool        ModelPool
	Models      ModelStore
	History     HistorySink
	Clipboard   Clipboard
	Feedback    Feedback
	Muter       Muter
	Screenshot  func() (string, error) // PNG data URL of the primary display
	Emitter     Emitter
}

// Options tunes session handling.
type Options struct {
	MinHold        time.Duration
	PromoteWindow  time.Duration
	ContextTimeout time.Duration
	ContextSettle  time.Duration
}

// DefaultOptions returns the default tuning.
func DefaultOptions() Options {
	return Options{
		MinHold:        hotkey.DefaultMinHold,
		PromoteWindow:  hotkey.DefaultPromoteWindow,
		ContextTimeout: DefaultContextTimeout,
		ContextSettle:  DefaultContextSettle,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// State
// ─────────────────────────────────────────────────────────────────────────────

// RecordingSession is the recording in progress.
type RecordingSession struct {
	ID        uint64
	Mode      hotkey.Mode
	StartedAt time.Time
	Context   *types.CapturedContext
}

// OrchestratorState is owned by the Service loop. Nothing else reads or
// writes it.
type OrchestratorState struct {
	Session    *RecordingSession
	Settings   *config.Config
	Muted      bool
	Processing int
}

// Status is a point-in-time view for UI listeners.
type Status struct {
	Recording    bool                `json:"recording"`
	Mode         string              `json:"mode,omitempty"`
	StartedAt    int64               `json:"startedAt,omitempty"`
	Processing   int                 `json:"processing"`
	CurrentModel string              `json:"currentModel"`
	Servers      []serverpool.Status `json:"servers"`
	Bindings     []hotkey.Binding    `json:"bindings"`
}

type job struct {
	session RecordingSession
	req     Request
	paste   clipboard.PasteOptions
	shot    bool
}

type jobResult struct {
	job job
	res Result
	err error
}

// ─────────────────────────────────────────────────────────────────────────────
// Service
// ─────────────────────────────────────────────────────────────────────────────

// Service turns hotkey sessions into pasted text. All state changes go
// through the loop started by Run.
type Service struct {
	deps     Deps
	opts     Options
	bindings *hotkey.Bindings
	machine  *hotkey.Machine
	paster   *clipboard.Paster
	sleep    func(ctx context.Context, d time.Duration) error

	cmds    chan func(*OrchestratorState)
	results chan jobResult
	quit    chan struct{}
	wg      sync.WaitGroup

	runOnce sync.Once
	nextID  uint64
}

// New creates a Service from deps. Bindings and mode toggles are taken
// from deps.Config.
func New(deps Deps, opts Options) *Service {
	if deps.Config == nil {
		deps.Config = config.Defaults()
	}
	if deps.Feedback == nil {
		deps.Feedback = nopFeedback{}
	}
	if deps.Muter == nil {
		deps.Muter = nopMuter{}
	}
	if deps.Emitter == nil {
		deps.Emitter = EmitterFunc(func(string, any) {})
	}
	d := DefaultOptions()
	if opts.MinHold <= 0 {
		opts.MinHold = d.MinHold
	}
	if opts.PromoteWindow <= 0 {
		opts.PromoteWindow = d.PromoteWindow
	}
	if opts.ContextTimeout <= 0 {
		opts.ContextTimeout = d.ContextTimeout
	}
	if opts.ContextSettle < 0 {
		opts.ContextSettle = d.ContextSettle
	}

	bindings := hotkey.NewBindings()
	s := &Service{
		deps:     deps,
		opts:     opts,
		bindings: bindings,
		machine:  hotkey.NewMachine(bindings, hotkey.MachineConfig{MinHold: opts.MinHold, PromoteWindow: opts.PromoteWindow}),
		sleep:    sleepCtx,
		cmds:     make(chan func(*OrchestratorState)),
		results:  make(chan jobResult),
		quit:     make(chan struct{}),
	}
	if deps.Clipboard != nil {
		s.paster = clipboard.NewPaster(deps.Clipboard)
	}
	s.applySettings(deps.Config)
	return s
}

// Bindings returns the live binding table.
func (s *Service) Bindings() *hotkey.Bindings { return s.bindings }

// Run processes key events and commands until ctx is done or keys is
// closed. An active recording is cancelled on exit.
func (s *Service) Run(ctx context.Context, keys <-chan hotkey.KeyEvent) error {
	started := false
	s.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("service already ran")
	}

	ctx, cancel := context.WithCancel(ctx)
	st := &OrchestratorState{Settings: s.deps.Config.Clone()}
	defer func() {
		s.endSession(ctx, st, time.Now(), false)
		close(s.quit)
		cancel()
		s.wg.Wait()
	}()

	var levels <-chan float32
	if s.deps.Recorder != nil {
		levels = s.deps.Recorder.Levels()
	}

	slog.Info("session loop started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-keys:
			if !ok {
				slog.Info("key events closed, stopping session loop")
				for _, e := range s.machine.Reset(time.Now()) {
					s.handle(ctx, st, e)
				}
				return nil
			}
			var events []hotkey.Event
			if ev.Down {
				events = s.machine.KeyDown(ev.Key, ev.At)
			} else {
				events = s.machine.KeyUp(ev.Key, ev.At)
			}
			for _, e := range events {
				s.handle(ctx, st, e)
			}

		case fn := <-s.cmds:
			fn(st)

		case r := <-s.results:
			st.Processing--
			s.complete(r)

		case lvl := <-levels:
			if st.Session != nil {
				s.emit(EventAudioLevel, lvl)
			}
		}
	}
}

// do runs fn on the loop and waits for it.
func (s *Service) do(ctx context.Context, fn func(st *OrchestratorState)) error {
	done := make(chan struct{})
	cmd := func(st *OrchestratorState) {
		defer close(done)
		fn(st)
	}
	select {
	case s.cmds <- cmd:
	case <-s.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

func (s *Service) emit(name string, data any) {
	s.deps.Emitter.Emit(name, data)
}

// ─────────────────────────────────────────────────────────────────────────────
// Sessions
// ─────────────────────────────────────────────────────────────────────────────

func (s *Service) handle(ctx context.Context, st *OrchestratorState, e hotkey.Event) {
	slog.Debug("hotkey event", "kind", e.Kind, "mode", e.Mode, "elapsed", e.Elapsed)
	switch e.Kind {
	case hotkey.EventStart:
		s.startSession(ctx, st, e)
	case hotkey.EventStop:
		s.stopSession(ctx, st, e)
	case hotkey.EventCancel:
		s.endSession(ctx, st, e.At, true)
	}
}

func (s *Service) startSession(ctx context.Context, st *OrchestratorState, e hotkey.Event) {
	s.nextID++
	sess := &RecordingSession{ID: s.nextID, Mode: e.Mode, StartedAt: e.At}

	if e.Mode == hotkey.ModeAssistant {
		cc, err := s.captureContext(ctx)
		if err != nil {
			slog.Warn("capture assistant context", "error", err)
			cc = types.CapturedContext{}
		}
		sess.Context = &cc
		s.emit(EventContextCaptured, ContextEvent{Mode: e.Mode, Context: cc})
	}

	if st.Settings.SoundEffects {
		s.deps.Feedback.RecordStart()
	}
	if st.Settings.AutoMute && !st.Muted {
		if err := s.deps.Muter.Mute(ctx); err != nil {
			slog.Warn("mute output", "error", err)
		} else {
			st.Muted = true
		}
	}

	if s.deps.Recorder == nil {
		s.fail(st, e.Mode, errors.New("no recorder configured"))
		return
	}
	if err := s.deps.Recorder.Start(); err != nil {
		slog.Error("start recording", "mode", e.Mode, "error", err)
		s.fail(st, e.Mode, err)
		return
	}

	st.Session = sess
	slog.Info("recording started", "mode", e.Mode)
	s.emit(EventRecordStart, RecordEvent{Mode: e.Mode, At: e.At.UnixMilli()})
}

// fail reports a session that could not start. The machine still tracks
// it as active; its stop or cancel is ignored since no session is stored.
func (s *Service) fail(st *OrchestratorState, mode hotkey.Mode, err error) {
	s.restoreVolume(context.Background(), st)
	s.reportError(mode, err)
}

func (s *Service) stopSession(ctx context.Context, st *OrchestratorState, e hotkey.Event) {
	sess := st.Session
	if sess == nil || sess.Mode != e.Mode {
		return
	}
	st.Session = nil

	audio, err := s.deps.Recorder.Stop()
	s.restoreVolume(ctx, st)
	if st.Settings.SoundEffects {
		s.deps.Feedback.RecordStop()
	}
	slog.Info("recording stopped", "mode", e.Mode, "elapsed", e.Elapsed)
	s.emit(EventRecordStop, RecordEvent{Mode: e.Mode, At: e.At.UnixMilli()})

	if err != nil {
		if !errors.Is(err, ErrNoSpeech) {
			slog.Error("stop recording", "error", err)
		}
		s.reportError(e.Mode, err)
		return
	}

	cfg := st.Settings
	j := job{
		session: *sess,
		req: Request{
			Audio:          audio,
			Mode:           sess.Mode,
			CloudEnabled:   cfg.CloudTranscription,
			LocalEnabled:   cfg.LocalTranscription,
			SmartEnabled:   cfg.SmartTranscription,
			SelectedModel:  cfg.SelectedModel,
			Language:       cfg.Language,
			AssistantModel: cfg.AssistantModel,
			Phrases:        cfg.PhraseReplacements,
			Context:        sess.Context,
		},
		paste: clipboard.PasteOptions{PressEnter: cfg.PressEnterAfter, KeepCopy: cfg.AutoCopy},
		shot:  sess.Mode == hotkey.ModeAssistant && cfg.AssistantScreenshotEnabled,
	}

	st.Processing++
	s.wg.Add(1)
	go s.process(ctx, j)
}

// endSession discards the active recording, if any.
func (s *Service) endSession(ctx context.Context, st *OrchestratorState, at time.Time, announce bool) {
	sess := st.Session
	if sess == nil {
		return
	}
	st.Session = nil

	s.deps.Recorder.Cancel()
	s.restoreVolume(ctx, st)
	slog.Info("recording cancelled", "mode", sess.Mode)
	if announce {
		s.emit(EventRecordCancel, RecordEvent{Mode: sess.Mode, At: at.UnixMilli()})
	}
}

func (s *Service) restoreVolume(ctx context.Context, st *OrchestratorState) {
	if !st.Muted {
		return
	}
	st.Muted = false
	if err := s.deps.Muter.Restore(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("restore volume", "error", err)
	}
}

// captureContext copies the current selection, bounded by ContextTimeout.
// The clipboard is restored afterwards.
func (s *Service) captureContext(ctx context.Context) (types.CapturedContext, error) {
	if s.deps.Clipboard == nil {
		return types.CapturedContext{}, &ContextCaptureError{Step: "clipboard", Err: errors.New("not configured")}
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.ContextTimeout)
	defer cancel()

	type outcome struct {
		cc  types.CapturedContext
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		cc, err := s.readSelection(ctx)
		ch <- outcome{cc, err}
	}()

	select {
	case o := <-ch:
		return o.cc, o.err
	case <-ctx.Done():
		return types.CapturedContext{}, &ContextCaptureError{Step: "wait", Err: ctx.Err()}
	}
}

func (s *Service) readSelection(ctx context.Context) (types.CapturedContext, error) {
	clip := s.deps.Clipboard
	before, err := clip.ReadText()
	if err != nil {
		return types.CapturedContext{}, &ContextCaptureError{Step: "read clipboard", Err: err}
	}
	if err := clip.SimulateCopy(); err != nil {
		return types.CapturedContext{}, &ContextCaptureError{Step: "copy selection", Err: err}
	}
	if err := s.sleep(ctx, s.opts.ContextSettle); err != nil {
		return types.CapturedContext{}, &ContextCaptureError{Step: "settle", Err: err}
	}
	after, err := clip.ReadText()
	if err != nil {
		return types.CapturedContext{}, &ContextCaptureError{Step: "read selection", Err: err}
	}
	if after == "" || after == before {
		return types.CapturedContext{}, nil
	}
	if err := clip.WriteText(before); err != nil {
		slog.Warn("restore clipboard", "error", err)
	}
	return types.CapturedContext{HasSelection: true, SelectedText: after}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline runs
// ─────────────────────────────────────────────────────────────────────────────

func (s *Service) process(ctx context.Context, j job) {
	defer s.wg.Done()

	res, err := s.run(ctx, j)
	select {
	case s.results <- jobResult{job: j, res: res, err: err}:
	case <-s.quit:
	}
}

func (s *Service) run(ctx context.Context, j job) (Result, error) {
	if j.shot && s.deps.Screenshot != nil {
		cc := types.CapturedContext{}
		if j.req.Context != nil {
			cc = *j.req.Context
		}
		if shot, err := s.deps.Screenshot(); err != nil {
			slog.Warn("capture screenshot", "error", err)
		} else {
			cc.Screenshot, cc.HasImage = shot, true
		}
		j.req.Context = &cc
	}

	if s.deps.Transcriber == nil {
		return Result{}, errors.New("no transcriber configured")
	}
	res, err := s.deps.Transcriber.Resolve(ctx, j.req)
	if err != nil {
		return Result{}, err
	}

	if s.paster != nil {
		if err := s.paster.Paste(res.Text, j.paste); err != nil {
			slog.Error("paste text", "error", err)
		}
	}
	return res, nil
}

// complete runs on the loop once a pipeline run finishes.
func (s *Service) complete(r jobResult) {
	mode := r.job.session.Mode
	if r.err != nil {
		if errors.Is(r.err, context.Canceled) {
			return
		}
		slog.Error("transcription failed", "mode", mode, "error", r.err)
		s.reportError(mode, r.err)
		return
	}

	t := types.Transcription{
		ID:        uuid.NewString(),
		Text:      r.res.Text,
		RawText:   r.res.RawText,
		Timestamp: time.Now().UnixMilli(),
		WordsIn:   r.res.WordsIn,
		WordsOut:  r.res.WordsOut,
		Duration:  r.res.Duration.Seconds(),
		Mode:      mode.String(),
		Provider:  r.res.Provider,
		Language:  r.res.Language,
	}
	if s.deps.History != nil {
		if err := s.deps.History.Add(t); err != nil {
			slog.Error("save transcription", "id", t.ID, "error", err)
		}
	}
	slog.Info("transcription done", "mode", mode, "provider", t.Provider, "words", t.WordsOut)
	s.emit(EventTranscriptionAdd, t)
}

func (s *Service) reportError(mode hotkey.Mode, err error) {
	te := types.TranscriptionError{Mode: mode.String(), Message: userMessage(err)}

	var all *AllProvidersFailedError
	if errors.As(err, &all) {
		te.Configuration = all.Configuration()
	}
	s.emit(EventTranscriptionErr, te)
	s.deps.Feedback.Notify(te.Message)
}

func userMessage(err error) string {
	var (
		all  *AllProvidersFailedError
		post *PostProcessError
	)
	switch {
	case errors.Is(err, ErrNoSpeech):
		return "No speech detected"
	case errors.As(err, &all):
		switch all.Reason {
		case ReasonBothDisabled:
			return "Both cloud and local transcription are disabled. Enable one in settings."
		case ReasonCloudFailedLocalUnavailable:
			return "Cloud transcription failed and local transcription is disabled."
		default:
			return "Transcription failed. Please try again."
		}
	case errors.As(err, &post):
		return "The assistant could not process your request."
	default:
		return fmt.Sprintf("Recording failed: %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Commands
// ─────────────────────────────────────────────────────────────────────────────

// Status returns the session and server state.
func (s *Service) Status(ctx context.Context) (Status, error) {
	var out Status
	err := s.do(ctx, func(st *OrchestratorState) {
		if st.Session != nil {
			out.Recording = true
			out.Mode = st.Session.Mode.String()
			out.StartedAt = st.Session.StartedAt.UnixMilli()
		}
		out.Processing = st.Processing
	})
	if err != nil {
		return Status{}, err
	}
	out.Bindings = s.bindings.Snapshot()
	if s.deps.Pool != nil {
		out.CurrentModel = s.deps.Pool.Current()
		out.Servers = s.deps.Pool.Snapshot()
	}
	return out, nil
}

// Settings returns a copy of the settings in effect.
func (s *Service) Settings(ctx context.Context) (*config.Config, error) {
	var out *config.Config
	err := s.do(ctx, func(st *OrchestratorState) { out = st.Settings.Clone() })
	return out, err
}

// UpdateSettings applies fn to a copy of the settings and makes the copy
// current. It returns the new settings for the caller to persist.
func (s *Service) UpdateSettings(ctx context.Context, fn func(c *config.Config)) (*config.Config, error) {
	var out *config.Config
	err := s.do(ctx, func(st *OrchestratorState) {
		next := st.Settings.Clone()
		fn(next)
		s.applySettings(next)
		for _, m := range hotkey.Modes() {
			next.SetHotkey(m, s.bindings.Get(m).Display)
		}
		st.Settings = next
		out = next.Clone()
	})
	return out, err
}

// Rebind assigns a chord to mode. A *hotkey.BindingParseError is returned
// when part of display was not understood; the recognized keys, or the
// default chord, are bound regardless.
func (s *Service) Rebind(ctx context.Context, mode hotkey.Mode, display string) (hotkey.Binding, error) {
	var perr error
	err := s.do(ctx, func(st *OrchestratorState) {
		perr = s.bindings.Rebind(mode, display)
		st.Settings.SetHotkey(mode, s.bindings.Get(mode).Display)
	})
	if err != nil {
		return hotkey.Binding{}, err
	}
	if perr != nil {
		slog.Warn("rebind hotkey", "mode", mode, "display", display, "error", perr)
	}
	return s.bindings.Get(mode), perr
}

func (s *Service) applySettings(cfg *config.Config) {
	for _, m := range hotkey.Modes() {
		if err := s.bindings.Rebind(m, cfg.Hotkey(m)); err != nil {
			slog.Warn("parse hotkey", "mode", m, "display", cfg.Hotkey(m), "error", err)
		}
		s.bindings.SetEnabled(m, cfg.ModeEnabled(m))
	}
	if d, ok := s.deps.Recorder.(interface{ SetDevice(string) }); ok {
		d.SetDevice(cfg.InputDevice)
	}
}

// SwitchModel makes modelID the primary local model. On failure the
// previous model stays current and the setting is unchanged.
func (s *Service) SwitchModel(ctx context.Context, modelID string) error {
	if s.deps.Pool == nil {
		return errors.New("no server pool configured")
	}
	if err := s.deps.Pool.SwitchTo(ctx, modelID); err != nil {
		return fmt.Errorf("switch model: %w", err)
	}
	return s.do(ctx, func(st *OrchestratorState) {
		st.Settings.SelectedModel = modelID
	})
}

// PoolChanged broadcasts a server state change. It is meant for
// serverpool.Pool.OnChange.
func (s *Service) PoolChanged(st serverpool.Status) {
	s.emit(EventModelStatus, ModelEvent{ModelID: st.ModelID, Data: st})
}

// PermissionChanged broadcasts the input-monitoring permission state.
func (s *Service) PermissionChanged(granted bool) {
	s.emit(EventAccessibilityPerm, granted)
}

// ListModels returns the catalog with install state.
func (s *Service) ListModels() []models.Info {
	if s.deps.Models == nil {
		return nil
	}
	return s.deps.Models.Available()
}

// DownloadModel installs modelID, broadcasting progress.
func (s *Service) DownloadModel(ctx context.Context, modelID string) error {
	if s.deps.Models == nil {
		return errors.New("no model store configured")
	}
	err := s.deps.Models.Download(ctx, modelID, func(p models.Progress) {
		s.emit(EventDownloadProgress, ModelEvent{ModelID: modelID, Data: p})
	})
	if err != nil {
		s.emit(EventDownloadError, ModelEvent{ModelID: modelID, Data: err.Error()})
		return fmt.Errorf("download model: %w", err)
	}
	return nil
}

// DeleteModel stops modelID's server and removes its files. The base
// model cannot be deleted.
func (s *Service) DeleteModel(modelID string) error {
	if s.deps.Models == nil {
		return errors.New("no model store configured")
	}
	if s.deps.Pool != nil {
		if modelID == s.deps.Pool.BaseModelID() {
			return fmt.Errorf("delete model %s: %w as fallback", modelID, ErrModelInUse)
		}
		if modelID == s.deps.Pool.Current() {
			return fmt.Errorf("delete model %s: %w", modelID, ErrModelInUse)
		}
		s.deps.Pool.Stop(modelID)
	}
	if err := s.deps.Models.Delete(modelID); err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	return nil
}

// History returns up to n recent transcriptions, newest first.
func (s *Service) History(n int) ([]types.Transcription, error) {
	if s.deps.History == nil {
		return nil, nil
	}
	return s.deps.History.Recent(n)
}

type nopFeedback struct{}

func (nopFeedback) RecordStart()  {}
func (nopFeedback) RecordStop()   {}
func (nopFeedback) Notify(string) {}

type nopMuter struct{}

func (nopMuter) Mute(context.Context) error    { return nil }
func (nopMuter) Restore(context.Context) error { return nil }
