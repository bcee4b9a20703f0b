package app

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"go.aimuz.me/dawn/config"
	"go.aimuz.me/dawn/hotkey"
	"go.aimuz.me/dawn/internal/types"
	"go.aimuz.me/dawn/models"
	"go.aimuz.me/dawn/serverpool"
	"go.aimuz.me/dawn/stt"
)

type fakeRecorder struct {
	mu         sync.Mutex
	starts     int
	stops      int
	cancels    int
	startErr   error
	stopErr    error
	levels     chan float32
	lastDevice string
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{levels: make(chan float32, 8)}
}

func (r *fakeRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return r.startErr
}

func (r *fakeRecorder) Stop() (stt.Audio, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	if r.stopErr != nil {
		return stt.Audio{}, r.stopErr
	}
	return stt.Audio{Data: []byte("RIFF"), MIMEType: stt.WAVMIMEType, Duration: time.Second}, nil
}

func (r *fakeRecorder) Cancel() {
	r.mu.Lock()
	r.cancels++
	r.mu.Unlock()
}

func (r *fakeRecorder) Levels() <-chan float32 { return r.levels }

func (r *fakeRecorder) SetDevice(name string) {
	r.mu.Lock()
	r.lastDevice = name
	r.mu.Unlock()
}

func (r *fakeRecorder) counts() (starts, stops, cancels int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops, r.cancels
}

// fakeClipboard models a clipboard where the copy keystroke copies selection.
type fakeClipboard struct {
	mu        sync.Mutex
	text      string
	selection string
	copyErr   error
	pasted    []string
}

func (c *fakeClipboard) ReadText() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, nil
}

func (c *fakeClipboard) WriteText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	return nil
}

func (c *fakeClipboard) SimulateCopy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.copyErr != nil {
		return c.copyErr
	}
	if c.selection != "" {
		c.text = c.selection
	}
	return nil
}

func (c *fakeClipboard) SimulatePaste() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pasted = append(c.pasted, c.text)
	return nil
}

func (c *fakeClipboard) SimulateEnter() error { return nil }

func (c *fakeClipboard) snapshot() (string, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, slices.Clone(c.pasted)
}

type fakeTranscriber struct {
	mu   sync.Mutex
	res  Result
	err  error
	reqs []Request
}

func (f *fakeTranscriber) Resolve(_ context.Context, req Request) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.res, f.err
}

func (f *fakeTranscriber) requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.reqs)
}

type fakeHistory struct {
	mu    sync.Mutex
	items []types.Transcription
}

func (h *fakeHistory) Add(t types.Transcription) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, t)
	return nil
}

func (h *fakeHistory) Recent(n int) ([]types.Transcription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.items[:min(n, len(h.items))]), nil
}

type fakeMuter struct {
	mu    sync.Mutex
	calls []string
}

func (m *fakeMuter) Mute(context.Context) error {
	m.mu.Lock()
	m.calls = append(m.calls, "mute")
	m.mu.Unlock()
	return nil
}

func (m *fakeMuter) Restore(context.Context) error {
	m.mu.Lock()
	m.calls = append(m.calls, "restore")
	m.mu.Unlock()
	return nil
}

type fakeFeedback struct {
	mu    sync.Mutex
	notes []string
}

func (f *fakeFeedback) RecordStart() {}
func (f *fakeFeedback) RecordStop()  {}
func (f *fakeFeedback) Notify(msg string) {
	f.mu.Lock()
	f.notes = append(f.notes, msg)
	f.mu.Unlock()
}

type emitted struct {
	name string
	data any
}

// eventLog records emitted events and lets tests wait for one.
type eventLog struct {
	ch chan emitted
}

func newEventLog() *eventLog { return &eventLog{ch: make(chan emitted, 64)} }

func (l *eventLog) Emit(name string, data any) { l.ch <- emitted{name, data} }

// next returns the next event that is not audio:level.
func (l *eventLog) next(t *testing.T) emitted {
	t.Helper()
	for {
		select {
		case e := <-l.ch:
			if e.name == EventAudioLevel {
				continue
			}
			return e
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
			return emitted{}
		}
	}
}

func (l *eventLog) expect(t *testing.T, names ...string) []emitted {
	t.Helper()
	var out []emitted
	for _, want := range names {
		e := l.next(t)
		if e.name != want {
			t.Fatalf("event = %q (%+v), want %q", e.name, e.data, want)
		}
		out = append(out, e)
	}
	return out
}

func (l *eventLog) none(t *testing.T) {
	t.Helper()
	select {
	case e := <-l.ch:
		t.Fatalf("unexpected event %q (%+v)", e.name, e.data)
	default:
	}
}

type harness struct {
	svc     *Service
	keys    chan hotkey.KeyEvent
	rec     *fakeRecorder
	clip    *fakeClipboard
	tx      *fakeTranscriber
	history *fakeHistory
	muter   *fakeMuter
	fb      *fakeFeedback
	events  *eventLog
	cancel  context.CancelFunc
	done    chan error
}

var epoch = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	if cfg == nil {
		cfg = config.Defaults()
	}
	h := &harness{
		keys:    make(chan hotkey.KeyEvent),
		rec:     newFakeRecorder(),
		clip:    &fakeClipboard{},
		tx:      &fakeTranscriber{res: Result{Text: "hello world", RawText: "hello world", WordsIn: 2, WordsOut: 2, Duration: time.Second, Provider: "cloud", Language: "en"}},
		history: &fakeHistory{},
		muter:   &fakeMuter{},
		fb:      &fakeFeedback{},
		events:  newEventLog(),
		done:    make(chan error, 1),
	}
	h.svc = New(Deps{
		Config:      cfg,
		Recorder:    h.rec,
		Transcriber: h.tx,
		History:     h.history,
		Clipboard:   h.clip,
		Feedback:    h.fb,
		Muter:       h.muter,
		Screenshot:  func() (string, error) { return "data:image/png;base64,AAAA", nil },
		Emitter:     h.events,
	}, Options{})
	h.svc.sleep = func(context.Context, time.Duration) error { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.svc.Run(ctx, h.keys) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func (h *harness) down(k hotkey.Key, ms int) {
	h.keys <- hotkey.KeyEvent{Key: k, Down: true, At: epoch.Add(time.Duration(ms) * time.Millisecond)}
}

func (h *harness) up(k hotkey.Key, ms int) {
	h.keys <- hotkey.KeyEvent{Key: k, Down: false, At: epoch.Add(time.Duration(ms) * time.Millisecond)}
}

// sync waits until the loop has handled everything sent so far.
func (h *harness) sync(t *testing.T) Status {
	t.Helper()
	st, err := h.svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	return st
}

func TestServicePushToTalkQuickReleaseCancels(t *testing.T) {
	h := newHarness(t, nil)

	h.down(hotkey.KeyLeftAlt, 0)
	h.up(hotkey.KeyLeftAlt, 150)
	h.sync(t)

	h.events.expect(t, EventRecordStart, EventRecordCancel)
	h.events.none(t)
	if starts, stops, cancels := h.rec.counts(); starts != 1 || stops != 0 || cancels != 1 {
		t.Errorf("recorder starts/stops/cancels = %d/%d/%d, want 1/0/1", starts, stops, cancels)
	}
	if len(h.tx.requests()) != 0 {
		t.Error("cancelled session reached the pipeline")
	}
	if !slices.Equal(h.muter.calls, []string{"mute", "restore"}) {
		t.Errorf("muter calls = %v", h.muter.calls)
	}
}

func TestServicePushToTalkTranscribes(t *testing.T) {
	h := newHarness(t, nil)

	h.down(hotkey.KeyRightAlt, 0)
	h.up(hotkey.KeyRightAlt, 250)

	evs := h.events.expect(t, EventRecordStart, EventRecordStop, EventTranscriptionAdd)
	tr := evs[2].data.(types.Transcription)
	if tr.Text != "hello world" || tr.Mode != "push-to-talk" || tr.ID == "" || tr.Duration != 1 {
		t.Errorf("transcription = %+v", tr)
	}

	if _, pasted := h.clip.snapshot(); !slices.Equal(pasted, []string{"hello world"}) {
		t.Errorf("pasted = %v", pasted)
	}
	items, _ := h.svc.History(10)
	if len(items) != 1 || items[0].ID != tr.ID {
		t.Errorf("history = %+v", items)
	}

	reqs := h.tx.requests()
	if len(reqs) != 1 {
		t.Fatalf("pipeline calls = %d", len(reqs))
	}
	cfg := config.Defaults()
	if r := reqs[0]; r.Mode != hotkey.ModePushToTalk || r.CloudEnabled != cfg.CloudTranscription ||
		r.LocalEnabled != cfg.LocalTranscription || r.SelectedModel != cfg.SelectedModel || r.Context != nil {
		t.Errorf("request = %+v", r)
	}
}

func TestServiceToggleMode(t *testing.T) {
	h := newHarness(t, nil)

	// Option is a prefix of the transcription chord: PTT starts and is
	// promoted once Shift+Z complete the chord.
	h.down(hotkey.KeyLeftAlt, 0)
	h.down(hotkey.KeyLeftShift, 20)
	h.down(hotkey.KeyZ, 40)
	h.up(hotkey.KeyZ, 100)
	h.up(hotkey.KeyLeftShift, 110)
	h.up(hotkey.KeyLeftAlt, 120)

	st := h.sync(t)
	if !st.Recording || st.Mode != "transcription" {
		t.Fatalf("status = %+v, want recording transcription", st)
	}
	evs := h.events.expect(t, EventRecordStart, EventRecordCancel, EventRecordStart)
	if evs[2].data.(RecordEvent).Mode != hotkey.ModeTranscription {
		t.Errorf("promoted to %v", evs[2].data)
	}

	// The assistant chord is ignored while transcription is active.
	h.down(hotkey.KeyLeftAlt, 1000)
	h.down(hotkey.KeyLeftShift, 1010)
	h.down(hotkey.KeyS, 1020)
	h.up(hotkey.KeyS, 1050)
	h.sync(t)
	h.events.none(t)

	// Z completes the transcription chord again and stops the session.
	h.down(hotkey.KeyZ, 1100)
	h.events.expect(t, EventRecordStop, EventTranscriptionAdd)

	if starts, stops, _ := h.rec.counts(); starts != 2 || stops != 1 {
		t.Errorf("recorder starts/stops = %d/%d, want 2/1", starts, stops)
	}
}

func pressAssistant(h *harness, at int) {
	h.down(hotkey.KeyLeftAlt, at)
	h.down(hotkey.KeyLeftShift, at+10)
	h.down(hotkey.KeyS, at+20)
	h.up(hotkey.KeyS, at+30)
	h.up(hotkey.KeyLeftShift, at+40)
	h.up(hotkey.KeyLeftAlt, at+50)
}

func TestServiceAssistantCapturesContext(t *testing.T) {
	cfg := config.Defaults()
	cfg.AssistantScreenshotEnabled = true
	h := newHarness(t, cfg)
	h.clip.text = "previous clipboard"
	h.clip.selection = "teh quick fox"

	pressAssistant(h, 0)
	evs := h.events.expect(t, EventRecordStart, EventRecordCancel, EventContextCaptured, EventRecordStart)
	cc := evs[2].data.(ContextEvent).Context
	if !cc.HasSelection || cc.SelectedText != "teh quick fox" {
		t.Errorf("captured = %+v", cc)
	}
	if text, _ := h.clip.snapshot(); text != "previous clipboard" {
		t.Errorf("clipboard after capture = %q, want restored", text)
	}

	pressAssistant(h, 2000)
	h.events.expect(t, EventRecordStop, EventTranscriptionAdd)

	reqs := h.tx.requests()
	if len(reqs) != 1 {
		t.Fatalf("pipeline calls = %d", len(reqs))
	}
	got := reqs[0].Context
	if got == nil || got.SelectedText != "teh quick fox" || !got.HasImage || got.Screenshot == "" {
		t.Errorf("request context = %+v", got)
	}
	if reqs[0].Mode != hotkey.ModeAssistant {
		t.Errorf("mode = %v", reqs[0].Mode)
	}
}

func TestServiceContextCaptureFailureProceeds(t *testing.T) {
	h := newHarness(t, nil)
	h.clip.copyErr = errors.New("accessibility denied")

	pressAssistant(h, 0)
	evs := h.events.expect(t, EventRecordStart, EventRecordCancel, EventContextCaptured, EventRecordStart)
	if cc := evs[2].data.(ContextEvent).Context; cc.HasSelection {
		t.Errorf("captured = %+v, want empty", cc)
	}
	if st := h.sync(t); !st.Recording || st.Mode != "assistant" {
		t.Errorf("status = %+v", st)
	}
}

func TestServiceNoSpeech(t *testing.T) {
	h := newHarness(t, nil)
	h.rec.stopErr = ErrNoSpeech

	h.down(hotkey.KeyLeftAlt, 0)
	h.up(hotkey.KeyLeftAlt, 500)

	evs := h.events.expect(t, EventRecordStart, EventRecordStop, EventTranscriptionErr)
	te := evs[2].data.(types.TranscriptionError)
	if te.Message != "No speech detected" || te.Configuration {
		t.Errorf("error event = %+v", te)
	}
	h.sync(t)
	if len(h.tx.requests()) != 0 {
		t.Error("silent recording reached the pipeline")
	}
	h.fb.mu.Lock()
	defer h.fb.mu.Unlock()
	if !slices.Equal(h.fb.notes, []string{"No speech detected"}) {
		t.Errorf("notifications = %v", h.fb.notes)
	}
}

func TestServicePipelineFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.tx.err = &AllProvidersFailedError{Reason: ReasonBothDisabled}

	h.down(hotkey.KeyLeftAlt, 0)
	h.up(hotkey.KeyLeftAlt, 500)

	evs := h.events.expect(t, EventRecordStart, EventRecordStop, EventTranscriptionErr)
	if te := evs[2].data.(types.TranscriptionError); !te.Configuration {
		t.Errorf("error event = %+v, want configuration failure", te)
	}
	if _, pasted := h.clip.snapshot(); len(pasted) != 0 {
		t.Errorf("pasted %v after failure", pasted)
	}
	if items, _ := h.svc.History(10); len(items) != 0 {
		t.Errorf("history = %+v", items)
	}
}

func TestServiceRecorderStartFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.rec.startErr = errors.New("no input device")

	h.down(hotkey.KeyLeftAlt, 0)
	h.up(hotkey.KeyLeftAlt, 500)
	h.sync(t)

	h.events.expect(t, EventTranscriptionErr)
	h.events.none(t)
	if _, stops, cancels := h.rec.counts(); stops != 0 || cancels != 0 {
		t.Errorf("stops/cancels = %d/%d for a session that never started", stops, cancels)
	}
}

func TestServiceRebind(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	b, err := h.svc.Rebind(ctx, hotkey.ModePushToTalk, "Ctrl ⌃ + Space ␣")
	if err != nil {
		t.Fatalf("Rebind() error = %v", err)
	}
	cfg, _ := h.svc.Settings(ctx)
	if cfg.Hotkeys.PushToTalk != b.Display {
		t.Errorf("settings hotkey = %q, want %q", cfg.Hotkeys.PushToTalk, b.Display)
	}
	if cfg.Hotkeys.Transcription != config.Defaults().Hotkeys.Transcription {
		t.Errorf("rebinding push-to-talk changed transcription: %q", cfg.Hotkeys.Transcription)
	}

	// Option alone no longer starts anything.
	h.down(hotkey.KeyLeftAlt, 0)
	h.up(hotkey.KeyLeftAlt, 300)
	h.sync(t)
	h.events.none(t)

	_, err = h.svc.Rebind(ctx, hotkey.ModeAssistant, "Hyper")
	var perr *hotkey.BindingParseError
	if !errors.As(err, &perr) || !perr.Fallback {
		t.Fatalf("Rebind(garbage) error = %v, want fallback *BindingParseError", err)
	}
	if got := h.svc.Bindings().Get(hotkey.ModeAssistant).Chord; !got.Equal(hotkey.DefaultChord()) {
		t.Errorf("assistant chord = %v, want default", got)
	}
}

func TestServiceUpdateSettingsDisablesMode(t *testing.T) {
	h := newHarness(t, nil)

	cfg, err := h.svc.UpdateSettings(context.Background(), func(c *config.Config) {
		c.PushToTalk = false
		c.InputDevice = "USB Mic"
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PushToTalk {
		t.Error("returned settings still enable push-to-talk")
	}

	h.down(hotkey.KeyLeftAlt, 0)
	h.up(hotkey.KeyLeftAlt, 400)
	h.sync(t)
	h.events.none(t)

	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	if h.rec.lastDevice != "USB Mic" {
		t.Errorf("device = %q", h.rec.lastDevice)
	}
}

type fakeModelPool struct {
	fakePool
	mu        sync.Mutex
	current   string
	switchErr error
	stopped   []string
}

func (p *fakeModelPool) SwitchTo(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.switchErr != nil {
		return p.switchErr
	}
	p.current = id
	return nil
}

func (p *fakeModelPool) Stop(id string) {
	p.mu.Lock()
	p.stopped = append(p.stopped, id)
	p.mu.Unlock()
}

func (p *fakeModelPool) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *fakeModelPool) Snapshot() []serverpool.Status { return nil }

type fakeModelStore struct {
	deleted []string
}

func (s *fakeModelStore) Available() []models.Info   { return nil }
func (s *fakeModelStore) Info(id string) models.Info { return models.Info{ID: id} }

func (s *fakeModelStore) Delete(id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeModelStore) Download(_ context.Context, id string, progress func(models.Progress)) error {
	progress(models.Progress{ModelID: id, Percent: 100})
	return nil
}

func TestServiceModels(t *testing.T) {
	pool := &fakeModelPool{fakePool: fakePool{base: "base"}, current: "base"}
	store := &fakeModelStore{}
	events := newEventLog()
	svc := New(Deps{Pool: pool, Models: store, Emitter: events}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx, nil) }()
	defer func() {
		cancel()
		<-done
	}()

	pool.switchErr = serverpool.ErrModelNotInstalled
	if err := svc.SwitchModel(ctx, "turbo"); !errors.Is(err, serverpool.ErrModelNotInstalled) {
		t.Fatalf("SwitchModel() error = %v", err)
	}
	cfg, _ := svc.Settings(ctx)
	if cfg.SelectedModel != config.Defaults().SelectedModel {
		t.Errorf("failed switch changed selected model to %q", cfg.SelectedModel)
	}

	pool.switchErr = nil
	if err := svc.SwitchModel(ctx, "turbo"); err != nil {
		t.Fatalf("SwitchModel() error = %v", err)
	}
	cfg, _ = svc.Settings(ctx)
	if cfg.SelectedModel != "turbo" {
		t.Errorf("selected model = %q", cfg.SelectedModel)
	}

	if err := svc.DeleteModel("base"); err == nil {
		t.Error("DeleteModel(base) succeeded")
	}
	if err := svc.DeleteModel("turbo"); err == nil {
		t.Error("DeleteModel(current) succeeded")
	}
	if err := svc.DeleteModel("large"); err != nil {
		t.Fatalf("DeleteModel() error = %v", err)
	}
	if !slices.Equal(pool.stopped, []string{"large"}) || !slices.Equal(store.deleted, []string{"large"}) {
		t.Errorf("stopped %v, deleted %v", pool.stopped, store.deleted)
	}

	if err := svc.DownloadModel(ctx, "large"); err != nil {
		t.Fatal(err)
	}
	e := events.next(t)
	if e.name != EventDownloadProgress || e.data.(ModelEvent).ModelID != "large" {
		t.Errorf("event = %+v", e)
	}

	svc.PoolChanged(serverpool.Status{ModelID: "turbo", State: serverpool.StateReady})
	if e := events.next(t); e.name != EventModelStatus {
		t.Errorf("event = %+v", e)
	}
}

func TestServiceStopped(t *testing.T) {
	svc := New(Deps{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := svc.Status(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Status() after stop error = %v, want ErrStopped", err)
	}
}

func TestServiceKeysClosedCancelsSession(t *testing.T) {
	h := newHarness(t, nil)

	h.down(hotkey.KeyLeftAlt, 0)
	h.sync(t)
	close(h.keys)

	var err error
	select {
	case err = <-h.done:
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after keys closed")
	}
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	h.events.expect(t, EventRecordStart, EventRecordCancel)
	if _, _, cancels := h.rec.counts(); cancels != 1 {
		t.Errorf("recorder cancels = %d, want 1", cancels)
	}
}
