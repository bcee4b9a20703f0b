// Package serverpool manages local WhisperKit inference servers, one child
// process per model, each on its own port.
//
// The base model's server is the permanent fallback: model switches never
// stop it. Concurrent requests to start the same model share one spawn.
package serverpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of a server instance.
type State uint8

const (
	StateStopped State = iota
	StateStarting
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "stopped"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Defaults for Config.
const (
	DefaultHost         = "127.0.0.1"
	DefaultBasePort     = 50060
	DefaultPortSpan     = 1000
	DefaultBaseModel    = "openai_whisper-base"
	DefaultGrace        = time.Second
	DefaultPollInterval = 500 * time.Millisecond
	DefaultMaxAttempts  = 360
	DefaultProbeTimeout = 2 * time.Second
	DefaultStopTimeout  = 3 * time.Second
)

// Config tunes the pool.
type Config struct {
	Host         string
	BasePort     int
	PortSpan     int
	BaseModelID  string
	Grace        time.Duration // wait after spawn before the first probe
	PollInterval time.Duration
	MaxAttempts  int
	ProbeTimeout time.Duration
	StopTimeout  time.Duration
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		Host:         DefaultHost,
		BasePort:     DefaultBasePort,
		PortSpan:     DefaultPortSpan,
		BaseModelID:  DefaultBaseModel,
		Grace:        DefaultGrace,
		PollInterval: DefaultPollInterval,
		MaxAttempts:  DefaultMaxAttempts,
		ProbeTimeout: DefaultProbeTimeout,
		StopTimeout:  DefaultStopTimeout,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.BasePort == 0 {
		c.BasePort = d.BasePort
	}
	if c.PortSpan <= 0 {
		c.PortSpan = d.PortSpan
	}
	if c.BaseModelID == "" {
		c.BaseModelID = d.BaseModelID
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = d.StopTimeout
	}
}

// Resolver locates a model's files on disk.
type Resolver interface {
	Resolve(modelID string) (path string, ok bool)
}

// Status is a snapshot of one instance.
type Status struct {
	ModelID string `json:"modelId"`
	Port    int    `json:"port"`
	State   State  `json:"state"`
	Current bool   `json:"current"`
	Base    bool   `json:"base"`
	Error   string `json:"error,omitempty"`
}

type instance struct {
	id     string
	port   int
	state  State
	proc   Process
	err    error
	cancel context.CancelFunc
	exited chan struct{}
}

// live reports whether the instance holds its port.
func (i *instance) live() bool {
	return i.state == StateStarting || i.state == StateReady
}

// Pool owns the server instances. It is safe for concurrent use.
type Pool struct {
	cfg      Config
	resolver Resolver
	launcher Launcher
	prober   Prober

	mu        sync.Mutex
	instances map[string]*instance
	current   string

	starts   singleflight.Group
	switchMu sync.Mutex

	// OnChange, if set, is called after every state transition. It runs
	// with the pool locked and must not block or call back into the Pool.
	OnChange func(Status)
}

// New creates a pool. Nothing is started until EnsureRunning or SwitchTo.
func New(cfg Config, resolver Resolver, launcher Launcher, prober Prober) *Pool {
	cfg.applyDefaults()
	return &Pool{
		cfg:       cfg,
		resolver:  resolver,
		launcher:  launcher,
		prober:    prober,
		instances: make(map[string]*instance),
	}
}

// BaseModelID returns the pinned fallback model.
func (p *Pool) BaseModelID() string {
	return p.cfg.BaseModelID
}

// EnsureRunning returns once modelID's server is ready.
//
// At most one spawn per model is in flight; concurrent callers wait on the
// same attempt and receive the same result. ctx bounds only this caller's
// wait, not the spawn itself.
func (p *Pool) EnsureRunning(ctx context.Context, modelID string) error {
	if p.IsReady(modelID) {
		return nil
	}

	ch := p.starts.DoChan(modelID, func() (any, error) {
		return nil, p.start(modelID)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SwitchTo makes modelID the current model. The previous current model is
// stopped unless it is modelID or the base model. On failure the current
// model and all instances are left as they were.
func (p *Pool) SwitchTo(ctx context.Context, modelID string) error {
	p.switchMu.Lock()
	defer p.switchMu.Unlock()

	if _, ok := p.resolver.Resolve(modelID); !ok {
		return fmt.Errorf("switch to %s: %w", modelID, ErrModelNotInstalled)
	}
	if err := p.EnsureRunning(ctx, modelID); err != nil {
		return fmt.Errorf("switch to %s: %w", modelID, err)
	}

	p.mu.Lock()
	prev := p.current
	p.current = modelID
	p.mu.Unlock()

	slog.Info("model switched", "from", prev, "to", modelID)

	if prev != "" && prev != modelID && prev != p.cfg.BaseModelID {
		p.Stop(prev)
	}
	return nil
}

// Current returns the current model, or "" before the first switch.
func (p *Pool) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// IsReady reports whether modelID's server is ready. It never blocks on a
// start in progress.
func (p *Pool) IsReady(modelID string) bool {
	return p.State(modelID) == StateReady
}

// State returns modelID's state. Unknown models are StateStopped.
func (p *Pool) State(modelID string) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if inst, ok := p.instances[modelID]; ok {
		return inst.state
	}
	return StateStopped
}

// BaseURL returns the HTTP endpoint of a ready server.
func (p *Pool) BaseURL(modelID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	inst, ok := p.instances[modelID]
	if !ok || inst.state != StateReady {
		return "", false
	}
	return p.baseURL(inst.port), true
}

// Snapshot returns the status of every known instance, ordered by model id.
func (p *Pool) Snapshot() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Status, 0, len(p.instances))
	for _, inst := range p.instances {
		out = append(out, p.statusLocked(inst))
	}
	slices.SortFunc(out, func(a, b Status) int {
		return strings.Compare(a.ModelID, b.ModelID)
	})
	return out
}

// Stop terminates modelID's server, if any, and waits briefly for it to exit.
func (p *Pool) Stop(modelID string) {
	p.mu.Lock()
	inst, ok := p.instances[modelID]
	if ok {
		delete(p.instances, modelID)
	}
	if p.current == modelID {
		p.current = ""
	}
	p.mu.Unlock()

	if ok {
		p.terminate(inst)
	}
}

// StopAll terminates every server and forgets the current model. It is
// idempotent.
func (p *Pool) StopAll() {
	p.mu.Lock()
	all := make([]*instance, 0, len(p.instances))
	for _, inst := range p.instances {
		all = append(all, inst)
	}
	clear(p.instances)
	p.current = ""
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, inst := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.terminate(inst)
		}()
	}
	wg.Wait()
}

// ─────────────────────────────────────────────────────────────────────────────
// Internals
// ─────────────────────────────────────────────────────────────────────────────

func (p *Pool) start(modelID string) error {
	p.mu.Lock()
	if inst, ok := p.instances[modelID]; ok {
		if inst.state == StateReady {
			p.mu.Unlock()
			return nil
		}
		// Failed instances are retried from scratch.
		delete(p.instances, modelID)
	}

	path, ok := p.resolver.Resolve(modelID)
	if !ok {
		p.mu.Unlock()
		return &SpawnError{ModelID: modelID, Err: ErrModelNotInstalled}
	}

	port, ok := p.allocPortLocked(modelID)
	if !ok {
		p.mu.Unlock()
		return &SpawnError{ModelID: modelID, Err: ErrNoFreePort}
	}

	ctx, cancel := context.WithCancel(context.Background())
	inst := &instance{
		id:     modelID,
		port:   port,
		state:  StateStarting,
		cancel: cancel,
		exited: make(chan struct{}),
	}
	p.instances[modelID] = inst
	p.notifyLocked(inst)
	p.mu.Unlock()

	slog.Info("start server", "model", modelID, "port", inst.port)

	proc, err := p.launcher.Launch(ctx, LaunchSpec{
		ModelID:   modelID,
		ModelPath: path,
		Host:      p.cfg.Host,
		Port:      inst.port,
	})
	if err != nil {
		cancel()
		close(inst.exited)
		err = &SpawnError{ModelID: modelID, Err: err}
		p.fail(inst, err)
		return err
	}

	p.mu.Lock()
	inst.proc = proc
	p.mu.Unlock()

	go func() {
		werr := proc.Wait()
		close(inst.exited)
		p.exited(inst, werr)
	}()

	if err := p.waitReady(ctx, inst); err != nil {
		cancel()
		_ = proc.Kill()
		p.fail(inst, err)
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.instances[modelID] != inst {
		return ErrStopped
	}
	inst.state = StateReady
	p.notifyLocked(inst)
	slog.Info("server ready", "model", modelID, "port", inst.port)
	return nil
}

func (p *Pool) waitReady(ctx context.Context, inst *instance) error {
	url := p.baseURL(inst.port)

	if err := p.sleep(ctx, inst, p.cfg.Grace); err != nil {
		return err
	}

	var last error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		pctx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
		last = p.prober.Probe(pctx, url)
		cancel()
		if last == nil {
			return nil
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}
		if err := p.sleep(ctx, inst, p.cfg.PollInterval); err != nil {
			return err
		}
	}

	return &ReadinessTimeoutError{
		ModelID:  inst.id,
		Port:     inst.port,
		Attempts: p.cfg.MaxAttempts,
		Err:      last,
	}
}

// sleep waits for d unless the start is cancelled or the process exits.
func (p *Pool) sleep(ctx context.Context, inst *instance, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ErrStopped
		case <-inst.exited:
			return &SpawnError{ModelID: inst.id, Err: errors.New("process exited before ready")}
		default:
			return nil
		}
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ErrStopped
	case <-inst.exited:
		return &SpawnError{ModelID: inst.id, Err: errors.New("process exited before ready")}
	case <-t.C:
		return nil
	}
}

func (p *Pool) fail(inst *instance, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.instances[inst.id] != inst {
		return
	}
	inst.state = StateFailed
	inst.err = err
	p.notifyLocked(inst)
	slog.Error("start server", "model", inst.id, "port", inst.port, "error", err)
}

// exited handles a process exit. A ready server that dies is forgotten so
// the next EnsureRunning starts a fresh one.
func (p *Pool) exited(inst *instance, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.instances[inst.id] != inst || inst.state != StateReady {
		return
	}
	delete(p.instances, inst.id)
	inst.state = StateStopped
	p.notifyLocked(inst)
	slog.Warn("server exited", "model", inst.id, "port", inst.port, "error", err)
}

func (p *Pool) terminate(inst *instance) {
	inst.cancel()

	p.mu.Lock()
	proc := inst.proc
	wasLive := inst.live()
	inst.state = StateStopped
	p.notifyLocked(inst)
	p.mu.Unlock()

	if proc == nil {
		return
	}
	if err := proc.Kill(); err != nil {
		slog.Warn("kill server", "model", inst.id, "error", err)
	}

	t := time.NewTimer(p.cfg.StopTimeout)
	defer t.Stop()
	select {
	case <-inst.exited:
	case <-t.C:
		slog.Warn("server did not exit in time", "model", inst.id)
	}
	if wasLive {
		slog.Info("server stopped", "model", inst.id, "port", inst.port)
	}
}

func (p *Pool) allocPortLocked(modelID string) (int, bool) {
	port := PortFor(modelID, p.cfg.BaseModelID, p.cfg.BasePort, p.cfg.PortSpan)
	if modelID == p.cfg.BaseModelID {
		return port, true
	}

	used := make(map[int]bool, len(p.instances))
	for id, inst := range p.instances {
		if id != modelID && inst.live() {
			used[inst.port] = true
		}
	}
	return nextFree(port, p.cfg.BasePort, p.cfg.PortSpan, used)
}

func (p *Pool) baseURL(port int) string {
	return fmt.Sprintf("http://%s:%d", p.cfg.Host, port)
}

func (p *Pool) statusLocked(inst *instance) Status {
	s := Status{
		ModelID: inst.id,
		Port:    inst.port,
		State:   inst.state,
		Current: inst.id == p.current,
		Base:    inst.id == p.cfg.BaseModelID,
	}
	if inst.err != nil {
		s.Error = inst.err.Error()
	}
	return s
}

func (p *Pool) notifyLocked(inst *instance) {
	if p.OnChange == nil {
		return
	}
	s := p.statusLocked(inst)
	p.OnChange(s)
}
