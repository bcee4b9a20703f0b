package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"go.aimuz.me/dawn/audiocapture"
	"go.aimuz.me/dawn/cache"
	"go.aimuz.me/dawn/clipboard"
	"go.aimuz.me/dawn/config"
	"go.aimuz.me/dawn/feedback"
	"go.aimuz.me/dawn/history"
	"go.aimuz.me/dawn/hotkey"
	"go.aimuz.me/dawn/internal/app"
	"go.aimuz.me/dawn/internal/bridge"
	"go.aimuz.me/dawn/langdetect"
	"go.aimuz.me/dawn/llm"
	"go.aimuz.me/dawn/models"
	"go.aimuz.me/dawn/screenshot"
	"go.aimuz.me/dawn/serverpool"
	"go.aimuz.me/dawn/stt"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fs := flag.NewFlagSet("dawn", flag.ExitOnError)
	showVersion := fs.Bool("version", false, "print version and exit")
	env.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("dawn %s (%s, %s)\n", version, commit, date)
		return
	}

	setupLogger(env.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, env); err != nil {
		slog.Error("dawn exited", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      l,
		TimeFormat: time.Kitchen,
	})))
}

// ─────────────────────────────────────────────────────────────────────────────
// Wiring
// ─────────────────────────────────────────────────────────────────────────────

func run(ctx context.Context, env *config.Env) error {
	slog.Info("starting dawn", "version", version, "commit", commit)

	cfg, err := loadConfig(env.ConfigFile)
	if err != nil {
		return err
	}

	dataDir := env.DataDir
	if dataDir == "" {
		dataDir = filepath.Dir(cfg.Path())
	}

	c, err := cache.New(filepath.Join(dataDir, "cache"))
	if err != nil {
		slog.Warn("open cache, enhancements will not be cached", "error", err)
		c = nil
	} else {
		defer c.Close()
	}

	hist, err := history.Open(filepath.Join(dataDir, "history"))
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer hist.Close()

	// Models and local servers
	userDir, err := models.DefaultUserDir()
	if err != nil {
		return err
	}
	store := models.NewStore(userDir, env.BundledModels)

	poolCfg := serverpool.DefaultConfig()
	poolCfg.Grace = env.ReadyGrace
	poolCfg.PollInterval = env.ReadyInterval
	poolCfg.MaxAttempts = env.ReadyMaxAttempts
	bin := env.WhisperKitBin
	if bin == "" {
		bin = serverpool.FindBinary()
	}
	if bin == "" {
		slog.Warn("whisperkit-cli not found, local transcription unavailable")
	}
	pool := serverpool.New(poolCfg, store,
		&serverpool.ExecLauncher{BinaryPath: bin, Verbose: env.LogLevel == "debug"},
		&serverpool.HTTPProber{})
	defer pool.StopAll()

	// Transcription
	providers := stt.NewRegistry()
	providers.Register(stt.NewCloud(stt.CloudConfig{
		APIKey:  env.GroqAPIKey,
		BaseURL: env.CloudBaseURL,
		Model:   env.CloudModel,
	}))
	if env.GroqAPIKey == "" {
		slog.Warn("GROQ_API_KEY not set, cloud transcription unavailable")
	}

	pdeps := app.PipelineDeps{
		Providers: providers,
		Pool:      pool,
		Detector:  langdetect.Default(),
		Assistant: func(model string) app.Assistant {
			return llm.NewAssistant(llm.NewCompleter(env.GroqAPIKey, env.LLMBaseURL, model, llm.Options{}))
		},
	}
	if env.GroqAPIKey != "" {
		pdeps.Enhancer = llm.NewEnhancer(
			llm.NewCompleter(env.GroqAPIKey, env.LLMBaseURL, env.EnhanceModel, llm.Options{Temperature: 0.1}),
			env.EnhanceModel, c)
	}
	pipeline := app.NewPipeline(app.DefaultPipelineConfig(), pdeps)

	// Audio
	capture := audiocapture.New(audiocapture.DefaultConfig())
	recorder := app.NewMicRecorder(capture, audiocapture.DefaultSilenceThreshold)

	muter := feedback.NewMuter()
	if cfg.AutoMute && !muter.Supported() {
		slog.Info("auto-mute is not supported on this platform")
	}

	hub := bridge.NewHub()
	svc := app.New(app.Deps{
		Config:      cfg,
		Recorder:    recorder,
		Transcriber: pipeline,
		Pool:        pool,
		Models:      store,
		History:     hist,
		Clipboard:   clipboard.NewSystem(),
		Feedback:    feedback.New(),
		Muter:       muter,
		Screenshot:  screenshot.CaptureDataURL,
		Emitter:     hub,
	}, app.Options{
		MinHold:        env.MinHold,
		ContextTimeout: env.ContextTimeout,
		ContextSettle:  env.ContextSettle,
	})
	pool.OnChange = svc.PoolChanged

	listener := hotkey.NewListener()
	listener.SetStatusCallback(svc.PermissionChanged)
	keys, err := listener.Start()
	if err != nil {
		slog.Error("start hotkey listener", "error", err)
	}
	defer listener.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := svc.Run(gctx, keys); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("session loop: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return bridge.NewServer(svc, hub).ListenAndServe(gctx, env.ListenAddr)
	})
	g.Go(func() error {
		warmUp(gctx, svc, cfg)
		return nil
	})

	err = g.Wait()
	slog.Info("shutting down")
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// warmUp starts the selected local model so the first recording does not
// pay for the server spawn.
func warmUp(ctx context.Context, svc *app.Service, cfg *config.Config) {
	if !cfg.LocalTranscription || strings.TrimSpace(cfg.SelectedModel) == "" {
		return
	}
	if err := svc.SwitchModel(ctx, cfg.SelectedModel); err != nil {
		if ctx.Err() == nil {
			slog.Warn("warm up local model", "model", cfg.SelectedModel, "error", err)
		}
		return
	}
	slog.Info("local model ready", "model", cfg.SelectedModel)
}
