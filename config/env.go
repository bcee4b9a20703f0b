package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Env holds process-level settings read from .env, the environment and flags.
type Env struct {
	GroqAPIKey string `env:"GROQ_API_KEY"`

	CloudBaseURL string `env:"DAWN_CLOUD_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	CloudModel   string `env:"DAWN_CLOUD_MODEL" envDefault:"whisper-large-v3-turbo"`
	LLMBaseURL   string `env:"DAWN_LLM_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	EnhanceModel string `env:"DAWN_ENHANCE_MODEL" envDefault:"llama-3.1-8b-instant"`

	WhisperKitBin string `env:"DAWN_WHISPERKIT_BIN"`     // empty searches PATH
	BundledModels string `env:"DAWN_BUNDLED_MODELS"`     // read-only models shipped with the app
	DataDir       string `env:"DAWN_DATA_DIR"`           // history and cache; empty uses the config dir
	ConfigFile    string `env:"DAWN_CONFIG"`             // empty uses the user config dir
	ListenAddr    string `env:"DAWN_LISTEN_ADDR" envDefault:"127.0.0.1:7717"`
	LogLevel      string `env:"DAWN_LOG_LEVEL" envDefault:"info"`

	MinHold        time.Duration `env:"DAWN_MIN_HOLD" envDefault:"200ms"`
	ContextTimeout time.Duration `env:"DAWN_CONTEXT_TIMEOUT" envDefault:"1s"`
	ContextSettle  time.Duration `env:"DAWN_CONTEXT_SETTLE" envDefault:"150ms"`

	ReadyGrace       time.Duration `env:"DAWN_READY_GRACE" envDefault:"1s"`
	ReadyInterval    time.Duration `env:"DAWN_READY_INTERVAL" envDefault:"500ms"`
	ReadyMaxAttempts int           `env:"DAWN_READY_MAX_ATTEMPTS" envDefault:"360"`
}

// LoadEnv reads .env (if present) and the environment.
func LoadEnv() (*Env, error) {
	_ = godotenv.Load()

	var e Env
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &e, nil
}

// RegisterFlags binds command-line flags that override the environment.
func (e *Env) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&e.ListenAddr, "listen", e.ListenAddr, "address of the UI bridge")
	fs.StringVar(&e.LogLevel, "log-level", e.LogLevel, "log level: debug|info|warn|error")
	fs.StringVar(&e.ConfigFile, "config", e.ConfigFile, "settings file")
	fs.StringVar(&e.DataDir, "data-dir", e.DataDir, "directory for history and cache")
	fs.StringVar(&e.WhisperKitBin, "whisperkit-bin", e.WhisperKitBin, "path to whisperkit-cli")
	fs.StringVar(&e.BundledModels, "bundled-models", e.BundledModels, "directory of bundled models")
	fs.DurationVar(&e.MinHold, "min-hold", e.MinHold, "push-to-talk presses shorter than this are cancelled")
	fs.DurationVar(&e.ContextTimeout, "context-timeout", e.ContextTimeout, "budget for capturing assistant context")
	fs.DurationVar(&e.ContextSettle, "context-settle", e.ContextSettle, "wait after the copy keystroke")
	fs.DurationVar(&e.ReadyGrace, "ready-grace", e.ReadyGrace, "wait before the first readiness probe")
	fs.DurationVar(&e.ReadyInterval, "ready-interval", e.ReadyInterval, "interval between readiness probes")
	fs.IntVar(&e.ReadyMaxAttempts, "ready-max-attempts", e.ReadyMaxAttempts, "readiness probes before giving up")
}
