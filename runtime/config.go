package runtime

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/mstoykov/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-interp/engine"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wasm"
)

// Config holds the runtime limits. Zero fields fall back to defaults.
type Config struct {
	// MaxCallDepth bounds nested calls before a call_stack_exhausted trap.
	MaxCallDepth int `toml:"max_call_depth" envconfig:"WASMI_MAX_CALL_DEPTH"`
	// MaxMemoryPages caps every memory's size in 64 KiB pages.
	MaxMemoryPages uint32 `toml:"max_memory_pages" envconfig:"WASMI_MAX_MEMORY_PAGES"`
	// LogLevel is a zap level name; empty disables logging.
	LogLevel string `toml:"log_level" envconfig:"WASMI_LOG_LEVEL"`
}

// DefaultConfig returns the built-in limits.
func DefaultConfig() Config {
	return Config{
		MaxCallDepth:   engine.DefaultMaxCallDepth,
		MaxMemoryPages: wasm.MaxPages,
	}
}

// LoadConfig reads a TOML file over the defaults, then applies WASMI_*
// environment overrides. An empty path skips the file. lookup replaces
// os.LookupEnv when non-nil.
func LoadConfig(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Load("read config", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Load("parse config "+path, err)
		}
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := envconfig.Process("", &cfg, lookup); err != nil {
		return cfg, errors.Load("environment config", err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxCallDepth <= 0 {
		c.MaxCallDepth = d.MaxCallDepth
	}
	if c.MaxMemoryPages == 0 || c.MaxMemoryPages > d.MaxMemoryPages {
		c.MaxMemoryPages = d.MaxMemoryPages
	}
	return c
}

// Logger builds a production logger at LogLevel, or a no-op logger when
// LogLevel is empty.
func (c Config) Logger() (*zap.Logger, error) {
	if c.LogLevel == "" {
		return zap.NewNop(), nil
	}
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "log level: "+err.Error())
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
