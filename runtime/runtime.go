package runtime

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-interp/engine"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/linker"
	"github.com/wippyai/wasm-interp/store"
)

// Runtime owns a store and a linker and loads modules into them.
type Runtime struct {
	config Config
	logger *zap.Logger
	store  *store.Store
	linker *linker.Linker
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithConfig sets the runtime limits.
func WithConfig(cfg Config) Option {
	return func(r *Runtime) { r.config = cfg }
}

// WithLogger routes engine, linker and runtime logs to l.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// New creates a runtime. Without WithLogger, a logger is built from the
// config's LogLevel.
func New(opts ...Option) (*Runtime, error) {
	r := &Runtime{config: DefaultConfig()}
	for _, opt := range opts {
		opt(r)
	}
	r.config = r.config.withDefaults()

	if r.logger == nil {
		l, err := r.config.Logger()
		if err != nil {
			return nil, err
		}
		r.logger = l
	}
	engine.SetLogger(r.logger.Named("engine"))
	linker.SetLogger(r.logger.Named("linker"))

	r.store = store.New()
	r.store.SetMaxMemoryPages(r.config.MaxMemoryPages)
	r.linker = linker.New(r.store, linker.Options{
		Module: engine.Options{MaxCallDepth: r.config.MaxCallDepth},
	})
	return r, nil
}

// Config returns the effective configuration.
func (r *Runtime) Config() Config { return r.config }

// Logger returns the runtime's logger.
func (r *Runtime) Logger() *zap.Logger { return r.logger }

// Linker returns the underlying linker.
func (r *Runtime) Linker() *linker.Linker { return r.linker }

// Host starts building a host module importable under name.
func (r *Runtime) Host(name string) *linker.HostModuleBuilder {
	return r.linker.NewHostModule(name)
}

// Load decodes, validates and registers a module. Linking happens on
// Link or on the first call.
func (r *Runtime) Load(ctx context.Context, name string, data []byte) (*Module, error) {
	m, err := r.linker.Load(ctx, name, data)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("module loaded", zap.String("module", name), zap.Int("bytes", len(data)))
	return &Module{runtime: r, module: m}, nil
}

// LoadFile loads a binary module named after the file's base name.
func (r *Runtime) LoadFile(ctx context.Context, path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read "+path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return r.Load(ctx, name, data)
}

// Link links the named module now rather than on first call.
func (r *Runtime) Link(ctx context.Context, name string) error {
	m := r.linker.Module(name)
	if m == nil {
		return errors.NotFound(errors.PhaseLinking, "module", name)
	}
	return r.linker.Link(ctx, m)
}

// Module returns the named module, or nil.
func (r *Runtime) Module(name string) *Module {
	m := r.linker.Module(name)
	if m == nil {
		return nil
	}
	return &Module{runtime: r, module: m}
}

// Modules returns registered module names in registration order.
func (r *Runtime) Modules() []string { return r.linker.Modules() }

// Call invokes an export of a registered module with Go arguments.
func (r *Runtime) Call(ctx context.Context, module, export string, args ...any) ([]any, error) {
	m := r.Module(module)
	if m == nil {
		return nil, errors.NotFound(errors.PhaseLinking, "module", module)
	}
	return m.Call(ctx, export, args...)
}
