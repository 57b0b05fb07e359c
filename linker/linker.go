package linker

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-interp/engine"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/store"
	"github.com/wippyai/wasm-interp/wasm"
)

// Options configures linker behavior.
type Options struct {
	// Module is applied to every module decoded by Load.
	Module engine.Options
}

// DefaultOptions returns default linker configuration.
func DefaultOptions() Options {
	return Options{Module: engine.DefaultOptions()}
}

// deferredGlobal is a global import whose exporter was not linked when
// the importer's imports were bound.
type deferredGlobal struct {
	module *engine.Module
	imp    engine.Import
}

// Linker resolves imports between registered modules sharing one store.
// Thread-safe.
type Linker struct {
	store    *store.Store
	modules  map[string]*engine.Module
	order    []string
	deferred []deferredGlobal
	options  Options
	mu       sync.RWMutex
}

// New creates a Linker whose modules allocate in st.
func New(st *store.Store, opts Options) *Linker {
	return &Linker{
		store:   st,
		modules: make(map[string]*engine.Module),
		options: opts,
	}
}

// NewWithDefaults creates a Linker with a fresh store and default options.
func NewWithDefaults() *Linker {
	return New(store.New(), DefaultOptions())
}

// Store returns the shared store.
func (l *Linker) Store() *store.Store { return l.store }

// Options returns the configuration.
func (l *Linker) Options() Options { return l.options }

// Register makes m importable under its name. m is linked through l the
// first time one of its functions is called.
func (l *Linker) Register(m *engine.Module) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	name := m.Name()
	if _, dup := l.modules[name]; dup {
		return errors.New(errors.PhaseLinking, errors.KindRegistration).Path(name).
			Detail("module already registered").Build()
	}
	l.modules[name] = m
	l.order = append(l.order, name)
	m.SetLinker(l)
	Logger().Debug("module registered", zap.String("module", name), zap.Int("imports", len(m.Imports())))
	return nil
}

// Load decodes data in the linker's store and registers the result.
// The module is not linked.
func (l *Linker) Load(ctx context.Context, name string, data []byte) (*engine.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := engine.Decode(name, data, l.store, l.options.Module)
	if err != nil {
		return nil, err
	}
	if err := l.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Module returns the registered module with the given name, or nil.
func (l *Linker) Module(name string) *engine.Module {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.modules[name]
}

// Modules returns registered module names in registration order.
func (l *Linker) Modules() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.order...)
}

// Pending returns "importer#module.name" for every global import still
// waiting on its exporter to link.
func (l *Linker) Pending() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.deferred))
	for _, d := range l.deferred {
		out = append(out, d.module.Name()+"#"+d.imp.Module+"."+d.imp.Name)
	}
	return out
}

// Link binds m's imports, resolves deferred globals, applies segments and
// runs the start function. Linking a linked module is a no-op. A failed
// bind leaves m retryable; a failed start function does not.
func (l *Linker) Link(ctx context.Context, m *engine.Module) error {
	switch m.State() {
	case engine.Linked:
		return nil
	case engine.LinkFailed:
		return m.Instantiate(ctx)
	}

	l.mu.Lock()
	err := l.bindImports(m)
	if err == nil {
		m.MarkImportsBound()
		l.drain()
	}
	l.mu.Unlock()
	if err != nil {
		Logger().Debug("link refused", zap.String("module", m.Name()), zap.Error(err))
		return linkError("bind", m.Name(), "unresolved imports", err)
	}

	// The start function may call into modules that are linked on demand,
	// so instantiation runs without the lock.
	if err := m.Instantiate(ctx); err != nil {
		return err
	}
	Logger().Debug("module linked", zap.String("module", m.Name()))

	l.mu.Lock()
	l.drain()
	l.mu.Unlock()
	return nil
}

// bindImports binds every import of m. Missing modules and exports are
// collected into one MissingImportsError; other failures are combined
// with it.
func (l *Linker) bindImports(m *engine.Module) error {
	var (
		errs    error
		missing []string
	)
	l.forget(m)
	for _, imp := range m.Imports() {
		key := imp.Module + "#" + imp.Name
		exporter := l.modules[imp.Module]
		if exporter == nil {
			missing = append(missing, key)
			continue
		}
		exp, ok := exporter.Export(imp.Name)
		if !ok {
			missing = append(missing, key)
			continue
		}
		if exp.Kind != imp.Kind {
			errs = multierr.Append(errs, errors.Link(errors.KindTypeMismatch, m.Name(), key,
				"import is a %s, export is a %s", kindName(imp.Kind), kindName(exp.Kind)))
			continue
		}
		errs = multierr.Append(errs, l.bind(m, imp, exporter, exp.Index))
	}
	if len(missing) > 0 {
		errs = multierr.Append(errs, errors.NewMissingImportsError(missing))
	}
	return errs
}

func (l *Linker) bind(m *engine.Module, imp engine.Import, exporter *engine.Module, idx int) error {
	switch imp.Kind {
	case wasm.KindFunc:
		f, err := exporter.Function(idx)
		if err != nil {
			return err
		}
		return m.BindFunction(imp, f)
	case wasm.KindTable:
		addr, ok := exporter.TableAddr()
		if !ok {
			return errors.Link(errors.KindNotInitialized, m.Name(), imp.Module+"#"+imp.Name, "exporter has no table")
		}
		return m.BindTable(imp, addr)
	case wasm.KindMemory:
		addr, ok := exporter.MemoryAddr()
		if !ok {
			return errors.Link(errors.KindNotInitialized, m.Name(), imp.Module+"#"+imp.Name, "exporter has no memory")
		}
		return m.BindMemory(imp, addr)
	case wasm.KindGlobal:
		addr, ok := exporter.GlobalAddr(idx)
		if ok {
			if err := m.CheckGlobal(imp, addr); err != nil {
				return err
			}
			if exporter.State() == engine.Linked {
				return m.BindGlobal(imp, addr)
			}
		}
		l.deferred = append(l.deferred, deferredGlobal{module: m, imp: imp})
		Logger().Info("global resolution deferred",
			zap.String("module", m.Name()),
			zap.String("import", imp.Module+"#"+imp.Name),
			zap.String("exporter_state", exporter.State().String()),
		)
	}
	return nil
}

// forget drops m's queued resolutions before its imports are bound again.
func (l *Linker) forget(m *engine.Module) {
	kept := l.deferred[:0]
	for _, d := range l.deferred {
		if d.module != m {
			kept = append(kept, d)
		}
	}
	l.deferred = kept
}

// drain binds queued globals whose exporters are now linked and copies
// initializers whose sources became available.
func (l *Linker) drain() {
	kept := l.deferred[:0]
	for _, d := range l.deferred {
		exporter := l.modules[d.imp.Module]
		if exporter == nil || exporter.State() != engine.Linked {
			kept = append(kept, d)
			continue
		}
		exp, _ := exporter.Export(d.imp.Name)
		addr, ok := exporter.GlobalAddr(exp.Index)
		if !ok {
			kept = append(kept, d)
			continue
		}
		if err := d.module.BindGlobal(d.imp, addr); err != nil {
			Logger().Warn("deferred global rejected", zap.String("module", d.module.Name()), zap.Error(err))
			continue
		}
		Logger().Info("deferred global resolved",
			zap.String("module", d.module.Name()),
			zap.String("import", d.imp.Module+"#"+d.imp.Name),
			zap.Int("addr", addr),
		)
	}
	l.deferred = kept

	for _, name := range l.order {
		m := l.modules[name]
		for _, init := range m.PendingInits() {
			done, err := m.CompleteInit(init)
			if err != nil {
				Logger().Warn("global initializer failed", zap.String("module", name), zap.Error(err))
				continue
			}
			if done {
				Logger().Debug("global initialized", zap.String("module", name), zap.Int("global", init.Global))
			}
		}
	}
}

func kindName(k byte) string {
	switch k {
	case wasm.KindFunc:
		return "function"
	case wasm.KindTable:
		return "table"
	case wasm.KindMemory:
		return "memory"
	case wasm.KindGlobal:
		return "global"
	}
	return "unknown"
}
