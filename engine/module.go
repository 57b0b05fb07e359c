package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/store"
	"github.com/wippyai/wasm-interp/wasm"
)

// LinkState tracks a module's progress through linking.
type LinkState uint8

const (
	// Unlinked modules have not had their imports bound.
	Unlinked LinkState = iota
	// ImportsBound modules have every import bound but may still wait on
	// deferred globals.
	ImportsBound
	// Linked modules are initialized and may execute.
	Linked
	// LinkFailed modules failed segment initialization or their start
	// function.
	LinkFailed
)

func (s LinkState) String() string {
	switch s {
	case Unlinked:
		return "unlinked"
	case ImportsBound:
		return "imports-bound"
	case Linked:
		return "linked"
	case LinkFailed:
		return "link-failed"
	default:
		return fmt.Sprintf("LinkState(%d)", uint8(s))
	}
}

// Linker resolves a module's imports. Modules call it lazily before their
// first execution.
type Linker interface {
	Link(ctx context.Context, m *Module) error
}

// Options configures decoded modules.
type Options struct {
	// MaxCallDepth bounds nested calls per top-level call. Zero selects
	// DefaultMaxCallDepth.
	MaxCallDepth int
}

// DefaultOptions returns the default module configuration.
func DefaultOptions() Options {
	return Options{MaxCallDepth: DefaultMaxCallDepth}
}

// Import is one entry of a module's import section. Index is the position
// in the index space of Kind.
type Import struct {
	Module string
	Name   string
	Kind   byte
	Index  int

	TypeIndex int
	Global    wasm.GlobalType
	Table     wasm.TableType
	Memory    wasm.MemoryType
}

// GlobalInit is a module-defined global waiting for the imported global it
// is initialized from.
type GlobalInit struct {
	Global int
	Source int
}

// Module is a decoded module bound to a store.
type Module struct {
	name    string
	data    []byte
	raw     *wasm.Module
	symbols *SymbolTable
	store   *store.Store
	opts    Options

	imports     []Import
	memAddr     int
	tableAddr   int
	memImported bool
	tabImported bool
	pending     []GlobalInit

	state   LinkState
	linkErr error
	linker  Linker
}

func newModule(name string, data []byte, st *store.Store, opts Options) *Module {
	return &Module{
		name:      name,
		data:      data,
		symbols:   NewSymbolTable(),
		store:     st,
		opts:      opts,
		memAddr:   -1,
		tableAddr: -1,
	}
}

// Name returns the module's registration name.
func (m *Module) Name() string { return m.name }

// Data returns the binary the module was decoded from.
func (m *Module) Data() []byte { return m.data }

// Store returns the store holding the module's globals, memory and table.
func (m *Module) Store() *store.Store { return m.store }

// Symbols returns the module's symbol table.
func (m *Module) Symbols() *SymbolTable { return m.symbols }

// State returns the module's link state.
func (m *Module) State() LinkState { return m.state }

// SetLinker installs the linker used to link m lazily.
func (m *Module) SetLinker(l Linker) { m.linker = l }

// Imports returns the module's imports in declaration order.
func (m *Module) Imports() []Import {
	return append([]Import(nil), m.imports...)
}

// Export looks up an export by name.
func (m *Module) Export(name string) (Export, bool) {
	return m.symbols.Export(name)
}

// Exports returns every export in declaration order.
func (m *Module) Exports() []Export {
	return m.symbols.Exports()
}

// Function returns the function at idx in the module's index space.
func (m *Module) Function(idx int) (*Function, error) {
	return m.symbols.Function(idx)
}

// ExportedFunction returns the function exported under name.
func (m *Module) ExportedFunction(name string) (*Function, error) {
	e, ok := m.symbols.Export(name)
	if !ok || e.Kind != wasm.KindFunc {
		return nil, errors.NotFound(errors.PhaseLinking, "function export", m.name+"."+name)
	}
	return m.symbols.Function(e.Index)
}

// GlobalType returns the type of global idx.
func (m *Module) GlobalType(idx int) (wasm.GlobalType, error) {
	g, err := m.symbols.global(idx)
	if err != nil {
		return wasm.GlobalType{}, err
	}
	return wasm.GlobalType{ValType: g.typ, Mutable: g.mutable}, nil
}

// GlobalState returns the resolution state of global idx.
func (m *Module) GlobalState(idx int) (GlobalState, error) {
	g, err := m.symbols.global(idx)
	if err != nil {
		return 0, err
	}
	return g.state, nil
}

// GlobalAddr returns the store slot of global idx and whether its value is
// available.
func (m *Module) GlobalAddr(idx int) (int, bool) {
	g, err := m.symbols.global(idx)
	if err != nil || g.addr < 0 {
		return -1, false
	}
	return g.addr, g.state.Resolved()
}

// GlobalValue returns the raw bits of global idx.
func (m *Module) GlobalValue(idx int) (uint64, error) {
	g, err := m.symbols.global(idx)
	if err != nil {
		return 0, err
	}
	if !g.state.Resolved() {
		return 0, errors.New(errors.PhaseLinking, errors.KindPendingGlobal).
			Path(m.name).Value(idx).Detail("global %d is %s", idx, g.state).Build()
	}
	return m.store.Globals.Load(g.addr), nil
}

// SetGlobalValue writes the raw bits of mutable global idx.
func (m *Module) SetGlobalValue(idx int, v uint64) error {
	g, err := m.symbols.global(idx)
	if err != nil {
		return err
	}
	if !g.mutable {
		return errors.New(errors.PhaseRuntime, errors.KindImmutable).
			Path(m.name).Detail("global %d is immutable", idx).Build()
	}
	if !g.state.Resolved() {
		return errors.New(errors.PhaseLinking, errors.KindPendingGlobal).
			Path(m.name).Detail("global %d is %s", idx, g.state).Build()
	}
	m.store.Globals.Store(g.addr, v)
	return nil
}

// MemoryAddr returns the store address of the module's memory.
func (m *Module) MemoryAddr() (int, bool) { return m.memAddr, m.memAddr >= 0 }

// TableAddr returns the store address of the module's table.
func (m *Module) TableAddr() (int, bool) { return m.tableAddr, m.tableAddr >= 0 }

// Memory returns the module's memory, or nil.
func (m *Module) Memory() *store.Memory { return m.store.Memory(m.memAddr) }

// Table returns the module's table, or nil.
func (m *Module) Table() *store.Table { return m.store.Table(m.tableAddr) }

func (m *Module) linkError(kind errors.Kind, imp Import, format string, args ...any) error {
	return errors.New(errors.PhaseLinking, kind).Path(m.name, imp.Module, imp.Name).
		Detail(format, args...).Build()
}

// BindFunction binds the imported function imp to target after checking
// their signatures match.
func (m *Module) BindFunction(imp Import, target *Function) error {
	f, err := m.symbols.Function(imp.Index)
	if err != nil {
		return err
	}
	if target.TypeKey() != f.TypeKey() {
		return m.linkError(errors.KindTypeMismatch, imp, "function type %s, export has %s", f.TypeKey(), target.TypeKey())
	}
	f.bind(target)
	return nil
}

// BindTable binds the imported table to the table at addr.
func (m *Module) BindTable(imp Import, addr int) error {
	t := m.store.Table(addr)
	if t == nil {
		return m.linkError(errors.KindNotFound, imp, "no table at address %d", addr)
	}
	if err := checkLimits(imp.Table.Limits, t.Size(), t.Max); err != nil {
		return m.linkError(errors.KindTypeMismatch, imp, "table %s", err)
	}
	m.tableAddr = addr
	return nil
}

// BindMemory binds the imported memory to the memory at addr.
func (m *Module) BindMemory(imp Import, addr int) error {
	mem := m.store.Memory(addr)
	if mem == nil {
		return m.linkError(errors.KindNotFound, imp, "no memory at address %d", addr)
	}
	if err := checkLimits(imp.Memory.Limits, mem.Pages(), mem.Max); err != nil {
		return m.linkError(errors.KindTypeMismatch, imp, "memory %s", err)
	}
	m.memAddr = addr
	return nil
}

// CheckGlobal reports whether the slot at addr can satisfy the global
// import imp.
func (m *Module) CheckGlobal(imp Import, addr int) error {
	g := &m.store.Globals
	if addr < 0 || addr >= g.Len() {
		return m.linkError(errors.KindNotFound, imp, "no global at address %d", addr)
	}
	if g.Type(addr) != imp.Global.ValType || g.Mutable(addr) != imp.Global.Mutable {
		return m.linkError(errors.KindTypeMismatch, imp, "global type %s (mutable %t), export has %s (mutable %t)",
			imp.Global.ValType, imp.Global.Mutable, g.Type(addr), g.Mutable(addr))
	}
	return nil
}

// BindGlobal resolves the imported global to the slot at addr.
func (m *Module) BindGlobal(imp Import, addr int) error {
	if err := m.CheckGlobal(imp, addr); err != nil {
		return err
	}
	g, err := m.symbols.global(imp.Index)
	if err != nil {
		return err
	}
	g.addr = addr
	g.state = GlobalImportedResolved
	return nil
}

func checkLimits(want wasm.Limits, size uint32, max *uint32) error {
	if size < want.Min {
		return fmt.Errorf("size %d below imported minimum %d", size, want.Min)
	}
	if want.Max != nil {
		if max == nil {
			return fmt.Errorf("export has no maximum, import requires %d", *want.Max)
		}
		if *max > *want.Max {
			return fmt.Errorf("maximum %d above imported maximum %d", *max, *want.Max)
		}
	}
	return nil
}

// MarkImportsBound records that phase one of linking succeeded.
func (m *Module) MarkImportsBound() {
	if m.state == Unlinked {
		m.state = ImportsBound
	}
}

// PendingInits returns the globals still waiting on an imported source.
func (m *Module) PendingInits() []GlobalInit {
	return append([]GlobalInit(nil), m.pending...)
}

// CompleteInit copies the value of init's source into its global once the
// source is resolved. It reports whether init was completed.
func (m *Module) CompleteInit(init GlobalInit) (bool, error) {
	src, err := m.symbols.global(init.Source)
	if err != nil {
		return false, err
	}
	if !src.state.Resolved() {
		return false, nil
	}
	dst, err := m.symbols.global(init.Global)
	if err != nil {
		return false, err
	}
	m.store.Globals.Store(dst.addr, m.store.Globals.Load(src.addr))
	dst.state = GlobalDeclared
	for i, p := range m.pending {
		if p == init {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			break
		}
	}
	return true, nil
}

func (m *Module) ensureLinked(ctx context.Context) error {
	switch m.state {
	case Linked:
		return nil
	case LinkFailed:
		return m.linkErr
	}
	if m.linker != nil {
		return m.linker.Link(ctx, m)
	}
	if len(m.imports) > 0 {
		return errors.New(errors.PhaseLinking, errors.KindNotInitialized).
			Path(m.name).Detail("module has %d imports and no linker", len(m.imports)).Build()
	}
	m.MarkImportsBound()
	return m.Instantiate(ctx)
}

// Instantiate applies element and data segments and runs the start
// function. Every import must be bound and every deferred global
// resolved. It is a no-op for linked modules.
func (m *Module) Instantiate(ctx context.Context) error {
	switch m.state {
	case Linked:
		return nil
	case LinkFailed:
		return m.linkErr
	case Unlinked:
		return errors.New(errors.PhaseLinking, errors.KindNotInitialized).
			Path(m.name).Detail("imports are not bound").Build()
	}
	if len(m.pending) > 0 {
		return errors.New(errors.PhaseLinking, errors.KindPendingGlobal).
			Path(m.name).Detail("%d globals wait on unresolved imports", len(m.pending)).Build()
	}
	for _, imp := range m.imports {
		if imp.Kind != wasm.KindGlobal {
			continue
		}
		if _, ok := m.GlobalAddr(imp.Index); !ok {
			return errors.New(errors.PhaseLinking, errors.KindPendingGlobal).
				Path(m.name, imp.Module, imp.Name).Detail("imported global is unresolved").Build()
		}
	}
	if err := m.initSegments(); err != nil {
		m.state = LinkFailed
		m.linkErr = err
		return err
	}
	m.state = Linked
	Logger().Debug("module linked", zap.String("module", m.name))

	if idx, ok := m.symbols.Start(); ok {
		start := m.symbols.funcs[idx]
		if _, err := start.Call(ctx); err != nil {
			m.state = LinkFailed
			m.linkErr = errors.New(errors.PhaseLinking, errors.KindInstantiation).
				Path(m.name).Cause(err).Detail("start function %s failed", start.Name()).Build()
			return m.linkErr
		}
	}
	return nil
}
