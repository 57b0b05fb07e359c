package engine

import (
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/store"
	"github.com/wippyai/wasm-interp/wasm"
)

// NewHostModule creates an empty module whose exports are implemented by
// the host. Host modules have no imports and are linked on creation.
func NewHostModule(name string, st *store.Store) *Module {
	m := newModule(name, nil, st, DefaultOptions())
	m.state = Linked
	return m
}

func (m *Module) hostOnly() error {
	if m.raw != nil {
		return errors.InvalidInput(errors.PhaseHost, "module "+m.name+" was decoded from a binary")
	}
	return nil
}

// AddHostFunction exports fn under name with signature ft.
func (m *Module) AddHostFunction(name string, ft wasm.FuncType, fn HostFunc) (*Function, error) {
	if err := m.hostOnly(); err != nil {
		return nil, err
	}
	if len(ft.Results) > 1 {
		return nil, errors.Unsupported(errors.PhaseHost, "host function "+name+" with multiple results")
	}
	typeIdx := m.symbols.AllocateFunctionType(ft.Params, ft.Results)
	f := &Function{module: m, typeIndex: typeIdx, name: m.name + "." + name, host: fn}
	idx := m.symbols.AddFunction(f)
	if err := m.symbols.AddExport(name, wasm.KindFunc, idx); err != nil {
		return nil, err
	}
	return f, nil
}

// AddGlobal exports a new global initialized to the raw bits v.
func (m *Module) AddGlobal(name string, t wasm.GlobalType, v uint64) (int, error) {
	if err := m.hostOnly(); err != nil {
		return 0, err
	}
	if !t.ValType.Valid() {
		return 0, errors.InvalidInput(errors.PhaseHost, "global "+name+" has invalid type")
	}
	addr := m.store.Globals.Alloc(t.ValType, t.Mutable)
	m.store.Globals.Store(addr, v)
	idx := m.symbols.addGlobal(globalEntry{typ: t.ValType, mutable: t.Mutable, state: GlobalDeclared, addr: addr})
	if err := m.symbols.AddExport(name, wasm.KindGlobal, idx); err != nil {
		return 0, err
	}
	return idx, nil
}

// AddMemory exports a new memory. A host module holds at most one.
func (m *Module) AddMemory(name string, min uint32, max *uint32) (*store.Memory, error) {
	if err := m.hostOnly(); err != nil {
		return nil, err
	}
	if m.memAddr >= 0 {
		return nil, errors.Unsupported(errors.PhaseHost, "more than one memory")
	}
	addr, err := m.store.AllocMemory(min, max)
	if err != nil {
		return nil, err
	}
	m.memAddr = addr
	if err := m.symbols.AddExport(name, wasm.KindMemory, 0); err != nil {
		return nil, err
	}
	return m.store.Memory(addr), nil
}

// AddTable exports a new table. A host module holds at most one.
func (m *Module) AddTable(name string, min uint32, max *uint32) (*store.Table, error) {
	if err := m.hostOnly(); err != nil {
		return nil, err
	}
	if m.tableAddr >= 0 {
		return nil, errors.Unsupported(errors.PhaseHost, "more than one table")
	}
	m.tableAddr = m.store.AllocTable(min, max)
	if err := m.symbols.AddExport(name, wasm.KindTable, 0); err != nil {
		return nil, err
	}
	return m.store.Table(m.tableAddr), nil
}
