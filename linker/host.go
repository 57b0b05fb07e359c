package linker

import (
	"go.uber.org/multierr"

	"github.com/wippyai/wasm-interp/engine"
	"github.com/wippyai/wasm-interp/wasm"
)

// HostModuleBuilder collects host functions, globals, a memory and a table
// into a module other modules can import.
type HostModuleBuilder struct {
	linker *Linker
	module *engine.Module
	err    error
}

// NewHostModule starts building a host module with the given name.
func (l *Linker) NewHostModule(name string) *HostModuleBuilder {
	return &HostModuleBuilder{
		linker: l,
		module: engine.NewHostModule(name, l.store),
	}
}

// Func adds a function to the host module builder.
func (b *HostModuleBuilder) Func(name string, params, results []wasm.ValType, fn engine.HostFunc) *HostModuleBuilder {
	_, err := b.module.AddHostFunction(name, wasm.FuncType{Params: params, Results: results}, fn)
	b.err = multierr.Append(b.err, err)
	return b
}

// Global adds a global holding the raw bits v.
func (b *HostModuleBuilder) Global(name string, t wasm.ValType, mutable bool, v uint64) *HostModuleBuilder {
	_, err := b.module.AddGlobal(name, wasm.GlobalType{ValType: t, Mutable: mutable}, v)
	b.err = multierr.Append(b.err, err)
	return b
}

// Memory adds a memory of min pages.
func (b *HostModuleBuilder) Memory(name string, min uint32, max *uint32) *HostModuleBuilder {
	_, err := b.module.AddMemory(name, min, max)
	b.err = multierr.Append(b.err, err)
	return b
}

// Table adds a funcref table of min entries.
func (b *HostModuleBuilder) Table(name string, min uint32, max *uint32) *HostModuleBuilder {
	_, err := b.module.AddTable(name, min, max)
	b.err = multierr.Append(b.err, err)
	return b
}

// Build registers the host module with the linker. Every error recorded
// while building is returned together.
func (b *HostModuleBuilder) Build() (*engine.Module, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.linker.Register(b.module); err != nil {
		return nil, err
	}
	return b.module, nil
}
