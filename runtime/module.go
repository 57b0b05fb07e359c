package runtime

import (
	"context"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/engine"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wasm"
)

// Module is a loaded module bound to its runtime.
type Module struct {
	runtime *Runtime
	module  *engine.Module
}

// ExportInfo describes one export.
type ExportInfo struct {
	Name string
	Kind string
	// Type is the signature of a function export, such as "(i32, i64) -> f64".
	Type   string
	Params []wasm.ValType
	Result []wasm.ValType
}

// Name returns the module name.
func (m *Module) Name() string { return m.module.Name() }

// Engine returns the underlying engine module.
func (m *Module) Engine() *engine.Module { return m.module }

// State returns the module's link state.
func (m *Module) State() engine.LinkState { return m.module.State() }

// Memory returns the module's linear memory, or nil when it has none. An
// imported memory is available once the module is linked.
func (m *Module) Memory() wasminterp.Memory {
	mem := m.module.Memory()
	if mem == nil {
		return nil
	}
	return mem
}

// Exports describes the module's exports in declaration order.
func (m *Module) Exports() []ExportInfo {
	var out []ExportInfo
	for _, e := range m.module.Exports() {
		info := ExportInfo{Name: e.Name}
		switch e.Kind {
		case wasm.KindFunc:
			info.Kind = "func"
			if f, err := m.module.Function(e.Index); err == nil {
				ft := f.Type()
				info.Params, info.Result = ft.Params, ft.Results
				info.Type = signature(ft)
			}
		case wasm.KindTable:
			info.Kind = "table"
		case wasm.KindMemory:
			info.Kind = "memory"
		case wasm.KindGlobal:
			info.Kind = "global"
			if gt, err := m.module.GlobalType(e.Index); err == nil {
				info.Type = api.ValueTypeName(api.ValueType(gt.ValType))
				if gt.Mutable {
					info.Type = "mut " + info.Type
				}
			}
		}
		out = append(out, info)
	}
	return out
}

func signature(ft wasm.FuncType) string {
	names := func(ts []wasm.ValType) string {
		s := make([]string, len(ts))
		for i, t := range ts {
			s[i] = api.ValueTypeName(api.ValueType(t))
		}
		return strings.Join(s, ", ")
	}
	sig := "(" + names(ft.Params) + ")"
	if len(ft.Results) > 0 {
		sig += " -> " + names(ft.Results)
	}
	return sig
}

// Call invokes a function export. Arguments are converted to the
// parameter types; see Encode. Results come back as int32, int64,
// float32 or float64.
func (m *Module) Call(ctx context.Context, export string, args ...any) ([]any, error) {
	f, err := m.module.ExportedFunction(export)
	if err != nil {
		return nil, err
	}
	ft := f.Type()
	if len(args) != len(ft.Params) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindArgumentCountMismatch).
			Path(m.Name(), export).Detail("got %d arguments, want %d", len(args), len(ft.Params)).Build()
	}
	raw := make([]uint64, len(args))
	for i, a := range args {
		v, err := Encode(ft.Params[i], a)
		if err != nil {
			return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
				Path(m.Name(), export).Value(i).Cause(err).Detail("argument %d", i).Build()
		}
		raw[i] = v
	}

	res, err := f.Call(ctx, raw...)
	if err != nil {
		m.runtime.logger.Debug("call failed",
			zap.String("module", m.Name()), zap.String("export", export), zap.Error(err))
		return nil, err
	}
	out := make([]any, len(res))
	for i, v := range res {
		out[i] = Decode(ft.Results[i], v)
	}
	return out, nil
}

// CallRaw invokes a function export with arguments already encoded.
func (m *Module) CallRaw(ctx context.Context, export string, args ...uint64) ([]uint64, error) {
	f, err := m.module.ExportedFunction(export)
	if err != nil {
		return nil, err
	}
	return f.Call(ctx, args...)
}
