package engine

import (
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/store"
	"github.com/wippyai/wasm-interp/wasm"
)

// Decode parses, validates and compiles a module and allocates its
// globals, memory and table in st. Nothing is allocated when decoding
// fails.
func Decode(name string, data []byte, st *store.Store, opts Options) (*Module, error) {
	raw, err := wasm.ParseModuleValidate(data)
	if err != nil {
		return nil, err
	}

	m := newModule(name, data, st, opts)
	m.raw = raw
	sym := m.symbols

	for _, t := range raw.Types {
		sym.AllocateFunctionType(t.Params, t.Results)
	}

	sym.ReserveFunctions(raw.NumFuncs())
	sym.ReserveGlobals(raw.NumGlobals())
	for _, imp := range raw.Imports {
		desc := Import{Module: imp.Module, Name: imp.Name, Kind: imp.Desc.Kind}
		switch imp.Desc.Kind {
		case wasm.KindFunc:
			desc.TypeIndex = int(imp.Desc.TypeIdx)
			if err := sym.checkType(desc.TypeIndex); err != nil {
				return nil, err
			}
			desc.Index = sym.AddFunction(&Function{
				module:       m,
				typeIndex:    desc.TypeIndex,
				importModule: imp.Module,
				importName:   imp.Name,
			})
		case wasm.KindTable:
			desc.Table = *imp.Desc.Table
			m.tabImported = true
		case wasm.KindMemory:
			desc.Memory = *imp.Desc.Memory
			m.memImported = true
		case wasm.KindGlobal:
			desc.Global = *imp.Desc.Global
			desc.Index = sym.addGlobal(globalEntry{
				typ:     desc.Global.ValType,
				mutable: desc.Global.Mutable,
				state:   GlobalImportedUnresolved,
				addr:    -1,
			})
		}
		m.imports = append(m.imports, desc)
	}

	for i, typeIdx := range raw.Funcs {
		if err := sym.checkType(int(typeIdx)); err != nil {
			return nil, err
		}
		body := raw.Code[i]
		locals := append([]wasm.ValType(nil), raw.Types[typeIdx].Params...)
		for _, l := range body.Locals {
			for j := uint32(0); j < l.Count; j++ {
				locals = append(locals, l.ValType)
			}
		}
		sym.AddFunction(&Function{
			module:    m,
			typeIndex: int(typeIdx),
			code:      &CodeEntry{Locals: locals, Body: body.Code, Offset: body.Offset},
		})
	}

	// Local globals are registered in order; an initializer may only read
	// an imported global, so reading a later one reports "not declared".
	var inits []constExpr
	for i, g := range raw.Globals {
		expr, err := parseConstExpr(g.Init)
		if err != nil {
			return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path("global").Value(i).Cause(err).Detail("bad initializer").Build()
		}
		state := GlobalDeclared
		if expr.source >= 0 {
			src, err := sym.global(expr.source)
			if err != nil {
				return nil, err
			}
			if src.typ != g.Type.ValType {
				return nil, errors.Validation(errors.KindTypeMismatch, []string{"global"}, 0,
					"global %d initializer has type %s, want %s", sym.GlobalCount(), src.typ, g.Type.ValType)
			}
			state = GlobalPendingInit
		}
		sym.addGlobal(globalEntry{typ: g.Type.ValType, mutable: g.Type.Mutable, state: state, addr: -1})
		inits = append(inits, expr)
	}

	for _, e := range raw.Exports {
		if err := sym.AddExport(e.Name, e.Kind, int(e.Idx)); err != nil {
			return nil, err
		}
		if e.Kind == wasm.KindFunc {
			if f, err := sym.Function(int(e.Idx)); err == nil && f.name == "" && f.code != nil {
				f.name = e.Name
			}
		}
	}
	if raw.Start != nil {
		sym.SetStart(int(*raw.Start))
	}

	hasMemory := m.memImported || len(raw.Memories) > 0
	hasTable := m.tabImported || len(raw.Tables) > 0
	for _, f := range sym.funcs {
		if f.code == nil {
			continue
		}
		if err := compileFunction(sym, f, hasMemory, hasTable); err != nil {
			return nil, err
		}
	}

	// Allocation happens last so a failed decode leaves st untouched.
	for _, mt := range raw.Memories {
		if mt.Limits.Min > st.MaxMemoryPages() {
			return nil, errors.New(errors.PhaseLinking, errors.KindOverflow).Path(name, "memory").
				Detail("minimum %d pages exceeds limit %d", mt.Limits.Min, st.MaxMemoryPages()).Build()
		}
	}
	for _, mt := range raw.Memories {
		addr, err := st.AllocMemory(mt.Limits.Min, mt.Limits.Max)
		if err != nil {
			return nil, err
		}
		m.memAddr = addr
	}
	for _, tt := range raw.Tables {
		m.tableAddr = st.AllocTable(tt.Limits.Min, tt.Limits.Max)
	}
	base := raw.NumImportedGlobals()
	for i, expr := range inits {
		idx := base + i
		g := &sym.globals[idx]
		g.addr = st.Globals.Alloc(g.typ, g.mutable)
		if expr.source >= 0 {
			m.pending = append(m.pending, GlobalInit{Global: idx, Source: expr.source})
			continue
		}
		st.Globals.Store(g.addr, expr.value)
	}

	Logger().Debug("module decoded",
		zap.String("module", name),
		zap.Int("types", sym.TypeCount()),
		zap.Int("functions", sym.FunctionCount()),
		zap.Int("globals", sym.GlobalCount()),
		zap.Int("imports", len(m.imports)),
		zap.Int("pending_globals", len(m.pending)),
	)
	return m, nil
}

// constExpr is a decoded initializer: either a constant value or a read
// of global source.
type constExpr struct {
	value  uint64
	source int
}

func parseConstExpr(expr []byte) (constExpr, error) {
	out := constExpr{source: -1}
	if len(expr) == 0 {
		return out, errors.InvalidData(errors.PhaseDecode, nil, "empty constant expression")
	}
	imm := expr[1:]
	switch expr[0] {
	case wasm.OpI32Const:
		v, _, err := wasm.DecodeS32(imm)
		if err != nil {
			return out, err
		}
		out.value = uint64(uint32(v))
	case wasm.OpI64Const:
		v, _, err := wasm.DecodeS64(imm)
		if err != nil {
			return out, err
		}
		out.value = uint64(v)
	case wasm.OpF32Const:
		if len(imm) < 4 {
			return out, errors.InvalidData(errors.PhaseDecode, nil, "truncated f32.const")
		}
		out.value = uint64(binary.LittleEndian.Uint32(imm))
	case wasm.OpF64Const:
		if len(imm) < 8 {
			return out, errors.InvalidData(errors.PhaseDecode, nil, "truncated f64.const")
		}
		out.value = binary.LittleEndian.Uint64(imm)
	case wasm.OpGlobalGet:
		idx, _, err := wasm.DecodeU32(imm)
		if err != nil {
			return out, err
		}
		out.source = int(idx)
	default:
		return out, errors.InvalidData(errors.PhaseDecode, nil, "unsupported constant expression")
	}
	return out, nil
}

// evalOffset evaluates a segment offset. A global source must be resolved.
func (m *Module) evalOffset(expr []byte) (uint32, error) {
	c, err := parseConstExpr(expr)
	if err != nil {
		return 0, err
	}
	if c.source < 0 {
		return uint32(c.value), nil
	}
	v, err := m.GlobalValue(c.source)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// initSegments writes element and data segments after checking that every
// segment fits, so a failure leaves the table and memory unchanged.
func (m *Module) initSegments() error {
	raw := m.raw
	if raw == nil {
		return nil
	}
	elemOffsets := make([]uint32, len(raw.Elements))
	for i, el := range raw.Elements {
		off, err := m.evalOffset(el.Offset)
		if err != nil {
			return err
		}
		t := m.Table()
		if t == nil || uint64(off)+uint64(len(el.FuncIdxs)) > uint64(t.Size()) {
			return errors.New(errors.PhaseLinking, errors.KindInstantiation).Path(m.name, "element").
				Value(i).Detail("element segment %d does not fit in table", i).Build()
		}
		elemOffsets[i] = off
	}
	dataOffsets := make([]uint32, len(raw.Data))
	for i, d := range raw.Data {
		off, err := m.evalOffset(d.Offset)
		if err != nil {
			return err
		}
		mem := m.Memory()
		if mem == nil || uint64(off)+uint64(len(d.Init)) > mem.Size() {
			return errors.New(errors.PhaseLinking, errors.KindInstantiation).Path(m.name, "data").
				Value(i).Detail("data segment %d does not fit in memory", i).Build()
		}
		dataOffsets[i] = off
	}

	for i, el := range raw.Elements {
		t := m.Table()
		for j, fi := range el.FuncIdxs {
			h, err := m.symbols.funcs[fi].Handle()
			if err != nil {
				return err
			}
			t.Set(elemOffsets[i]+uint32(j), h)
		}
	}
	for i, d := range raw.Data {
		copy(m.Memory().Buffer[dataOffsets[i]:], d.Init)
	}
	return nil
}
