package wasm

import (
	"fmt"

	"github.com/wippyai/wasm-interp/errors"
)

// Validate checks the module-level index spaces and constant expressions.
// Function bodies are validated separately by the code compiler.
func (m *Module) Validate() error {
	checks := []func() error{
		m.validateCounts,
		m.validateTypeIndices,
		m.validateFunctionIndices,
		m.validateTableIndices,
		m.validateMemoryIndices,
		m.validateGlobals,
		m.validateStart,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// ParseModuleValidate parses a WebAssembly binary and validates it.
// This is a convenience function combining ParseModule and Validate.
func ParseModuleValidate(data []byte) (*Module, error) {
	m, err := ParseModule(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func indexError(section string, format string, args ...any) error {
	return errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
		Path(section).Detail(format, args...).Build()
}

func (m *Module) validateCounts() error {
	if n := m.NumImportedTables() + len(m.Tables); n > 1 {
		return errors.New(errors.PhaseDecode, errors.KindUnsupported).
			Path("table").Detail("%d tables, at most one is supported", n).Build()
	}
	if n := m.NumImportedMemories() + len(m.Memories); n > 1 {
		return errors.New(errors.PhaseDecode, errors.KindUnsupported).
			Path("memory").Detail("%d memories, at most one is supported", n).Build()
	}
	return nil
}

func (m *Module) validateTypeIndices() error {
	numTypes := uint32(len(m.Types))

	for i, typeIdx := range m.Funcs {
		if typeIdx >= numTypes {
			return indexError("function", "function %d references invalid type index %d (%d types)", i, typeIdx, numTypes)
		}
	}

	for i, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc && imp.Desc.TypeIdx >= numTypes {
			return indexError("import", "import %d (%s.%s) references invalid type index %d", i, imp.Module, imp.Name, imp.Desc.TypeIdx)
		}
	}
	return nil
}

func (m *Module) validateFunctionIndices() error {
	numFuncs := uint32(m.NumFuncs())

	for i, elem := range m.Elements {
		for j, funcIdx := range elem.FuncIdxs {
			if funcIdx >= numFuncs {
				return indexError("element", "element %d, entry %d references invalid function index %d", i, j, funcIdx)
			}
		}
	}

	for i, exp := range m.Exports {
		if exp.Kind == KindFunc && exp.Idx >= numFuncs {
			return indexError("export", "export %d (%s) references invalid function index %d", i, exp.Name, exp.Idx)
		}
	}
	return nil
}

func (m *Module) validateTableIndices() error {
	numTables := uint32(m.NumImportedTables() + len(m.Tables))

	for i, elem := range m.Elements {
		if elem.TableIdx >= numTables {
			return indexError("element", "element %d references invalid table index %d", i, elem.TableIdx)
		}
		if err := m.validateConstExpr(elem.Offset, ValI32, fmt.Sprintf("element[%d]", i)); err != nil {
			return err
		}
	}

	for i, exp := range m.Exports {
		if exp.Kind == KindTable && exp.Idx >= numTables {
			return indexError("export", "export %d (%s) references invalid table index %d", i, exp.Name, exp.Idx)
		}
	}
	return nil
}

func (m *Module) validateMemoryIndices() error {
	numMemories := uint32(m.NumImportedMemories() + len(m.Memories))

	for i, data := range m.Data {
		if data.MemIdx >= numMemories {
			return indexError("data", "data segment %d references invalid memory index %d", i, data.MemIdx)
		}
		if err := m.validateConstExpr(data.Offset, ValI32, fmt.Sprintf("data[%d]", i)); err != nil {
			return err
		}
	}

	for i, exp := range m.Exports {
		if exp.Kind == KindMemory && exp.Idx >= numMemories {
			return indexError("export", "export %d (%s) references invalid memory index %d", i, exp.Name, exp.Idx)
		}
	}
	return nil
}

func (m *Module) validateGlobals() error {
	numGlobals := uint32(m.NumGlobals())

	for i, exp := range m.Exports {
		if exp.Kind == KindGlobal && exp.Idx >= numGlobals {
			return indexError("export", "export %d (%s) references invalid global index %d", i, exp.Name, exp.Idx)
		}
	}

	for i, g := range m.Globals {
		if err := m.validateConstExpr(g.Init, g.Type.ValType, fmt.Sprintf("global[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

// validateConstExpr checks that expr produces a value of type want. A
// global.get operand must name an imported global: locally defined globals
// are not yet initialized when constant expressions run.
func (m *Module) validateConstExpr(expr []byte, want ValType, path string) error {
	if len(expr) == 0 {
		return errors.InvalidData(errors.PhaseDecode, []string{path}, "empty constant expression")
	}
	var got ValType
	switch expr[0] {
	case OpI32Const:
		got = ValI32
	case OpI64Const:
		got = ValI64
	case OpF32Const:
		got = ValF32
	case OpF64Const:
		got = ValF64
	case OpGlobalGet:
		idx, _, err := DecodeU32(expr[1:])
		if err != nil {
			return errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, path+": global.get operand")
		}
		if int(idx) >= m.NumImportedGlobals() {
			return errors.NotDeclared(errors.PhaseDecode, []string{path}, int(idx), m.NumImportedGlobals())
		}
		gt := m.GetGlobalType(idx)
		if gt.Mutable {
			return errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
				Path(path).Detail("constant expression reads mutable global %d", idx).Build()
		}
		got = gt.ValType
	default:
		return errors.InvalidData(errors.PhaseDecode, []string{path},
			fmt.Sprintf("opcode 0x%02x not allowed in constant expression", expr[0]))
	}
	if got != want {
		return errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
			Path(path).Detail("constant expression has type %s, want %s", got, want).Build()
	}
	return nil
}

func (m *Module) validateStart() error {
	if m.Start == nil {
		return nil
	}

	funcType := m.GetFuncType(*m.Start)
	if funcType == nil {
		return indexError("start", "start function index %d out of range", *m.Start)
	}

	if len(funcType.Params) != 0 || len(funcType.Results) != 0 {
		return errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
			Path("start").Detail("start function must have signature () -> (), got %s", funcType).Build()
	}
	return nil
}
