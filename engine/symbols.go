package engine

import (
	"fmt"

	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wasm"
)

// GlobalState describes how a global's value becomes available.
type GlobalState uint8

const (
	// GlobalDeclared is a module-defined global whose value is final.
	GlobalDeclared GlobalState = iota
	// GlobalImportedUnresolved is an import not yet bound to a store slot.
	GlobalImportedUnresolved
	// GlobalImportedResolved is an import bound to the exporter's slot.
	GlobalImportedResolved
	// GlobalPendingInit is a module-defined global initialized from an
	// imported global that has not been resolved yet.
	GlobalPendingInit
)

func (s GlobalState) String() string {
	switch s {
	case GlobalDeclared:
		return "declared"
	case GlobalImportedUnresolved:
		return "imported-unresolved"
	case GlobalImportedResolved:
		return "imported-resolved"
	case GlobalPendingInit:
		return "pending-init"
	default:
		return fmt.Sprintf("GlobalState(%d)", uint8(s))
	}
}

// Resolved reports whether a global in this state can be read.
func (s GlobalState) Resolved() bool {
	return s == GlobalDeclared || s == GlobalImportedResolved
}

type globalEntry struct {
	typ     wasm.ValType
	mutable bool
	state   GlobalState
	addr    int // store slot; -1 while an import is unresolved
}

// Export is one entry of a module's export section.
type Export struct {
	Name  string
	Kind  byte
	Index int
}

// SymbolTable allocates dense indices for function types, functions and
// globals, and maps export names to indices.
//
// Function types are interned as one flat array: each type occupies
// [argc, resc, arg kinds..., result kind?] starting at its offset.
type SymbolTable struct {
	typeData    []uint32
	typeOffsets []int
	typeKeys    []string

	funcs        []*Function
	funcCapacity int

	globals        []globalEntry
	globalCapacity int

	exports     map[string]Export
	exportOrder []string

	start int
}

// NewSymbolTable creates an empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		exports: make(map[string]Export),
		start:   -1,
	}
}

// AllocateFunctionType interns a function type and returns its index.
func (s *SymbolTable) AllocateFunctionType(params, results []wasm.ValType) int {
	s.typeOffsets = append(s.typeOffsets, len(s.typeData))
	s.typeData = append(s.typeData, uint32(len(params)), uint32(len(results)))
	for _, p := range params {
		s.typeData = append(s.typeData, uint32(p))
	}
	for _, r := range results {
		s.typeData = append(s.typeData, uint32(r))
	}
	s.typeKeys = append(s.typeKeys, wasm.FuncType{Params: params, Results: results}.String())
	return len(s.typeOffsets) - 1
}

// TypeCount returns the number of interned function types.
func (s *SymbolTable) TypeCount() int { return len(s.typeOffsets) }

func (s *SymbolTable) checkType(idx int) error {
	if idx < 0 || idx >= len(s.typeOffsets) {
		return errors.OutOfBounds(errors.PhaseValidate, []string{"type"}, idx, len(s.typeOffsets))
	}
	return nil
}

// ParamCount returns the number of parameters of type idx.
func (s *SymbolTable) ParamCount(idx int) int {
	return int(s.typeData[s.typeOffsets[idx]])
}

// ResultCount returns the number of results (0 or 1) of type idx.
func (s *SymbolTable) ResultCount(idx int) int {
	return int(s.typeData[s.typeOffsets[idx]+1])
}

// ParamType returns the i-th parameter kind of type idx.
func (s *SymbolTable) ParamType(idx, i int) wasm.ValType {
	return wasm.ValType(s.typeData[s.typeOffsets[idx]+2+i])
}

// ResultType returns the result kind of type idx, or 0 when it has none.
func (s *SymbolTable) ResultType(idx int) wasm.ValType {
	off := s.typeOffsets[idx]
	if s.typeData[off+1] == 0 {
		return 0
	}
	return wasm.ValType(s.typeData[off+2+int(s.typeData[off])])
}

// FunctionType materializes type idx.
func (s *SymbolTable) FunctionType(idx int) wasm.FuncType {
	n := s.ParamCount(idx)
	ft := wasm.FuncType{Params: make([]wasm.ValType, n)}
	for i := range ft.Params {
		ft.Params[i] = s.ParamType(idx, i)
	}
	if s.ResultCount(idx) > 0 {
		ft.Results = []wasm.ValType{s.ResultType(idx)}
	}
	return ft
}

// TypeKey returns a string identifying the structure of type idx. Equal
// keys mean equal signatures, across modules.
func (s *SymbolTable) TypeKey(idx int) string { return s.typeKeys[idx] }

// ReserveFunctions announces n more functions that will be registered.
func (s *SymbolTable) ReserveFunctions(n int) { s.funcCapacity += n }

// AddFunction registers f under the next function index.
func (s *SymbolTable) AddFunction(f *Function) int {
	f.index = len(s.funcs)
	s.funcs = append(s.funcs, f)
	if s.funcCapacity < len(s.funcs) {
		s.funcCapacity = len(s.funcs)
	}
	return f.index
}

// FunctionCount returns the number of registered functions.
func (s *SymbolTable) FunctionCount() int { return len(s.funcs) }

// Function returns the function at idx.
func (s *SymbolTable) Function(idx int) (*Function, error) {
	switch {
	case idx >= 0 && idx < len(s.funcs):
		return s.funcs[idx], nil
	case idx >= 0 && idx < s.funcCapacity:
		return nil, errors.NotDeclared(errors.PhaseValidate, []string{"function"}, idx, len(s.funcs))
	default:
		return nil, errors.OutOfBounds(errors.PhaseValidate, []string{"function"}, idx, s.funcCapacity)
	}
}

// ReserveGlobals announces n more globals that will be registered.
func (s *SymbolTable) ReserveGlobals(n int) { s.globalCapacity += n }

func (s *SymbolTable) addGlobal(g globalEntry) int {
	s.globals = append(s.globals, g)
	if s.globalCapacity < len(s.globals) {
		s.globalCapacity = len(s.globals)
	}
	return len(s.globals) - 1
}

// GlobalCount returns the number of registered globals.
func (s *SymbolTable) GlobalCount() int { return len(s.globals) }

func (s *SymbolTable) global(idx int) (*globalEntry, error) {
	switch {
	case idx >= 0 && idx < len(s.globals):
		return &s.globals[idx], nil
	case idx >= 0 && idx < s.globalCapacity:
		return nil, errors.NotDeclared(errors.PhaseValidate, []string{"global"}, idx, len(s.globals))
	default:
		return nil, errors.OutOfBounds(errors.PhaseValidate, []string{"global"}, idx, s.globalCapacity)
	}
}

// AddExport maps name to an index in the kind's index space.
func (s *SymbolTable) AddExport(name string, kind byte, idx int) error {
	if _, dup := s.exports[name]; dup {
		return errors.InvalidData(errors.PhaseDecode, []string{"export", name}, "duplicate export name")
	}
	s.exports[name] = Export{Name: name, Kind: kind, Index: idx}
	s.exportOrder = append(s.exportOrder, name)
	return nil
}

// Export looks up an export by name.
func (s *SymbolTable) Export(name string) (Export, bool) {
	e, ok := s.exports[name]
	return e, ok
}

// Exports returns every export in declaration order.
func (s *SymbolTable) Exports() []Export {
	out := make([]Export, len(s.exportOrder))
	for i, name := range s.exportOrder {
		out[i] = s.exports[name]
	}
	return out
}

// SetStart records the start function index.
func (s *SymbolTable) SetStart(idx int) { s.start = idx }

// Start returns the start function index, if any.
func (s *SymbolTable) Start() (int, bool) { return s.start, s.start >= 0 }
