package engine

import (
	"context"
	"fmt"
	"runtime"

	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wasm"
)

// DefaultMaxCallDepth bounds nested calls within one top-level call.
const DefaultMaxCallDepth = 2000

// maxImportChain bounds re-export chains followed when resolving a call
// handle, so cyclic re-exports fail instead of looping.
const maxImportChain = 64

// HostFunc implements a function in Go. args holds the parameters in
// declaration order; the returned slice must hold exactly the declared
// results. caller is the module whose code made the call, or nil when the
// host called the function directly. Returning an *errors.Error of the
// runtime phase propagates it as the trap.
type HostFunc func(ctx context.Context, caller *Module, args []uint64) ([]uint64, error)

// Function is an entry in a module's function index space: a compiled
// body, a host callback, or an import bound at link time.
type Function struct {
	module    *Module
	index     int
	typeIndex int
	name      string

	importModule string
	importName   string

	code   *CodeEntry
	host   HostFunc
	target *Function
	handle *Function
}

// Module returns the module that declares f.
func (f *Function) Module() *Module { return f.module }

// Index returns f's position in its module's function index space.
func (f *Function) Index() int { return f.index }

// TypeIndex returns the index of f's type in its module.
func (f *Function) TypeIndex() int { return f.typeIndex }

// Name returns a name for diagnostics.
func (f *Function) Name() string {
	if f.name != "" {
		return f.name
	}
	if f.importModule != "" {
		return f.importModule + "." + f.importName
	}
	return fmt.Sprintf("func[%d]", f.index)
}

// Import returns the import f was declared with.
func (f *Function) Import() (module, name string, ok bool) {
	return f.importModule, f.importName, f.code == nil && f.host == nil
}

// IsHost reports whether f is implemented in Go.
func (f *Function) IsHost() bool { return f.host != nil }

// Code returns the compiled body, or nil for imports and host functions.
func (f *Function) Code() *CodeEntry { return f.code }

// Type returns f's signature.
func (f *Function) Type() wasm.FuncType {
	return f.module.symbols.FunctionType(f.typeIndex)
}

// TypeKey identifies f's signature across modules.
func (f *Function) TypeKey() string {
	return f.module.symbols.TypeKey(f.typeIndex)
}

// ParamCount returns the number of parameters.
func (f *Function) ParamCount() int {
	return f.module.symbols.ParamCount(f.typeIndex)
}

// ResultCount returns the number of results, 0 or 1.
func (f *Function) ResultCount() int {
	return f.module.symbols.ResultCount(f.typeIndex)
}

// bind points an imported function at the export it resolves to.
func (f *Function) bind(target *Function) {
	f.target = target
	f.handle = nil
}

// Handle resolves f to the function that actually runs, following import
// bindings through re-exports. The result is memoized.
func (f *Function) Handle() (*Function, error) {
	if f.handle != nil {
		return f.handle, nil
	}
	cur := f
	for i := 0; cur.code == nil && cur.host == nil; i++ {
		if cur.target == nil || i >= maxImportChain {
			return nil, errors.New(errors.PhaseRuntime, errors.KindUnresolvedCallHandle).
				Path(cur.importModule, cur.importName).
				Detail("import is not bound to an export").Build()
		}
		cur = cur.target
	}
	f.handle = cur
	return cur, nil
}

// Call links f's module if needed, then runs f. Arguments and results are
// raw 64-bit words: i32 and f32 values occupy the low 32 bits, floats are
// passed by bit pattern. Traps are returned as *errors.Error values of the
// runtime phase; the module's stores keep any writes made before the trap.
func (f *Function) Call(ctx context.Context, args ...uint64) (results []uint64, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := f.module.ensureLinked(ctx); err != nil {
		return nil, err
	}
	h, err := f.Handle()
	if err != nil {
		return nil, err
	}
	if want := h.ParamCount(); len(args) != want {
		return nil, errors.New(errors.PhaseRuntime, errors.KindArgumentCountMismatch).
			Path(f.Name()).Detail("got %d arguments, want %d", len(args), want).Build()
	}

	e := newExecution(ctx, f.module.opts.MaxCallDepth)
	defer func() {
		if r := recover(); r != nil {
			rerr, ok := r.(error)
			if _, bug := r.(runtime.Error); !ok || bug {
				panic(r)
			}
			results, err = nil, rerr
		}
	}()

	res, has := e.invoke(h, args, nil)
	if has {
		return []uint64{res}, nil
	}
	return nil, nil
}
