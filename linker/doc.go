// Package linker resolves imports between modules that share a store.
//
// # Main Types
//
//   - Linker: name registry and import resolution
//   - HostModuleBuilder: Go functions and globals exposed as a module
//
// # Thread Safety
//
// The registry is safe for concurrent use. Module execution is not; the
// store is shared by every registered module.
//
// # Link Phases
//
//  1. Bind every import by (module, name, kind), checking signatures,
//     global types and table or memory limits. Missing modules and exports
//     are reported together.
//  2. Bind global imports whose exporter is linked and copy initializers
//     that read them. Globals of unlinked exporters stay queued.
//  3. Apply element and data segments and run the start function.
//
// A module whose linking was refused is retried on its next call.
//
// # Example
//
//	l := linker.NewWithDefaults()
//	l.NewHostModule("env").
//	    Func("log", []wasm.ValType{wasm.ValI32}, nil, logFn).
//	    Build()
//	m, _ := l.Load(ctx, "main", wasmBytes)
//	f, _ := m.ExportedFunction("run")
//	results, _ := f.Call(ctx)
package linker
