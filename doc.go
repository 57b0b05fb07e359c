// Package wasminterp is a WebAssembly MVP interpreter written in Go.
//
// Modules are decoded from the binary format, validated and compiled into
// side tables in a single pass, and executed by a tree-walking interpreter
// over the original bytecode. Modules import from each other through a
// linker that tolerates any registration order.
//
// # Architecture Overview
//
//	wasminterp/          Root package with the Memory interface
//	├── runtime/         High-level API: load, link, call, config
//	├── linker/          Import resolution, deferred globals, host modules
//	├── engine/          Decoder, compiler, interpreter, symbol table
//	├── store/           Function, table, memory and global stores
//	├── wasm/            Binary format types, decoding and encoding
//	├── errors/          Structured error types
//	└── cmd/run/         Command-line runner and interactive explorer
//
// # Quick Start
//
//	rt, err := runtime.New()
//	if err != nil {
//	    return err
//	}
//	mod, err := rt.Load(ctx, "math", wasmBytes)
//	if err != nil {
//	    return err
//	}
//	results, err := mod.Call(ctx, "add", int32(2), int32(3))
//
// # Linking
//
// A module's imports are bound when it is first linked, either on the
// first call or through runtime.Link. Imported globals whose exporter is
// not yet linked are resolved later, once it is.
//
// # Errors
//
// Failures are reported as *errors.Error with a phase and a kind. Traps
// carry the trap kind and leave the stores in whatever state the trapping
// code left them.
package wasminterp
