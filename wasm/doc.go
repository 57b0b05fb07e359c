// Package wasm provides WebAssembly 1.0 (MVP) binary format parsing and encoding.
//
// # Parsing
//
// Parse a WebAssembly module from binary:
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Each section payload must be consumed exactly. A section whose reader stops
// before the declared length, or would need bytes past it, fails with an
// errors.KindSizeMismatch decode error. There is no partial-module recovery.
//
// Parse with module-level validation:
//
//	module, err := wasm.ParseModuleValidate(data)
//
// Validation checks index spaces (types, functions, tables, memories,
// globals), constant expressions, table and memory counts, and the start
// function signature. Function bodies are validated by the engine's code
// compiler.
//
// # Encoding
//
// Encode a module back to binary:
//
//	encoded := module.Encode()
//
// # LEB128 Encoding
//
// Two decoding forms exist. binary.Reader decodes and advances. DecodeU32,
// DecodeS32 and DecodeS64 decode in place and report the encoded length
// without side effects:
//
//	v, n, err := wasm.DecodeU32(code[pc:])
package wasm
