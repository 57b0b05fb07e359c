// Package runtime is the embedding API for the interpreter.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	mod, err := rt.Load(ctx, "math", wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	results, err := mod.Call(ctx, "add", int32(2), int32(3))
//	fmt.Println(results[0]) // 5
//
// # Host Modules
//
// Go functions become importable through Host:
//
//	rt.Host("env").
//	    Func("log", []wasm.ValType{wasm.ValI32}, nil, logFn).
//	    Build()
//
// Host modules must be built before a module importing them is linked.
// Linking happens on the first call, or explicitly through Link.
//
// # Configuration
//
// Config limits call depth and memory size and sets the log level. It is
// read from TOML by LoadConfig, with WASMI_MAX_CALL_DEPTH,
// WASMI_MAX_MEMORY_PAGES and WASMI_LOG_LEVEL taking precedence:
//
//	max_call_depth = 1000
//	max_memory_pages = 256
//	log_level = "debug"
//
// # Errors
//
// Decode, validation, link and trap failures are *errors.Error values;
// use errors.IsDecode, errors.IsValidation, errors.IsLink and
// errors.IsTrap to tell them apart.
package runtime
