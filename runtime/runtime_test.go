package runtime

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-interp/engine"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/internal/wasmtest"
	"github.com/wippyai/wasm-interp/wasm"
)

var (
	i32 = wasm.ValI32
	i64 = wasm.ValI64
	f32 = wasm.ValF32
	f64 = wasm.ValF64
)

func mathModule() []byte {
	b := wasmtest.New()
	add := b.Type([]wasm.ValType{i32, i32}, i32)
	b.ExportFunc("add", b.Func(add, nil, wasmtest.Code(wasmtest.LocalGet(0), wasmtest.LocalGet(1), wasm.OpI32Add)...))
	mix := b.Type([]wasm.ValType{i64, f64}, f64)
	b.ExportFunc("mix", b.Func(mix, nil, wasmtest.Code(
		wasmtest.LocalGet(0), wasm.OpF64ConvertI64S, wasmtest.LocalGet(1), wasm.OpF64Mul)...))
	half := b.Type([]wasm.ValType{f32}, f32)
	b.ExportFunc("half", b.Func(half, nil, wasmtest.Code(
		wasmtest.LocalGet(0), wasmtest.F32Const(0.5), wasm.OpF32Mul)...))
	g := b.Global(i64, true, wasm.ConstI64(-1))
	b.Export("counter", wasm.KindGlobal, g)
	b.Memory(1, nil)
	b.Export("memory", wasm.KindMemory, 0)
	return b.Bytes()
}

func TestRuntimeCall(t *testing.T) {
	ctx := context.Background()
	rt, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Load(ctx, "math", mathModule()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		export string
		args   []any
		want   any
	}{
		{"add", []any{int32(2), int32(3)}, int32(5)},
		{"add", []any{2, -3}, int32(-1)},
		{"add", []any{uint32(math.MaxUint32), int32(1)}, int32(0)},
		{"mix", []any{int64(3), 1.5}, 4.5},
		{"mix", []any{-2, float32(0.25)}, -0.5},
		{"half", []any{float32(3)}, float32(1.5)},
	}
	for _, tt := range tests {
		res, err := rt.Call(ctx, "math", tt.export, tt.args...)
		if err != nil {
			t.Errorf("%s%v: %v", tt.export, tt.args, err)
			continue
		}
		if len(res) != 1 || res[0] != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.export, tt.args, res, tt.want)
		}
	}
}

func TestRuntimeCallErrors(t *testing.T) {
	ctx := context.Background()
	rt, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Load(ctx, "math", mathModule()); err != nil {
		t.Fatal(err)
	}

	if _, err := rt.Call(ctx, "nope", "add"); errors.KindOf(err) != errors.KindNotFound {
		t.Errorf("unknown module: %v", err)
	}
	if _, err := rt.Call(ctx, "math", "sub"); errors.KindOf(err) != errors.KindNotFound {
		t.Errorf("unknown export: %v", err)
	}
	if _, err := rt.Call(ctx, "math", "add", 1); errors.KindOf(err) != errors.KindArgumentCountMismatch {
		t.Errorf("argument count: %v", err)
	}
	if _, err := rt.Call(ctx, "math", "add", 1, "x"); errors.KindOf(err) != errors.KindTypeMismatch {
		t.Errorf("argument type: %v", err)
	}
	if _, err := rt.Load(ctx, "bad", []byte{0, 'a', 's', 'm', 2, 0, 0, 0}); !errors.IsDecode(err) {
		t.Errorf("bad version: %v", err)
	}
}

func TestModuleExports(t *testing.T) {
	ctx := context.Background()
	rt, err := New()
	if err != nil {
		t.Fatal(err)
	}
	m, err := rt.Load(ctx, "math", mathModule())
	if err != nil {
		t.Fatal(err)
	}

	want := []ExportInfo{
		{Name: "add", Kind: "func", Type: "(i32, i32) -> i32"},
		{Name: "mix", Kind: "func", Type: "(i64, f64) -> f64"},
		{Name: "half", Kind: "func", Type: "(f32) -> f32"},
		{Name: "counter", Kind: "global", Type: "mut i64"},
		{Name: "memory", Kind: "memory"},
	}
	got := m.Exports()
	if len(got) != len(want) {
		t.Fatalf("Exports() = %+v", got)
	}
	for i := range want {
		if got[i].Name != want[i].Name || got[i].Kind != want[i].Kind || got[i].Type != want[i].Type {
			t.Errorf("export %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestModuleMemory(t *testing.T) {
	ctx := context.Background()
	rt, err := New()
	if err != nil {
		t.Fatal(err)
	}

	b := wasmtest.New()
	b.Memory(1, nil)
	b.Data(8, []byte{0x2a, 0, 0, 0})
	load := b.Type([]wasm.ValType{i32}, i32)
	b.ExportFunc("load", b.Func(load, nil, wasmtest.Code(
		wasmtest.LocalGet(0), wasmtest.Mem(wasm.OpI32Load, 2, 0))...))
	m, err := rt.Load(ctx, "mem", b.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Link(ctx, "mem"); err != nil {
		t.Fatal(err)
	}

	mem := m.Memory()
	if mem == nil {
		t.Fatal("Memory() = nil")
	}
	if mem.Size() != wasm.PageSize {
		t.Errorf("Size() = %d, want %d", mem.Size(), wasm.PageSize)
	}
	if v, err := mem.ReadU32(8); err != nil || v != 42 {
		t.Errorf("ReadU32(8) = %d, %v", v, err)
	}
	if err := mem.WriteU32(16, 0xCAFE); err != nil {
		t.Fatal(err)
	}
	res, err := rt.Call(ctx, "mem", "load", int32(16))
	if err != nil || len(res) != 1 || res[0] != int32(0xCAFE) {
		t.Errorf("load(16) = %v, %v", res, err)
	}
	if _, err := mem.ReadU32(wasm.PageSize - 2); !errors.IsTrap(err) {
		t.Errorf("ReadU32 past end: %v", err)
	}

	plain, err := rt.Load(ctx, "plain", wasmtest.New().Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if plain.Memory() != nil {
		t.Error("module without memory returned one")
	}
}

func TestRuntimeHostAndLink(t *testing.T) {
	ctx := context.Background()
	rt, err := New()
	if err != nil {
		t.Fatal(err)
	}
	var got []int32
	_, err = rt.Host("env").
		Func("emit", []wasm.ValType{i32}, nil, func(_ context.Context, _ *engine.Module, args []uint64) ([]uint64, error) {
			got = append(got, Decode(i32, args[0]).(int32))
			return nil, nil
		}).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	b := wasmtest.New()
	emit := b.ImportFunc("env", "emit", b.Type([]wasm.ValType{i32}))
	b.Start(b.Func(b.Type(nil), nil, wasmtest.Code(wasmtest.I32Const(-7), wasmtest.Call(emit))...))
	m, err := rt.Load(ctx, "main", b.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if m.State() != engine.Unlinked {
		t.Errorf("state after load = %s", m.State())
	}
	if err := rt.Link(ctx, "main"); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != -7 {
		t.Errorf("emitted %v", got)
	}
	if err := rt.Link(ctx, "missing"); errors.KindOf(err) != errors.KindNotFound {
		t.Errorf("Link(missing) = %v", err)
	}
	if names := rt.Modules(); len(names) != 2 || names[0] != "env" || names[1] != "main" {
		t.Errorf("Modules() = %v", names)
	}
}

func TestRuntimeLimits(t *testing.T) {
	ctx := context.Background()
	rt, err := New(WithConfig(Config{MaxCallDepth: 10, MaxMemoryPages: 2}))
	if err != nil {
		t.Fatal(err)
	}

	b := wasmtest.New()
	typ := b.Type([]wasm.ValType{i32}, i32)
	// depth(n) = n == 0 ? 0 : depth(n-1) + 1
	b.ExportFunc("depth", b.Func(typ, nil, wasmtest.Code(
		wasmtest.LocalGet(0), wasm.OpI32Eqz,
		wasmtest.If(wasmtest.V(i32)),
		wasmtest.I32Const(0),
		wasm.OpElse,
		wasmtest.LocalGet(0), wasmtest.I32Const(1), wasm.OpI32Sub, wasmtest.Call(0),
		wasmtest.I32Const(1), wasm.OpI32Add,
		wasm.OpEnd,
	)...))
	b.Memory(1, nil)
	b.ExportFunc("grow", b.Func(typ, nil, wasmtest.Code(wasmtest.LocalGet(0), wasm.OpMemoryGrow, byte(0))...))
	if _, err := rt.Load(ctx, "m", b.Bytes()); err != nil {
		t.Fatal(err)
	}

	if res, err := rt.Call(ctx, "m", "depth", 9); err != nil || res[0] != int32(9) {
		t.Errorf("depth(9) = %v, %v", res, err)
	}
	_, err = rt.Call(ctx, "m", "depth", 10)
	if errors.KindOf(err) != errors.KindCallStackExhausted {
		t.Errorf("depth(10) = %v, want call stack exhausted", err)
	}
	if res, _ := rt.Call(ctx, "m", "grow", 1); res[0] != int32(1) {
		t.Errorf("grow(1) = %v", res)
	}
	if res, _ := rt.Call(ctx, "m", "grow", 1); res[0] != int32(-1) {
		t.Errorf("grow past limit = %v", res)
	}
}

func TestWithLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	rt, err := New(WithLogger(zap.New(core)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		engine.SetLogger(zap.NewNop())
	})
	if _, err := rt.Load(context.Background(), "math", mathModule()); err != nil {
		t.Fatal(err)
	}
	if logs.FilterMessage("module loaded").Len() != 1 {
		t.Errorf("logs = %v", logs.All())
	}
	if logs.FilterMessage("module decoded").Len() != 1 {
		t.Errorf("engine did not log through the runtime logger: %v", logs.All())
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wasmi.toml")
	if err := os.WriteFile(path, []byte("max_call_depth = 100\nmax_memory_pages = 16\nlog_level = \"info\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	env := map[string]string{"WASMI_MAX_MEMORY_PAGES": "32"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg, err := LoadConfig(path, lookup)
	if err != nil {
		t.Fatal(err)
	}
	want := Config{MaxCallDepth: 100, MaxMemoryPages: 32, LogLevel: "info"}
	if cfg != want {
		t.Errorf("LoadConfig = %+v, want %+v", cfg, want)
	}

	cfg, err = LoadConfig("", func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatal(err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("defaults = %+v", cfg)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.toml"), lookup); err == nil {
		t.Error("missing file accepted")
	}
	env["WASMI_MAX_CALL_DEPTH"] = "lots"
	if _, err := LoadConfig("", lookup); err == nil {
		t.Error("bad env value accepted")
	}
	if _, err := (Config{LogLevel: "loud"}).Logger(); err == nil {
		t.Error("bad log level accepted")
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		typ  wasm.ValType
		in   string
		want uint64
	}{
		{i32, "42", 42},
		{i32, "-1", 0xFFFFFFFF},
		{i32, "0xFFFFFFFF", 0xFFFFFFFF},
		{i64, "-2", math.MaxUint64 - 1},
		{i64, "18446744073709551615", math.MaxUint64},
		{f32, "1.5", uint64(math.Float32bits(1.5))},
		{f64, "-0.25", math.Float64bits(-0.25)},
	}
	for _, tt := range tests {
		got, err := ParseValue(tt.typ, tt.in)
		if err != nil {
			t.Errorf("ParseValue(%s, %q): %v", tt.typ, tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseValue(%s, %q) = %#x, want %#x", tt.typ, tt.in, got, tt.want)
		}
	}
	if _, err := ParseValue(i32, "4294967296"); err == nil {
		t.Error("i32 overflow accepted")
	}
	if got := Format(f64, math.Float64bits(2.5)); got != "f64:2.5" {
		t.Errorf("Format = %q", got)
	}
}
