package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/wasm-interp/internal/wasmtest"
	"github.com/wippyai/wasm-interp/wasm"
)

func writeModule(t *testing.T) string {
	t.Helper()
	b := wasmtest.New()
	add := b.Type([]wasm.ValType{wasm.ValI32, wasm.ValI32}, wasm.ValI32)
	b.ExportFunc("add", b.Func(add, nil, wasmtest.Code(wasmtest.LocalGet(0), wasmtest.LocalGet(1), wasm.OpI32Add)...))
	half := b.Type([]wasm.ValType{wasm.ValF64}, wasm.ValF64)
	b.ExportFunc("half", b.Func(half, nil, wasmtest.Code(wasmtest.LocalGet(0), wasmtest.F64Const(0.5), wasm.OpF64Mul)...))
	b.Memory(1, nil)
	b.Export("memory", wasm.KindMemory, 0)

	path := filepath.Join(t.TempDir(), "calc.wasm")
	if err := os.WriteFile(path, b.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRunList(t *testing.T) {
	path := writeModule(t)
	out, _, err := execute(t, path, "--list")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Exports: 3", "add (i32, i32) -> i32", "half (f64) -> f64", "memory"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Calling") {
		t.Errorf("--list called a function:\n%s", out)
	}
}

func TestRunCall(t *testing.T) {
	path := writeModule(t)
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--func", "add", "--arg", "2", "--arg", "40"}, "Result: i32:42"},
		{[]string{"--func", "add", "--arg", "0x7fffffff", "--arg", "1"}, "Result: i32:-2147483648"},
		{[]string{"--func", "half", "--arg", "5"}, "Result: f64:2.5"},
	}
	for _, tt := range tests {
		out, _, err := execute(t, append([]string{path}, tt.args...)...)
		if err != nil {
			t.Errorf("%v: %v", tt.args, err)
			continue
		}
		if !strings.Contains(out, tt.want) {
			t.Errorf("%v: output missing %q:\n%s", tt.args, tt.want, out)
		}
	}
}

func TestRunErrors(t *testing.T) {
	path := writeModule(t)
	tests := []struct {
		name string
		args []string
	}{
		{"no file", nil},
		{"missing file", []string{filepath.Join(t.TempDir(), "nope.wasm")}},
		{"unknown func", []string{path, "--func", "sub"}},
		{"arg count", []string{path, "--func", "add", "--arg", "1"}},
		{"bad arg", []string{path, "--func", "add", "--arg", "x", "--arg", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := execute(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRunNoEntryPoint(t *testing.T) {
	path := writeModule(t)
	out, _, err := execute(t, path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "no entry point found") {
		t.Errorf("output:\n%s", out)
	}
}

func TestPickFunc(t *testing.T) {
	b := wasmtest.New()
	typ := b.Type(nil)
	b.ExportFunc("main", b.Func(typ, nil))
	b.ExportFunc("_start", b.Func(typ, nil))
	path := filepath.Join(t.TempDir(), "entry.wasm")
	if err := os.WriteFile(path, b.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	out, _, err := execute(t, path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Calling _start()") || !strings.Contains(out, "Result: (none)") {
		t.Errorf("output:\n%s", out)
	}
}
