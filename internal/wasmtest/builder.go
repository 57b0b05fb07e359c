// Package wasmtest assembles small binary modules for tests.
package wasmtest

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/wasm-interp/wasm"
)

// Builder accumulates module sections. Function indices returned by Func
// account for imported functions declared before the call.
type Builder struct {
	m wasm.Module
}

// New creates an empty builder.
func New() *Builder { return &Builder{} }

// Type interns a function type and returns its index.
func (b *Builder) Type(params []wasm.ValType, results ...wasm.ValType) uint32 {
	return b.m.AddType(wasm.FuncType{Params: params, Results: results})
}

// ImportFunc declares a function import and returns its function index.
func (b *Builder) ImportFunc(module, name string, typeIdx uint32) uint32 {
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: module, Name: name,
		Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: typeIdx},
	})
	return uint32(b.m.NumImportedFuncs() - 1)
}

// ImportGlobal declares a global import and returns its global index.
func (b *Builder) ImportGlobal(module, name string, t wasm.ValType, mutable bool) uint32 {
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: module, Name: name,
		Desc: wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &wasm.GlobalType{ValType: t, Mutable: mutable}},
	})
	return uint32(b.m.NumImportedGlobals() - 1)
}

// ImportMemory declares a memory import.
func (b *Builder) ImportMemory(module, name string, min uint32, max *uint32) {
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: module, Name: name,
		Desc: wasm.ImportDesc{Kind: wasm.KindMemory, Memory: &wasm.MemoryType{Limits: wasm.Limits{Min: min, Max: max}}},
	})
}

// ImportTable declares a funcref table import.
func (b *Builder) ImportTable(module, name string, min uint32, max *uint32) {
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: module, Name: name,
		Desc: wasm.ImportDesc{Kind: wasm.KindTable, Table: &wasm.TableType{
			ElemType: wasm.ElemFuncRef, Limits: wasm.Limits{Min: min, Max: max},
		}},
	})
}

// Func adds a function with the given extra locals. The final end is
// appended to body. It returns the function index.
func (b *Builder) Func(typeIdx uint32, locals []wasm.ValType, body ...byte) uint32 {
	var entries []wasm.LocalEntry
	for _, l := range locals {
		if n := len(entries); n > 0 && entries[n-1].ValType == l {
			entries[n-1].Count++
			continue
		}
		entries = append(entries, wasm.LocalEntry{Count: 1, ValType: l})
	}
	b.m.Funcs = append(b.m.Funcs, typeIdx)
	b.m.Code = append(b.m.Code, wasm.FuncBody{
		Locals: entries,
		Code:   append(append([]byte(nil), body...), wasm.OpEnd),
	})
	return uint32(b.m.NumFuncs() - 1)
}

// RawFunc adds a function whose body is used verbatim, without an
// appended end.
func (b *Builder) RawFunc(typeIdx uint32, body []byte) uint32 {
	b.m.Funcs = append(b.m.Funcs, typeIdx)
	b.m.Code = append(b.m.Code, wasm.FuncBody{Code: body})
	return uint32(b.m.NumFuncs() - 1)
}

// Export exports index idx of the given kind.
func (b *Builder) Export(name string, kind byte, idx uint32) *Builder {
	b.m.Exports = append(b.m.Exports, wasm.Export{Name: name, Kind: kind, Idx: idx})
	return b
}

// ExportFunc exports function idx.
func (b *Builder) ExportFunc(name string, idx uint32) *Builder {
	return b.Export(name, wasm.KindFunc, idx)
}

// Memory declares the module's memory.
func (b *Builder) Memory(min uint32, max *uint32) *Builder {
	b.m.Memories = append(b.m.Memories, wasm.MemoryType{Limits: wasm.Limits{Min: min, Max: max}})
	return b
}

// Table declares the module's funcref table.
func (b *Builder) Table(min uint32, max *uint32) *Builder {
	b.m.Tables = append(b.m.Tables, wasm.TableType{
		ElemType: wasm.ElemFuncRef, Limits: wasm.Limits{Min: min, Max: max},
	})
	return b
}

// Global adds a global with the constant expression init (as produced by
// wasm.ConstI32 and friends) and returns its global index.
func (b *Builder) Global(t wasm.ValType, mutable bool, init []byte) uint32 {
	b.m.Globals = append(b.m.Globals, wasm.Global{
		Type: wasm.GlobalType{ValType: t, Mutable: mutable},
		Init: init,
	})
	return uint32(b.m.NumGlobals() - 1)
}

// Elements adds an element segment at a constant offset.
func (b *Builder) Elements(offset int32, funcs ...uint32) *Builder {
	return b.ElementsAt(wasm.ConstI32(offset), funcs...)
}

// ElementsAt adds an element segment with an arbitrary offset expression.
func (b *Builder) ElementsAt(offset []byte, funcs ...uint32) *Builder {
	b.m.Elements = append(b.m.Elements, wasm.Element{Offset: offset, FuncIdxs: funcs})
	return b
}

// Data adds a data segment at a constant offset.
func (b *Builder) Data(offset int32, data []byte) *Builder {
	b.m.Data = append(b.m.Data, wasm.DataSegment{Offset: wasm.ConstI32(offset), Init: data})
	return b
}

// Start sets the start function.
func (b *Builder) Start(idx uint32) *Builder {
	b.m.Start = &idx
	return b
}

// Module returns the assembled module.
func (b *Builder) Module() *wasm.Module { return &b.m }

// Bytes encodes the module.
func (b *Builder) Bytes() []byte { return b.m.Encode() }

// U32 returns a pointer to v, for optional limits.
func U32(v uint32) *uint32 { return &v }

// Code concatenates opcodes and encoded instructions.
func Code(parts ...any) []byte {
	var out []byte
	for _, p := range parts {
		switch v := p.(type) {
		case byte:
			out = append(out, v)
		case []byte:
			out = append(out, v...)
		default:
			panic("wasmtest: Code accepts byte and []byte")
		}
	}
	return out
}

func withU32(op byte, v uint32) []byte {
	return wasm.AppendLEB128u([]byte{op}, v)
}

// I32Const encodes i32.const v.
func I32Const(v int32) []byte {
	return wasm.AppendLEB128s64([]byte{wasm.OpI32Const}, int64(v))
}

// I64Const encodes i64.const v.
func I64Const(v int64) []byte {
	return wasm.AppendLEB128s64([]byte{wasm.OpI64Const}, v)
}

// F32Const encodes f32.const v.
func F32Const(v float32) []byte {
	return binary.LittleEndian.AppendUint32([]byte{wasm.OpF32Const}, math.Float32bits(v))
}

// F64Const encodes f64.const v.
func F64Const(v float64) []byte {
	return binary.LittleEndian.AppendUint64([]byte{wasm.OpF64Const}, math.Float64bits(v))
}

// LocalGet encodes local.get idx.
func LocalGet(idx uint32) []byte { return withU32(wasm.OpLocalGet, idx) }

// LocalSet encodes local.set idx.
func LocalSet(idx uint32) []byte { return withU32(wasm.OpLocalSet, idx) }

// LocalTee encodes local.tee idx.
func LocalTee(idx uint32) []byte { return withU32(wasm.OpLocalTee, idx) }

// GlobalGet encodes global.get idx.
func GlobalGet(idx uint32) []byte { return withU32(wasm.OpGlobalGet, idx) }

// GlobalSet encodes global.set idx.
func GlobalSet(idx uint32) []byte { return withU32(wasm.OpGlobalSet, idx) }

// Call encodes call idx.
func Call(idx uint32) []byte { return withU32(wasm.OpCall, idx) }

// CallIndirect encodes call_indirect typeIdx on table 0.
func CallIndirect(typeIdx uint32) []byte {
	return append(withU32(wasm.OpCallIndirect, typeIdx), 0x00)
}

// Br encodes br depth.
func Br(depth uint32) []byte { return withU32(wasm.OpBr, depth) }

// BrIf encodes br_if depth.
func BrIf(depth uint32) []byte { return withU32(wasm.OpBrIf, depth) }

// BrTable encodes br_table with the given targets and default.
func BrTable(def uint32, targets ...uint32) []byte {
	out := withU32(wasm.OpBrTable, uint32(len(targets)))
	for _, t := range targets {
		out = wasm.AppendLEB128u(out, t)
	}
	return wasm.AppendLEB128u(out, def)
}

// Block opens a block with result type t, or wasm.BlockVoid.
func Block(t byte) []byte { return []byte{wasm.OpBlock, t} }

// Loop opens a loop with result type t, or wasm.BlockVoid.
func Loop(t byte) []byte { return []byte{wasm.OpLoop, t} }

// If opens an if with result type t, or wasm.BlockVoid.
func If(t byte) []byte { return []byte{wasm.OpIf, t} }

// Mem encodes a load or store with the given alignment exponent and
// static offset.
func Mem(op byte, align, offset uint32) []byte {
	return wasm.AppendLEB128u(withU32(op, align), offset)
}

// Misc encodes a 0xFC-prefixed instruction.
func Misc(sub uint32) []byte { return withU32(wasm.OpPrefixMisc, sub) }

// V returns a value type as a block type byte.
func V(t wasm.ValType) byte { return byte(t) }
