package store

import (
	"math"

	"github.com/wippyai/wasm-interp/wasm"
)

// Globals is a growable array of 64-bit slots. Floats are stored by bit
// pattern; i32 and f32 values occupy the low 32 bits.
type Globals struct {
	slots   []uint64
	types   []wasm.ValType
	mutable []bool
}

// Alloc appends a zeroed slot and returns its address.
func (g *Globals) Alloc(t wasm.ValType, mutable bool) int {
	g.slots = append(g.slots, 0)
	g.types = append(g.types, t)
	g.mutable = append(g.mutable, mutable)
	return len(g.slots) - 1
}

// Len returns the number of allocated slots.
func (g *Globals) Len() int { return len(g.slots) }

// Type returns the value type of the slot at addr.
func (g *Globals) Type(addr int) wasm.ValType { return g.types[addr] }

// Mutable reports whether the slot at addr was allocated as mutable.
func (g *Globals) Mutable(addr int) bool { return g.mutable[addr] }

// Load returns the raw bits of the slot at addr.
func (g *Globals) Load(addr int) uint64 { return g.slots[addr] }

// Store writes raw bits into the slot at addr. Mutability is checked by the
// code compiler and the linker, not here.
func (g *Globals) Store(addr int, v uint64) { g.slots[addr] = v }

// LoadI32 returns the slot at addr as an i32.
func (g *Globals) LoadI32(addr int) int32 { return int32(uint32(g.slots[addr])) }

// LoadI64 returns the slot at addr as an i64.
func (g *Globals) LoadI64(addr int) int64 { return int64(g.slots[addr]) }

// LoadF32 returns the slot at addr as an f32.
func (g *Globals) LoadF32(addr int) float32 {
	return math.Float32frombits(uint32(g.slots[addr]))
}

// LoadF64 returns the slot at addr as an f64.
func (g *Globals) LoadF64(addr int) float64 {
	return math.Float64frombits(g.slots[addr])
}
