package store

import "github.com/wippyai/wasm-interp/wasm"

// FuncRef is an opaque call handle stored in a table.
type FuncRef interface {
	// TypeKey identifies the function's signature. call_indirect compares
	// it against the expected signature's key.
	TypeKey() string
}

// Table is a growable array of function references.
type Table struct {
	elems []FuncRef
	Min   uint32
	Max   *uint32
}

// NewTable creates a table of min null entries.
func NewTable(min uint32, max *uint32) *Table {
	return &Table{
		elems: make([]FuncRef, min),
		Min:   min,
		Max:   max,
	}
}

// Size returns the current number of entries.
func (t *Table) Size() uint32 { return uint32(len(t.elems)) }

// Get returns the entry at i. ok is false when i is out of bounds; a nil
// FuncRef with ok true is an uninitialized element.
func (t *Table) Get(i uint32) (ref FuncRef, ok bool) {
	if uint64(i) >= uint64(len(t.elems)) {
		return nil, false
	}
	return t.elems[i], true
}

// Set stores ref at i and reports whether i was in bounds.
func (t *Table) Set(i uint32, ref FuncRef) bool {
	if uint64(i) >= uint64(len(t.elems)) {
		return false
	}
	t.elems[i] = ref
	return true
}

// Grow appends delta entries initialized to init and returns the previous
// size. Growth past the declared maximum fails without changing the table.
func (t *Table) Grow(delta uint32, init FuncRef) (prev uint32, ok bool) {
	prev = t.Size()
	limit := uint64(wasm.MaxTableSize)
	if t.Max != nil {
		limit = uint64(*t.Max)
	}
	if uint64(prev)+uint64(delta) > limit {
		return prev, false
	}
	grown := make([]FuncRef, int(prev)+int(delta))
	copy(grown, t.elems)
	for i := int(prev); i < len(grown); i++ {
		grown[i] = init
	}
	t.elems = grown
	return prev, true
}
