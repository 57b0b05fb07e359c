package store

import (
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wasm"
)

// Store owns every global, memory and table allocated by the modules of one
// host.
type Store struct {
	Globals  Globals
	Memories []*Memory
	Tables   []*Table

	maxPages uint32
}

// New creates an empty store. Memories may grow up to the format maximum.
func New() *Store {
	return &Store{maxPages: wasm.MaxPages}
}

// SetMaxMemoryPages caps every memory allocated or grown afterwards. Values
// of zero or above the format maximum reset the cap to the format maximum.
func (s *Store) SetMaxMemoryPages(n uint32) {
	if n == 0 || n > wasm.MaxPages {
		n = wasm.MaxPages
	}
	s.maxPages = n
}

// MaxMemoryPages returns the current page cap.
func (s *Store) MaxMemoryPages() uint32 {
	return s.maxPages
}

// AllocMemory allocates a zeroed memory of min pages and returns its address.
func (s *Store) AllocMemory(min uint32, max *uint32) (int, error) {
	if min > s.maxPages {
		return 0, errors.New(errors.PhaseLinking, errors.KindOverflow).
			Detail("memory minimum %d pages exceeds limit %d", min, s.maxPages).Build()
	}
	mem := NewMemory(min, max)
	mem.limit = s.maxPages
	s.Memories = append(s.Memories, mem)
	return len(s.Memories) - 1, nil
}

// AllocTable allocates a table of min null entries and returns its address.
func (s *Store) AllocTable(min uint32, max *uint32) int {
	s.Tables = append(s.Tables, NewTable(min, max))
	return len(s.Tables) - 1
}

// Memory returns the memory at addr, or nil.
func (s *Store) Memory(addr int) *Memory {
	if addr < 0 || addr >= len(s.Memories) {
		return nil
	}
	return s.Memories[addr]
}

// Table returns the table at addr, or nil.
func (s *Store) Table(addr int) *Table {
	if addr < 0 || addr >= len(s.Tables) {
		return nil
	}
	return s.Tables[addr]
}
