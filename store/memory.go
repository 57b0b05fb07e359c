package store

import (
	"encoding/binary"

	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wasm"
)

// Memory is a single linear byte-addressable region. Every access is
// checked against the current size at access time.
type Memory struct {
	Buffer []byte
	Min    uint32
	Max    *uint32

	limit uint32 // host page cap
}

// NewMemory creates a zeroed memory of min pages.
func NewMemory(min uint32, max *uint32) *Memory {
	return &Memory{
		Buffer: make([]byte, uint64(min)*wasm.PageSize),
		Min:    min,
		Max:    max,
		limit:  wasm.MaxPages,
	}
}

// Pages returns the current size in pages.
func (m *Memory) Pages() uint32 {
	return uint32(uint64(len(m.Buffer)) / wasm.PageSize)
}

// Size returns the current size in bytes.
func (m *Memory) Size() uint64 {
	return uint64(len(m.Buffer))
}

// Grow adds delta zeroed pages and returns the previous size in pages.
// Growth past the declared maximum or the host cap fails without changing
// the memory.
func (m *Memory) Grow(delta uint32) (prev uint32, ok bool) {
	prev = m.Pages()
	limit := uint64(m.limit)
	if m.Max != nil && uint64(*m.Max) < limit {
		limit = uint64(*m.Max)
	}
	if uint64(prev)+uint64(delta) > limit {
		return prev, false
	}
	if delta == 0 {
		return prev, true
	}
	grown := make([]byte, (uint64(prev)+uint64(delta))*wasm.PageSize)
	copy(grown, m.Buffer)
	m.Buffer = grown
	return prev, true
}

// inBounds reports whether [ea, ea+n) lies inside the memory. ea may be
// the 33-bit sum of a 32-bit address and a 32-bit static offset.
func (m *Memory) inBounds(ea uint64, n uint64) bool {
	return ea+n <= uint64(len(m.Buffer))
}

// Load8 reads one byte at ea.
func (m *Memory) Load8(ea uint64) (byte, bool) {
	if !m.inBounds(ea, 1) {
		return 0, false
	}
	return m.Buffer[ea], true
}

// Load16 reads a little-endian uint16 at ea.
func (m *Memory) Load16(ea uint64) (uint16, bool) {
	if !m.inBounds(ea, 2) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(m.Buffer[ea:]), true
}

// Load32 reads a little-endian uint32 at ea.
func (m *Memory) Load32(ea uint64) (uint32, bool) {
	if !m.inBounds(ea, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.Buffer[ea:]), true
}

// Load64 reads a little-endian uint64 at ea.
func (m *Memory) Load64(ea uint64) (uint64, bool) {
	if !m.inBounds(ea, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.Buffer[ea:]), true
}

// Store8 writes one byte at ea.
func (m *Memory) Store8(ea uint64, v byte) bool {
	if !m.inBounds(ea, 1) {
		return false
	}
	m.Buffer[ea] = v
	return true
}

// Store16 writes a little-endian uint16 at ea.
func (m *Memory) Store16(ea uint64, v uint16) bool {
	if !m.inBounds(ea, 2) {
		return false
	}
	binary.LittleEndian.PutUint16(m.Buffer[ea:], v)
	return true
}

// Store32 writes a little-endian uint32 at ea.
func (m *Memory) Store32(ea uint64, v uint32) bool {
	if !m.inBounds(ea, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.Buffer[ea:], v)
	return true
}

// Store64 writes a little-endian uint64 at ea.
func (m *Memory) Store64(ea uint64, v uint64) bool {
	if !m.inBounds(ea, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.Buffer[ea:], v)
	return true
}

func outOfBounds(offset uint32, n uint64, size uint64) error {
	return errors.Trap(errors.KindMemoryOutOfBounds,
		"access of %d bytes at %d exceeds memory size %d", n, offset, size)
}

// Read returns a view of length bytes at offset.
func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	ea := uint64(offset)
	if !m.inBounds(ea, uint64(length)) {
		return nil, outOfBounds(offset, uint64(length), m.Size())
	}
	return m.Buffer[ea : ea+uint64(length) : ea+uint64(length)], nil
}

// Write copies data into memory at offset.
func (m *Memory) Write(offset uint32, data []byte) error {
	ea := uint64(offset)
	if !m.inBounds(ea, uint64(len(data))) {
		return outOfBounds(offset, uint64(len(data)), m.Size())
	}
	copy(m.Buffer[ea:], data)
	return nil
}

// ReadU8 reads a byte at offset.
func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.Load8(uint64(offset))
	if !ok {
		return 0, outOfBounds(offset, 1, m.Size())
	}
	return v, nil
}

// ReadU16 reads a little-endian uint16 at offset.
func (m *Memory) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.Load16(uint64(offset))
	if !ok {
		return 0, outOfBounds(offset, 2, m.Size())
	}
	return v, nil
}

// ReadU32 reads a little-endian uint32 at offset.
func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.Load32(uint64(offset))
	if !ok {
		return 0, outOfBounds(offset, 4, m.Size())
	}
	return v, nil
}

// ReadU64 reads a little-endian uint64 at offset.
func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.Load64(uint64(offset))
	if !ok {
		return 0, outOfBounds(offset, 8, m.Size())
	}
	return v, nil
}

// WriteU8 writes a byte at offset.
func (m *Memory) WriteU8(offset uint32, value uint8) error {
	if !m.Store8(uint64(offset), value) {
		return outOfBounds(offset, 1, m.Size())
	}
	return nil
}

// WriteU16 writes a little-endian uint16 at offset.
func (m *Memory) WriteU16(offset uint32, value uint16) error {
	if !m.Store16(uint64(offset), value) {
		return outOfBounds(offset, 2, m.Size())
	}
	return nil
}

// WriteU32 writes a little-endian uint32 at offset.
func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if !m.Store32(uint64(offset), value) {
		return outOfBounds(offset, 4, m.Size())
	}
	return nil
}

// WriteU64 writes a little-endian uint64 at offset.
func (m *Memory) WriteU64(offset uint32, value uint64) error {
	if !m.Store64(uint64(offset), value) {
		return outOfBounds(offset, 8, m.Size())
	}
	return nil
}
