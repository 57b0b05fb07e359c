package store

import (
	"math"
	"testing"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wasm"
)

var (
	_ wasminterp.Memory      = (*Memory)(nil)
	_ wasminterp.MemorySizer = (*Memory)(nil)
)

type ref string

func (r ref) TypeKey() string { return string(r) }

func u32(v uint32) *uint32 { return &v }

func TestMemoryBoundary(t *testing.T) {
	m := NewMemory(1, nil)
	if m.Size() != wasm.PageSize {
		t.Fatalf("Size = %d", m.Size())
	}
	m.Buffer[65532] = 0x01
	m.Buffer[65535] = 0xAA

	v, ok := m.Load32(65532)
	if !ok || v != 0xAA000001 {
		t.Errorf("Load32(65532) = 0x%x, %v", v, ok)
	}
	if _, ok := m.Load32(65533); ok {
		t.Error("Load32(65533) must trap: 65533+4 > 65536")
	}

	tests := []struct {
		name string
		ea   uint64
		n    uint64
		ok   bool
	}{
		{"last byte", 65535, 1, true},
		{"past end", 65536, 1, false},
		{"u64 at end", 65528, 8, true},
		{"u64 straddle", 65529, 8, false},
		{"offset carry", math.MaxUint32 + 4, 4, false},
		{"zero length at end", 65536, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.inBounds(tt.ea, tt.n); got != tt.ok {
				t.Errorf("inBounds(%d, %d) = %v, want %v", tt.ea, tt.n, got, tt.ok)
			}
		})
	}
}

func TestMemoryStores(t *testing.T) {
	m := NewMemory(1, nil)
	if !m.Store64(8, 0x0102030405060708) {
		t.Fatal("Store64 failed")
	}
	if b, _ := m.Load8(8); b != 0x08 {
		t.Errorf("little-endian low byte = 0x%x", b)
	}
	if v, _ := m.Load16(14); v != 0x0102 {
		t.Errorf("Load16 = 0x%x", v)
	}
	if m.Store16(65535, 1) {
		t.Error("Store16 straddling the end must fail")
	}
	if m.Store8(65536, 1) {
		t.Error("Store8 past the end must fail")
	}
	if !m.Store32(65532, 7) {
		t.Error("Store32 at the last word must succeed")
	}
}

func TestMemoryInterface(t *testing.T) {
	m := NewMemory(1, nil)
	if err := m.Write(10, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := m.Read(10, 5)
	if err != nil || string(got) != "hello" {
		t.Fatalf("Read = %q, %v", got, err)
	}
	if err := m.WriteU32(0, 42); err != nil {
		t.Fatal(err)
	}
	if v, err := m.ReadU32(0); err != nil || v != 42 {
		t.Errorf("ReadU32 = %d, %v", v, err)
	}
	if err := m.WriteU64(100, 1<<40); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.ReadU64(100); v != 1<<40 {
		t.Errorf("ReadU64 = %d", v)
	}
	if err := m.WriteU8(1, 9); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.ReadU8(1); v != 9 {
		t.Errorf("ReadU8 = %d", v)
	}
	if err := m.WriteU16(2, 0xBEEF); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.ReadU16(2); v != 0xBEEF {
		t.Errorf("ReadU16 = 0x%x", v)
	}

	_, err = m.Read(65534, 4)
	if !errors.IsTrap(err) || errors.KindOf(err) != errors.KindMemoryOutOfBounds {
		t.Errorf("Read out of bounds: %v", err)
	}
	if err := m.Write(65535, []byte{1, 2}); !errors.IsTrap(err) {
		t.Errorf("Write out of bounds: %v", err)
	}
}

func TestMemoryGrow(t *testing.T) {
	m := NewMemory(1, u32(3))
	m.Buffer[0] = 7

	prev, ok := m.Grow(2)
	if !ok || prev != 1 || m.Pages() != 3 {
		t.Fatalf("Grow(2) = %d, %v; pages %d", prev, ok, m.Pages())
	}
	if m.Buffer[0] != 7 {
		t.Error("Grow must preserve contents")
	}

	prev, ok = m.Grow(1)
	if ok || prev != 3 || m.Pages() != 3 {
		t.Errorf("Grow past max = %d, %v; pages %d", prev, ok, m.Pages())
	}

	if prev, ok := m.Grow(0); !ok || prev != 3 {
		t.Errorf("Grow(0) = %d, %v", prev, ok)
	}
}

func TestStoreMemoryCap(t *testing.T) {
	s := New()
	s.SetMaxMemoryPages(2)
	if _, err := s.AllocMemory(3, nil); err == nil {
		t.Error("AllocMemory above cap should fail")
	}
	addr, err := s.AllocMemory(1, nil)
	if err != nil {
		t.Fatal(err)
	}
	mem := s.Memory(addr)
	if _, ok := mem.Grow(1); !ok {
		t.Error("growth to the cap should succeed")
	}
	if _, ok := mem.Grow(1); ok {
		t.Error("growth past the cap should fail")
	}
	if s.Memory(5) != nil {
		t.Error("unknown address should return nil")
	}

	s.SetMaxMemoryPages(0)
	if s.MaxMemoryPages() != wasm.MaxPages {
		t.Errorf("reset cap = %d", s.MaxMemoryPages())
	}
}

func TestTable(t *testing.T) {
	s := New()
	tab := s.Table(s.AllocTable(2, u32(4)))

	if tab.Size() != 2 {
		t.Fatalf("Size = %d", tab.Size())
	}
	if ref, ok := tab.Get(1); !ok || ref != nil {
		t.Errorf("Get(1) = %v, %v; want nil, true", ref, ok)
	}
	if _, ok := tab.Get(2); ok {
		t.Error("Get(2) should be out of bounds")
	}
	if !tab.Set(0, ref("a")) || tab.Set(2, ref("b")) {
		t.Error("Set bounds")
	}

	prev, ok := tab.Grow(2, ref("z"))
	if !ok || prev != 2 || tab.Size() != 4 {
		t.Fatalf("Grow(2) = %d, %v; size %d", prev, ok, tab.Size())
	}
	if r, _ := tab.Get(3); r == nil || r.TypeKey() != "z" {
		t.Errorf("grown entry = %v", r)
	}
	if r, _ := tab.Get(0); r.TypeKey() != "a" {
		t.Error("Grow must preserve entries")
	}

	prev, ok = tab.Grow(1, nil)
	if ok || prev != 4 || tab.Size() != 4 {
		t.Errorf("Grow past max = %d, %v; size %d", prev, ok, tab.Size())
	}
}

func TestGlobals(t *testing.T) {
	var g Globals
	a := g.Alloc(wasm.ValI32, false)
	b := g.Alloc(wasm.ValF64, true)
	c := g.Alloc(wasm.ValF32, true)
	d := g.Alloc(wasm.ValI64, true)
	if a != 0 || b != 1 || g.Len() != 4 {
		t.Fatalf("addresses = %d, %d; len %d", a, b, g.Len())
	}

	g.Store(a, uint64(uint32(0xFFFFFFFF)))
	g.Store(b, math.Float64bits(-1.5))
	g.Store(c, uint64(math.Float32bits(2.5)))
	g.Store(d, uint64(1)<<63)

	if g.LoadI32(a) != -1 {
		t.Errorf("LoadI32 = %d", g.LoadI32(a))
	}
	if g.LoadF64(b) != -1.5 {
		t.Errorf("LoadF64 = %v", g.LoadF64(b))
	}
	if g.LoadF32(c) != 2.5 {
		t.Errorf("LoadF32 = %v", g.LoadF32(c))
	}
	if g.LoadI64(d) != math.MinInt64 {
		t.Errorf("LoadI64 = %d", g.LoadI64(d))
	}
	if g.Type(b) != wasm.ValF64 || g.Mutable(a) || !g.Mutable(b) {
		t.Error("type/mutability mismatch")
	}
	if g.Load(a) != 0xFFFFFFFF {
		t.Errorf("Load = 0x%x", g.Load(a))
	}
}
