package binary

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestReaderBytes(t *testing.T) {
	r := NewReaderAt([]byte{0x01, 0x02, 0x03, 0x04, 0x05}, 100)

	b, err := r.ReadByte()
	if err != nil || b != 0x01 {
		t.Fatalf("ReadByte = %#x, %v", b, err)
	}
	got, err := r.ReadBytes(2)
	if err != nil || !bytes.Equal(got, []byte{0x02, 0x03}) {
		t.Fatalf("ReadBytes(2) = %v, %v", got, err)
	}
	if r.Position() != 3 || r.Offset() != 103 || r.Len() != 2 {
		t.Errorf("Position/Offset/Len = %d/%d/%d, want 3/103/2", r.Position(), r.Offset(), r.Len())
	}
	if _, err := r.ReadBytes(3); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadBytes past end: %v", err)
	}
	if _, err := r.ReadBytes(-1); err == nil {
		t.Error("ReadBytes(-1) accepted")
	}

	rest, err := r.ReadRemaining()
	if err != nil || !bytes.Equal(rest, []byte{0x04, 0x05}) {
		t.Fatalf("ReadRemaining = %v, %v", rest, err)
	}
	if _, err := r.ReadByte(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadByte at end: %v", err)
	}

	if err := r.Reset(1); err != nil || r.Position() != 1 {
		t.Errorf("Reset(1): %v, position %d", err, r.Position())
	}
	if err := r.Reset(6); err == nil {
		t.Error("Reset past end accepted")
	}
}

func TestReadBytesAliases(t *testing.T) {
	data := []byte{1, 2, 3}
	got, err := NewReader(data).ReadBytes(2)
	if err != nil {
		t.Fatal(err)
	}
	data[0] = 9
	if got[0] != 9 {
		t.Error("ReadBytes copied its result")
	}
	if cap(got) != 2 {
		t.Errorf("cap = %d, result can be appended into the buffer", cap(got))
	}
}

func TestReadU32(t *testing.T) {
	tests := []struct {
		in   []byte
		want uint32
		err  error
	}{
		{[]byte{0x00}, 0, nil},
		{[]byte{0x7f}, 127, nil},
		{[]byte{0x80, 0x01}, 128, nil},
		{[]byte{0xe5, 0x8e, 0x26}, 624485, nil},
		{[]byte{0x80, 0x80, 0x00}, 0, nil},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xFFFFFFFF, nil},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x1f}, 0, ErrOverflow},
		{[]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00}, 0, ErrOverflow},
		{[]byte{0x80, 0x80}, 0, io.ErrUnexpectedEOF},
		{nil, 0, io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		got, err := NewReader(tt.in).ReadU32()
		if !errors.Is(err, tt.err) || (tt.err == nil && err != nil) {
			t.Errorf("ReadU32(% x) error = %v, want %v", tt.in, err, tt.err)
			continue
		}
		if tt.err == nil && got != tt.want {
			t.Errorf("ReadU32(% x) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestReadSigned(t *testing.T) {
	s32 := []struct {
		in   []byte
		want int32
		err  error
	}{
		{[]byte{0x00}, 0, nil},
		{[]byte{0x7f}, -1, nil},
		{[]byte{0x3f}, 63, nil},
		{[]byte{0x40}, -64, nil},
		{[]byte{0xc0, 0x00}, 64, nil},
		{[]byte{0xbf, 0x7f}, -65, nil},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x07}, 2147483647, nil},
		{[]byte{0x80, 0x80, 0x80, 0x80, 0x78}, -2147483648, nil},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0, ErrOverflow},
		{[]byte{0x80, 0x80, 0x80, 0x80, 0x70}, 0, ErrOverflow},
		{[]byte{0x80}, 0, io.ErrUnexpectedEOF},
	}
	for _, tt := range s32 {
		got, err := NewReader(tt.in).ReadS32()
		if !errors.Is(err, tt.err) || (tt.err == nil && err != nil) {
			t.Errorf("ReadS32(% x) error = %v, want %v", tt.in, err, tt.err)
			continue
		}
		if tt.err == nil && got != tt.want {
			t.Errorf("ReadS32(% x) = %d, want %d", tt.in, got, tt.want)
		}
	}

	s64 := []struct {
		in   []byte
		want int64
		err  error
	}{
		{[]byte{0x7f}, -1, nil},
		{[]byte{0xec, 0xb2, 0x7f}, -9876, nil},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}, 9223372036854775807, nil},
		{[]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x7f}, -9223372036854775808, nil},
		{[]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01}, 0, ErrOverflow},
		{[]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x00}, 0, ErrOverflow},
	}
	for _, tt := range s64 {
		got, err := NewReader(tt.in).ReadS64()
		if !errors.Is(err, tt.err) || (tt.err == nil && err != nil) {
			t.Errorf("ReadS64(% x) error = %v, want %v", tt.in, err, tt.err)
			continue
		}
		if tt.err == nil && got != tt.want {
			t.Errorf("ReadS64(% x) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestReadOverflowReportsOffset(t *testing.T) {
	r := NewReaderAt([]byte{0xff, 0xff, 0xff, 0xff, 0x7f}, 40)
	_, err := r.ReadU32()
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("got %v", err)
	}
	if want := "at position 45: leb128: overflow"; err.Error() != want {
		t.Errorf("error = %q, want %q", err, want)
	}
}

func TestReadName(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
		err  error
	}{
		{[]byte{0x05, 'h', 'e', 'l', 'l', 'o'}, "hello", nil},
		{[]byte{0x00}, "", nil},
		{[]byte{0x02, 0xff, 0xfe}, "", ErrInvalidUTF8},
		{[]byte{0x05, 'h', 'i'}, "", io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		got, err := NewReader(tt.in).ReadName()
		if !errors.Is(err, tt.err) || (tt.err == nil && err != nil) {
			t.Errorf("ReadName(% x) error = %v, want %v", tt.in, err, tt.err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadName(% x) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReadU32LE(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05})
	v, err := r.ReadU32LE()
	if err != nil || v != 0x04030201 {
		t.Fatalf("ReadU32LE = %#x, %v", v, err)
	}
	if _, err := r.ReadU32LE(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("short ReadU32LE: %v", err)
	}
}

func TestWriter(t *testing.T) {
	tests := []struct {
		name  string
		write func(*Writer)
		want  []byte
	}{
		{"byte", func(w *Writer) { w.Byte(0x42) }, []byte{0x42}},
		{"bytes", func(w *Writer) { w.WriteBytes([]byte{1, 2, 3}) }, []byte{1, 2, 3}},
		{"u32 zero", func(w *Writer) { w.WriteU32(0) }, []byte{0x00}},
		{"u32 127", func(w *Writer) { w.WriteU32(127) }, []byte{0x7f}},
		{"u32 128", func(w *Writer) { w.WriteU32(128) }, []byte{0x80, 0x01}},
		{"u32 624485", func(w *Writer) { w.WriteU32(624485) }, []byte{0xe5, 0x8e, 0x26}},
		{"u32 max", func(w *Writer) { w.WriteU32(0xFFFFFFFF) }, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
		{"name", func(w *Writer) { w.WriteName("add") }, []byte{0x03, 'a', 'd', 'd'}},
		{"u32 le", func(w *Writer) { w.WriteU32LE(0x04030201) }, []byte{0x01, 0x02, 0x03, 0x04}},
		{"section", func(w *Writer) { w.Section(8, []byte{0x02}) }, []byte{0x08, 0x01, 0x02}},
		{"empty section", func(w *Writer) { w.Section(1, nil) }, []byte{0x01, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter()
			tt.write(w)
			if !bytes.Equal(w.Bytes(), tt.want) {
				t.Errorf("got % x, want % x", w.Bytes(), tt.want)
			}
			if w.Len() != len(tt.want) {
				t.Errorf("Len() = %d, want %d", w.Len(), len(tt.want))
			}
		})
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteU32(12345)
	w.WriteName("roundtrip")
	w.WriteU32LE(0xDEADBEEF)

	r := NewReader(w.Bytes())
	if v, err := r.ReadU32(); err != nil || v != 12345 {
		t.Fatalf("ReadU32 = %d, %v", v, err)
	}
	if s, err := r.ReadName(); err != nil || s != "roundtrip" {
		t.Fatalf("ReadName = %q, %v", s, err)
	}
	if v, err := r.ReadU32LE(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("ReadU32LE = %#x, %v", v, err)
	}
	if r.Len() != 0 {
		t.Errorf("%d bytes left", r.Len())
	}
}
