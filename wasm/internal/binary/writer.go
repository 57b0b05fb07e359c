package binary

import "encoding/binary"

// Writer accumulates an encoded module or section body.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the bytes written so far. The slice aliases the buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Byte appends b.
func (w *Writer) Byte(b byte) { w.buf = append(w.buf, b) }

// WriteBytes appends data verbatim.
func (w *Writer) WriteBytes(data []byte) { w.buf = append(w.buf, data...) }

// WriteU32 appends v as unsigned LEB128.
func (w *Writer) WriteU32(v uint32) {
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
}

// WriteName appends a length-prefixed name.
func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteU32LE appends v as four little-endian bytes.
func (w *Writer) WriteU32LE(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// Section appends a section with the given id whose payload is body.
func (w *Writer) Section(id byte, body []byte) {
	w.Byte(id)
	w.WriteU32(uint32(len(body)))
	w.WriteBytes(body)
}
