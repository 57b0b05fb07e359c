package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Errors returned by Reader.
var (
	ErrOverflow    = errors.New("leb128: overflow")
	ErrInvalidUTF8 = errors.New("invalid UTF-8 in name")
)

// Reader is a cursor over an in-memory byte slice with WASM-specific read
// methods. Slices returned by ReadBytes alias the underlying buffer.
type Reader struct {
	buf  []byte
	pos  int
	base int // absolute offset of buf[0] within the enclosing module
}

// NewReader creates a new Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

// NewReaderAt creates a Reader over data whose first byte sits at absolute
// offset base in some enclosing buffer. Offset reports positions relative to
// that buffer.
func NewReaderAt(data []byte, base int) *Reader {
	return &Reader{buf: data, base: base}
}

// Position returns the current byte position relative to the reader's start.
func (r *Reader) Position() int {
	return r.pos
}

// Offset returns the current absolute byte offset.
func (r *Reader) Offset() int {
	return r.base + r.pos
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.pos
}

// Reset seeks to the given position.
func (r *Reader) Reset(pos int) error {
	if pos < 0 || pos > len(r.buf) {
		return fmt.Errorf("reset position %d out of range [0, %d]", pos, len(r.buf))
	}
	r.pos = pos
	return nil
}

// ReadByte reads a single byte and advances the position.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, io.EOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes. The result aliases the reader's buffer.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > r.Len() {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadU32 reads an unsigned LEB128 encoded uint32.
func (r *Reader) ReadU32() (uint32, error) {
	v, err := r.readLEB(32, false)
	return uint32(v), err
}

// ReadS32 reads a signed LEB128 encoded int32.
func (r *Reader) ReadS32() (int32, error) {
	v, err := r.readLEB(32, true)
	return int32(v), err
}

// ReadS64 reads a signed LEB128 encoded int64.
func (r *Reader) ReadS64() (int64, error) {
	v, err := r.readLEB(64, true)
	return int64(v), err
}

// readLEB decodes a LEB128 value of at most bits bits. The byte that
// crosses the limit must end the encoding, and its bits above the limit
// must be zero, or copies of the sign bit when signed.
func (r *Reader) readLEB(bits uint, signed bool) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, unexpected(err)
		}
		if shift+7 > bits && !finalByteFits(b, bits-shift, signed) {
			return 0, r.wrapError(ErrOverflow)
		}
		result |= uint64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if signed && shift < 64 && b&0x40 != 0 {
				result |= ^uint64(0) << shift
			}
			return result, nil
		}
	}
}

func finalByteFits(b byte, rem uint, signed bool) bool {
	if b&0x80 != 0 {
		return false
	}
	unused := byte(0x7f) &^ (1<<rem - 1)
	if signed && b&(1<<(rem-1)) != 0 {
		return b&unused == unused
	}
	return b&unused == 0
}

// ReadName reads a UTF-8 encoded name (length-prefixed byte sequence).
func (r *Reader) ReadName() (string, error) {
	length, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	data, err := r.ReadBytes(int(length))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", r.wrapError(ErrInvalidUTF8)
	}
	return string(data), nil
}

// ReadU32LE reads a little-endian uint32 (fixed 4 bytes).
func (r *Reader) ReadU32LE() (uint32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// ReadRemaining reads all remaining bytes from the reader.
func (r *Reader) ReadRemaining() ([]byte, error) {
	return r.ReadBytes(r.Len())
}

func (r *Reader) wrapError(err error) error {
	return fmt.Errorf("at position %d: %w", r.Offset(), err)
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
