package wasm

import (
	"errors"
	"io"
)

// LEB128 encoding/decoding utilities for WebAssembly binary format.
//
// The Decode* functions work on a byte slice and report how many bytes the
// encoding occupies without consuming anything. The code compiler uses them
// to record operand lengths in its side tables.

// ErrOverflow is returned when a LEB128 value exceeds the maximum bit width.
var ErrOverflow = errors.New("leb128: overflow")

// DecodeU32 decodes an unsigned 32-bit LEB128 value at the start of b and
// returns it together with its encoded length.
func DecodeU32(b []byte) (uint32, int, error) {
	var result uint32
	var shift uint
	for i, c := range b {
		if i == 4 && c&0x70 != 0 {
			return 0, 0, ErrOverflow
		}
		result |= uint32(c&0x7f) << shift
		if c&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, 0, ErrOverflow
		}
	}
	return 0, 0, io.ErrUnexpectedEOF
}

// DecodeS32 decodes a signed 32-bit LEB128 value at the start of b. In a
// five-byte encoding the unused high bits of the last byte must repeat the
// sign bit.
func DecodeS32(b []byte) (int32, int, error) {
	var result int32
	var shift uint
	for i, c := range b {
		if i == 4 && (c&0x80 != 0 || (c&0x78 != 0 && c&0x78 != 0x78)) {
			return 0, 0, ErrOverflow
		}
		result |= int32(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			if shift < 32 && c&0x40 != 0 {
				result |= ^int32(0) << shift
			}
			return result, i + 1, nil
		}
	}
	return 0, 0, io.ErrUnexpectedEOF
}

// DecodeS64 decodes a signed 64-bit LEB128 value at the start of b. A
// ten-byte encoding must end in 0x00 or 0x7f.
func DecodeS64(b []byte) (int64, int, error) {
	var result int64
	var shift uint
	for i, c := range b {
		if i == 9 && c != 0x00 && c != 0x7f {
			return 0, 0, ErrOverflow
		}
		result |= int64(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			if shift < 64 && c&0x40 != 0 {
				result |= ^int64(0) << shift
			}
			return result, i + 1, nil
		}
	}
	return 0, 0, io.ErrUnexpectedEOF
}

// AppendLEB128u appends the unsigned LEB128 encoding of v to dst.
func AppendLEB128u(dst []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if v == 0 {
			return dst
		}
	}
}

// AppendLEB128s64 appends the signed LEB128 encoding of v to dst.
func AppendLEB128s64(dst []byte, v int64) []byte {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		dst = append(dst, b)
	}
	return dst
}

// EncodeLEB128u encodes an unsigned 32-bit LEB128 value to bytes.
func EncodeLEB128u(v uint32) []byte {
	return AppendLEB128u(nil, v)
}

// EncodeLEB128s encodes a signed 32-bit LEB128 value to bytes.
func EncodeLEB128s(v int32) []byte {
	return AppendLEB128s64(nil, int64(v))
}

// EncodeLEB128s64 encodes a signed 64-bit LEB128 value to bytes.
func EncodeLEB128s64(v int64) []byte {
	return AppendLEB128s64(nil, v)
}
