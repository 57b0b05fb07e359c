package runtime

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-interp/wasm"
)

// Encode converts a Go value to the raw bits of type t. Integers are
// accepted for any type that can hold them; floats only for f32 and f64.
func Encode(t wasm.ValType, v any) (uint64, error) {
	switch t {
	case wasm.ValI32:
		switch x := v.(type) {
		case int32:
			return api.EncodeI32(x), nil
		case uint32:
			return api.EncodeU32(x), nil
		case int:
			if x < math.MinInt32 || x > math.MaxUint32 {
				return 0, fmt.Errorf("%d overflows i32", x)
			}
			return uint64(uint32(x)), nil
		case bool:
			if x {
				return 1, nil
			}
			return 0, nil
		}
	case wasm.ValI64:
		switch x := v.(type) {
		case int64:
			return api.EncodeI64(x), nil
		case uint64:
			return x, nil
		case int:
			return api.EncodeI64(int64(x)), nil
		case int32:
			return api.EncodeI64(int64(x)), nil
		case uint32:
			return uint64(x), nil
		}
	case wasm.ValF32:
		switch x := v.(type) {
		case float32:
			return api.EncodeF32(x), nil
		case float64:
			return api.EncodeF32(float32(x)), nil
		case int:
			return api.EncodeF32(float32(x)), nil
		}
	case wasm.ValF64:
		switch x := v.(type) {
		case float64:
			return api.EncodeF64(x), nil
		case float32:
			return api.EncodeF64(float64(x)), nil
		case int:
			return api.EncodeF64(float64(x)), nil
		}
	default:
		return 0, fmt.Errorf("unknown value type 0x%02x", byte(t))
	}
	return 0, fmt.Errorf("cannot use %T as %s", v, api.ValueTypeName(api.ValueType(t)))
}

// Decode converts raw bits of type t to int32, int64, float32 or float64.
func Decode(t wasm.ValType, v uint64) any {
	switch t {
	case wasm.ValI32:
		return api.DecodeI32(v)
	case wasm.ValI64:
		return int64(v)
	case wasm.ValF32:
		return api.DecodeF32(v)
	case wasm.ValF64:
		return api.DecodeF64(v)
	}
	return v
}

// ParseValue parses a textual argument of type t. Integers accept any
// base prefix understood by strconv and may be written unsigned.
func ParseValue(t wasm.ValType, s string) (uint64, error) {
	s = strings.TrimSpace(s)
	switch t {
	case wasm.ValI32:
		if n, err := strconv.ParseInt(s, 0, 32); err == nil {
			return api.EncodeI32(int32(n)), nil
		}
		n, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("parse i32 %q: %w", s, err)
		}
		return n, nil
	case wasm.ValI64:
		if n, err := strconv.ParseInt(s, 0, 64); err == nil {
			return api.EncodeI64(n), nil
		}
		n, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("parse i64 %q: %w", s, err)
		}
		return n, nil
	case wasm.ValF32:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, fmt.Errorf("parse f32 %q: %w", s, err)
		}
		return api.EncodeF32(float32(f)), nil
	case wasm.ValF64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parse f64 %q: %w", s, err)
		}
		return api.EncodeF64(f), nil
	}
	return 0, fmt.Errorf("unknown value type 0x%02x", byte(t))
}

// Format renders raw bits of type t, with the type name.
func Format(t wasm.ValType, v uint64) string {
	return fmt.Sprintf("%s:%v", api.ValueTypeName(api.ValueType(t)), Decode(t, v))
}
