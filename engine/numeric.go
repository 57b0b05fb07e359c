package engine

import (
	"math"
	"math/bits"

	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wasm"
)

const (
	f32SignBit = uint32(1) << 31
	f64SignBit = uint64(1) << 63
)

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func asF32(v uint64) float32 { return math.Float32frombits(uint32(v)) }
func asF64(v uint64) float64 { return math.Float64frombits(v) }

func fromF32(v float32) uint64 { return uint64(math.Float32bits(v)) }
func fromF64(v float64) uint64 { return math.Float64bits(v) }

// numeric executes a fixed-arity arithmetic, comparison or conversion
// instruction against the top of the operand stack.
func (f *frame) numeric(op byte) {
	s := f.stack
	if numericSignatures[op].arity == 1 {
		top := f.sp - 1
		s[top] = unary(op, s[top])
		return
	}
	f.sp--
	b := s[f.sp]
	top := f.sp - 1
	s[top] = binaryOp(op, s[top], b)
}

func unary(op byte, v uint64) uint64 {
	switch op {
	case wasm.OpI32Eqz:
		return b2u(uint32(v) == 0)
	case wasm.OpI64Eqz:
		return b2u(v == 0)

	case wasm.OpI32Clz:
		return uint64(bits.LeadingZeros32(uint32(v)))
	case wasm.OpI32Ctz:
		return uint64(bits.TrailingZeros32(uint32(v)))
	case wasm.OpI32Popcnt:
		return uint64(bits.OnesCount32(uint32(v)))
	case wasm.OpI64Clz:
		return uint64(bits.LeadingZeros64(v))
	case wasm.OpI64Ctz:
		return uint64(bits.TrailingZeros64(v))
	case wasm.OpI64Popcnt:
		return uint64(bits.OnesCount64(v))

	case wasm.OpF32Abs:
		return uint64(uint32(v) &^ f32SignBit)
	case wasm.OpF32Neg:
		return uint64(uint32(v) ^ f32SignBit)
	case wasm.OpF32Ceil:
		return fromF32(float32(math.Ceil(float64(asF32(v)))))
	case wasm.OpF32Floor:
		return fromF32(float32(math.Floor(float64(asF32(v)))))
	case wasm.OpF32Trunc:
		return fromF32(float32(math.Trunc(float64(asF32(v)))))
	case wasm.OpF32Nearest:
		return fromF32(float32(math.RoundToEven(float64(asF32(v)))))
	case wasm.OpF32Sqrt:
		return fromF32(float32(math.Sqrt(float64(asF32(v)))))
	case wasm.OpF64Abs:
		return v &^ f64SignBit
	case wasm.OpF64Neg:
		return v ^ f64SignBit
	case wasm.OpF64Ceil:
		return fromF64(math.Ceil(asF64(v)))
	case wasm.OpF64Floor:
		return fromF64(math.Floor(asF64(v)))
	case wasm.OpF64Trunc:
		return fromF64(math.Trunc(asF64(v)))
	case wasm.OpF64Nearest:
		return fromF64(math.RoundToEven(asF64(v)))
	case wasm.OpF64Sqrt:
		return fromF64(math.Sqrt(asF64(v)))

	case wasm.OpI32WrapI64:
		return uint64(uint32(v))
	case wasm.OpI32TruncF32S:
		return uint64(uint32(truncToI32(float64(asF32(v)))))
	case wasm.OpI32TruncF32U:
		return uint64(truncToU32(float64(asF32(v))))
	case wasm.OpI32TruncF64S:
		return uint64(uint32(truncToI32(asF64(v))))
	case wasm.OpI32TruncF64U:
		return uint64(truncToU32(asF64(v)))
	case wasm.OpI64ExtendI32S:
		return uint64(int64(int32(uint32(v))))
	case wasm.OpI64ExtendI32U:
		return uint64(uint32(v))
	case wasm.OpI64TruncF32S:
		return uint64(truncToI64(float64(asF32(v))))
	case wasm.OpI64TruncF32U:
		return truncToU64(float64(asF32(v)))
	case wasm.OpI64TruncF64S:
		return uint64(truncToI64(asF64(v)))
	case wasm.OpI64TruncF64U:
		return truncToU64(asF64(v))
	case wasm.OpF32ConvertI32S:
		return fromF32(float32(int32(uint32(v))))
	case wasm.OpF32ConvertI32U:
		return fromF32(float32(uint32(v)))
	case wasm.OpF32ConvertI64S:
		return fromF32(float32(int64(v)))
	case wasm.OpF32ConvertI64U:
		return fromF32(float32(v))
	case wasm.OpF32DemoteF64:
		return fromF32(float32(asF64(v)))
	case wasm.OpF64ConvertI32S:
		return fromF64(float64(int32(uint32(v))))
	case wasm.OpF64ConvertI32U:
		return fromF64(float64(uint32(v)))
	case wasm.OpF64ConvertI64S:
		return fromF64(float64(int64(v)))
	case wasm.OpF64ConvertI64U:
		return fromF64(float64(v))
	case wasm.OpF64PromoteF32:
		return fromF64(float64(asF32(v)))
	case wasm.OpI32ReinterpretF32, wasm.OpF32ReinterpretI32,
		wasm.OpI64ReinterpretF64, wasm.OpF64ReinterpretI64:
		return v

	case wasm.OpI32Extend8S:
		return uint64(uint32(int32(int8(v))))
	case wasm.OpI32Extend16S:
		return uint64(uint32(int32(int16(v))))
	case wasm.OpI64Extend8S:
		return uint64(int64(int8(v)))
	case wasm.OpI64Extend16S:
		return uint64(int64(int16(v)))
	case wasm.OpI64Extend32S:
		return uint64(int64(int32(v)))
	}
	panic(errors.Trap(errors.KindUnreachable, "opcode 0x%02x has no unary implementation", op))
}

func binaryOp(op byte, a, b uint64) uint64 {
	switch {
	case op <= wasm.OpI32GeU || (op >= wasm.OpI32Add && op <= wasm.OpI32Rotr):
		return binaryI32(op, uint32(a), uint32(b))
	case op <= wasm.OpI64GeU || (op >= wasm.OpI64Add && op <= wasm.OpI64Rotr):
		return binaryI64(op, a, b)
	case op <= wasm.OpF32Ge || (op >= wasm.OpF32Add && op <= wasm.OpF32Copysign):
		return binaryF32(op, asF32(a), asF32(b))
	default:
		return binaryF64(op, asF64(a), asF64(b))
	}
}

func binaryI32(op byte, a, b uint32) uint64 {
	switch op {
	case wasm.OpI32Eq:
		return b2u(a == b)
	case wasm.OpI32Ne:
		return b2u(a != b)
	case wasm.OpI32LtS:
		return b2u(int32(a) < int32(b))
	case wasm.OpI32LtU:
		return b2u(a < b)
	case wasm.OpI32GtS:
		return b2u(int32(a) > int32(b))
	case wasm.OpI32GtU:
		return b2u(a > b)
	case wasm.OpI32LeS:
		return b2u(int32(a) <= int32(b))
	case wasm.OpI32LeU:
		return b2u(a <= b)
	case wasm.OpI32GeS:
		return b2u(int32(a) >= int32(b))
	case wasm.OpI32GeU:
		return b2u(a >= b)
	case wasm.OpI32Add:
		return uint64(a + b)
	case wasm.OpI32Sub:
		return uint64(a - b)
	case wasm.OpI32Mul:
		return uint64(a * b)
	case wasm.OpI32DivS:
		if b == 0 {
			trap(errors.KindDivideByZero, "integer divide by zero")
		}
		if int32(a) == math.MinInt32 && int32(b) == -1 {
			trap(errors.KindIntegerOverflow, "integer overflow")
		}
		return uint64(uint32(int32(a) / int32(b)))
	case wasm.OpI32DivU:
		if b == 0 {
			trap(errors.KindDivideByZero, "integer divide by zero")
		}
		return uint64(a / b)
	case wasm.OpI32RemS:
		if b == 0 {
			trap(errors.KindDivideByZero, "integer divide by zero")
		}
		if int32(b) == -1 {
			return 0
		}
		return uint64(uint32(int32(a) % int32(b)))
	case wasm.OpI32RemU:
		if b == 0 {
			trap(errors.KindDivideByZero, "integer divide by zero")
		}
		return uint64(a % b)
	case wasm.OpI32And:
		return uint64(a & b)
	case wasm.OpI32Or:
		return uint64(a | b)
	case wasm.OpI32Xor:
		return uint64(a ^ b)
	case wasm.OpI32Shl:
		return uint64(a << (b & 31))
	case wasm.OpI32ShrS:
		return uint64(uint32(int32(a) >> (b & 31)))
	case wasm.OpI32ShrU:
		return uint64(a >> (b & 31))
	case wasm.OpI32Rotl:
		return uint64(bits.RotateLeft32(a, int(b&31)))
	case wasm.OpI32Rotr:
		return uint64(bits.RotateLeft32(a, -int(b&31)))
	}
	panic(errors.Trap(errors.KindUnreachable, "opcode 0x%02x has no i32 implementation", op))
}

func binaryI64(op byte, a, b uint64) uint64 {
	switch op {
	case wasm.OpI64Eq:
		return b2u(a == b)
	case wasm.OpI64Ne:
		return b2u(a != b)
	case wasm.OpI64LtS:
		return b2u(int64(a) < int64(b))
	case wasm.OpI64LtU:
		return b2u(a < b)
	case wasm.OpI64GtS:
		return b2u(int64(a) > int64(b))
	case wasm.OpI64GtU:
		return b2u(a > b)
	case wasm.OpI64LeS:
		return b2u(int64(a) <= int64(b))
	case wasm.OpI64LeU:
		return b2u(a <= b)
	case wasm.OpI64GeS:
		return b2u(int64(a) >= int64(b))
	case wasm.OpI64GeU:
		return b2u(a >= b)
	case wasm.OpI64Add:
		return a + b
	case wasm.OpI64Sub:
		return a - b
	case wasm.OpI64Mul:
		return a * b
	case wasm.OpI64DivS:
		if b == 0 {
			trap(errors.KindDivideByZero, "integer divide by zero")
		}
		if int64(a) == math.MinInt64 && int64(b) == -1 {
			trap(errors.KindIntegerOverflow, "integer overflow")
		}
		return uint64(int64(a) / int64(b))
	case wasm.OpI64DivU:
		if b == 0 {
			trap(errors.KindDivideByZero, "integer divide by zero")
		}
		return a / b
	case wasm.OpI64RemS:
		if b == 0 {
			trap(errors.KindDivideByZero, "integer divide by zero")
		}
		if int64(b) == -1 {
			return 0
		}
		return uint64(int64(a) % int64(b))
	case wasm.OpI64RemU:
		if b == 0 {
			trap(errors.KindDivideByZero, "integer divide by zero")
		}
		return a % b
	case wasm.OpI64And:
		return a & b
	case wasm.OpI64Or:
		return a | b
	case wasm.OpI64Xor:
		return a ^ b
	case wasm.OpI64Shl:
		return a << (b & 63)
	case wasm.OpI64ShrS:
		return uint64(int64(a) >> (b & 63))
	case wasm.OpI64ShrU:
		return a >> (b & 63)
	case wasm.OpI64Rotl:
		return bits.RotateLeft64(a, int(b&63))
	case wasm.OpI64Rotr:
		return bits.RotateLeft64(a, -int(b&63))
	}
	panic(errors.Trap(errors.KindUnreachable, "opcode 0x%02x has no i64 implementation", op))
}

func binaryF32(op byte, a, b float32) uint64 {
	switch op {
	case wasm.OpF32Eq:
		return b2u(a == b)
	case wasm.OpF32Ne:
		return b2u(a != b)
	case wasm.OpF32Lt:
		return b2u(a < b)
	case wasm.OpF32Gt:
		return b2u(a > b)
	case wasm.OpF32Le:
		return b2u(a <= b)
	case wasm.OpF32Ge:
		return b2u(a >= b)
	case wasm.OpF32Add:
		return fromF32(a + b)
	case wasm.OpF32Sub:
		return fromF32(a - b)
	case wasm.OpF32Mul:
		return fromF32(a * b)
	case wasm.OpF32Div:
		return fromF32(a / b)
	case wasm.OpF32Min:
		return fromF32(float32(math.Min(float64(a), float64(b))))
	case wasm.OpF32Max:
		return fromF32(float32(math.Max(float64(a), float64(b))))
	case wasm.OpF32Copysign:
		ab, bb := math.Float32bits(a), math.Float32bits(b)
		return uint64(ab&^f32SignBit | bb&f32SignBit)
	}
	panic(errors.Trap(errors.KindUnreachable, "opcode 0x%02x has no f32 implementation", op))
}

func binaryF64(op byte, a, b float64) uint64 {
	switch op {
	case wasm.OpF64Eq:
		return b2u(a == b)
	case wasm.OpF64Ne:
		return b2u(a != b)
	case wasm.OpF64Lt:
		return b2u(a < b)
	case wasm.OpF64Gt:
		return b2u(a > b)
	case wasm.OpF64Le:
		return b2u(a <= b)
	case wasm.OpF64Ge:
		return b2u(a >= b)
	case wasm.OpF64Add:
		return fromF64(a + b)
	case wasm.OpF64Sub:
		return fromF64(a - b)
	case wasm.OpF64Mul:
		return fromF64(a * b)
	case wasm.OpF64Div:
		return fromF64(a / b)
	case wasm.OpF64Min:
		return fromF64(math.Min(a, b))
	case wasm.OpF64Max:
		return fromF64(math.Max(a, b))
	case wasm.OpF64Copysign:
		return fromF64(math.Copysign(a, b))
	}
	panic(errors.Trap(errors.KindUnreachable, "opcode 0x%02x has no f64 implementation", op))
}

func (f *frame) truncSat(sub uint32) {
	top := f.sp - 1
	v := f.stack[top]
	switch sub {
	case wasm.MiscI32TruncSatF32S:
		f.stack[top] = uint64(uint32(satToI32(float64(asF32(v)))))
	case wasm.MiscI32TruncSatF32U:
		f.stack[top] = uint64(satToU32(float64(asF32(v))))
	case wasm.MiscI32TruncSatF64S:
		f.stack[top] = uint64(uint32(satToI32(asF64(v))))
	case wasm.MiscI32TruncSatF64U:
		f.stack[top] = uint64(satToU32(asF64(v)))
	case wasm.MiscI64TruncSatF32S:
		f.stack[top] = uint64(satToI64(float64(asF32(v))))
	case wasm.MiscI64TruncSatF32U:
		f.stack[top] = satToU64(float64(asF32(v)))
	case wasm.MiscI64TruncSatF64S:
		f.stack[top] = uint64(satToI64(asF64(v)))
	case wasm.MiscI64TruncSatF64U:
		f.stack[top] = satToU64(asF64(v))
	}
}

// Trapping truncations. Bounds are exclusive where the bound itself is not
// representable in the target type.

func truncCheck(x float64) float64 {
	if math.IsNaN(x) {
		trap(errors.KindInvalidConversion, "invalid conversion to integer")
	}
	return math.Trunc(x)
}

func truncToI32(x float64) int32 {
	t := truncCheck(x)
	if t < math.MinInt32 || t > math.MaxInt32 {
		trap(errors.KindIntegerOverflow, "integer overflow converting %v", x)
	}
	return int32(t)
}

func truncToU32(x float64) uint32 {
	t := truncCheck(x)
	if t < 0 || t > math.MaxUint32 {
		trap(errors.KindIntegerOverflow, "integer overflow converting %v", x)
	}
	return uint32(t)
}

func truncToI64(x float64) int64 {
	t := truncCheck(x)
	if t < -(1<<63) || t >= 1<<63 {
		trap(errors.KindIntegerOverflow, "integer overflow converting %v", x)
	}
	return int64(t)
}

func truncToU64(x float64) uint64 {
	t := truncCheck(x)
	if t < 0 || t >= 1<<64 {
		trap(errors.KindIntegerOverflow, "integer overflow converting %v", x)
	}
	return uint64(t)
}

func satToI32(x float64) int32 {
	switch {
	case math.IsNaN(x):
		return 0
	case x <= math.MinInt32:
		return math.MinInt32
	case x >= math.MaxInt32:
		return math.MaxInt32
	}
	return int32(x)
}

func satToU32(x float64) uint32 {
	switch {
	case math.IsNaN(x), x <= 0:
		return 0
	case x >= math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(x)
}

func satToI64(x float64) int64 {
	switch {
	case math.IsNaN(x):
		return 0
	case x <= -(1 << 63):
		return math.MinInt64
	case x >= 1<<63:
		return math.MaxInt64
	}
	return int64(x)
}

func satToU64(x float64) uint64 {
	switch {
	case math.IsNaN(x), x <= 0:
		return 0
	case x >= 1<<64:
		return math.MaxUint64
	}
	return uint64(x)
}
