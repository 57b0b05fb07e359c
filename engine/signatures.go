package engine

import "github.com/wippyai/wasm-interp/wasm"

// numericSig is the stack effect of a numeric instruction: arity operands
// of type in, one result of type out.
type numericSig struct {
	in, out wasm.ValType
	arity   int
}

var numericSignatures [256]numericSig

var satSignatures = [...]numericSig{
	wasm.MiscI32TruncSatF32S: {wasm.ValF32, wasm.ValI32, 1},
	wasm.MiscI32TruncSatF32U: {wasm.ValF32, wasm.ValI32, 1},
	wasm.MiscI32TruncSatF64S: {wasm.ValF64, wasm.ValI32, 1},
	wasm.MiscI32TruncSatF64U: {wasm.ValF64, wasm.ValI32, 1},
	wasm.MiscI64TruncSatF32S: {wasm.ValF32, wasm.ValI64, 1},
	wasm.MiscI64TruncSatF32U: {wasm.ValF32, wasm.ValI64, 1},
	wasm.MiscI64TruncSatF64S: {wasm.ValF64, wasm.ValI64, 1},
	wasm.MiscI64TruncSatF64U: {wasm.ValF64, wasm.ValI64, 1},
}

func setRange(lo, hi byte, sig numericSig) {
	for op := int(lo); op <= int(hi); op++ {
		numericSignatures[op] = sig
	}
}

func init() {
	i32, i64, f32, f64 := wasm.ValI32, wasm.ValI64, wasm.ValF32, wasm.ValF64

	setRange(wasm.OpI32Eqz, wasm.OpI32Eqz, numericSig{i32, i32, 1})
	setRange(wasm.OpI32Eq, wasm.OpI32GeU, numericSig{i32, i32, 2})
	setRange(wasm.OpI64Eqz, wasm.OpI64Eqz, numericSig{i64, i32, 1})
	setRange(wasm.OpI64Eq, wasm.OpI64GeU, numericSig{i64, i32, 2})
	setRange(wasm.OpF32Eq, wasm.OpF32Ge, numericSig{f32, i32, 2})
	setRange(wasm.OpF64Eq, wasm.OpF64Ge, numericSig{f64, i32, 2})

	setRange(wasm.OpI32Clz, wasm.OpI32Popcnt, numericSig{i32, i32, 1})
	setRange(wasm.OpI32Add, wasm.OpI32Rotr, numericSig{i32, i32, 2})
	setRange(wasm.OpI64Clz, wasm.OpI64Popcnt, numericSig{i64, i64, 1})
	setRange(wasm.OpI64Add, wasm.OpI64Rotr, numericSig{i64, i64, 2})
	setRange(wasm.OpF32Abs, wasm.OpF32Sqrt, numericSig{f32, f32, 1})
	setRange(wasm.OpF32Add, wasm.OpF32Copysign, numericSig{f32, f32, 2})
	setRange(wasm.OpF64Abs, wasm.OpF64Sqrt, numericSig{f64, f64, 1})
	setRange(wasm.OpF64Add, wasm.OpF64Copysign, numericSig{f64, f64, 2})

	conversions := []struct {
		op      byte
		in, out wasm.ValType
	}{
		{wasm.OpI32WrapI64, i64, i32},
		{wasm.OpI32TruncF32S, f32, i32},
		{wasm.OpI32TruncF32U, f32, i32},
		{wasm.OpI32TruncF64S, f64, i32},
		{wasm.OpI32TruncF64U, f64, i32},
		{wasm.OpI64ExtendI32S, i32, i64},
		{wasm.OpI64ExtendI32U, i32, i64},
		{wasm.OpI64TruncF32S, f32, i64},
		{wasm.OpI64TruncF32U, f32, i64},
		{wasm.OpI64TruncF64S, f64, i64},
		{wasm.OpI64TruncF64U, f64, i64},
		{wasm.OpF32ConvertI32S, i32, f32},
		{wasm.OpF32ConvertI32U, i32, f32},
		{wasm.OpF32ConvertI64S, i64, f32},
		{wasm.OpF32ConvertI64U, i64, f32},
		{wasm.OpF32DemoteF64, f64, f32},
		{wasm.OpF64ConvertI32S, i32, f64},
		{wasm.OpF64ConvertI32U, i32, f64},
		{wasm.OpF64ConvertI64S, i64, f64},
		{wasm.OpF64ConvertI64U, i64, f64},
		{wasm.OpF64PromoteF32, f32, f64},
		{wasm.OpI32ReinterpretF32, f32, i32},
		{wasm.OpI64ReinterpretF64, f64, i64},
		{wasm.OpF32ReinterpretI32, i32, f32},
		{wasm.OpF64ReinterpretI64, i64, f64},
		{wasm.OpI32Extend8S, i32, i32},
		{wasm.OpI32Extend16S, i32, i32},
		{wasm.OpI64Extend8S, i64, i64},
		{wasm.OpI64Extend16S, i64, i64},
		{wasm.OpI64Extend32S, i64, i64},
	}
	for _, c := range conversions {
		numericSignatures[c.op] = numericSig{c.in, c.out, 1}
	}
}

// memAccess describes a load or store: value type, access width in bytes
// and natural alignment exponent.
type memAccess struct {
	typ   wasm.ValType
	width uint64
	align uint32
	store bool
}

func memoryAccess(op byte) (memAccess, bool) {
	switch op {
	case wasm.OpI32Load:
		return memAccess{wasm.ValI32, 4, 2, false}, true
	case wasm.OpI64Load:
		return memAccess{wasm.ValI64, 8, 3, false}, true
	case wasm.OpF32Load:
		return memAccess{wasm.ValF32, 4, 2, false}, true
	case wasm.OpF64Load:
		return memAccess{wasm.ValF64, 8, 3, false}, true
	case wasm.OpI32Load8S, wasm.OpI32Load8U:
		return memAccess{wasm.ValI32, 1, 0, false}, true
	case wasm.OpI32Load16S, wasm.OpI32Load16U:
		return memAccess{wasm.ValI32, 2, 1, false}, true
	case wasm.OpI64Load8S, wasm.OpI64Load8U:
		return memAccess{wasm.ValI64, 1, 0, false}, true
	case wasm.OpI64Load16S, wasm.OpI64Load16U:
		return memAccess{wasm.ValI64, 2, 1, false}, true
	case wasm.OpI64Load32S, wasm.OpI64Load32U:
		return memAccess{wasm.ValI64, 4, 2, false}, true
	case wasm.OpI32Store:
		return memAccess{wasm.ValI32, 4, 2, true}, true
	case wasm.OpI64Store:
		return memAccess{wasm.ValI64, 8, 3, true}, true
	case wasm.OpF32Store:
		return memAccess{wasm.ValF32, 4, 2, true}, true
	case wasm.OpF64Store:
		return memAccess{wasm.ValF64, 8, 3, true}, true
	case wasm.OpI32Store8:
		return memAccess{wasm.ValI32, 1, 0, true}, true
	case wasm.OpI32Store16:
		return memAccess{wasm.ValI32, 2, 1, true}, true
	case wasm.OpI64Store8:
		return memAccess{wasm.ValI64, 1, 0, true}, true
	case wasm.OpI64Store16:
		return memAccess{wasm.ValI64, 2, 1, true}, true
	case wasm.OpI64Store32:
		return memAccess{wasm.ValI64, 4, 2, true}, true
	}
	return memAccess{}, false
}
