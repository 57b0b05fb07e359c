package engine

import (
	"encoding/binary"
	stderrors "errors"
	"io"

	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wasm"
)

// valUnknown is the type of a value popped from a polymorphic stack.
const valUnknown wasm.ValType = 0

// traceDepths makes the compiler record the operand depth before every
// reachable instruction in CodeEntry.depths.
var traceDepths = false

// CodeEntry is a compiled function body. Body aliases the module buffer.
// The four side tables are consumed in lockstep with Body by the
// interpreter.
type CodeEntry struct {
	Locals   []wasm.ValType // parameters followed by declared locals
	Body     []byte
	Offset   int // absolute offset of Body in the module
	MaxStack int

	root         *node
	byteLengths  []byte
	ints         []int32
	literals     []int64
	branchTables []int32
	depths       map[int]int
}

// SideTables exposes the compiled side tables.
func (c *CodeEntry) SideTables() (byteLengths []byte, ints []int32, literals []int64, branchTables []int32) {
	return c.byteLengths, c.ints, c.literals, c.branchTables
}

type ctrlFrame struct {
	n           *node
	height      int
	resultType  wasm.ValType
	unreachable bool
}

func (f *ctrlFrame) labelType() wasm.ValType {
	if f.n.op == wasm.OpLoop {
		return valUnknown
	}
	return f.resultType
}

// compiler is the abstract interpreter run once over each body. It tracks
// operand types, which also gives the operand depth.
type compiler struct {
	st        *SymbolTable
	fn        *Function
	code      []byte
	base      int
	pc        int
	opPC      int
	locals    []wasm.ValType
	hasMemory bool
	hasTable  bool

	stack    []wasm.ValType
	maxDepth int
	ctrl     []ctrlFrame

	byteLengths  []byte
	ints         []int32
	literals     []int64
	branchTables []int32
	depths       map[int]int
}

// compileFunction validates fn's body and builds its control-flow tree
// and side tables.
func compileFunction(st *SymbolTable, fn *Function, hasMemory, hasTable bool) error {
	entry := fn.code
	c := &compiler{
		st:        st,
		fn:        fn,
		code:      entry.Body,
		base:      entry.Offset,
		locals:    entry.Locals,
		hasMemory: hasMemory,
		hasTable:  hasTable,
	}
	if traceDepths {
		c.depths = make(map[int]int)
	}

	rt := st.ResultType(fn.typeIndex)
	root := &node{arity: st.ResultCount(fn.typeIndex)}
	c.ctrl = append(c.ctrl, ctrlFrame{n: root, resultType: rt})

	term, err := c.compileBody(root)
	if err != nil {
		return err
	}
	if term != wasm.OpEnd {
		return c.fail(errors.KindInvalidData, "else outside of if")
	}
	if err := c.checkFrameEnd(); err != nil {
		return err
	}
	if c.pc != len(c.code) {
		return errors.New(errors.PhaseDecode, errors.KindSizeMismatch).
			Path(fn.Name()).Offset(c.base+c.pc).
			Detail("%d bytes after final end", len(c.code)-c.pc).Build()
	}
	root.length = c.cursors().sub(root.start)

	entry.root = root
	entry.MaxStack = c.maxDepth
	entry.byteLengths = c.byteLengths
	entry.ints = c.ints
	entry.literals = c.literals
	entry.branchTables = c.branchTables
	entry.depths = c.depths
	debugf("compiled %s: %d bytes, max stack %d, tables %d/%d/%d/%d",
		fn.Name(), len(c.code), c.maxDepth, len(c.byteLengths), len(c.ints), len(c.literals), len(c.branchTables))
	return nil
}

func (c *compiler) cursors() cursors {
	return cursors{
		pc:           c.pc,
		byteLengths:  len(c.byteLengths),
		ints:         len(c.ints),
		literals:     len(c.literals),
		branchTables: len(c.branchTables),
	}
}

func (c *compiler) fail(kind errors.Kind, format string, args ...any) error {
	return errors.Validation(kind, []string{c.fn.Name()}, c.base+c.opPC, format, args...)
}

// locate attaches the current function and instruction to a symbol table
// lookup error.
func (c *compiler) locate(err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		out := e.WithPath(c.fn.Name())
		out.Offset = c.base + c.opPC
		return out
	}
	return err
}

func (c *compiler) immediateError(err error) error {
	kind := errors.KindInvalidData
	switch {
	case stderrors.Is(err, wasm.ErrOverflow):
		kind = errors.KindOverflow
	case stderrors.Is(err, io.ErrUnexpectedEOF):
		kind = errors.KindSizeMismatch
	}
	return errors.New(errors.PhaseDecode, kind).Path(c.fn.Name()).
		Offset(c.base + c.opPC).Cause(err).Detail("bad immediate").Build()
}

func (c *compiler) readU32() (uint32, int, error) {
	v, n, err := wasm.DecodeU32(c.code[c.pc:])
	if err != nil {
		return 0, 0, c.immediateError(err)
	}
	c.pc += n
	return v, n, nil
}

func (c *compiler) readFixed(n int) ([]byte, error) {
	if len(c.code)-c.pc < n {
		return nil, c.immediateError(io.ErrUnexpectedEOF)
	}
	b := c.code[c.pc : c.pc+n]
	c.pc += n
	return b, nil
}

func (c *compiler) top() *ctrlFrame { return &c.ctrl[len(c.ctrl)-1] }

func (c *compiler) push(t wasm.ValType) {
	c.stack = append(c.stack, t)
	if len(c.stack) > c.maxDepth {
		c.maxDepth = len(c.stack)
	}
}

func (c *compiler) pop() (wasm.ValType, error) {
	f := c.top()
	if len(c.stack) == f.height {
		if f.unreachable {
			return valUnknown, nil
		}
		return 0, c.fail(errors.KindStackMismatch, "operand stack underflow")
	}
	t := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	return t, nil
}

func (c *compiler) popExpect(want wasm.ValType) error {
	got, err := c.pop()
	if err != nil {
		return err
	}
	if got != want && got != valUnknown && want != valUnknown {
		return c.fail(errors.KindTypeMismatch, "expected %s, found %s", want, got)
	}
	return nil
}

func (c *compiler) setUnreachable() {
	f := c.top()
	c.stack = c.stack[:f.height]
	f.unreachable = true
}

// checkFrameEnd verifies the innermost construct leaves exactly its
// declared results above its entry depth.
func (c *compiler) checkFrameEnd() error {
	f := c.top()
	if f.resultType != valUnknown {
		if err := c.popExpect(f.resultType); err != nil {
			return err
		}
	}
	if len(c.stack) != f.height {
		return c.fail(errors.KindStackMismatch, "%d values left on the stack at end of block", len(c.stack)-f.height)
	}
	return nil
}

func (c *compiler) readBlockType() (wasm.ValType, error) {
	b, err := c.readFixed(1)
	if err != nil {
		return 0, err
	}
	switch t := wasm.ValType(b[0]); {
	case b[0] == wasm.BlockVoid:
		return valUnknown, nil
	case t.Valid():
		return t, nil
	default:
		return 0, errors.Validation(errors.KindUnsupported, []string{c.fn.Name()}, c.base+c.opPC,
			"block type 0x%02x", b[0])
	}
}

func (c *compiler) label(depth uint32) (*ctrlFrame, error) {
	if uint64(depth) >= uint64(len(c.ctrl)) {
		return nil, c.fail(errors.KindOutOfBounds, "branch depth %d exceeds nesting %d", depth, len(c.ctrl))
	}
	return &c.ctrl[len(c.ctrl)-1-int(depth)], nil
}

// compileBody compiles instructions into n until the end or else that
// terminates it, and returns that terminator.
func (c *compiler) compileBody(n *node) (byte, error) {
	for {
		if c.pc >= len(c.code) {
			return 0, errors.New(errors.PhaseDecode, errors.KindSizeMismatch).
				Path(c.fn.Name()).Offset(c.base + c.pc).Detail("body ends inside a block").Build()
		}
		c.opPC = c.pc
		if c.depths != nil && !c.top().unreachable {
			c.depths[c.pc] = len(c.stack)
		}
		op := c.code[c.pc]
		c.pc++

		switch op {
		case wasm.OpEnd, wasm.OpElse:
			n.bodyEnd = c.opPC
			return op, nil
		case wasm.OpBlock, wasm.OpLoop:
			if err := c.compileBlock(n, op); err != nil {
				return 0, err
			}
		case wasm.OpIf:
			if err := c.compileIf(n); err != nil {
				return 0, err
			}
		default:
			if err := c.compileInstr(op); err != nil {
				return 0, err
			}
		}
	}
}

func (c *compiler) compileBlock(parent *node, op byte) error {
	rt, err := c.readBlockType()
	if err != nil {
		return err
	}
	child := &node{op: op, start: c.cursors(), contSP: len(c.stack)}
	if rt != valUnknown {
		child.arity = 1
	}
	c.ctrl = append(c.ctrl, ctrlFrame{n: child, height: len(c.stack), resultType: rt})
	term, err := c.compileBody(child)
	if err != nil {
		return err
	}
	if term == wasm.OpElse {
		return c.fail(errors.KindInvalidData, "else outside of if")
	}
	if err := c.checkFrameEnd(); err != nil {
		return err
	}
	child.length = c.cursors().sub(child.start)
	c.endFrame(rt)
	parent.children = append(parent.children, child)
	return nil
}

func (c *compiler) compileIf(parent *node) error {
	rt, err := c.readBlockType()
	if err != nil {
		return err
	}
	if err := c.popExpect(wasm.ValI32); err != nil {
		return err
	}
	child := &node{op: wasm.OpIf, start: c.cursors(), contSP: len(c.stack)}
	if rt != valUnknown {
		child.arity = 1
	}
	c.ctrl = append(c.ctrl, ctrlFrame{n: child, height: len(c.stack), resultType: rt})
	term, err := c.compileBody(child)
	if err != nil {
		return err
	}
	if err := c.checkFrameEnd(); err != nil {
		return err
	}

	els := &node{op: wasm.OpIf, contSP: child.contSP, arity: child.arity}
	if term == wasm.OpElse {
		f := c.top()
		c.stack = c.stack[:f.height]
		f.unreachable = false
		els.start = c.cursors()
		term, err = c.compileBody(els)
		if err != nil {
			return err
		}
		if term == wasm.OpElse {
			return c.fail(errors.KindInvalidData, "duplicate else")
		}
		if err := c.checkFrameEnd(); err != nil {
			return err
		}
		els.length = c.cursors().sub(els.start)
	} else {
		if rt != valUnknown {
			return c.fail(errors.KindStackMismatch, "if without else cannot produce a %s", rt)
		}
		els.start = c.cursors()
		els.start.pc = child.bodyEnd
		els.bodyEnd = child.bodyEnd
	}
	child.elseBranch = els
	child.length = c.cursors().sub(child.start)
	c.endFrame(rt)
	parent.children = append(parent.children, child)
	return nil
}

func (c *compiler) endFrame(rt wasm.ValType) {
	f := c.top()
	c.stack = c.stack[:f.height]
	c.ctrl = c.ctrl[:len(c.ctrl)-1]
	if rt != valUnknown {
		c.push(rt)
	}
}

// emitBranch records the side-table entries shared by br and br_if.
func (c *compiler) emitBranch() (*ctrlFrame, error) {
	depth, n, err := c.readU32()
	if err != nil {
		return nil, err
	}
	target, err := c.label(depth)
	if err != nil {
		return nil, err
	}
	c.byteLengths = append(c.byteLengths, byte(n))
	c.literals = append(c.literals, int64(depth))
	c.ints = append(c.ints, int32(target.n.contSP), int32(target.n.labelArity()))
	return target, nil
}

// emitIndex records an index immediate as a byte length and a literal.
func (c *compiler) emitIndex() (uint32, error) {
	v, n, err := c.readU32()
	if err != nil {
		return 0, err
	}
	c.byteLengths = append(c.byteLengths, byte(n))
	c.literals = append(c.literals, int64(v))
	return v, nil
}

func (c *compiler) compileInstr(op byte) error {
	switch op {
	case wasm.OpUnreachable:
		c.setUnreachable()
	case wasm.OpNop:

	case wasm.OpBr:
		target, err := c.emitBranch()
		if err != nil {
			return err
		}
		if lt := target.labelType(); lt != valUnknown {
			if err := c.popExpect(lt); err != nil {
				return err
			}
		}
		c.setUnreachable()

	case wasm.OpBrIf:
		target, err := c.emitBranch()
		if err != nil {
			return err
		}
		if err := c.popExpect(wasm.ValI32); err != nil {
			return err
		}
		if lt := target.labelType(); lt != valUnknown {
			if err := c.popExpect(lt); err != nil {
				return err
			}
			c.push(lt)
		}

	case wasm.OpBrTable:
		return c.compileBrTable()

	case wasm.OpReturn:
		root := &c.ctrl[0]
		c.literals = append(c.literals, int64(len(c.ctrl)-1))
		c.ints = append(c.ints, 0, int32(root.n.arity))
		if root.resultType != valUnknown {
			if err := c.popExpect(root.resultType); err != nil {
				return err
			}
		}
		c.setUnreachable()

	case wasm.OpCall:
		idx, err := c.emitIndex()
		if err != nil {
			return err
		}
		callee, err := c.st.Function(int(idx))
		if err != nil {
			return c.locate(err)
		}
		return c.applyCallType(callee.typeIndex)

	case wasm.OpCallIndirect:
		typeIdx, n1, err := c.readU32()
		if err != nil {
			return err
		}
		table, n2, err := c.readU32()
		if err != nil {
			return err
		}
		if table != 0 || !c.hasTable {
			return c.fail(errors.KindOutOfBounds, "call_indirect on table %d: module has no such table", table)
		}
		if err := c.st.checkType(int(typeIdx)); err != nil {
			return c.locate(err)
		}
		c.byteLengths = append(c.byteLengths, byte(n1), byte(n2))
		c.literals = append(c.literals, int64(typeIdx))
		if err := c.popExpect(wasm.ValI32); err != nil {
			return err
		}
		return c.applyCallType(int(typeIdx))

	case wasm.OpDrop:
		if _, err := c.pop(); err != nil {
			return err
		}

	case wasm.OpSelect:
		if err := c.popExpect(wasm.ValI32); err != nil {
			return err
		}
		t2, err := c.pop()
		if err != nil {
			return err
		}
		t1, err := c.pop()
		if err != nil {
			return err
		}
		if t1 != t2 && t1 != valUnknown && t2 != valUnknown {
			return c.fail(errors.KindTypeMismatch, "select operands %s and %s differ", t1, t2)
		}
		if t1 == valUnknown {
			t1 = t2
		}
		c.push(t1)

	case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
		idx, err := c.emitIndex()
		if err != nil {
			return err
		}
		if uint64(idx) >= uint64(len(c.locals)) {
			return c.fail(errors.KindOutOfBounds, "local %d out of range (%d locals)", idx, len(c.locals))
		}
		t := c.locals[idx]
		switch op {
		case wasm.OpLocalGet:
			c.push(t)
		case wasm.OpLocalSet:
			return c.popExpect(t)
		default:
			if err := c.popExpect(t); err != nil {
				return err
			}
			c.push(t)
		}

	case wasm.OpGlobalGet, wasm.OpGlobalSet:
		idx, err := c.emitIndex()
		if err != nil {
			return err
		}
		g, err := c.st.global(int(idx))
		if err != nil {
			return c.locate(err)
		}
		if op == wasm.OpGlobalGet {
			c.push(g.typ)
			return nil
		}
		if !g.mutable {
			return c.fail(errors.KindImmutable, "global.set on immutable global %d", idx)
		}
		return c.popExpect(g.typ)

	case wasm.OpMemorySize, wasm.OpMemoryGrow:
		if !c.hasMemory {
			return c.fail(errors.KindOutOfBounds, "memory instruction without a memory")
		}
		b, err := c.readFixed(1)
		if err != nil {
			return err
		}
		if b[0] != 0 {
			return c.fail(errors.KindInvalidData, "memory index byte must be zero")
		}
		if op == wasm.OpMemoryGrow {
			if err := c.popExpect(wasm.ValI32); err != nil {
				return err
			}
		}
		c.push(wasm.ValI32)

	case wasm.OpI32Const:
		v, n, err := wasm.DecodeS32(c.code[c.pc:])
		if err != nil {
			return c.immediateError(err)
		}
		c.pc += n
		c.byteLengths = append(c.byteLengths, byte(n))
		c.literals = append(c.literals, int64(v))
		c.push(wasm.ValI32)

	case wasm.OpI64Const:
		v, n, err := wasm.DecodeS64(c.code[c.pc:])
		if err != nil {
			return c.immediateError(err)
		}
		c.pc += n
		c.byteLengths = append(c.byteLengths, byte(n))
		c.literals = append(c.literals, v)
		c.push(wasm.ValI64)

	case wasm.OpF32Const:
		b, err := c.readFixed(4)
		if err != nil {
			return err
		}
		c.literals = append(c.literals, int64(binary.LittleEndian.Uint32(b)))
		c.push(wasm.ValF32)

	case wasm.OpF64Const:
		b, err := c.readFixed(8)
		if err != nil {
			return err
		}
		c.literals = append(c.literals, int64(binary.LittleEndian.Uint64(b)))
		c.push(wasm.ValF64)

	case wasm.OpPrefixMisc:
		sub, err := c.emitIndex()
		if err != nil {
			return err
		}
		if sub > wasm.MiscI64TruncSatF64U {
			return errors.New(errors.PhaseDecode, errors.KindUnknownOpcode).Path(c.fn.Name()).
				Offset(c.base+c.opPC).Detail("opcode 0xfc 0x%02x", sub).Build()
		}
		sig := satSignatures[sub]
		if err := c.popExpect(sig.in); err != nil {
			return err
		}
		c.push(sig.out)

	default:
		if acc, ok := memoryAccess(op); ok {
			return c.compileMemoryAccess(op, acc)
		}
		sig := numericSignatures[op]
		if sig.arity == 0 {
			return errors.New(errors.PhaseDecode, errors.KindUnknownOpcode).Path(c.fn.Name()).
				Offset(c.base+c.opPC).Detail("opcode 0x%02x", op).Build()
		}
		if sig.arity == 2 {
			if err := c.popExpect(sig.in); err != nil {
				return err
			}
		}
		if err := c.popExpect(sig.in); err != nil {
			return err
		}
		c.push(sig.out)
	}
	return nil
}

func (c *compiler) applyCallType(typeIdx int) error {
	for i := c.st.ParamCount(typeIdx) - 1; i >= 0; i-- {
		if err := c.popExpect(c.st.ParamType(typeIdx, i)); err != nil {
			return err
		}
	}
	if c.st.ResultCount(typeIdx) > 0 {
		c.push(c.st.ResultType(typeIdx))
	}
	return nil
}

func (c *compiler) compileBrTable() error {
	immStart := c.pc
	count, _, err := c.readU32()
	if err != nil {
		return err
	}
	if uint64(count) > uint64(len(c.code)-c.pc) {
		return c.immediateError(io.ErrUnexpectedEOF)
	}
	header := len(c.branchTables)
	c.branchTables = append(c.branchTables, 0, int32(count))
	var lt wasm.ValType
	for i := uint32(0); i <= count; i++ {
		depth, _, err := c.readU32()
		if err != nil {
			return err
		}
		target, err := c.label(depth)
		if err != nil {
			return err
		}
		if i == 0 {
			lt = target.labelType()
		} else if target.labelType() != lt {
			return c.fail(errors.KindTypeMismatch, "br_table targets disagree on result type")
		}
		c.branchTables = append(c.branchTables,
			int32(depth), int32(target.n.contSP), int32(target.n.labelArity()))
	}
	c.branchTables[header] = int32(c.pc - immStart)
	if err := c.popExpect(wasm.ValI32); err != nil {
		return err
	}
	if lt != valUnknown {
		if err := c.popExpect(lt); err != nil {
			return err
		}
	}
	c.setUnreachable()
	return nil
}

func (c *compiler) compileMemoryAccess(op byte, acc memAccess) error {
	if !c.hasMemory {
		return c.fail(errors.KindOutOfBounds, "memory instruction without a memory")
	}
	align, n1, err := c.readU32()
	if err != nil {
		return err
	}
	offset, n2, err := c.readU32()
	if err != nil {
		return err
	}
	if align > acc.align {
		return c.fail(errors.KindInvalidData, "alignment 2**%d exceeds natural alignment 2**%d", align, acc.align)
	}
	c.byteLengths = append(c.byteLengths, byte(n1), byte(n2))
	c.literals = append(c.literals, int64(offset))
	if acc.store {
		if err := c.popExpect(acc.typ); err != nil {
			return err
		}
		return c.popExpect(wasm.ValI32)
	}
	if err := c.popExpect(wasm.ValI32); err != nil {
		return err
	}
	c.push(acc.typ)
	return nil
}
