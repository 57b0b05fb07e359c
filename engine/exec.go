package engine

import (
	"context"

	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/store"
	"github.com/wippyai/wasm-interp/wasm"
)

// traceHook, when set, observes the operand depth before every executed
// instruction.
var traceHook func(fn *Function, pc, sp int)

// execution is the state shared by the frames of one top-level call.
type execution struct {
	ctx      context.Context
	done     <-chan struct{}
	depth    int
	maxDepth int
	trace    func(fn *Function, pc, sp int)
}

func newExecution(ctx context.Context, maxDepth int) *execution {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxCallDepth
	}
	return &execution{
		ctx:      ctx,
		done:     ctx.Done(),
		maxDepth: maxDepth,
		trace:    traceHook,
	}
}

func trap(kind errors.Kind, format string, args ...any) {
	panic(errors.Trap(kind, format, args...))
}

func (e *execution) checkInterrupt() {
	if e.done == nil {
		return
	}
	select {
	case <-e.done:
		panic(errors.New(errors.PhaseRuntime, errors.KindInterrupted).
			Cause(e.ctx.Err()).Detail("execution interrupted").Build())
	default:
	}
}

// invoke runs fn with args and returns its result, if any. caller is the
// module whose code made the call, or nil for a host-initiated call.
func (e *execution) invoke(fn *Function, args []uint64, caller *Module) (uint64, bool) {
	e.depth++
	if e.depth > e.maxDepth {
		trap(errors.KindCallStackExhausted, "call depth exceeds %d", e.maxDepth)
	}
	e.checkInterrupt()
	if m := fn.module; m != nil && m.state != Linked {
		if err := m.ensureLinked(e.ctx); err != nil {
			panic(err)
		}
	}

	var res uint64
	var has bool
	if fn.host != nil {
		res, has = e.callHost(fn, args, caller)
	} else {
		res, has = e.callWasm(fn, args)
	}
	e.depth--
	return res, has
}

func (e *execution) callWasm(fn *Function, args []uint64) (uint64, bool) {
	code := fn.code
	nl := len(code.Locals)
	buf := make([]uint64, nl+code.MaxStack)
	f := frame{
		ex:     e,
		fn:     fn,
		module: fn.module,
		code:   code,
		locals: buf[:nl:nl],
		stack:  buf[nl:],
	}
	copy(f.locals, args)
	if addr, ok := fn.module.MemoryAddr(); ok {
		f.mem = fn.module.store.Memory(addr)
	}
	if addr, ok := fn.module.TableAddr(); ok {
		f.table = fn.module.store.Table(addr)
	}
	f.run(code.root)
	if code.root.arity == 1 {
		return f.stack[0], true
	}
	return 0, false
}

func (e *execution) callHost(fn *Function, args []uint64, caller *Module) (uint64, bool) {
	in := append([]uint64(nil), args...)
	out, err := fn.host(e.ctx, caller, in)
	if err != nil {
		if te, ok := err.(*errors.Error); ok && te.Phase == errors.PhaseRuntime {
			panic(te)
		}
		panic(errors.New(errors.PhaseRuntime, errors.KindHostFunctionFailure).
			Path(fn.Name()).Cause(err).Detail("host function failed").Build())
	}
	want := fn.ResultCount()
	if len(out) != want {
		trap(errors.KindHostFunctionFailure, "%s returned %d results, want %d", fn.Name(), len(out), want)
	}
	if want == 1 {
		return out[0], true
	}
	return 0, false
}

// frame is the execution state of one wasm function activation. locals and
// stack are fixed-size; values are raw 64-bit words, with i32 and f32
// values kept in the low 32 bits.
type frame struct {
	ex     *execution
	fn     *Function
	module *Module
	code   *CodeEntry
	locals []uint64
	stack  []uint64
	sp     int
	mem    *store.Memory
	table  *store.Table
}

func (f *frame) push(v uint64) {
	f.stack[f.sp] = v
	f.sp++
}

func (f *frame) pop() uint64 {
	f.sp--
	return f.stack[f.sp]
}

// branch moves arity result values down to targetSP.
func (f *frame) branch(targetSP, arity int32) {
	if arity > 0 {
		copy(f.stack[targetSP:targetSP+arity], f.stack[f.sp-int(arity):f.sp])
	}
	f.sp = int(targetSP + arity)
}

// skip advances past n immediates whose lengths are in the byte-length
// table.
func (f *frame) skip(cur *cursors, n int) {
	for i := 0; i < n; i++ {
		cur.pc += int(f.code.byteLengths[cur.byteLengths])
		cur.byteLengths++
	}
}

func (f *frame) literal(cur *cursors) int64 {
	v := f.code.literals[cur.literals]
	cur.literals++
	return v
}

// address pops the base address of a load or store and adds the static
// offset. The 33-bit result is checked by the memory.
func (f *frame) address(cur *cursors) uint64 {
	f.skip(cur, 2)
	off := uint64(uint32(f.literal(cur)))
	return uint64(uint32(f.pop())) + off
}

func (f *frame) memTrap(ea, width uint64) {
	trap(errors.KindMemoryOutOfBounds, "access of %d bytes at %d exceeds memory size %d", width, ea, f.mem.Size())
}

func (f *frame) globalAddr(idx int64) int {
	return f.module.symbols.globals[idx].addr
}

func (f *frame) call(callee *Function) {
	h, err := callee.Handle()
	if err != nil {
		panic(err)
	}
	argc := h.ParamCount()
	f.sp -= argc
	res, has := f.ex.invoke(h, f.stack[f.sp:f.sp+argc], f.module)
	if has {
		f.push(res)
	}
}

// run executes n's body and returns the unwind distance: -1 on
// fall-through, otherwise the number of levels above n the pending branch
// targets, 0 meaning n itself.
func (f *frame) run(n *node) int {
	cur := n.start
	ci := 0
	code := f.code.Body
	for cur.pc < n.bodyEnd {
		if f.ex.trace != nil {
			f.ex.trace(f.fn, cur.pc, f.sp)
		}
		op := code[cur.pc]
		cur.pc++

		switch op {
		case wasm.OpUnreachable:
			trap(errors.KindUnreachable, "unreachable executed in %s", f.fn.Name())
		case wasm.OpNop:

		case wasm.OpBlock:
			child := n.children[ci]
			ci++
			if u := f.run(child); u > 0 {
				return u - 1
			}
			f.sp = child.contSP + child.arity
			cur = child.exit()

		case wasm.OpLoop:
			child := n.children[ci]
			ci++
			if u := f.runLoop(child); u > 0 {
				return u - 1
			}
			f.sp = child.contSP + child.arity
			cur = child.exit()

		case wasm.OpIf:
			child := n.children[ci]
			ci++
			branch := child
			if uint32(f.pop()) == 0 {
				branch = child.elseBranch
			}
			if u := f.run(branch); u > 0 {
				return u - 1
			}
			f.sp = child.contSP + child.arity
			cur = child.exit()

		case wasm.OpBr:
			f.skip(&cur, 1)
			depth := f.literal(&cur)
			f.branch(f.code.ints[cur.ints], f.code.ints[cur.ints+1])
			return int(depth)

		case wasm.OpBrIf:
			f.skip(&cur, 1)
			depth := f.literal(&cur)
			if uint32(f.pop()) != 0 {
				f.branch(f.code.ints[cur.ints], f.code.ints[cur.ints+1])
				return int(depth)
			}
			cur.ints += 2

		case wasm.OpBrTable:
			tbl := f.code.branchTables[cur.branchTables:]
			count := uint32(tbl[1])
			i := uint32(f.pop())
			if i > count {
				i = count
			}
			e := tbl[2+3*i:]
			f.branch(e[1], e[2])
			return int(e[0])

		case wasm.OpReturn:
			f.branch(f.code.ints[cur.ints], f.code.ints[cur.ints+1])
			return int(f.code.literals[cur.literals])

		case wasm.OpCall:
			f.skip(&cur, 1)
			callee := f.module.symbols.funcs[f.literal(&cur)]
			f.call(callee)

		case wasm.OpCallIndirect:
			f.skip(&cur, 2)
			typeIdx := int(f.literal(&cur))
			i := uint32(f.pop())
			ref, ok := f.table.Get(i)
			if !ok {
				trap(errors.KindTableOutOfBounds, "table index %d out of bounds (size %d)", i, f.table.Size())
			}
			if ref == nil {
				trap(errors.KindUninitializedElement, "table element %d is uninitialized", i)
			}
			want := f.module.symbols.TypeKey(typeIdx)
			if ref.TypeKey() != want {
				trap(errors.KindIndirectCallMismatch, "table element %d has type %s, want %s", i, ref.TypeKey(), want)
			}
			callee, ok := ref.(*Function)
			if !ok {
				trap(errors.KindIndirectCallMismatch, "table element %d is not callable", i)
			}
			f.call(callee)

		case wasm.OpDrop:
			f.sp--

		case wasm.OpSelect:
			f.sp -= 2
			if uint32(f.stack[f.sp+1]) == 0 {
				f.stack[f.sp-1] = f.stack[f.sp]
			}

		case wasm.OpLocalGet:
			f.skip(&cur, 1)
			f.push(f.locals[f.literal(&cur)])
		case wasm.OpLocalSet:
			f.skip(&cur, 1)
			f.locals[f.literal(&cur)] = f.pop()
		case wasm.OpLocalTee:
			f.skip(&cur, 1)
			f.locals[f.literal(&cur)] = f.stack[f.sp-1]

		case wasm.OpGlobalGet:
			f.skip(&cur, 1)
			f.push(f.module.store.Globals.Load(f.globalAddr(f.literal(&cur))))
		case wasm.OpGlobalSet:
			f.skip(&cur, 1)
			f.module.store.Globals.Store(f.globalAddr(f.literal(&cur)), f.pop())

		case wasm.OpMemorySize:
			cur.pc++
			f.push(uint64(f.mem.Pages()))
		case wasm.OpMemoryGrow:
			cur.pc++
			delta := uint32(f.pop())
			prev, ok := f.mem.Grow(delta)
			if !ok {
				f.push(uint64(^uint32(0)))
			} else {
				f.push(uint64(prev))
			}

		case wasm.OpI32Const:
			f.skip(&cur, 1)
			f.push(uint64(uint32(int32(f.literal(&cur)))))
		case wasm.OpI64Const:
			f.skip(&cur, 1)
			f.push(uint64(f.literal(&cur)))
		case wasm.OpF32Const:
			cur.pc += 4
			f.push(uint64(uint32(f.literal(&cur))))
		case wasm.OpF64Const:
			cur.pc += 8
			f.push(uint64(f.literal(&cur)))

		case wasm.OpPrefixMisc:
			f.skip(&cur, 1)
			f.truncSat(uint32(f.literal(&cur)))

		default:
			if op >= wasm.OpI32Load && op <= wasm.OpI64Store32 {
				f.memoryOp(op, &cur)
			} else {
				f.numeric(op)
			}
		}
	}
	return -1
}

// runLoop executes a loop node, repeating its body while branches target
// the loop itself.
func (f *frame) runLoop(n *node) int {
	for {
		u := f.run(n)
		if u != 0 {
			return u
		}
		f.sp = n.contSP
		f.ex.checkInterrupt()
	}
}

func (f *frame) memoryOp(op byte, cur *cursors) {
	switch op {
	case wasm.OpI32Load, wasm.OpF32Load:
		ea := f.address(cur)
		v, ok := f.mem.Load32(ea)
		if !ok {
			f.memTrap(ea, 4)
		}
		f.push(uint64(v))
	case wasm.OpI64Load, wasm.OpF64Load:
		ea := f.address(cur)
		v, ok := f.mem.Load64(ea)
		if !ok {
			f.memTrap(ea, 8)
		}
		f.push(v)
	case wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI64Load8S, wasm.OpI64Load8U:
		ea := f.address(cur)
		v, ok := f.mem.Load8(ea)
		if !ok {
			f.memTrap(ea, 1)
		}
		switch op {
		case wasm.OpI32Load8S:
			f.push(uint64(uint32(int32(int8(v)))))
		case wasm.OpI64Load8S:
			f.push(uint64(int64(int8(v))))
		default:
			f.push(uint64(v))
		}
	case wasm.OpI32Load16S, wasm.OpI32Load16U, wasm.OpI64Load16S, wasm.OpI64Load16U:
		ea := f.address(cur)
		v, ok := f.mem.Load16(ea)
		if !ok {
			f.memTrap(ea, 2)
		}
		switch op {
		case wasm.OpI32Load16S:
			f.push(uint64(uint32(int32(int16(v)))))
		case wasm.OpI64Load16S:
			f.push(uint64(int64(int16(v))))
		default:
			f.push(uint64(v))
		}
	case wasm.OpI64Load32S, wasm.OpI64Load32U:
		ea := f.address(cur)
		v, ok := f.mem.Load32(ea)
		if !ok {
			f.memTrap(ea, 4)
		}
		if op == wasm.OpI64Load32S {
			f.push(uint64(int64(int32(v))))
		} else {
			f.push(uint64(v))
		}

	case wasm.OpI32Store, wasm.OpF32Store, wasm.OpI64Store32:
		v := f.pop()
		ea := f.address(cur)
		if !f.mem.Store32(ea, uint32(v)) {
			f.memTrap(ea, 4)
		}
	case wasm.OpI64Store, wasm.OpF64Store:
		v := f.pop()
		ea := f.address(cur)
		if !f.mem.Store64(ea, v) {
			f.memTrap(ea, 8)
		}
	case wasm.OpI32Store8, wasm.OpI64Store8:
		v := f.pop()
		ea := f.address(cur)
		if !f.mem.Store8(ea, byte(v)) {
			f.memTrap(ea, 1)
		}
	case wasm.OpI32Store16, wasm.OpI64Store16:
		v := f.pop()
		ea := f.address(cur)
		if !f.mem.Store16(ea, uint16(v)) {
			f.memTrap(ea, 2)
		}
	}
}
