package engine

import "github.com/wippyai/wasm-interp/wasm"

// cursors is a position in the instruction stream and each side table.
// The interpreter advances all five in lockstep.
type cursors struct {
	pc           int
	byteLengths  int
	ints         int
	literals     int
	branchTables int
}

func (c cursors) add(o cursors) cursors {
	return cursors{
		pc:           c.pc + o.pc,
		byteLengths:  c.byteLengths + o.byteLengths,
		ints:         c.ints + o.ints,
		literals:     c.literals + o.literals,
		branchTables: c.branchTables + o.branchTables,
	}
}

func (c cursors) sub(o cursors) cursors {
	return cursors{
		pc:           c.pc - o.pc,
		byteLengths:  c.byteLengths - o.byteLengths,
		ints:         c.ints - o.ints,
		literals:     c.literals - o.literals,
		branchTables: c.branchTables - o.branchTables,
	}
}

// node is one compiled structured construct: the function root, a block,
// a loop, or an if. An if node holds its then-branch directly and its
// else-branch in elseBranch.
//
// start is the first body instruction and the side-table positions at that
// point. length covers everything from start up to the point where the
// parent resumes, so the parent skips a finished child in O(1).
type node struct {
	op       byte // 0 for the function root
	start    cursors
	length   cursors
	bodyEnd  int // pc of the end or else terminating this body
	contSP   int // operand depth at entry
	arity    int // result arity
	children []*node

	elseBranch *node
}

// exit returns the cursors at which the parent resumes.
func (n *node) exit() cursors { return n.start.add(n.length) }

// labelArity is the number of values a branch to this node carries.
func (n *node) labelArity() int {
	if n.op == wasm.OpLoop {
		return 0
	}
	return n.arity
}
