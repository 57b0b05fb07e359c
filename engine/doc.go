// Package engine compiles and executes WebAssembly MVP modules.
//
// # Architecture
//
// Decode turns a binary into a Module in three steps:
//
//  1. The wasm package parses sections and checks index spaces.
//  2. Every function body is validated by an abstract interpreter that
//     tracks operand types and emits a block tree plus four side tables.
//  3. Globals, memory and table are allocated in the shared store.
//
// # Side Tables
//
// Execution never re-reads immediates. Each function carries:
//
//	byteLengths   immediate byte counts, one per instruction that has any
//	ints          (target stack height, arity) per branch and return
//	literals      constants, indices, offsets, label depths
//	branchTables  per br_table: length, count, (depth, height, arity)...
//
// Block, loop and if become nodes of a tree. A node records the cursor
// position of every table at its start and how far each advances over its
// body, so skipping a block is cursor arithmetic.
//
// # Unwinding
//
// Executing a node yields -1 when it falls through, or the number of
// enclosing levels a branch still has to leave. A parent that receives a
// positive count decrements and returns it; on zero it moves the carried
// values to its continuation height and resumes after the child. Loops
// restart their body instead. Return is a branch to the function's root.
//
// # Traps
//
// Run-time faults abort the whole call and surface from Function.Call as
// *errors.Error values in the runtime phase. Stores keep whatever writes
// happened before the trap.
//
// # Linking
//
// A Module moves from Unlinked to ImportsBound to Linked. Imports are bound
// through the Bind methods, normally by the linker package. Globals whose
// initializer reads an import stay pending until CompleteInit copies the
// value. Calling into a module that is not linked asks its Linker first.
package engine
