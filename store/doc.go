// Package store holds the process-wide storage areas shared by every module
// linked into one host: globals, linear memories and function tables.
//
// Each area is addressed by a dense integer handle assigned at allocation
// time. Areas grow by appending and are never freed. Allocation and growth
// are not synchronized: they must happen during decode and link, never
// concurrently with execution that reads the same store.
package store
