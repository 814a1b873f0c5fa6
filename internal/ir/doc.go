// Package ir defines the value and operation model shared by trace
// producers and the backend.
//
// A trace is a list of input boxes plus a linear list of operations ending
// in exactly one JUMP or FINISH. Boxes (*Box) are identity-distinct
// placeholders for run-time values; literals (Const) can stand in for a box
// wherever an operand is read but never as a result. Operations (*ResOp)
// are immutable once built, except for the fail-argument list of a guard,
// which may be set exactly once.
//
// Every opcode carries static facts (operand kinds, result kind, required
// descriptor capability, flags) in a table, so structural checks are
// table-driven and never depend on dispatch.
//
// Descriptors are front-end supplied. The backend reaches them only
// through the capability interfaces declared here (FieldDescr, ArrayDescr,
// SizeDescr, CallDescr, FailDescr, WriteBarrierDescr).
//
// ir imports only internal/heap, for the representation of references.
package ir
