// Package backend is a portable trace-compiling backend.
//
// A CPU compiles loop traces and bridges into executable code and owns the
// code cache. Compilation validates the whole trace first and rejects it
// with *StructuralError values (codes E200-E299) when any structural rule
// is broken; nothing is installed for a rejected trace. Accepted traces are
// rewritten (write barriers inserted, merge points dropped) and assembled
// into a slice of instructions, each bound to a handler from an
// opcode-indexed table with its descriptor facts resolved in advance.
//
// Execution happens on an Engine. An Engine holds the staged inputs for the
// next ExecuteToken and the dead frame of the last exit; the CPU embeds a
// default Engine so single-threaded callers can use the CPU directly.
// Compiled code is immutable once published, so any number of Engines may
// run it concurrently, one per goroutine.
//
// Guard failures are not errors. A failing guard either continues in its
// bridge or exits with its FailDescr and a snapshot of its fail arguments.
// Faults such as division by zero or an out-of-bounds access panic inside
// the handlers and are recovered by the run loop into a *RuntimeError.
//
// Calls reach foreign functions registered with RegisterFunc. A foreign
// function returning a *Raise leaves an exception pending for the
// exception guards. CALL_MAY_FORCE and CALL_ASSEMBLER may be interrupted by
// Force, which captures the caller's state for the GUARD_NOT_FORCED that
// follows the call.
package backend
