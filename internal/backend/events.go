package backend

import "github.com/roach88/tracejit/internal/ir"

// UnitEvent describes a compiled loop or bridge.
type UnitEvent struct {
	Loop        int64
	Bridge      bool
	Fingerprint string
	Ops         int
	Size        int64
	Barriers    int
	MergePoints int
	// Origin is the identifier of the guard a bridge is attached to.
	Origin int64
}

// ExitEvent describes a top-level exit from ExecuteToken.
type ExitEvent struct {
	Loop    int64
	Descr   ir.FailDescr
	Guard   bool
	OpIndex int
	Values  []ir.Value
	// Failures is the guard's failure count including this exit.
	Failures int64
}

// FreeEvent describes a freed loop.
type FreeEvent struct {
	Loop    int64
	Bridges int
	Size    int64
}

// EventSink observes the code cache. Errors are logged and otherwise
// ignored; a failing sink never fails compilation or execution.
type EventSink interface {
	UnitCompiled(UnitEvent) error
	GuardExited(ExitEvent) error
	UnitFreed(FreeEvent) error
}
