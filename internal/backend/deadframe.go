package backend

import (
	"github.com/roach88/tracejit/internal/heap"
	"github.com/roach88/tracejit/internal/ir"
)

// DeadFrame is the state a compiled trace left behind when it exited: the
// descriptor of the exit, the exit values in fail-argument order and any
// pending exception. Hole positions hold a void value.
type DeadFrame struct {
	descr   ir.FailDescr
	values  []ir.Value
	exc     heap.Ref
	loop    int64
	opIndex int
	guard   *guardSite
}

// Descr returns the exit descriptor.
func (d *DeadFrame) Descr() ir.FailDescr { return d.descr }

// Len returns the number of exit values.
func (d *DeadFrame) Len() int { return len(d.values) }

// Value returns exit value i, or a void value when i is out of range.
func (d *DeadFrame) Value(i int) ir.Value {
	if i < 0 || i >= len(d.values) {
		return ir.Value{}
	}
	return d.values[i]
}

// Values returns a copy of the exit values.
func (d *DeadFrame) Values() []ir.Value {
	return append([]ir.Value(nil), d.values...)
}

// Int returns exit value i as an integer.
func (d *DeadFrame) Int(i int) int64 { return d.Value(i).Int }

// Ref returns exit value i as a reference.
func (d *DeadFrame) Ref(i int) heap.Ref { return d.Value(i).Ref }

// Float returns exit value i as a float.
func (d *DeadFrame) Float(i int) float64 { return d.Value(i).Float }

// Exception returns the exception pending at exit, or nil.
func (d *DeadFrame) Exception() heap.Ref { return d.exc }

// Loop returns the number of the loop the exit belongs to.
func (d *DeadFrame) Loop() int64 { return d.loop }

// OpIndex returns the index of the exiting operation in its trace.
func (d *DeadFrame) OpIndex() int { return d.opIndex }

// IsGuardExit reports whether the frame exited through a failing guard
// rather than FINISH.
func (d *DeadFrame) IsGuardExit() bool { return d.guard != nil }
