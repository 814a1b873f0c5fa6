package backend

import (
	"github.com/roach88/tracejit/internal/heap"
	"github.com/roach88/tracejit/internal/ir"
)

func classAddr(obj heap.Ref) int64 {
	if c := obj.Class(); c != nil {
		return c.Addr
	}
	return 0
}

func execGuardTrue(f *frame, in *instr) {
	if f.int(in.args[0]) == 0 {
		f.fail(in)
	}
}

func execGuardFalse(f *frame, in *instr) {
	if f.int(in.args[0]) != 0 {
		f.fail(in)
	}
}

func execGuardValue(f *frame, in *instr) {
	if !f.get(in.args[0]).Same(f.get(in.args[1])) {
		f.fail(in)
	}
}

func execGuardNonnull(f *frame, in *instr) {
	if f.ref(in.args[0]) == nil {
		f.fail(in)
	}
}

func execGuardIsnull(f *frame, in *instr) {
	if f.ref(in.args[0]) != nil {
		f.fail(in)
	}
}

// execGuardClass fails on null as well as on a class mismatch.
func execGuardClass(f *frame, in *instr) {
	obj := f.ref(in.args[0])
	if obj == nil || classAddr(obj) != f.int(in.args[1]) {
		f.fail(in)
	}
}

func execGuardNoOverflow(f *frame, in *instr) {
	if f.overflow {
		f.fail(in)
	}
}

func execGuardOverflow(f *frame, in *instr) {
	if !f.overflow {
		f.fail(in)
	}
}

func (f *frame) excPending() bool {
	return f.excClass != nil || f.excValue != nil
}

func execGuardNoException(f *frame, in *instr) {
	if f.excPending() {
		f.fail(in)
	}
}

// execGuardException passes when the pending exception is exactly of the
// given class. It produces the exception value and clears it.
func execGuardException(f *frame, in *instr) {
	if f.excClass == nil || f.excClass.Addr != f.int(in.args[0]) {
		f.fail(in)
		return
	}
	f.set(in, ir.RefValue(f.excValue))
	f.clearException()
}

// execGuardNotForced fails when the preceding call forced the frame. The
// exit values are taken now, so they include the call's result.
func execGuardNotForced(f *frame, in *instr) {
	if f.forced {
		f.forced = false
		f.fail(in)
	}
}
