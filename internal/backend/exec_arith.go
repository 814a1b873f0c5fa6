package backend

import (
	"github.com/roach88/tracejit/internal/executor"
	"github.com/roach88/tracejit/internal/ir"
)

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func execIntBinary(f *frame, in *instr) {
	f.set(in, ir.IntValue(in.intBin(f.int(in.args[0]), f.int(in.args[1]))))
}

func execIntUnary(f *frame, in *instr) {
	f.set(in, ir.IntValue(in.intUn(f.int(in.args[0]))))
}

// execIntOvf computes the wrapped result and latches the overflow flag for
// the guard that follows.
func execIntOvf(f *frame, in *instr) {
	r, ovf := in.ovf(f.int(in.args[0]), f.int(in.args[1]))
	f.overflow = ovf
	f.set(in, ir.IntValue(r))
}

func execFloatBinary(f *frame, in *instr) {
	f.set(in, ir.FloatValue(in.fltBin(f.float(in.args[0]), f.float(in.args[1]))))
}

func execFloatUnary(f *frame, in *instr) {
	f.set(in, ir.FloatValue(in.fltUn(f.float(in.args[0]))))
}

func execFloatCompare(f *frame, in *instr) {
	f.set(in, ir.IntValue(b2i(in.fltCmp(f.float(in.args[0]), f.float(in.args[1])))))
}

func execFloatIsTrue(f *frame, in *instr) {
	f.set(in, ir.IntValue(executor.FloatIsTrue(f.float(in.args[0]))))
}

func execCastFloatToInt(f *frame, in *instr) {
	f.set(in, ir.IntValue(executor.FloatToInt(f.float(in.args[0]))))
}

func execCastIntToFloat(f *frame, in *instr) {
	f.set(in, ir.FloatValue(float64(f.int(in.args[0]))))
}

func execPtrEq(f *frame, in *instr) {
	f.set(in, ir.IntValue(b2i(f.ref(in.args[0]) == f.ref(in.args[1]))))
}

func execPtrNe(f *frame, in *instr) {
	f.set(in, ir.IntValue(b2i(f.ref(in.args[0]) != f.ref(in.args[1]))))
}

func execPtrIsnull(f *frame, in *instr) {
	f.set(in, ir.IntValue(b2i(f.ref(in.args[0]) == nil)))
}

func execPtrNonnull(f *frame, in *instr) {
	f.set(in, ir.IntValue(b2i(f.ref(in.args[0]) != nil)))
}

func execCastPtrToInt(f *frame, in *instr) {
	f.set(in, ir.IntValue(f.ref(in.args[0]).Addr()))
}

func execSameAs(f *frame, in *instr) {
	f.set(in, f.get(in.args[0]))
}
