package testutil

import "github.com/roach88/tracejit/internal/ir"

// CountingLoop builds
//
//	[i0]
//	i1 = int_add(i0, 1)
//	i2 = int_le(i1, limit)
//	guard_true(i2, descr=fail) [i1]
//	jump(i1)
//
// which exits through fail with limit+1 for any input up to limit.
func CountingLoop(fail ir.FailDescr, limit int64) ([]*ir.Box, []*ir.ResOp) {
	i0, i1, i2 := ir.NewNamedBox(ir.KindInt, "i0"), ir.NewNamedBox(ir.KindInt, "i1"), ir.NewNamedBox(ir.KindInt, "i2")
	ops := []*ir.ResOp{
		ir.NewOp(ir.OpIntAdd, []ir.Operand{i0, ir.ConstInt(1)}, i1, nil),
		ir.NewOp(ir.OpIntLe, []ir.Operand{i1, ir.ConstInt(limit)}, i2, nil),
		ir.NewGuard(ir.OpGuardTrue, ir.Boxes(i2), fail, i1),
		ir.NewOp(ir.OpJump, ir.Boxes(i1), nil, nil),
	}
	return []*ir.Box{i0}, ops
}

// Bridge builds a bridge for the guard of CountingLoop that keeps the
// loop running until limit and then exits through fail:
//
//	[i0]
//	i1 = int_le(i0, limit)
//	guard_true(i1, descr=fail) [i0]
//	jump(i0)
//
// The jump names no target, so it re-enters the owning loop.
func Bridge(fail ir.FailDescr, limit int64) ([]*ir.Box, []*ir.ResOp) {
	i0, i1 := ir.NewNamedBox(ir.KindInt, "i0"), ir.NewNamedBox(ir.KindInt, "i1")
	ops := []*ir.ResOp{
		ir.NewOp(ir.OpIntLe, []ir.Operand{i0, ir.ConstInt(limit)}, i1, nil),
		ir.NewGuard(ir.OpGuardTrue, ir.Boxes(i1), fail, i0),
		ir.NewOp(ir.OpJump, ir.Boxes(i0), nil, nil),
	}
	return []*ir.Box{i0}, ops
}
