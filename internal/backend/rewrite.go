package backend

import "github.com/roach88/tracejit/internal/ir"

type rewriteStats struct {
	barriers    int
	mergePoints int
}

// rewrite lowers a validated trace for execution. DEBUG_MERGE_POINT is
// dropped. With a write-barrier descriptor configured, every pointer store
// into a managed object gets a COND_CALL_GC_WB in front of it, unless the
// stored value is the null literal.
//
// The returned origin slice maps each rewritten operation back to its index
// in ops, for diagnostics.
func (c *CPU) rewrite(ops []*ir.ResOp) ([]*ir.ResOp, []int, rewriteStats) {
	var st rewriteStats
	out := make([]*ir.ResOp, 0, len(ops))
	origin := make([]int, 0, len(ops))

	emit := func(op *ir.ResOp, i int) {
		out = append(out, op)
		origin = append(origin, i)
	}

	for i, op := range ops {
		switch op.Opcode() {
		case ir.OpDebugMergePoint:
			st.mergePoints++
			continue
		case ir.OpSetfieldGC:
			if fd, ok := op.Descr().(ir.FieldDescr); ok && fd.IsPointerField() && c.needsBarrier(op.Arg(1)) {
				emit(ir.NewOp(ir.OpCondCallGCWB, []ir.Operand{op.Arg(0), op.Arg(1)}, nil, c.wb), i)
				st.barriers++
			}
		case ir.OpSetarrayitemGC:
			if ad, ok := op.Descr().(ir.ArrayDescr); ok && ad.IsArrayOfPointers() && c.needsBarrier(op.Arg(2)) {
				emit(ir.NewOp(ir.OpCondCallGCWB, []ir.Operand{op.Arg(0), op.Arg(2)}, nil, c.wb), i)
				st.barriers++
			}
		}
		emit(op, i)
	}
	return out, origin, st
}

func (c *CPU) needsBarrier(value ir.Operand) bool {
	if c.wb == nil {
		return false
	}
	if k, ok := value.(ir.Const); ok && k.IsNull() {
		return false
	}
	return true
}
