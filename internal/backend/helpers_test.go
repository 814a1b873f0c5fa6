package backend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tracejit/internal/ir"
)

// countingLoop builds
//
//	[i0]
//	i1 = int_add(i0, 1)
//	i2 = int_le(i1, 9)
//	guard_true(i2, descr=fail) [i1]
//	jump(i1)
func countingLoop(fail ir.FailDescr) ([]*ir.Box, []*ir.ResOp) {
	i0, i1, i2 := ir.NewIntBox(), ir.NewIntBox(), ir.NewIntBox()
	ops := []*ir.ResOp{
		ir.NewOp(ir.OpIntAdd, []ir.Operand{i0, ir.ConstInt(1)}, i1, nil),
		ir.NewOp(ir.OpIntLe, []ir.Operand{i1, ir.ConstInt(9)}, i2, nil),
		ir.NewGuard(ir.OpGuardTrue, ir.Boxes(i2), fail, i1),
		ir.NewOp(ir.OpJump, ir.Boxes(i1), nil, nil),
	}
	return []*ir.Box{i0}, ops
}

// finishOp builds FINISH(args...) with descr.
func finishOp(descr ir.FailDescr, args ...ir.Operand) *ir.ResOp {
	return ir.NewOp(ir.OpFinish, args, nil, descr)
}

func op(code ir.Opcode, res *ir.Box, args ...ir.Operand) *ir.ResOp {
	return ir.NewOp(code, args, res, nil)
}

func compile(t *testing.T, c *CPU, inputs []*ir.Box, ops []*ir.ResOp) *ir.LoopToken {
	t.Helper()
	token, err := c.CompileLoop(inputs, ops)
	require.NoError(t, err)
	return token
}

func execute(t *testing.T, c *CPU, token *ir.LoopToken, args ...ir.Value) ir.FailDescr {
	t.Helper()
	stage(c.Engine(), args...)
	descr, err := c.ExecuteToken(token)
	require.NoError(t, err)
	return descr
}

func stage(e *Engine, args ...ir.Value) {
	for i, v := range args {
		switch v.Kind {
		case ir.KindInt:
			e.SetFutureValueInt(i, v.Int)
		case ir.KindRef:
			e.SetFutureValueRef(i, v.Ref)
		case ir.KindFloat:
			e.SetFutureValueFloat(i, v.Float)
		}
	}
}

// requireCode asserts that err carries a structural error with code.
func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var codes []string
	for _, se := range StructuralErrors(err) {
		codes = append(codes, se.Code)
	}
	require.Contains(t, codes, code, "error: %v", err)
}

type recordingSink struct {
	units []UnitEvent
	exits []ExitEvent
	frees []FreeEvent
}

func (s *recordingSink) UnitCompiled(e UnitEvent) error { s.units = append(s.units, e); return nil }
func (s *recordingSink) GuardExited(e ExitEvent) error  { s.exits = append(s.exits, e); return nil }
func (s *recordingSink) UnitFreed(e FreeEvent) error    { s.frees = append(s.frees, e); return nil }
