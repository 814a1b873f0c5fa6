package backend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracejit/internal/descr"
	"github.com/roach88/tracejit/internal/ir"
)

func TestCall_Basic(t *testing.T) {
	reg := descr.NewRegistry()
	cd := reg.CallDescrOf([]descr.Type{descr.Signed, descr.Float}, descr.Signed)

	c := NewCPU()
	var seen []ir.Value
	fn := c.RegisterFunc("scale", func(args []ir.Value) (ir.Value, error) {
		seen = args
		return ir.IntValue(args[0].Int * int64(args[1].Float)), nil
	})

	i0, r := ir.NewIntBox(), ir.NewIntBox()
	token := compile(t, c, []*ir.Box{i0}, []*ir.ResOp{
		ir.NewOp(ir.OpCall, []ir.Operand{ir.ConstInt(fn), i0, ir.ConstFloat(3)}, r, cd),
		finishOp(ir.NewFailDescr(1), r),
	})

	execute(t, c, token, ir.IntValue(7))
	assert.Equal(t, int64(21), c.GetLatestValueInt(0))
	assert.Equal(t, []ir.Value{ir.IntValue(7), ir.FloatValue(3)}, seen)
}

func TestCall_SignatureChecked(t *testing.T) {
	reg := descr.NewRegistry()
	cd, err := reg.CallDescrDynamic("ii", 'i')
	require.NoError(t, err)
	assert.Same(t, cd, reg.CallDescrOf([]descr.Type{descr.Signed, descr.Signed}, descr.Signed))

	c := NewCPU()
	i0, r := ir.NewIntBox(), ir.NewIntBox()
	_, err = c.CompileLoop([]*ir.Box{i0}, []*ir.ResOp{
		ir.NewOp(ir.OpCall, []ir.Operand{ir.ConstInt(0), i0, ir.ConstFloat(1)}, r, cd),
		finishOp(ir.NewFailDescr(1), r),
	})
	requireCode(t, err, ErrCallSignature)
}

func TestCall_ResultNarrowing(t *testing.T) {
	reg := descr.NewRegistry()
	c := NewCPU()
	fn := c.RegisterFunc("wide", func(args []ir.Value) (ir.Value, error) {
		return ir.IntValue(args[0].Int), nil
	})

	tests := []struct {
		result descr.Type
		in     int64
		want   int64
	}{
		{descr.Char, 0x1ff, 0xff},
		{descr.Short, 0xffff, -1},
		{descr.UShort, -1, 0xffff},
		{descr.Int32, 0x8000_0000, -0x8000_0000},
		{descr.UInt32, -1, 0xffff_ffff},
		{descr.Signed, -1, -1},
	}
	for i, tt := range tests {
		cd := reg.CallDescrOf([]descr.Type{descr.Signed}, tt.result)
		i0, r := ir.NewIntBox(), ir.NewIntBox()
		token := compile(t, c, []*ir.Box{i0}, []*ir.ResOp{
			ir.NewOp(ir.OpCall, []ir.Operand{ir.ConstInt(fn), i0}, r, cd),
			finishOp(ir.NewFailDescr(int64(i)), r),
		})
		execute(t, c, token, ir.IntValue(tt.in))
		assert.Equal(t, tt.want, c.GetLatestValueInt(0), "%s result of %#x", tt.result, tt.in)
	}
}

func TestCall_Exceptions(t *testing.T) {
	reg := descr.NewRegistry()
	cd := reg.CallDescrOf([]descr.Type{descr.Signed}, descr.Signed)

	c := NewCPU()
	h := c.Heap()
	valueError := h.RegisterClass("ValueError", 8)
	keyError := h.RegisterClass("KeyError", 8)

	fn := c.RegisterFunc("maybe_raise", func(args []ir.Value) (ir.Value, error) {
		switch args[0].Int {
		case 1:
			return ir.Value{}, &Raise{Value: h.NewInstance(valueError)}
		case 2:
			return ir.Value{}, &Raise{Class: keyError, Value: h.NewInstance(keyError)}
		}
		return ir.IntValue(args[0].Int + 100), nil
	})

	t.Run("guard_no_exception", func(t *testing.T) {
		fail, done := ir.NewFailDescr(1), ir.NewFailDescr(2)
		i0, r := ir.NewIntBox(), ir.NewIntBox()
		token := compile(t, c, []*ir.Box{i0}, []*ir.ResOp{
			ir.NewOp(ir.OpCall, []ir.Operand{ir.ConstInt(fn), i0}, r, cd),
			ir.NewGuard(ir.OpGuardNoException, nil, fail, i0),
			finishOp(done, r),
		})

		assert.Same(t, done, execute(t, c, token, ir.IntValue(0)))
		assert.Equal(t, int64(100), c.GetLatestValueInt(0))
		assert.Nil(t, c.GrabExcValue())

		assert.Same(t, fail, execute(t, c, token, ir.IntValue(1)))
		exc := c.GrabExcValue()
		require.NotNil(t, exc)
		assert.Same(t, valueError, exc.Class())
		assert.Nil(t, c.GrabExcValue(), "consume once")
	})

	t.Run("guard_exception", func(t *testing.T) {
		fail, done := ir.NewFailDescr(3), ir.NewFailDescr(4)
		i0, r, e := ir.NewIntBox(), ir.NewIntBox(), ir.NewRefBox()
		guard := ir.NewOp(ir.OpGuardException, []ir.Operand{ir.ConstInt(valueError.Addr)}, e, fail)
		require.NoError(t, guard.SetFailArgs(i0))
		token := compile(t, c, []*ir.Box{i0}, []*ir.ResOp{
			ir.NewOp(ir.OpCall, []ir.Operand{ir.ConstInt(fn), i0}, r, cd),
			guard,
			finishOp(done, e),
		})

		assert.Same(t, done, execute(t, c, token, ir.IntValue(1)))
		assert.Same(t, valueError, c.GetLatestValueRef(0).Class())
		assert.Nil(t, c.GrabExcValue(), "the guard consumed the exception")

		assert.Same(t, fail, execute(t, c, token, ir.IntValue(2)), "other class")
		assert.Same(t, keyError, c.GrabExcValue().Class())

		assert.Same(t, fail, execute(t, c, token, ir.IntValue(0)), "no exception")
		assert.Nil(t, c.GrabExcValue())
	})
}

func TestCall_Errors(t *testing.T) {
	reg := descr.NewRegistry()
	cd := reg.CallDescrOf(nil, descr.Signed)
	boom := errors.New("boom")

	c := NewCPU()
	fn := c.RegisterFunc("fails", func([]ir.Value) (ir.Value, error) { return ir.Value{}, boom })

	addr := ir.NewIntBox()
	r := ir.NewIntBox()
	token := compile(t, c, []*ir.Box{addr}, []*ir.ResOp{
		ir.NewOp(ir.OpCall, []ir.Operand{addr}, r, cd),
		finishOp(ir.NewFailDescr(1), r),
	})

	stage(c.Engine(), ir.IntValue(fn))
	_, err := c.ExecuteToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeForeignCall, re.Code)

	stage(c.Engine(), ir.IntValue(fn+8))
	_, err = c.ExecuteToken(token)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeBadFunction, re.Code)
}

func TestForce(t *testing.T) {
	reg := descr.NewRegistry()
	cd := reg.CallDescrOf([]descr.Type{descr.Signed, descr.Signed}, descr.Signed)

	c := NewCPU()
	var forcedWith ir.FailDescr
	var during []int64
	fn := c.RegisterFunc("maybe_force", func(args []ir.Value) (ir.Value, error) {
		if args[1].Int != 0 {
			d, err := c.Force(args[0].Int)
			if err != nil {
				return ir.Value{}, err
			}
			forcedWith = d
			during = []int64{c.GetLatestValueInt(0), c.GetLatestValueInt(1), c.GetLatestValueInt(2)}
		}
		return ir.IntValue(42), nil
	})

	fail, done := ir.NewFailDescr(1), ir.NewFailDescr(0)
	i0, i1, tok, r := ir.NewIntBox(), ir.NewIntBox(), ir.NewIntBox(), ir.NewIntBox()
	token := compile(t, c, []*ir.Box{i0, i1}, []*ir.ResOp{
		op(ir.OpForceToken, tok),
		ir.NewOp(ir.OpCallMayForce, []ir.Operand{ir.ConstInt(fn), tok, i1}, r, cd),
		ir.NewGuard(ir.OpGuardNotForced, nil, fail, i1, i0, r),
		finishOp(done, i0),
	})

	assert.Same(t, done, execute(t, c, token, ir.IntValue(20), ir.IntValue(0)))
	assert.Equal(t, int64(20), c.GetLatestValueInt(0))
	assert.Nil(t, forcedWith)

	assert.Same(t, fail, execute(t, c, token, ir.IntValue(10), ir.IntValue(1)))
	assert.Same(t, fail, forcedWith)
	assert.Equal(t, []int64{1, 10, 0}, during, "the in-flight result reads as zero")
	assert.Equal(t, int64(1), c.GetLatestValueInt(0))
	assert.Equal(t, int64(10), c.GetLatestValueInt(1))
	assert.Equal(t, int64(42), c.GetLatestValueInt(2), "the exit includes the result")

	_, err := c.Force(12345)
	require.Error(t, err)
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeForce, re.Code)
}

func TestForce_OutsideCall(t *testing.T) {
	c := NewCPU()
	var token int64
	cd := descr.NewRegistry().CallDescrOf([]descr.Type{descr.Signed}, descr.Void)
	fn := c.RegisterFunc("capture", func(args []ir.Value) (ir.Value, error) {
		token = args[0].Int
		_, err := c.Force(token)
		return ir.Value{}, err
	})

	tok := ir.NewIntBox()
	loop := compile(t, c, nil, []*ir.ResOp{
		op(ir.OpForceToken, tok),
		ir.NewOp(ir.OpCall, []ir.Operand{ir.ConstInt(fn), tok}, nil, cd),
		finishOp(ir.NewFailDescr(1)),
	})

	_, err := c.ExecuteToken(loop)
	require.Error(t, err, "a plain CALL cannot be forced")
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeForeignCall, re.Code)

	_, err = c.Force(token)
	assert.Error(t, err, "the frame is gone after exit")
}

func calleeLoop(t *testing.T, c *CPU, slow ir.FailDescr) *ir.LoopToken {
	t.Helper()
	a, b, sum, ok := ir.NewIntBox(), ir.NewIntBox(), ir.NewIntBox(), ir.NewIntBox()
	return compile(t, c, []*ir.Box{a, b}, []*ir.ResOp{
		op(ir.OpIntAdd, sum, a, b),
		op(ir.OpIntLt, ok, sum, ir.ConstInt(100)),
		ir.NewGuard(ir.OpGuardTrue, ir.Boxes(ok), slow, sum),
		finishOp(c.DoneWithThisFrame(ir.KindInt), sum),
	})
}

func callerLoop(t *testing.T, c *CPU, callee *ir.LoopToken, id int64) (*ir.LoopToken, ir.FailDescr) {
	t.Helper()
	done := ir.NewFailDescr(id)
	x, r := ir.NewIntBox(), ir.NewIntBox()
	token := compile(t, c, []*ir.Box{x}, []*ir.ResOp{
		ir.NewOp(ir.OpCallAssembler, []ir.Operand{x, ir.ConstInt(10)}, r, callee),
		ir.NewGuard(ir.OpGuardNotForced, nil, ir.NewFailDescr(id+1000), x),
		finishOp(done, r),
	})
	return token, done
}

func TestCallAssembler_FastAndSlowPath(t *testing.T) {
	var helped []ir.FailDescr
	slow := ir.NewFailDescr(50)
	c := NewCPU(WithAssemblerHelper(func(d ir.FailDescr, df *DeadFrame) (ir.Value, error) {
		helped = append(helped, d)
		return ir.IntValue(-df.Int(0)), nil
	}))

	callee := calleeLoop(t, c, slow)
	caller, done := callerLoop(t, c, callee, 1)

	assert.Same(t, done, execute(t, c, caller, ir.IntValue(5)))
	assert.Equal(t, int64(15), c.GetLatestValueInt(0))
	assert.Empty(t, helped, "done_with_this_frame returns directly")

	assert.Same(t, done, execute(t, c, caller, ir.IntValue(95)))
	assert.Equal(t, int64(-105), c.GetLatestValueInt(0))
	assert.Equal(t, []ir.FailDescr{slow}, helped)
}

func TestCallAssembler_NoHelper(t *testing.T) {
	c := NewCPU()
	callee := calleeLoop(t, c, ir.NewFailDescr(50))
	caller, _ := callerLoop(t, c, callee, 1)

	stage(c.Engine(), ir.IntValue(200))
	_, err := c.ExecuteToken(caller)
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeNoAssemblerHelper, re.Code)
}

func TestCallAssembler_FollowsRedirect(t *testing.T) {
	c := NewCPU()
	old := calleeLoop(t, c, ir.NewFailDescr(50))
	caller, done := callerLoop(t, c, old, 1)

	a, b, prod := ir.NewIntBox(), ir.NewIntBox(), ir.NewIntBox()
	newer := compile(t, c, []*ir.Box{a, b}, []*ir.ResOp{
		op(ir.OpIntMul, prod, a, b),
		finishOp(c.DoneWithThisFrame(ir.KindInt), prod),
	})
	require.NoError(t, c.RedirectCallAssembler(old, newer))

	assert.Same(t, done, execute(t, c, caller, ir.IntValue(7)))
	assert.Equal(t, int64(70), c.GetLatestValueInt(0))
}

func TestCallAssembler_DepthLimit(t *testing.T) {
	c := NewCPU(WithMaxCallDepth(50))

	i0 := ir.NewIntBox()
	base := compile(t, c, []*ir.Box{i0}, []*ir.ResOp{finishOp(c.DoneWithThisFrame(ir.KindInt), i0)})

	x, r := ir.NewIntBox(), ir.NewIntBox()
	recursive := compile(t, c, []*ir.Box{x}, []*ir.ResOp{
		ir.NewOp(ir.OpCallAssembler, ir.Boxes(x), r, base),
		ir.NewGuard(ir.OpGuardNotForced, nil, ir.NewFailDescr(1)),
		finishOp(c.DoneWithThisFrame(ir.KindInt), r),
	})
	// base now designates recursive, which calls itself through base
	require.NoError(t, c.RedirectCallAssembler(base, recursive))

	stage(c.Engine(), ir.IntValue(1))
	_, err := c.ExecuteToken(recursive)
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeCallDepth, re.Code)
}

func TestCallAssembler_ForceFromCallee(t *testing.T) {
	cd := descr.NewRegistry().CallDescrOf([]descr.Type{descr.Signed}, descr.Void)
	c := NewCPU(WithAssemblerHelper(func(ir.FailDescr, *DeadFrame) (ir.Value, error) {
		return ir.IntValue(0), nil
	}))
	fn := c.RegisterFunc("force", func(args []ir.Value) (ir.Value, error) {
		_, err := c.Force(args[0].Int)
		return ir.Value{}, err
	})

	tokIn := ir.NewIntBox()
	callee := compile(t, c, []*ir.Box{tokIn}, []*ir.ResOp{
		ir.NewOp(ir.OpCall, []ir.Operand{ir.ConstInt(fn), tokIn}, nil, cd),
		finishOp(c.DoneWithThisFrame(ir.KindVoid)),
	})

	fail, done := ir.NewFailDescr(1), ir.NewFailDescr(2)
	x, tok := ir.NewIntBox(), ir.NewIntBox()
	caller := compile(t, c, []*ir.Box{x}, []*ir.ResOp{
		op(ir.OpForceToken, tok),
		ir.NewOp(ir.OpCallAssembler, ir.Boxes(tok), nil, callee),
		ir.NewGuard(ir.OpGuardNotForced, nil, fail, x),
		finishOp(done),
	})

	assert.Same(t, fail, execute(t, c, caller, ir.IntValue(9)))
	assert.Equal(t, int64(9), c.GetLatestValueInt(0))
}
