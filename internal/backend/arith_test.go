package backend

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracejit/internal/ir"
)

func TestOverflow_Pairing(t *testing.T) {
	boundary := []int64{
		math.MinInt64, math.MinInt64 / 2, -1, 0, 1, math.MaxInt64 / 2, math.MaxInt64,
	}
	exact := func(fn func(z, x, y *big.Int) *big.Int) func(a, b int64) bool {
		return func(a, b int64) bool {
			return !fn(new(big.Int), big.NewInt(a), big.NewInt(b)).IsInt64()
		}
	}
	ops := map[ir.Opcode]struct {
		wrap     func(a, b int64) int64
		overflow func(a, b int64) bool
	}{
		ir.OpIntAddOvf: {func(a, b int64) int64 { return a + b }, exact((*big.Int).Add)},
		ir.OpIntSubOvf: {func(a, b int64) int64 { return a - b }, exact((*big.Int).Sub)},
		ir.OpIntMulOvf: {func(a, b int64) int64 { return a * b }, exact((*big.Int).Mul)},
	}

	c := NewCPU()
	var id int64
	for code, oracle := range ops {
		for _, guard := range []ir.Opcode{ir.OpGuardNoOverflow, ir.OpGuardOverflow} {
			id++
			fail, done := ir.NewFailDescr(id), ir.NewFailDescr(-id)
			a, b, r := ir.NewIntBox(), ir.NewIntBox(), ir.NewIntBox()
			token := compile(t, c, []*ir.Box{a, b}, []*ir.ResOp{
				op(code, r, a, b),
				ir.NewGuard(guard, nil, fail, a, b),
				finishOp(done, r),
			})

			for _, x := range boundary {
				for _, y := range boundary {
					want, overflow := oracle.wrap(x, y), oracle.overflow(x, y)
					got := execute(t, c, token, ir.IntValue(x), ir.IntValue(y))

					exits := overflow == (guard == ir.OpGuardNoOverflow)
					if exits {
						assert.Same(t, fail, got, "%s(%d, %d) under %s", code, x, y, guard)
						assert.Equal(t, x, c.GetLatestValueInt(0))
						assert.Equal(t, y, c.GetLatestValueInt(1))
					} else {
						require.Same(t, done, got, "%s(%d, %d) under %s", code, x, y, guard)
						assert.Equal(t, want, c.GetLatestValueInt(0))
					}
				}
			}
		}
	}
}

func TestFloat_IEEE(t *testing.T) {
	nan, inf := math.NaN(), math.Inf(1)
	tests := []struct {
		code ir.Opcode
		a, b float64
		want int64
	}{
		{ir.OpFloatLt, nan, 1, 0},
		{ir.OpFloatLe, nan, nan, 0},
		{ir.OpFloatEq, nan, nan, 0},
		{ir.OpFloatNe, nan, nan, 1},
		{ir.OpFloatGt, 1, nan, 0},
		{ir.OpFloatGe, nan, 1, 0},
		{ir.OpFloatNe, nan, 1, 1},
		{ir.OpFloatLt, -inf, inf, 1},
		{ir.OpFloatEq, inf, inf, 1},
		{ir.OpFloatGt, inf, math.MaxFloat64, 1},
		{ir.OpFloatEq, 0, math.Copysign(0, -1), 1},
	}

	c := NewCPU()
	for i, tt := range tests {
		a, b, r := ir.NewFloatBox(), ir.NewFloatBox(), ir.NewIntBox()
		token := compile(t, c, []*ir.Box{a, b}, []*ir.ResOp{
			op(tt.code, r, a, b),
			finishOp(ir.NewFailDescr(int64(i)), r),
		})
		execute(t, c, token, ir.FloatValue(tt.a), ir.FloatValue(tt.b))
		assert.Equal(t, tt.want, c.GetLatestValueInt(0), "%s(%v, %v)", tt.code, tt.a, tt.b)
	}
}

func TestFloat_Arithmetic(t *testing.T) {
	inf := math.Inf(1)
	c := NewCPU()
	a, b := ir.NewFloatBox(), ir.NewFloatBox()
	sum, diff, prod, quot, neg, abs := ir.NewFloatBox(), ir.NewFloatBox(), ir.NewFloatBox(), ir.NewFloatBox(), ir.NewFloatBox(), ir.NewFloatBox()
	truth, cast := ir.NewIntBox(), ir.NewIntBox()
	token := compile(t, c, []*ir.Box{a, b}, []*ir.ResOp{
		op(ir.OpFloatAdd, sum, a, b),
		op(ir.OpFloatSub, diff, a, b),
		op(ir.OpFloatMul, prod, a, b),
		op(ir.OpFloatTrueDiv, quot, a, b),
		op(ir.OpFloatNeg, neg, a),
		op(ir.OpFloatAbs, abs, neg),
		op(ir.OpFloatIsTrue, truth, b),
		op(ir.OpCastFloatToInt, cast, a),
		finishOp(ir.NewFailDescr(1), sum, diff, prod, quot, neg, abs, truth, cast),
	})

	execute(t, c, token, ir.FloatValue(inf), ir.FloatValue(0))
	assert.Equal(t, inf, c.GetLatestValueFloat(0))
	assert.Equal(t, inf, c.GetLatestValueFloat(1))
	assert.True(t, math.IsNaN(c.GetLatestValueFloat(2)), "inf * 0")
	assert.Equal(t, inf, c.GetLatestValueFloat(3), "inf / 0")
	assert.Equal(t, -inf, c.GetLatestValueFloat(4))
	assert.Equal(t, inf, c.GetLatestValueFloat(5))
	assert.Equal(t, int64(0), c.GetLatestValueInt(6))
	assert.Equal(t, int64(math.MinInt64), c.GetLatestValueInt(7))

	execute(t, c, token, ir.FloatValue(-7.9), ir.FloatValue(nan()))
	assert.Equal(t, int64(1), c.GetLatestValueInt(6), "NaN is true")
	assert.Equal(t, int64(-7), c.GetLatestValueInt(7), "truncates toward zero")
}

func nan() float64 { return math.NaN() }

func TestIntDivision_ZeroFaults(t *testing.T) {
	c := NewCPU()
	a, b, q, m := ir.NewIntBox(), ir.NewIntBox(), ir.NewIntBox(), ir.NewIntBox()
	token := compile(t, c, []*ir.Box{a, b}, []*ir.ResOp{
		op(ir.OpIntFloorDiv, q, a, b),
		op(ir.OpIntMod, m, a, b),
		finishOp(ir.NewFailDescr(1), q, m),
	})

	execute(t, c, token, ir.IntValue(-7), ir.IntValue(2))
	assert.Equal(t, int64(-3), c.GetLatestValueInt(0), "truncating division")
	assert.Equal(t, int64(-1), c.GetLatestValueInt(1))

	stage(c.Engine(), ir.IntValue(1), ir.IntValue(0))
	_, err := c.ExecuteToken(token)
	require.Error(t, err)
	assert.True(t, IsZeroDivision(err))
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, token.Number(), re.Loop)
	assert.Equal(t, 0, re.OpIndex)
}

func TestIntShift_CountModulo(t *testing.T) {
	c := NewCPU()
	a, s, l, r, u := ir.NewIntBox(), ir.NewIntBox(), ir.NewIntBox(), ir.NewIntBox(), ir.NewIntBox()
	token := compile(t, c, []*ir.Box{a, s}, []*ir.ResOp{
		op(ir.OpIntLshift, l, a, s),
		op(ir.OpIntRshift, r, a, s),
		op(ir.OpUintRshift, u, a, s),
		finishOp(ir.NewFailDescr(1), l, r, u),
	})
	execute(t, c, token, ir.IntValue(-8), ir.IntValue(65))
	assert.Equal(t, int64(-16), c.GetLatestValueInt(0))
	assert.Equal(t, int64(-4), c.GetLatestValueInt(1))
	assert.Equal(t, int64(uint64(math.MaxUint64-7)>>1), c.GetLatestValueInt(2))
}
