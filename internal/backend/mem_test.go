package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracejit/internal/descr"
	"github.com/roach88/tracejit/internal/heap"
	"github.com/roach88/tracejit/internal/ir"
)

func TestArray_RoundTrip(t *testing.T) {
	reg := descr.NewRegistry()
	values := []int64{0, 1, -1, 127, -128, 255, 32767, -32768, 65535, 1 << 40, -(1 << 40)}

	tests := []struct {
		item descr.Type
		want func(v int64) int64
	}{
		{descr.Signed, func(v int64) int64 { return v }},
		{descr.Char, func(v int64) int64 { return int64(uint8(v)) }},
		{descr.Short, func(v int64) int64 { return int64(int16(v)) }},
		{descr.UShort, func(v int64) int64 { return int64(uint16(v)) }},
		{descr.Int32, func(v int64) int64 { return int64(int32(v)) }},
		{descr.UInt32, func(v int64) int64 { return int64(uint32(v)) }},
	}

	c := NewCPU()
	for i, tt := range tests {
		t.Run(tt.item.Name, func(t *testing.T) {
			ad := reg.ArrayDescrOf(tt.item)
			n, idx, v := ir.NewIntBox(), ir.NewIntBox(), ir.NewIntBox()
			arr, length, got := ir.NewRefBox(), ir.NewIntBox(), ir.NewIntBox()
			token := compile(t, c, []*ir.Box{n, idx, v}, []*ir.ResOp{
				ir.NewOp(ir.OpNewArray, ir.Boxes(n), arr, ad),
				ir.NewOp(ir.OpArraylenGC, ir.Boxes(arr), length, ad),
				ir.NewOp(ir.OpSetarrayitemGC, []ir.Operand{arr, idx, v}, nil, ad),
				ir.NewOp(ir.OpGetarrayitemGC, []ir.Operand{arr, idx}, got, ad),
				finishOp(ir.NewFailDescr(int64(i)), length, got),
			})

			for j, val := range values {
				execute(t, c, token, ir.IntValue(int64(len(values))), ir.IntValue(int64(j)), ir.IntValue(val))
				assert.Equal(t, int64(len(values)), c.GetLatestValueInt(0))
				assert.Equal(t, tt.want(val), c.GetLatestValueInt(1), "store %d", val)
			}
		})
	}
}

func TestArray_PointersAndFloats(t *testing.T) {
	reg := descr.NewRegistry()
	ptrs, floats := reg.ArrayDescrOf(descr.Ptr), reg.ArrayDescrOf(descr.Float)

	c := NewCPU()
	obj := c.Heap().NewStruct(8, nil)
	p0, f0 := ir.NewRefBox(), ir.NewFloatBox()
	pa, fa, pg, fg := ir.NewRefBox(), ir.NewRefBox(), ir.NewRefBox(), ir.NewFloatBox()
	token := compile(t, c, []*ir.Box{p0, f0}, []*ir.ResOp{
		ir.NewOp(ir.OpNewArray, []ir.Operand{ir.ConstInt(3)}, pa, ptrs),
		ir.NewOp(ir.OpNewArray, []ir.Operand{ir.ConstInt(2)}, fa, floats),
		ir.NewOp(ir.OpSetarrayitemGC, []ir.Operand{pa, ir.ConstInt(2), p0}, nil, ptrs),
		ir.NewOp(ir.OpSetarrayitemGC, []ir.Operand{fa, ir.ConstInt(1), f0}, nil, floats),
		ir.NewOp(ir.OpGetarrayitemGC, []ir.Operand{pa, ir.ConstInt(2)}, pg, ptrs),
		ir.NewOp(ir.OpGetarrayitemGC, []ir.Operand{fa, ir.ConstInt(1)}, fg, floats),
		finishOp(ir.NewFailDescr(1), pg, fg, pa),
	})

	execute(t, c, token, ir.RefValue(obj), ir.FloatValue(-0.25))
	assert.Same(t, obj, c.GetLatestValueRef(0))
	assert.Equal(t, -0.25, c.GetLatestValueFloat(1))
	assert.Nil(t, c.GetLatestValueRef(2).ItemRef(0), "new arrays are zeroed")
}

func TestArray_OutOfBoundsFaults(t *testing.T) {
	reg := descr.NewRegistry()
	ad := reg.ArrayDescrOf(descr.Signed)

	c := NewCPU()
	arr, i, r := ir.NewRefBox(), ir.NewIntBox(), ir.NewIntBox()
	token := compile(t, c, []*ir.Box{arr, i}, []*ir.ResOp{
		ir.NewOp(ir.OpGetarrayitemGC, []ir.Operand{arr, i}, r, ad),
		finishOp(ir.NewFailDescr(1), r),
	})

	stage(c.Engine(), ir.RefValue(c.Heap().NewArray(8, false, 2)), ir.IntValue(2))
	_, err := c.ExecuteToken(token)
	require.Error(t, err)
	assert.True(t, IsMemoryFault(err))

	stage(c.Engine(), ir.RefValue(nil), ir.IntValue(0))
	_, err = c.ExecuteToken(token)
	assert.True(t, IsMemoryFault(err), "null dereference")
}

func TestStruct_FieldsAndVtable(t *testing.T) {
	reg := descr.NewRegistry()
	point := descr.NewStruct("Point",
		descr.F("tag", descr.Char),
		descr.F("delta", descr.Short),
		descr.F("x", descr.Float),
		descr.F("next", descr.Ptr),
	)
	tag, _ := reg.FieldDescrOf(point, "tag")
	delta, _ := reg.FieldDescrOf(point, "delta")
	x, _ := reg.FieldDescrOf(point, "x")
	next, _ := reg.FieldDescrOf(point, "next")

	c := NewCPU()
	cls := c.Heap().RegisterClass("Point", point.Size())

	f0 := ir.NewFloatBox()
	p, q := ir.NewRefBox(), ir.NewRefBox()
	gt, gd, gx, gn, gq := ir.NewIntBox(), ir.NewIntBox(), ir.NewFloatBox(), ir.NewRefBox(), ir.NewRefBox()
	fail := ir.NewFailDescr(1)
	token := compile(t, c, []*ir.Box{f0}, []*ir.ResOp{
		op(ir.OpNewWithVtable, p, ir.ConstInt(cls.Addr)),
		ir.NewOp(ir.OpNew, nil, q, reg.SizeDescrOf(point)),
		ir.NewOp(ir.OpSetfieldGC, []ir.Operand{p, ir.ConstInt(0x1ff)}, nil, tag),
		ir.NewOp(ir.OpSetfieldGC, []ir.Operand{p, ir.ConstInt(-2)}, nil, delta),
		ir.NewOp(ir.OpSetfieldGC, []ir.Operand{p, f0}, nil, x),
		ir.NewOp(ir.OpSetfieldGC, []ir.Operand{p, q}, nil, next),
		ir.NewGuard(ir.OpGuardClass, []ir.Operand{p, ir.ConstInt(cls.Addr)}, fail),
		ir.NewOp(ir.OpGetfieldGC, ir.Boxes(p), gt, tag),
		ir.NewOp(ir.OpGetfieldGC, ir.Boxes(p), gd, delta),
		ir.NewOp(ir.OpGetfieldGC, ir.Boxes(p), gx, x),
		ir.NewOp(ir.OpGetfieldGC, ir.Boxes(p), gn, next),
		ir.NewOp(ir.OpGetfieldGC, ir.Boxes(gn), gq, next),
		finishOp(ir.NewFailDescr(2), gt, gd, gx, gn, gq, p),
	})

	execute(t, c, token, ir.FloatValue(3.5))
	assert.Equal(t, int64(0xff), c.GetLatestValueInt(0), "unsigned char zero-extends")
	assert.Equal(t, int64(-2), c.GetLatestValueInt(1), "short sign-extends")
	assert.Equal(t, 3.5, c.GetLatestValueFloat(2))
	assert.NotNil(t, c.GetLatestValueRef(3))
	assert.Nil(t, c.GetLatestValueRef(4))
	assert.Same(t, cls, c.GetLatestValueRef(5).Class())
}

func TestGuardClass_NullFails(t *testing.T) {
	c := NewCPU()
	cls := c.Heap().RegisterClass("A", 8)
	other := c.Heap().RegisterClass("B", 8)
	fail, fail2, done := ir.NewFailDescr(1), ir.NewFailDescr(2), ir.NewFailDescr(3)

	p := ir.NewRefBox()
	token := compile(t, c, []*ir.Box{p}, []*ir.ResOp{
		ir.NewGuard(ir.OpGuardNonnull, ir.Boxes(p), fail2),
		ir.NewGuard(ir.OpGuardClass, []ir.Operand{p, ir.ConstInt(cls.Addr)}, fail, p),
		finishOp(done),
	})

	assert.Same(t, fail2, execute(t, c, token, ir.RefValue(nil)))
	assert.Same(t, fail, execute(t, c, token, ir.RefValue(c.Heap().NewInstance(other))))
	assert.Same(t, done, execute(t, c, token, ir.RefValue(c.Heap().NewInstance(cls))))

	q := ir.NewRefBox()
	fail3, done2 := ir.NewFailDescr(4), ir.NewFailDescr(5)
	token2 := compile(t, c, []*ir.Box{q}, []*ir.ResOp{
		ir.NewGuard(ir.OpGuardClass, []ir.Operand{q, ir.ConstInt(cls.Addr)}, fail3),
		finishOp(done2),
	})
	assert.Same(t, fail3, execute(t, c, token2, ir.RefValue(nil)))
}

func TestAlloc_HugeLengthsFault(t *testing.T) {
	reg := descr.NewRegistry()
	ad := reg.ArrayDescrOf(descr.Signed)

	tests := []struct {
		name string
		n    int64
		ops  func(n, obj, r *ir.Box) []*ir.ResOp
	}{
		{"array", 1 << 61, func(n, obj, r *ir.Box) []*ir.ResOp {
			return []*ir.ResOp{
				ir.NewOp(ir.OpNewArray, []ir.Operand{n}, obj, ad),
				ir.NewOp(ir.OpSetarrayitemGC, []ir.Operand{obj, ir.ConstInt(5), ir.ConstInt(1)}, nil, ad),
				ir.NewOp(ir.OpArraylenGC, []ir.Operand{obj}, r, ad),
			}
		}},
		{"str", 1 << 62, func(n, obj, r *ir.Box) []*ir.ResOp {
			return []*ir.ResOp{
				op(ir.OpNewStr, obj, n),
				op(ir.OpStrgetitem, r, obj, ir.ConstInt(3)),
			}
		}},
		{"unicode", 1 << 62, func(n, obj, r *ir.Box) []*ir.ResOp {
			return []*ir.ResOp{
				op(ir.OpNewUnicode, obj, n),
				op(ir.OpUnicodegetitem, r, obj, ir.ConstInt(3)),
			}
		}},
		{"unicode over cap", heap.MaxObjectSize/4 + 1, func(n, obj, r *ir.Box) []*ir.ResOp {
			return []*ir.ResOp{
				op(ir.OpNewUnicode, obj, n),
				op(ir.OpUnicodelen, r, obj),
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCPU()
			n, obj, r := ir.NewIntBox(), ir.NewRefBox(), ir.NewIntBox()
			ops := append(tt.ops(n, obj, r), finishOp(ir.NewFailDescr(1), r))
			token := compile(t, c, []*ir.Box{n}, ops)

			stage(c.Engine(), ir.IntValue(tt.n))
			var err error
			require.NotPanics(t, func() { _, err = c.ExecuteToken(token) })
			require.Error(t, err)
			assert.True(t, IsMemoryFault(err), "got %v", err)
			assert.Contains(t, err.Error(), "exceeds")
		})
	}
}

func TestExecuteToken_GoRuntimePanicBecomesError(t *testing.T) {
	reg := descr.NewRegistry()
	cd := reg.CallDescrOf([]descr.Type{descr.Signed}, descr.Signed)

	c := NewCPU()
	fn := c.RegisterFunc("index", func(args []ir.Value) (ir.Value, error) {
		var items []int64
		return ir.IntValue(items[args[0].Int]), nil
	})
	i0, r := ir.NewIntBox(), ir.NewIntBox()
	token := compile(t, c, []*ir.Box{i0}, []*ir.ResOp{
		ir.NewOp(ir.OpCall, []ir.Operand{ir.ConstInt(fn), i0}, r, cd),
		finishOp(ir.NewFailDescr(1), r),
	})

	stage(c.Engine(), ir.IntValue(3))
	var err error
	require.NotPanics(t, func() { _, err = c.ExecuteToken(token) })
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeInternal, re.Code)
	assert.Equal(t, 0, re.OpIndex)
}

func TestStrings(t *testing.T) {
	c := NewCPU()
	h := c.Heap()

	src := ir.NewRefBox()
	s, u, sl, ch, uch, ul := ir.NewRefBox(), ir.NewRefBox(), ir.NewIntBox(), ir.NewIntBox(), ir.NewIntBox(), ir.NewIntBox()
	token := compile(t, c, []*ir.Box{src}, []*ir.ResOp{
		op(ir.OpStrlen, sl, src),
		op(ir.OpNewStr, s, sl),
		op(ir.OpCopystrcontent, nil, src, s, ir.ConstInt(0), ir.ConstInt(0), sl),
		op(ir.OpStrsetitem, nil, s, ir.ConstInt(0), ir.ConstInt('J')),
		op(ir.OpStrgetitem, ch, s, ir.ConstInt(1)),
		op(ir.OpNewUnicode, u, ir.ConstInt(2)),
		op(ir.OpUnicodesetitem, nil, u, ir.ConstInt(1), ir.ConstInt(0x1F600)),
		op(ir.OpUnicodegetitem, uch, u, ir.ConstInt(1)),
		op(ir.OpUnicodelen, ul, u),
		finishOp(ir.NewFailDescr(1), s, ch, uch, ul),
	})

	execute(t, c, token, ir.RefValue(h.StrFrom("jit")))
	assert.Equal(t, "Jit", c.GetLatestValueRef(0).Text())
	assert.Equal(t, int64('i'), c.GetLatestValueInt(1))
	assert.Equal(t, int64(0x1F600), c.GetLatestValueInt(2))
	assert.Equal(t, int64(2), c.GetLatestValueInt(3))
}

func TestRawMemory(t *testing.T) {
	reg := descr.NewRegistry()
	rec := descr.NewStruct("Rec", descr.F("a", descr.Short), descr.F("b", descr.Float))
	a, _ := reg.FieldDescrOf(rec, "a")
	b, _ := reg.FieldDescrOf(rec, "b")
	bytes := reg.ArrayDescrOf(descr.Char)

	c := NewCPU()
	addr := c.Heap().RawMalloc(64)
	t.Cleanup(func() { _ = c.Heap().RawFree(addr) })

	base, ga, gb, gi := ir.NewIntBox(), ir.NewIntBox(), ir.NewFloatBox(), ir.NewIntBox()
	token := compile(t, c, []*ir.Box{base}, []*ir.ResOp{
		ir.NewOp(ir.OpSetfieldRaw, []ir.Operand{base, ir.ConstInt(-3)}, nil, a),
		ir.NewOp(ir.OpSetfieldRaw, []ir.Operand{base, ir.ConstFloat(2.5)}, nil, b),
		ir.NewOp(ir.OpSetarrayitemRaw, []ir.Operand{base, ir.ConstInt(20), ir.ConstInt(200)}, nil, bytes),
		ir.NewOp(ir.OpGetfieldRaw, ir.Boxes(base), ga, a),
		ir.NewOp(ir.OpGetfieldRaw, ir.Boxes(base), gb, b),
		ir.NewOp(ir.OpGetarrayitemRaw, []ir.Operand{base, ir.ConstInt(20)}, gi, bytes),
		finishOp(ir.NewFailDescr(1), ga, gb, gi),
	})

	execute(t, c, token, ir.IntValue(addr))
	assert.Equal(t, int64(-3), c.GetLatestValueInt(0))
	assert.Equal(t, 2.5, c.GetLatestValueFloat(1))
	assert.Equal(t, int64(200), c.GetLatestValueInt(2))

	stage(c.Engine(), ir.IntValue(0x10))
	_, err := c.ExecuteToken(token)
	assert.True(t, IsMemoryFault(err))
}

func TestWriteBarrier_Precision(t *testing.T) {
	var calls []heap.Ref
	wb, err := descr.NewWriteBarrierDescr(heap.FlagTrackYoungPtrs, func(obj heap.Ref, _ ir.Value) {
		calls = append(calls, obj)
	})
	require.NoError(t, err)

	reg := descr.NewRegistry()
	node := descr.NewStruct("Node", descr.F("next", descr.Ptr))
	next, _ := reg.FieldDescrOf(node, "next")
	items := reg.ArrayDescrOf(descr.Ptr)

	c := NewCPU(WithWriteBarrier(wb))
	h := c.Heap()

	p, v := ir.NewRefBox(), ir.NewRefBox()
	field := compile(t, c, []*ir.Box{p, v}, []*ir.ResOp{
		ir.NewOp(ir.OpSetfieldGC, []ir.Operand{p, v}, nil, next),
		finishOp(ir.NewFailDescr(1)),
	})
	arr, w := ir.NewRefBox(), ir.NewRefBox()
	item := compile(t, c, []*ir.Box{arr, w}, []*ir.ResOp{
		ir.NewOp(ir.OpSetarrayitemGC, []ir.Operand{arr, ir.ConstInt(0), w}, nil, items),
		finishOp(ir.NewFailDescr(2)),
	})

	clean := h.NewStruct(node.Size(), nil)
	tracked := h.NewStruct(node.Size(), nil)
	tracked.SetFlag(heap.FlagTrackYoungPtrs)
	value := h.NewStruct(node.Size(), nil)

	execute(t, c, field, ir.RefValue(clean), ir.RefValue(value))
	assert.Empty(t, calls, "flag clear")
	execute(t, c, field, ir.RefValue(tracked), ir.RefValue(value))
	require.Len(t, calls, 1, "flag set")
	assert.Same(t, tracked, calls[0])
	assert.Same(t, value, tracked.LoadRef(0), "the store still happens")

	calls = nil
	cleanArr := h.NewArray(8, true, 1)
	trackedArr := h.NewArray(8, true, 1)
	trackedArr.SetFlag(heap.FlagTrackYoungPtrs)
	execute(t, c, item, ir.RefValue(cleanArr), ir.RefValue(value))
	assert.Empty(t, calls)
	execute(t, c, item, ir.RefValue(trackedArr), ir.RefValue(value))
	assert.Len(t, calls, 1)

	trackedArr.ClearFlag(heap.FlagTrackYoungPtrs)
	execute(t, c, item, ir.RefValue(trackedArr), ir.RefValue(value))
	assert.Len(t, calls, 1, "clearing the flag stops the barrier")
}
