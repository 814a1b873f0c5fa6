package descr

import (
	"sort"
	"testing"

	"github.com/roach88/tracejit/internal/heap"
	"github.com/roach88/tracejit/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStruct_Layout(t *testing.T) {
	s := NewStruct("S",
		F("value", Signed),
		F("chr1", Char),
		F("chr2", Char),
		F("short", Short),
		F("next", Ptr),
		F("f", Float),
	)

	offsets := map[string]int{"value": 0, "chr1": 8, "chr2": 9, "short": 10, "next": 16, "f": 24}
	for name, want := range offsets {
		got, ok := s.Offset(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	assert.Equal(t, 32, s.Size())
}

func TestStruct_SizeRoundedToWord(t *testing.T) {
	s := NewStruct("C", F("c", Char))
	assert.Equal(t, heap.WordSize, s.Size())
}

func TestRegistry_FieldDescrInterned(t *testing.T) {
	r := NewRegistry()
	s := NewStruct("S", F("value", Signed), F("next", Ptr))

	d1, err := r.FieldDescrOf(s, "next")
	require.NoError(t, err)
	d2, err := r.FieldDescrOf(s, "next")
	require.NoError(t, err)

	assert.Same(t, d1, d2)
	assert.True(t, d1.IsPointerField())
	assert.Equal(t, "S.next", d1.Repr())

	_, err = r.FieldDescrOf(s, "missing")
	assert.Error(t, err)
}

func TestFieldDescr_SortKey(t *testing.T) {
	r := NewRegistry()
	s := NewStruct("S", F("value", Signed), F("chr1", Char), F("chr2", Char))
	value, _ := r.FieldDescrOf(s, "value")
	chr1, _ := r.FieldDescrOf(s, "chr1")
	chr2, _ := r.FieldDescrOf(s, "chr2")

	ds := []*FieldDescr{chr2, chr1, value}
	sort.Slice(ds, func(i, j int) bool { return ds[i].SortKey() < ds[j].SortKey() })
	assert.Equal(t, []*FieldDescr{value, chr1, chr2}, ds)
}

func TestArrayDescr(t *testing.T) {
	r := NewRegistry()
	a := r.ArrayDescrOf(Char)
	assert.Same(t, a, r.ArrayDescrOf(Char))
	assert.NotSame(t, a, r.ArrayDescrOf(Signed))
	assert.False(t, a.IsArrayOfPointers())
	assert.False(t, a.IsItemSigned())
	assert.True(t, r.ArrayDescrOf(Ptr).IsArrayOfPointers())
	assert.True(t, r.ArrayDescrOf(Float).IsArrayOfFloats())
	assert.Equal(t, 1, a.ItemSize())
}

func TestCallDescr_StaticAndDynamicAgree(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name   string
		args   []Type
		result Type
		kinds  string
		res    byte
	}{
		{"int binary", []Type{Signed, Signed}, Signed, "ii", 'i'},
		{"void", []Type{Ptr}, Void, "r", 'v'},
		{"float", []Type{Float, Signed}, Float, "fi", 'f'},
		{"ref result", nil, Ptr, "", 'r'},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			static := r.CallDescrOf(tt.args, tt.result)
			dynamic, err := r.CallDescrDynamic(tt.kinds, tt.res)
			require.NoError(t, err)
			assert.Same(t, static, dynamic)
		})
	}
}

func TestCallDescr_SubWordResult(t *testing.T) {
	r := NewRegistry()
	d := r.CallDescrOf([]Type{Char}, Char)
	assert.Equal(t, []ir.Kind{ir.KindInt}, d.ArgKinds())
	assert.Equal(t, 1, d.ResultSize())
	assert.False(t, d.IsResultSigned())
	assert.Equal(t, "call(i)iu1", d.Repr())

	dyn, err := r.CallDescrDynamic("i", 'i')
	require.NoError(t, err)
	assert.NotSame(t, d, dyn)
}

func TestCallDescrDynamic_BadKinds(t *testing.T) {
	r := NewRegistry()
	_, err := r.CallDescrDynamic("iv", 'i')
	assert.Error(t, err)
	_, err = r.CallDescrDynamic("i", 'x')
	assert.Error(t, err)
}

func TestWriteBarrierDescr(t *testing.T) {
	fn := func(heap.Ref, ir.Value) {}

	d, err := NewWriteBarrierDescr(heap.FlagTrackYoungPtrs, fn)
	require.NoError(t, err)
	mask, ofs, got := d.WriteBarrierTarget()
	assert.Equal(t, byte(0x10), mask)
	assert.Equal(t, 1, ofs)
	assert.NotNil(t, got)

	_, err = NewWriteBarrierDescr(0x1_01, fn)
	assert.Error(t, err, "flag spanning two bytes")
	_, err = NewWriteBarrierDescr(0, fn)
	assert.Error(t, err)
	_, err = NewWriteBarrierDescr(1, nil)
	assert.Error(t, err)
}

func TestSizeDescr(t *testing.T) {
	r := NewRegistry()
	s := NewStruct("T", F("a", Signed), F("b", Ptr))
	d := r.SizeDescrOf(s)
	assert.Same(t, d, r.SizeDescrOf(s))
	assert.Equal(t, 16, d.StructSize())
}

func TestTypeByName(t *testing.T) {
	ty, ok := TypeByName("UShort")
	require.True(t, ok)
	assert.Equal(t, UShort, ty)

	_, ok = TypeByName("ushort")
	assert.False(t, ok)
}
