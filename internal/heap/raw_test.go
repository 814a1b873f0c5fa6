package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArena_MallocLoadStore(t *testing.T) {
	h := New()
	a := h.Raw()

	p := a.Malloc(16)
	q := a.Malloc(3)
	assert.NotEqual(t, p, q)

	a.StoreInt(p, 8, 1234)
	a.StoreInt(p+8, 2, -1)
	a.StoreFloat(p+8, 2.25)
	assert.Equal(t, int64(1234), a.LoadInt(p, 8, true))
	assert.Equal(t, 2.25, a.LoadFloat(p+8))

	a.StoreInt(q+2, 1, 200)
	assert.Equal(t, int64(200), a.LoadInt(q+2, 1, false))
	assert.Equal(t, int64(-56), a.LoadInt(q+2, 1, true))

	st := h.Stats()
	assert.Equal(t, 2, st.RawBlocks)
	assert.Equal(t, int64(19), st.RawBytes)
}

func TestArena_Bounds(t *testing.T) {
	a := New().Raw()
	p := a.Malloc(4)

	expectFault(t, FaultBadAddress, func() { a.LoadInt(p+2, 4, true) })
	expectFault(t, FaultBadAddress, func() { a.LoadInt(p-1, 1, true) })
	expectFault(t, FaultBadAddress, func() { a.LoadInt(1, 1, true) })
}

func TestArena_Free(t *testing.T) {
	a := New().Raw()
	p := a.Malloc(8)

	require.NoError(t, a.Free(p))
	assert.Error(t, a.Free(p))
	expectFault(t, FaultBadAddress, func() { a.LoadInt(p, 8, true) })
}
