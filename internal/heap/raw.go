package heap

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"
)

const (
	rawBase  = 0x10000
	rawAlign = 16
)

type rawBlock struct {
	addr int64
	data []byte
}

// Arena is raw memory addressed by integers. Blocks never move and are kept
// sorted by address, so a lookup is a binary search.
type Arena struct {
	mu     sync.RWMutex
	blocks []*rawBlock
	next   int64
	bytes  int64
}

func newArena() *Arena {
	return &Arena{next: rawBase}
}

// Malloc allocates size zeroed bytes and returns their address.
func (a *Arena) Malloc(size int) int64 {
	if size < 0 {
		fault(FaultNegativeLength, "raw malloc of %d bytes", size)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	b := &rawBlock{addr: a.next, data: make([]byte, size)}
	a.blocks = append(a.blocks, b)
	// one spare alignment unit keeps blocks from touching
	a.next += int64((size/rawAlign + 1) * rawAlign)
	a.bytes += int64(size)
	return b.addr
}

// Free releases the block starting at addr.
func (a *Arena) Free(addr int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := sort.Search(len(a.blocks), func(i int) bool { return a.blocks[i].addr >= addr })
	if i == len(a.blocks) || a.blocks[i].addr != addr {
		return fmt.Errorf("raw free of %#x: not the start of a live block", addr)
	}
	a.bytes -= int64(len(a.blocks[i].data))
	a.blocks = append(a.blocks[:i], a.blocks[i+1:]...)
	return nil
}

func (a *Arena) usage() (int, int64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.blocks), a.bytes
}

func (a *Arena) span(addr int64, size int) []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()

	i := sort.Search(len(a.blocks), func(i int) bool { return a.blocks[i].addr > addr }) - 1
	if i < 0 {
		fault(FaultBadAddress, "raw address %#x", addr)
	}
	b := a.blocks[i]
	off := addr - b.addr
	if off+int64(size) > int64(len(b.data)) {
		fault(FaultBadAddress, "raw access [%#x:+%d] past block %#x of %d bytes", addr, size, b.addr, len(b.data))
	}
	return b.data[off : off+int64(size)]
}

// LoadInt reads a size-byte integer at addr.
func (a *Arena) LoadInt(addr int64, size int, signed bool) int64 {
	return loadInt(a.span(addr, size), signed)
}

// StoreInt writes the low size bytes of v at addr.
func (a *Arena) StoreInt(addr int64, size int, v int64) {
	storeInt(a.span(addr, size), v)
}

// LoadFloat reads a float at addr.
func (a *Arena) LoadFloat(addr int64) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(a.span(addr, WordSize)))
}

// StoreFloat writes a float at addr.
func (a *Arena) StoreFloat(addr int64, v float64) {
	binary.LittleEndian.PutUint64(a.span(addr, WordSize), math.Float64bits(v))
}
