package heap

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

const (
	objectBase = 0x1000_0000
	classBase  = 0x0800_0000
	objectStep = 16
)

// Class is a runtime type registered with a Heap. Its vtable address is
// the integer operand of NEW_WITH_VTABLE, GUARD_CLASS and GUARD_EXCEPTION.
type Class struct {
	Name string
	Addr int64
	Size int
}

// String returns the class name.
func (c *Class) String() string {
	if c == nil {
		return "<none>"
	}
	return c.Name
}

// Stats is a snapshot of heap allocation accounting.
type Stats struct {
	Objects   int64
	Bytes     int64
	RawBlocks int
	RawBytes  int64
}

// Heap allocates managed objects and owns the raw arena.
// All methods are safe for concurrent use.
type Heap struct {
	nextAddr  atomic.Int64
	objects   atomic.Int64
	allocated atomic.Int64

	mu        sync.RWMutex
	classes   map[int64]*Class
	nextClass int64

	raw *Arena
}

// New creates an empty heap.
func New() *Heap {
	h := &Heap{
		classes:   make(map[int64]*Class),
		nextClass: classBase,
		raw:       newArena(),
	}
	h.nextAddr.Store(objectBase)
	return h
}

// RegisterClass creates a class whose instances have size payload bytes.
func (h *Heap) RegisterClass(name string, size int) *Class {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &Class{Name: name, Addr: h.nextClass, Size: size}
	h.classes[c.Addr] = c
	h.nextClass += WordSize
	slog.Debug("class registered", "class", name, "vtable", fmt.Sprintf("%#x", c.Addr), "size", size)
	return c
}

// ClassAt resolves a vtable address.
func (h *Heap) ClassAt(addr int64) (*Class, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.classes[addr]
	return c, ok
}

// Classes returns all registered classes ordered by vtable address.
func (h *Heap) Classes() []*Class {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Class, 0, len(h.classes))
	for _, c := range h.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// Raw returns the heap's raw memory arena.
func (h *Heap) Raw() *Arena {
	return h.raw
}

// Stats returns current allocation totals.
func (h *Heap) Stats() Stats {
	blocks, bytes := h.raw.usage()
	return Stats{
		Objects:   h.objects.Load(),
		Bytes:     h.allocated.Load(),
		RawBlocks: blocks,
		RawBytes:  bytes,
	}
}

// Allocated returns the total bytes of managed payload allocated so far.
func (h *Heap) Allocated() int64 {
	return h.allocated.Load()
}

func (h *Heap) alloc(o *Object, bytes int) *Object {
	o.addr = h.nextAddr.Add(objectStep) - objectStep
	h.objects.Add(1)
	h.allocated.Add(int64(bytes))
	return o
}

// NewStruct allocates a zeroed struct with size payload bytes. class may be
// nil for structs allocated by NEW.
func (h *Heap) NewStruct(size int, class *Class) *Object {
	if size < 0 {
		fault(FaultNegativeLength, "struct size %d", size)
	}
	o := &Object{
		shape:  ShapeStruct,
		class:  class,
		length: size,
		data:   make([]byte, size),
		ptrs:   make([]*Object, size/WordSize),
	}
	if class != nil {
		o.header |= FlagHasClass
	}
	return h.alloc(o, size)
}

// NewInstance allocates an instance of class.
func (h *Heap) NewInstance(class *Class) *Object {
	return h.NewStruct(class.Size, class)
}

// MaxObjectSize bounds the payload of one array or string in bytes.
const MaxObjectSize = 1 << 30

// checkLength faults unless n items of itemSize bytes fit in
// MaxObjectSize.
func checkLength(shape Shape, itemSize, n int) {
	if n < 0 {
		fault(FaultNegativeLength, "%s length %d", shape, n)
	}
	if itemSize > 0 && n > MaxObjectSize/itemSize {
		fault(FaultTooLarge, "%s of %d items of %d bytes exceeds %d bytes", shape, n, itemSize, MaxObjectSize)
	}
}

// NewArray allocates a zeroed array of n items of itemSize bytes. Arrays of
// pointers keep their items in the pointer area.
func (h *Heap) NewArray(itemSize int, pointers bool, n int) *Object {
	if pointers {
		checkLength(ShapeArray, WordSize, n)
	} else {
		checkLength(ShapeArray, itemSize, n)
	}
	o := &Object{
		shape:    ShapeArray,
		itemSize: itemSize,
		length:   n,
		pointers: pointers,
	}
	if pointers {
		o.itemSize = WordSize
		o.ptrs = make([]*Object, n)
	} else {
		o.data = make([]byte, n*itemSize)
	}
	return h.alloc(o, n*o.itemSize)
}

// NewStr allocates a byte string of n characters.
func (h *Heap) NewStr(n int) *Object {
	return h.newString(ShapeStr, 1, n)
}

// NewUnicode allocates a unicode string of n 4-byte characters.
func (h *Heap) NewUnicode(n int) *Object {
	return h.newString(ShapeUnicode, 4, n)
}

func (h *Heap) newString(shape Shape, width, n int) *Object {
	checkLength(shape, width, n)
	o := &Object{
		shape:    shape,
		itemSize: width,
		length:   n,
		data:     make([]byte, n*width),
	}
	return h.alloc(o, n*width)
}

// StrFrom allocates a byte string holding s.
func (h *Heap) StrFrom(s string) *Object {
	o := h.NewStr(len(s))
	copy(o.data, s)
	return o
}

// UnicodeFrom allocates a unicode string holding the runes of s.
func (h *Heap) UnicodeFrom(s string) *Object {
	rs := []rune(s)
	o := h.NewUnicode(len(rs))
	for i, r := range rs {
		o.SetCharAt(i, int64(r))
	}
	return o
}

// RawMalloc allocates size zeroed bytes of raw memory.
func (h *Heap) RawMalloc(size int) int64 {
	return h.raw.Malloc(size)
}

// RawFree releases the raw block starting at addr.
func (h *Heap) RawFree(addr int64) error {
	return h.raw.Free(addr)
}
