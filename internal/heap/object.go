package heap

import (
	"encoding/binary"
	"math"
)

// WordSize is the size in bytes of an integer, float or reference slot.
const WordSize = 8

// Header flag bits. The low byte is reserved for the collector; front ends
// toggle FlagTrackYoungPtrs to request write-barrier calls for an object.
const (
	FlagMarked         uint64 = 1 << 0
	FlagTrackYoungPtrs uint64 = 1 << 12
	FlagHasClass       uint64 = 1 << 16
)

// Shape is the layout family of a managed object.
type Shape uint8

const (
	ShapeStruct Shape = iota
	ShapeArray
	ShapeStr
	ShapeUnicode
)

// String returns the lowercase shape name.
func (s Shape) String() string {
	switch s {
	case ShapeStruct:
		return "struct"
	case ShapeArray:
		return "array"
	case ShapeStr:
		return "str"
	case ShapeUnicode:
		return "unicode"
	default:
		return "unknown"
	}
}

// Object is a managed heap object.
//
// Non-pointer data lives in data, addressed by byte offset. Pointer data
// lives in ptrs: a struct pointer field at byte offset off occupies
// ptrs[off/WordSize], an array of pointers stores item i in ptrs[i].
type Object struct {
	header   uint64
	class    *Class
	shape    Shape
	itemSize int
	length   int
	pointers bool
	data     []byte
	ptrs     []*Object
	addr     int64
}

// Ref is a reference to a managed object. The nil Ref is the null pointer.
type Ref = *Object

// Addr returns the object's stable integer identity. Zero for null.
func (o *Object) Addr() int64 {
	if o == nil {
		return 0
	}
	return o.addr
}

// Shape returns the object's layout family.
func (o *Object) Shape() Shape {
	o.check()
	return o.shape
}

// Class returns the object's vtable, or nil for classless objects.
func (o *Object) Class() *Class {
	o.check()
	return o.class
}

// Header returns the raw header word.
func (o *Object) Header() uint64 {
	o.check()
	return o.header
}

// SetFlag sets header bits.
func (o *Object) SetFlag(flag uint64) {
	o.check()
	o.header |= flag
}

// ClearFlag clears header bits.
func (o *Object) ClearFlag(flag uint64) {
	o.check()
	o.header &^= flag
}

// HasFlag reports whether all bits of flag are set in the header.
func (o *Object) HasFlag(flag uint64) bool {
	o.check()
	return o.header&flag == flag
}

// Len returns the item count of arrays and strings, and the payload size
// of structs.
func (o *Object) Len() int {
	o.check()
	return o.length
}

func (o *Object) check() {
	if o == nil {
		fault(FaultNullDereference, "access through null reference")
	}
}

func (o *Object) span(offset, size int) []byte {
	o.check()
	if o.shape != ShapeStruct {
		fault(FaultWrongShape, "field access on %s object", o.shape)
	}
	if offset < 0 || size <= 0 || offset+size > len(o.data) {
		fault(FaultOutOfBounds, "field [%d:%d] outside %d-byte payload", offset, offset+size, len(o.data))
	}
	return o.data[offset : offset+size]
}

func (o *Object) ptrSlot(offset int) int {
	o.check()
	if o.shape != ShapeStruct {
		fault(FaultWrongShape, "field access on %s object", o.shape)
	}
	if offset < 0 || offset%WordSize != 0 || offset/WordSize >= len(o.ptrs) {
		fault(FaultOutOfBounds, "pointer field at offset %d outside %d-byte payload", offset, o.length)
	}
	return offset / WordSize
}

// LoadInt reads a size-byte integer field at offset, sign-extending when
// signed is true and zero-extending otherwise.
func (o *Object) LoadInt(offset, size int, signed bool) int64 {
	return loadInt(o.span(offset, size), signed)
}

// StoreInt writes the low size bytes of v at offset.
func (o *Object) StoreInt(offset, size int, v int64) {
	storeInt(o.span(offset, size), v)
}

// LoadFloat reads a float field at offset.
func (o *Object) LoadFloat(offset int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(o.span(offset, WordSize)))
}

// StoreFloat writes a float field at offset.
func (o *Object) StoreFloat(offset int, v float64) {
	binary.LittleEndian.PutUint64(o.span(offset, WordSize), math.Float64bits(v))
}

// LoadRef reads a pointer field at offset.
func (o *Object) LoadRef(offset int) Ref {
	return o.ptrs[o.ptrSlot(offset)]
}

// StoreRef writes a pointer field at offset.
func (o *Object) StoreRef(offset int, v Ref) {
	o.ptrs[o.ptrSlot(offset)] = v
}

func (o *Object) item(index int) []byte {
	o.check()
	if o.shape != ShapeArray {
		fault(FaultWrongShape, "item access on %s object", o.shape)
	}
	if o.pointers {
		fault(FaultWrongShape, "integer item access on array of pointers")
	}
	if index < 0 || index >= o.length {
		fault(FaultOutOfBounds, "index %d outside array of length %d", index, o.length)
	}
	return o.data[index*o.itemSize : (index+1)*o.itemSize]
}

func (o *Object) ptrItem(index int) int {
	o.check()
	if o.shape != ShapeArray || !o.pointers {
		fault(FaultWrongShape, "pointer item access on %s object", o.shape)
	}
	if index < 0 || index >= o.length {
		fault(FaultOutOfBounds, "index %d outside array of length %d", index, o.length)
	}
	return index
}

// ItemSize returns the element size of an array in bytes.
func (o *Object) ItemSize() int {
	o.check()
	return o.itemSize
}

// ItemInt reads integer item index, extended according to signed.
func (o *Object) ItemInt(index int, signed bool) int64 {
	return loadInt(o.item(index), signed)
}

// SetItemInt writes integer item index.
func (o *Object) SetItemInt(index int, v int64) {
	storeInt(o.item(index), v)
}

// ItemFloat reads float item index.
func (o *Object) ItemFloat(index int) float64 {
	b := o.item(index)
	if len(b) != WordSize {
		fault(FaultWrongShape, "float item access on %d-byte items", len(b))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// SetItemFloat writes float item index.
func (o *Object) SetItemFloat(index int, v float64) {
	b := o.item(index)
	if len(b) != WordSize {
		fault(FaultWrongShape, "float item access on %d-byte items", len(b))
	}
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}

// ItemRef reads pointer item index.
func (o *Object) ItemRef(index int) Ref {
	return o.ptrs[o.ptrItem(index)]
}

// SetItemRef writes pointer item index.
func (o *Object) SetItemRef(index int, v Ref) {
	o.ptrs[o.ptrItem(index)] = v
}

func (o *Object) char(index int) []byte {
	o.check()
	if o.shape != ShapeStr && o.shape != ShapeUnicode {
		fault(FaultWrongShape, "character access on %s object", o.shape)
	}
	if index < 0 || index >= o.length {
		fault(FaultOutOfBounds, "index %d outside string of length %d", index, o.length)
	}
	return o.data[index*o.itemSize : (index+1)*o.itemSize]
}

// CharAt returns character index of a str or unicode object, zero-extended.
func (o *Object) CharAt(index int) int64 {
	return loadInt(o.char(index), false)
}

// SetCharAt stores character index, truncated to the character width.
func (o *Object) SetCharAt(index int, v int64) {
	storeInt(o.char(index), v)
}

// Text decodes a str or unicode object into a Go string.
func (o *Object) Text() string {
	o.check()
	switch o.shape {
	case ShapeStr:
		return string(o.data)
	case ShapeUnicode:
		rs := make([]rune, o.length)
		for i := range rs {
			rs[i] = rune(binary.LittleEndian.Uint32(o.data[i*4:]))
		}
		return string(rs)
	default:
		fault(FaultWrongShape, "text of %s object", o.shape)
		return ""
	}
}

// CopyChars copies n characters from src[srcStart:] into dst[dstStart:].
// Both objects must have the same shape. Overlapping ranges are handled.
func CopyChars(src, dst *Object, srcStart, dstStart, n int) {
	src.check()
	dst.check()
	if src.shape != dst.shape || (src.shape != ShapeStr && src.shape != ShapeUnicode) {
		fault(FaultWrongShape, "copy from %s to %s", src.shape, dst.shape)
	}
	if n < 0 || srcStart < 0 || dstStart < 0 || srcStart+n > src.length || dstStart+n > dst.length {
		fault(FaultOutOfBounds, "copy of %d chars from %d/%d to %d/%d", n, srcStart, src.length, dstStart, dst.length)
	}
	w := src.itemSize
	copy(dst.data[dstStart*w:(dstStart+n)*w], src.data[srcStart*w:(srcStart+n)*w])
}

func loadInt(b []byte, signed bool) int64 {
	switch len(b) {
	case 1:
		if signed {
			return int64(int8(b[0]))
		}
		return int64(b[0])
	case 2:
		u := binary.LittleEndian.Uint16(b)
		if signed {
			return int64(int16(u))
		}
		return int64(u)
	case 4:
		u := binary.LittleEndian.Uint32(b)
		if signed {
			return int64(int32(u))
		}
		return int64(u)
	case 8:
		return int64(binary.LittleEndian.Uint64(b))
	default:
		fault(FaultWrongShape, "unsupported integer width %d", len(b))
		return 0
	}
}

func storeInt(b []byte, v int64) {
	switch len(b) {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, uint64(v))
	default:
		fault(FaultWrongShape, "unsupported integer width %d", len(b))
	}
}
