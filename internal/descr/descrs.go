package descr

import (
	"fmt"
	"strings"

	"github.com/roach88/tracejit/internal/heap"
	"github.com/roach88/tracejit/internal/ir"
)

// FieldDescr describes one field of a Struct.
type FieldDescr struct {
	Struct *Struct
	Name   string
	Type   Type
	Offset int
}

var _ ir.FieldDescr = (*FieldDescr)(nil)

func (d *FieldDescr) Repr() string         { return d.Struct.Name + "." + d.Name }
func (d *FieldDescr) FieldOffset() int     { return d.Offset }
func (d *FieldDescr) FieldSize() int       { return d.Type.Size }
func (d *FieldDescr) FieldKind() ir.Kind   { return d.Type.Kind }
func (d *FieldDescr) IsPointerField() bool { return d.Type.Kind == ir.KindRef }
func (d *FieldDescr) IsFloatField() bool   { return d.Type.Kind == ir.KindFloat }
func (d *FieldDescr) IsFieldSigned() bool  { return d.Type.Signed }

// SortKey orders the fields of one struct by offset. Distinct fields of a
// struct never share a key.
func (d *FieldDescr) SortKey() int { return d.Offset }

// ArrayDescr describes arrays of one item type.
type ArrayDescr struct {
	Item Type
}

var _ ir.ArrayDescr = (*ArrayDescr)(nil)

func (d *ArrayDescr) Repr() string            { return "array(" + d.Item.Name + ")" }
func (d *ArrayDescr) ItemSize() int           { return d.Item.Size }
func (d *ArrayDescr) ItemKind() ir.Kind       { return d.Item.Kind }
func (d *ArrayDescr) IsArrayOfPointers() bool { return d.Item.Kind == ir.KindRef }
func (d *ArrayDescr) IsArrayOfFloats() bool   { return d.Item.Kind == ir.KindFloat }
func (d *ArrayDescr) IsItemSigned() bool      { return d.Item.Signed }

// SizeDescr describes the allocation size of a Struct.
type SizeDescr struct {
	Struct *Struct
}

var _ ir.SizeDescr = (*SizeDescr)(nil)

func (d *SizeDescr) Repr() string    { return "size(" + d.Struct.Name + ")" }
func (d *SizeDescr) StructSize() int { return d.Struct.size }

// CallDescr describes a call signature by argument kinds and result type.
type CallDescr struct {
	args   []ir.Kind
	result ir.Kind
	size   int
	signed bool
}

var _ ir.CallDescr = (*CallDescr)(nil)

// Repr returns the signature as "call(<args>)<result>" using kind letters.
func (d *CallDescr) Repr() string {
	var sb strings.Builder
	sb.WriteString("call(")
	for _, k := range d.args {
		sb.WriteByte(k.Char())
	}
	sb.WriteByte(')')
	sb.WriteByte(d.result.Char())
	if d.result == ir.KindInt && (d.size != heap.WordSize || !d.signed) {
		sign := "u"
		if d.signed {
			sign = "s"
		}
		fmt.Fprintf(&sb, "%s%d", sign, d.size)
	}
	return sb.String()
}

func (d *CallDescr) ArgKinds() []ir.Kind  { return d.args }
func (d *CallDescr) ResultKind() ir.Kind  { return d.result }
func (d *CallDescr) ResultSize() int      { return d.size }
func (d *CallDescr) IsResultSigned() bool { return d.signed }

// WriteBarrierDescr names the header flag tested by COND_CALL_GC_WB and
// the collector function it calls.
type WriteBarrierDescr struct {
	flag       uint64
	mask       byte
	byteOffset int
	fn         ir.WriteBarrierFunc
}

var _ ir.WriteBarrierDescr = (*WriteBarrierDescr)(nil)

// NewWriteBarrierDescr builds a descriptor testing flag, which must lie
// within a single byte of the header word.
func NewWriteBarrierDescr(flag uint64, fn ir.WriteBarrierFunc) (*WriteBarrierDescr, error) {
	if fn == nil {
		return nil, fmt.Errorf("write barrier: nil barrier function")
	}
	d := &WriteBarrierDescr{flag: flag, fn: fn, byteOffset: -1}
	for i := 0; i < heap.WordSize; i++ {
		b := byte(flag >> (8 * i))
		if b == 0 {
			continue
		}
		if d.byteOffset >= 0 {
			return nil, fmt.Errorf("write barrier: flag %#x spans more than one byte", flag)
		}
		d.byteOffset = i
		d.mask = b
	}
	if d.byteOffset < 0 {
		return nil, fmt.Errorf("write barrier: empty flag")
	}
	return d, nil
}

func (d *WriteBarrierDescr) Repr() string { return fmt.Sprintf("wb(%#x)", d.flag) }

// Flag returns the full header flag.
func (d *WriteBarrierDescr) Flag() uint64 { return d.flag }

// WriteBarrierTarget returns the byte mask, its byte offset and the
// barrier function.
func (d *WriteBarrierDescr) WriteBarrierTarget() (byte, int, ir.WriteBarrierFunc) {
	return d.mask, d.byteOffset, d.fn
}
