package ir

import (
	"fmt"

	"github.com/roach88/tracejit/internal/heap"
)

// Descr is the opaque descriptor attached to an operation. Repr is used in
// trace text and fingerprints.
type Descr interface {
	Repr() string
}

// FailDescr identifies one exit point: a guard or a FINISH.
// Implementations must be comparable; pointers are the usual choice.
type FailDescr interface {
	Descr
	Identifier() int64
}

// FieldDescr describes one struct field.
type FieldDescr interface {
	Descr
	FieldOffset() int
	FieldSize() int
	FieldKind() Kind
	IsPointerField() bool
	IsFloatField() bool
	IsFieldSigned() bool
	SortKey() int
}

// ArrayDescr describes the item layout of an array.
type ArrayDescr interface {
	Descr
	ItemSize() int
	ItemKind() Kind
	IsArrayOfPointers() bool
	IsArrayOfFloats() bool
	IsItemSigned() bool
}

// SizeDescr describes the payload size of a struct.
type SizeDescr interface {
	Descr
	StructSize() int
}

// CallDescr describes a call signature.
type CallDescr interface {
	Descr
	ArgKinds() []Kind
	ResultKind() Kind
	// ResultSize is the width in bytes of an integer result; sub-word
	// results are truncated and extended according to IsResultSigned.
	ResultSize() int
	IsResultSigned() bool
}

// WriteBarrierFunc is the collector hook invoked by COND_CALL_GC_WB with
// the object written to and the value being stored.
type WriteBarrierFunc func(obj heap.Ref, value Value)

// WriteBarrierDescr names the header bit to test and the function to call.
type WriteBarrierDescr interface {
	Descr
	// WriteBarrierTarget returns the single-byte flag mask, the byte offset
	// of that byte within the header word, and the barrier function.
	WriteBarrierTarget() (mask byte, byteOffset int, fn WriteBarrierFunc)
}

// BasicFailDescr is a ready-made FailDescr.
type BasicFailDescr struct {
	ID   int64
	Name string
}

// NewFailDescr returns a FailDescr with the given identifier.
func NewFailDescr(id int64) *BasicFailDescr {
	return &BasicFailDescr{ID: id}
}

// Identifier returns the numeric identifier.
func (d *BasicFailDescr) Identifier() int64 { return d.ID }

// Repr returns the name, or "fail<ID>" when unnamed.
func (d *BasicFailDescr) Repr() string {
	if d.Name != "" {
		return d.Name
	}
	return fmt.Sprintf("fail%d", d.ID)
}

// Location is a DEBUG_MERGE_POINT descriptor naming a source position.
type Location string

// Repr returns the location text quoted.
func (l Location) Repr() string {
	return fmt.Sprintf("%q", string(l))
}
