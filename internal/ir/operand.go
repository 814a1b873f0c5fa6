package ir

import "github.com/roach88/tracejit/internal/heap"

// Operand is a box or a literal. Only *Box and Const implement it.
type Operand interface {
	Kind() Kind
	operand()
}

// Box is a placeholder for the value one operation produces (or one trace
// input receives) at run time. Boxes compare by identity.
type Box struct {
	kind Kind
	name string
}

func (*Box) operand() {}

// NewBox returns a fresh box of kind.
func NewBox(kind Kind) *Box {
	return &Box{kind: kind}
}

// NewNamedBox returns a fresh box carrying a display name.
func NewNamedBox(kind Kind, name string) *Box {
	return &Box{kind: kind, name: name}
}

// NewIntBox returns a fresh integer box.
func NewIntBox() *Box { return NewBox(KindInt) }

// NewRefBox returns a fresh reference box.
func NewRefBox() *Box { return NewBox(KindRef) }

// NewFloatBox returns a fresh float box.
func NewFloatBox() *Box { return NewBox(KindFloat) }

// Kind returns the box kind.
func (b *Box) Kind() Kind { return b.kind }

// Name returns the display name, empty if none was given.
func (b *Box) Name() string { return b.name }

// Const is a literal operand.
type Const struct {
	value Value
}

func (Const) operand() {}

// ConstInt returns an integer literal.
func ConstInt(i int64) Const { return Const{value: IntValue(i)} }

// ConstFloat returns a float literal.
func ConstFloat(f float64) Const { return Const{value: FloatValue(f)} }

// ConstPtr returns a reference literal.
func ConstPtr(r heap.Ref) Const { return Const{value: RefValue(r)} }

// ConstNull returns the null reference literal.
func ConstNull() Const { return Const{value: RefValue(nil)} }

// ConstOf wraps an arbitrary value as a literal.
func ConstOf(v Value) Const { return Const{value: v} }

// Kind returns the literal's kind.
func (c Const) Kind() Kind { return c.value.Kind }

// Value returns the literal's value.
func (c Const) Value() Value { return c.value }

// IsNull reports whether c is the null reference literal.
func (c Const) IsNull() bool {
	return c.value.Kind == KindRef && c.value.Ref == nil
}

// Boxes converts a list of boxes to operands.
func Boxes(boxes ...*Box) []Operand {
	out := make([]Operand, len(boxes))
	for i, b := range boxes {
		out[i] = b
	}
	return out
}
