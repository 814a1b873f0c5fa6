package descr

import (
	"fmt"

	"github.com/roach88/tracejit/internal/heap"
	"github.com/roach88/tracejit/internal/ir"
)

// Type is a field, item, argument or result type.
type Type struct {
	Name   string
	Kind   ir.Kind
	Size   int
	Signed bool
}

// Predefined types.
var (
	Signed   = Type{Name: "Signed", Kind: ir.KindInt, Size: 8, Signed: true}
	Unsigned = Type{Name: "Unsigned", Kind: ir.KindInt, Size: 8}
	Char     = Type{Name: "Char", Kind: ir.KindInt, Size: 1}
	Bool     = Type{Name: "Bool", Kind: ir.KindInt, Size: 1}
	Short    = Type{Name: "Short", Kind: ir.KindInt, Size: 2, Signed: true}
	UShort   = Type{Name: "UShort", Kind: ir.KindInt, Size: 2}
	Int32    = Type{Name: "Int32", Kind: ir.KindInt, Size: 4, Signed: true}
	UInt32   = Type{Name: "UInt32", Kind: ir.KindInt, Size: 4}
	UniChar  = Type{Name: "UniChar", Kind: ir.KindInt, Size: 4}
	Float    = Type{Name: "Float", Kind: ir.KindFloat, Size: 8}
	Ptr      = Type{Name: "Ptr", Kind: ir.KindRef, Size: heap.WordSize}
	Void     = Type{Name: "Void", Kind: ir.KindVoid}
)

// String returns the type name.
func (t Type) String() string { return t.Name }

var typesByName = map[string]Type{}

func init() {
	for _, t := range []Type{Signed, Unsigned, Char, Bool, Short, UShort, Int32, UInt32, UniChar, Float, Ptr, Void} {
		typesByName[t.Name] = t
	}
}

// TypeByName looks up a predefined type by name, e.g. "Signed" or "Ptr".
func TypeByName(name string) (Type, bool) {
	t, ok := typesByName[name]
	return t, ok
}

// Field is a named struct member.
type Field struct {
	Name string
	Type Type
}

// F is shorthand for a Field literal.
func F(name string, t Type) Field {
	return Field{Name: name, Type: t}
}

// Struct is a struct layout with computed offsets.
type Struct struct {
	Name    string
	fields  []Field
	offsets map[string]int
	types   map[string]Type
	size    int
}

// NewStruct lays out fields in order with natural alignment. Pointer and
// float fields are word-aligned; the total size is rounded up to a word.
func NewStruct(name string, fields ...Field) *Struct {
	s := &Struct{
		Name:    name,
		fields:  fields,
		offsets: make(map[string]int, len(fields)),
		types:   make(map[string]Type, len(fields)),
	}
	off := 0
	for _, f := range fields {
		align := f.Type.Size
		if align == 0 {
			continue
		}
		if off%align != 0 {
			off += align - off%align
		}
		s.offsets[f.Name] = off
		s.types[f.Name] = f.Type
		off += f.Type.Size
	}
	if off%heap.WordSize != 0 {
		off += heap.WordSize - off%heap.WordSize
	}
	s.size = off
	return s
}

// Size returns the payload size in bytes.
func (s *Struct) Size() int { return s.size }

// Fields returns the declared fields.
func (s *Struct) Fields() []Field { return s.fields }

// Offset returns the byte offset of a field.
func (s *Struct) Offset(name string) (int, bool) {
	off, ok := s.offsets[name]
	return off, ok
}

func (s *Struct) field(name string) (Type, int, error) {
	t, ok := s.types[name]
	if !ok {
		return Type{}, 0, fmt.Errorf("struct %s has no field %q", s.Name, name)
	}
	return t, s.offsets[name], nil
}
