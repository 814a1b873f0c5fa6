package ir

import (
	"fmt"
	"math"
	"strconv"

	"github.com/roach88/tracejit/internal/heap"
)

// Value is a run-time value of one kind. Only the field matching Kind is
// meaningful.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Ref   heap.Ref
}

// IntValue returns an integer value.
func IntValue(i int64) Value {
	return Value{Kind: KindInt, Int: i}
}

// FloatValue returns a float value.
func FloatValue(f float64) Value {
	return Value{Kind: KindFloat, Float: f}
}

// RefValue returns a reference value. A nil ref is the null pointer.
func RefValue(r heap.Ref) Value {
	return Value{Kind: KindRef, Ref: r}
}

// Zero returns the zero value of kind.
func Zero(kind Kind) Value {
	return Value{Kind: kind}
}

// IsZero reports whether v is the zero value of its kind.
func (v Value) IsZero() bool {
	switch v.Kind {
	case KindInt:
		return v.Int == 0
	case KindFloat:
		return math.Float64bits(v.Float) == 0
	case KindRef:
		return v.Ref == nil
	default:
		return true
	}
}

// Same reports whether two values are identical: same kind, same integer,
// same float bits, same reference.
func (v Value) Same(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return math.Float64bits(v.Float) == math.Float64bits(o.Float)
	case KindRef:
		return v.Ref == o.Ref
	default:
		return true
	}
}

// String formats v the way literals appear in trace text.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return FormatFloat(v.Float)
	case KindRef:
		if v.Ref == nil {
			return "null"
		}
		return fmt.Sprintf("ConstPtr(%#x)", v.Ref.Addr())
	default:
		return "void"
	}
}

// FormatFloat formats f so that it reads back as a float literal.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	for _, c := range s {
		if c == '.' || c == 'e' {
			return s
		}
	}
	return s + ".0"
}
