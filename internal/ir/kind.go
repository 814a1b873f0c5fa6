package ir

import "fmt"

// Kind is the type of a value: integer, reference, float or void.
type Kind uint8

const (
	KindVoid Kind = iota
	KindInt
	KindRef
	KindFloat
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindInt:
		return "int"
	case KindRef:
		return "ref"
	case KindFloat:
		return "float"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Char returns the one-letter code used in dynamic call signatures:
// 'i', 'r', 'f' or 'v'.
func (k Kind) Char() byte {
	switch k {
	case KindInt:
		return 'i'
	case KindRef:
		return 'r'
	case KindFloat:
		return 'f'
	default:
		return 'v'
	}
}

// BoxPrefix returns the box name prefix used in trace text.
func (k Kind) BoxPrefix() string {
	switch k {
	case KindInt:
		return "i"
	case KindRef:
		return "p"
	case KindFloat:
		return "f"
	default:
		return "v"
	}
}

// KindFromChar parses a dynamic signature letter.
func KindFromChar(c byte) (Kind, bool) {
	switch c {
	case 'i':
		return KindInt, true
	case 'r':
		return KindRef, true
	case 'f':
		return KindFloat, true
	case 'v':
		return KindVoid, true
	default:
		return KindVoid, false
	}
}
