package ir

import (
	"fmt"
	"strings"
)

// namer assigns trace-text names to boxes. Named boxes keep their names
// unless canonical is set, in which case every box is renumbered by kind
// in order of first appearance.
type namer struct {
	names     map[*Box]string
	counts    map[Kind]int
	canonical bool
}

func newNamer(names map[*Box]string) *namer {
	if names == nil {
		names = make(map[*Box]string)
	}
	return &namer{names: names, counts: make(map[Kind]int)}
}

func (n *namer) name(b *Box) string {
	if b == nil {
		return "_"
	}
	if s, ok := n.names[b]; ok {
		return s
	}
	s := b.name
	if s == "" || n.canonical {
		s = fmt.Sprintf("%s%d", b.kind.BoxPrefix(), n.counts[b.kind])
		n.counts[b.kind]++
	}
	n.names[b] = s
	return s
}

func (n *namer) operand(o Operand) string {
	switch v := o.(type) {
	case *Box:
		return n.name(v)
	case Const:
		return v.value.String()
	default:
		return "?"
	}
}

func (n *namer) formatOp(op *ResOp) string {
	var sb strings.Builder
	if op.result != nil {
		sb.WriteString(n.name(op.result))
		sb.WriteString(" = ")
	}
	sb.WriteString(op.opcode.String())
	sb.WriteByte('(')
	for i, a := range op.args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(n.operand(a))
	}
	if op.descr != nil {
		if len(op.args) > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("descr=")
		sb.WriteString(op.descr.Repr())
	}
	sb.WriteByte(')')
	if op.failSet {
		sb.WriteString(" [")
		for i, b := range op.failArgs {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(n.name(b))
		}
		sb.WriteByte(']')
	}
	return sb.String()
}

// FormatTrace renders a trace in trace text. Boxes keep their display
// names where they have one.
func FormatTrace(inputs []*Box, ops []*ResOp) string {
	return formatTrace(newNamer(nil), inputs, ops)
}

// CanonicalText renders a trace with every box renumbered, so two traces
// that differ only in box identity render identically.
func CanonicalText(inputs []*Box, ops []*ResOp) string {
	n := newNamer(nil)
	n.canonical = true
	return formatTrace(n, inputs, ops)
}

func formatTrace(n *namer, inputs []*Box, ops []*ResOp) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, b := range inputs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(n.name(b))
	}
	sb.WriteString("]\n")
	for _, op := range ops {
		sb.WriteString(n.formatOp(op))
		sb.WriteByte('\n')
	}
	return sb.String()
}
