package tracetext

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/tracejit/internal/ir"
)

// ParseError reports malformed trace text.
type ParseError struct {
	Line    int
	Message string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Trace is a parsed trace.
type Trace struct {
	Inputs []*ir.Box
	Ops    []*ir.ResOp
	// Boxes maps every box name in the text to its box.
	Boxes map[string]*ir.Box
}

// Text renders the trace back to trace text.
func (t *Trace) Text() string {
	return ir.FormatTrace(t.Inputs, t.Ops)
}

type parser struct {
	ns    *Namespace
	boxes map[string]*ir.Box
	line  int
}

// Parse reads a trace. ns may be nil when the text names no descriptors,
// pointers or classes. Parse checks syntax and name resolution only;
// structural checks happen when the trace is compiled.
func Parse(src string, ns *Namespace) (*Trace, error) {
	if ns == nil {
		ns = NewNamespace()
	}
	p := &parser{ns: ns, boxes: make(map[string]*ir.Box)}
	t := &Trace{Boxes: p.boxes}

	seenInputs := false
	for i, raw := range strings.Split(src, "\n") {
		p.line = i + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !seenInputs && len(t.Ops) == 0 && strings.HasPrefix(line, "[") {
			inputs, err := p.inputs(line)
			if err != nil {
				return nil, err
			}
			t.Inputs = inputs
			seenInputs = true
			continue
		}
		op, err := p.op(line)
		if err != nil {
			return nil, err
		}
		t.Ops = append(t.Ops, op)
	}
	return t, nil
}

// MustParse is like Parse but panics on error. For tests and fixed
// programs.
func MustParse(src string, ns *Namespace) *Trace {
	t, err := Parse(src, ns)
	if err != nil {
		panic(err)
	}
	return t
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.line, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) inputs(line string) ([]*ir.Box, error) {
	inner, ok := bracketed(line)
	if !ok {
		return nil, p.errorf("unterminated input list")
	}
	var out []*ir.Box
	for _, name := range splitTop(inner) {
		b, err := p.define(name)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// define returns the box called name, creating it if needed.
func (p *parser) define(name string) (*ir.Box, error) {
	if b, ok := p.boxes[name]; ok {
		return b, nil
	}
	kind, ok := kindOf(name)
	if !ok {
		return nil, p.errorf("box name %q must start with i, p or f", name)
	}
	b := ir.NewNamedBox(kind, name)
	p.boxes[name] = b
	return b, nil
}

func kindOf(name string) (ir.Kind, bool) {
	if len(name) < 2 {
		return ir.KindVoid, false
	}
	for _, r := range name[1:] {
		if r != '_' && (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return ir.KindVoid, false
		}
	}
	switch name[0] {
	case 'i':
		return ir.KindInt, true
	case 'p':
		return ir.KindRef, true
	case 'f':
		return ir.KindFloat, true
	}
	return ir.KindVoid, false
}

func (p *parser) op(line string) (*ir.ResOp, error) {
	open := strings.IndexByte(line, '(')
	if open < 0 {
		return nil, p.errorf("expected an operation, got %q", line)
	}
	closing := matchParen(line, open)
	if closing < 0 {
		return nil, p.errorf("unbalanced parentheses")
	}

	head := line[:open]
	var resName string
	if eq := strings.IndexByte(head, '='); eq >= 0 {
		resName = strings.TrimSpace(head[:eq])
		head = head[eq+1:]
	}
	name := strings.TrimSpace(head)
	opcode, ok := ir.OpcodeByName(name)
	if !ok {
		return nil, p.errorf("unknown operation %q", name)
	}

	var args []ir.Operand
	descrName, hasDescr := "", false
	for _, tok := range splitTop(line[open+1 : closing]) {
		if rest, isDescr := strings.CutPrefix(tok, "descr="); isDescr {
			descrName, hasDescr = strings.TrimSpace(rest), true
			continue
		}
		a, err := p.operand(tok)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}

	descr, err := p.descr(opcode, descrName, hasDescr)
	if err != nil {
		return nil, err
	}

	var res *ir.Box
	if resName != "" {
		if res, err = p.define(resName); err != nil {
			return nil, err
		}
	}
	op := ir.NewOp(opcode, args, res, descr)

	tail := strings.TrimSpace(line[closing+1:])
	if tail == "" {
		return op, nil
	}
	inner, ok := bracketed(tail)
	if !ok {
		return nil, p.errorf("unexpected %q after %s", tail, name)
	}
	if !opcode.IsGuard() {
		return nil, p.errorf("%s takes no fail arguments", name)
	}
	var fail []*ir.Box
	for _, tok := range splitTop(inner) {
		if tok == "_" {
			fail = append(fail, nil)
			continue
		}
		b, ok := p.boxes[tok]
		if !ok {
			return nil, p.errorf("undefined box %s in fail arguments", tok)
		}
		fail = append(fail, b)
	}
	if err := op.SetFailArgs(fail...); err != nil {
		return nil, p.errorf("%v", err)
	}
	return op, nil
}

func (p *parser) descr(opcode ir.Opcode, name string, named bool) (ir.Descr, error) {
	exit := opcode.IsGuard() || opcode == ir.OpFinish
	switch {
	case exit && !named:
		return p.ns.anonymous(), nil
	case exit:
		fd, ok := p.ns.failDescr(name)
		if !ok {
			return nil, p.errorf("descriptor %s is not a fail descriptor", name)
		}
		return fd, nil
	case !named:
		return nil, nil
	}
	d, ok := p.ns.Descrs[name]
	if !ok {
		return nil, p.errorf("unknown descriptor %s", name)
	}
	return d, nil
}

func (p *parser) operand(tok string) (ir.Operand, error) {
	switch tok {
	case "":
		return nil, p.errorf("empty operand")
	case "null":
		return ir.ConstNull(), nil
	case "inf", "+inf":
		return ir.ConstFloat(math.Inf(1)), nil
	case "-inf":
		return ir.ConstFloat(math.Inf(-1)), nil
	case "nan":
		return ir.ConstFloat(math.NaN()), nil
	}

	if ctor, arg, ok := call(tok); ok {
		return p.constructor(ctor, arg)
	}
	if c := tok[0]; c == '-' || c == '+' || (c >= '0' && c <= '9') {
		return p.number(tok)
	}
	b, ok := p.boxes[tok]
	if !ok {
		return nil, p.errorf("undefined box %s", tok)
	}
	return b, nil
}

func (p *parser) constructor(ctor, arg string) (ir.Operand, error) {
	switch ctor {
	case "ConstInt":
		if v, ok := p.ns.Ints[arg]; ok {
			return ir.ConstInt(v), nil
		}
		v, err := strconv.ParseInt(arg, 0, 64)
		if err != nil {
			return nil, p.errorf("unknown integer constant %s", arg)
		}
		return ir.ConstInt(v), nil
	case "ConstFloat":
		k, err := p.operand(arg)
		if err != nil {
			return nil, err
		}
		c, ok := k.(ir.Const)
		if !ok {
			return nil, p.errorf("bad float constant %s", arg)
		}
		if c.Kind() == ir.KindInt {
			return ir.ConstFloat(float64(c.Value().Int)), nil
		}
		return c, nil
	case "ConstPtr":
		r, ok := p.ns.Ptrs[arg]
		if !ok {
			return nil, p.errorf("unknown pointer %s", arg)
		}
		return ir.ConstPtr(r), nil
	case "ConstClass":
		cls, ok := p.ns.Classes[arg]
		if !ok {
			return nil, p.errorf("unknown class %s", arg)
		}
		return ir.ConstInt(cls.Addr), nil
	}
	return nil, p.errorf("unknown constant form %s(...)", ctor)
}

func (p *parser) number(tok string) (ir.Operand, error) {
	digits := strings.TrimLeft(tok, "+-")
	isHex := strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X")
	if !isHex && strings.ContainsAny(digits, ".eE") {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, p.errorf("bad float %s", tok)
		}
		return ir.ConstFloat(f), nil
	}
	i, err := strconv.ParseInt(tok, 0, 64)
	if err != nil {
		return nil, p.errorf("bad integer %s", tok)
	}
	return ir.ConstInt(i), nil
}

// call splits "Name(arg)" into its parts.
func call(tok string) (string, string, bool) {
	open := strings.IndexByte(tok, '(')
	if open <= 0 || !strings.HasSuffix(tok, ")") {
		return "", "", false
	}
	return tok[:open], strings.TrimSpace(tok[open+1 : len(tok)-1]), true
}

func bracketed(s string) (string, bool) {
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return "", false
	}
	return s[1 : len(s)-1], true
}

func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTop splits s on commas outside parentheses and trims each part.
// An empty or all-space s yields no parts.
func splitTop(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}
