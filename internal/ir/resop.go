package ir

import (
	"errors"
	"fmt"
)

// ErrFailArgsSet is returned when a guard's fail arguments are set twice.
var ErrFailArgsSet = errors.New("fail arguments already set")

// ResOp is one operation of a trace.
type ResOp struct {
	opcode   Opcode
	args     []Operand
	result   *Box
	descr    Descr
	failArgs []*Box
	failSet  bool
}

// NewOp builds an operation. result and descr may be nil.
func NewOp(opcode Opcode, args []Operand, result *Box, descr Descr) *ResOp {
	cp := make([]Operand, len(args))
	copy(cp, args)
	return &ResOp{opcode: opcode, args: cp, result: result, descr: descr}
}

// NewGuard builds a guard and sets its fail arguments. A nil entry in
// failArgs is a hole.
func NewGuard(opcode Opcode, args []Operand, descr FailDescr, failArgs ...*Box) *ResOp {
	op := NewOp(opcode, args, nil, descr)
	op.failArgs = append([]*Box{}, failArgs...)
	op.failSet = true
	return op
}

// Opcode returns the opcode.
func (op *ResOp) Opcode() Opcode { return op.opcode }

// Args returns the operands. The slice must not be modified.
func (op *ResOp) Args() []Operand { return op.args }

// Arg returns operand i.
func (op *ResOp) Arg(i int) Operand { return op.args[i] }

// NumArgs returns the operand count.
func (op *ResOp) NumArgs() int { return len(op.args) }

// Result returns the result box, or nil.
func (op *ResOp) Result() *Box { return op.result }

// Descr returns the descriptor, or nil.
func (op *ResOp) Descr() Descr { return op.descr }

// FailDescr returns the descriptor as a FailDescr, or nil.
func (op *ResOp) FailDescr() FailDescr {
	fd, _ := op.descr.(FailDescr)
	return fd
}

// IsGuard reports whether the operation is a guard.
func (op *ResOp) IsGuard() bool { return op.opcode.IsGuard() }

// FailArgs returns the fail-argument list; nil entries are holes.
func (op *ResOp) FailArgs() []*Box { return op.failArgs }

// HasFailArgs reports whether SetFailArgs has been called.
func (op *ResOp) HasFailArgs() bool { return op.failSet }

// SetFailArgs sets the fail-argument list of a guard. It may be called
// once.
func (op *ResOp) SetFailArgs(boxes ...*Box) error {
	if !op.opcode.IsGuard() {
		return fmt.Errorf("%s: fail arguments on a non-guard", op.opcode)
	}
	if op.failSet {
		return fmt.Errorf("%s: %w", op.opcode, ErrFailArgsSet)
	}
	op.failArgs = append([]*Box{}, boxes...)
	op.failSet = true
	return nil
}

// WithDescr returns a copy of op carrying a different descriptor. Fail
// arguments are shared with the original.
func (op *ResOp) WithDescr(d Descr) *ResOp {
	cp := *op
	cp.descr = d
	return &cp
}

// String formats op on its own, naming boxes by their display names.
func (op *ResOp) String() string {
	n := newNamer(nil)
	return n.formatOp(op)
}
