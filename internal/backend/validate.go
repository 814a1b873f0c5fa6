package backend

import (
	"fmt"

	"github.com/roach88/tracejit/internal/heap"
	"github.com/roach88/tracejit/internal/ir"
)

// validator checks a trace against the opcode table and the structural
// rules of a trace. It collects every violation and does not stop at the
// first one.
type validator struct {
	cpu       *CPU
	inputs    []*ir.Box
	ops       []*ir.ResOp
	selfKinds []ir.Kind
	defined   map[*ir.Box]bool
	failSeen  map[ir.FailDescr]int
	errs      []error
}

// validateTrace checks inputs and ops. selfKinds is the input signature a
// JUMP without a target must match. Must be called with cpu.mu held.
func (c *CPU) validateTrace(inputs []*ir.Box, ops []*ir.ResOp, selfKinds []ir.Kind) []error {
	v := &validator{
		cpu:       c,
		inputs:    inputs,
		ops:       ops,
		selfKinds: selfKinds,
		defined:   make(map[*ir.Box]bool, len(inputs)+len(ops)),
		failSeen:  make(map[ir.FailDescr]int),
	}
	v.run()
	return v.errs
}

func (v *validator) traceErr(code, format string, args ...any) {
	v.errs = append(v.errs, &StructuralError{Code: code, OpIndex: -1, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) opErr(i int, code, format string, args ...any) {
	v.errs = append(v.errs, &StructuralError{
		Code:    code,
		OpIndex: i,
		Op:      v.ops[i].Opcode().String(),
		Message: fmt.Sprintf(format, args...),
	})
}

func (v *validator) run() {
	for j, b := range v.inputs {
		switch {
		case b == nil:
			v.traceErr(ErrUndefinedBox, "input %d is nil", j)
			continue
		case b.Kind() == ir.KindVoid:
			v.traceErr(ErrVoidBox, "input %d has kind void", j)
		case v.defined[b]:
			v.traceErr(ErrDuplicateInput, "input %d is listed twice", j)
		}
		v.defined[b] = true
	}

	if len(v.ops) == 0 {
		v.traceErr(ErrEmptyTrace, "trace has no operations")
		return
	}
	for i, op := range v.ops {
		if op == nil {
			v.errs = append(v.errs, &StructuralError{Code: ErrInvalidOpcode, OpIndex: i, Message: "nil operation"})
			continue
		}
		v.checkOp(i, op)
	}
	if last := v.ops[len(v.ops)-1]; last != nil && !last.Opcode().IsFinal() {
		v.traceErr(ErrNotTerminated, "trace ends with %s, not jump or finish", last.Opcode())
	}
}

func (v *validator) checkOp(i int, op *ir.ResOp) {
	code := op.Opcode()
	if !code.Valid() {
		v.opErr(i, ErrInvalidOpcode, "opcode %d is not in the operation set", uint8(code))
		return
	}
	info := code.Info()

	if info.Has(ir.FlagFinal) && i != len(v.ops)-1 {
		v.opErr(i, ErrFinalNotLast, "%s must be the last operation", code)
	}

	v.checkArgs(i, op, info)
	v.checkDescr(i, op, info)
	v.checkPairing(i, op, info)

	if info.Has(ir.FlagGuard) {
		v.checkFailArgs(i, op)
	}

	switch code {
	case ir.OpJump:
		v.checkJump(i, op)
	case ir.OpCallAssembler:
		v.checkCallAssembler(i, op)
	case ir.OpNewWithVtable, ir.OpGuardClass, ir.OpGuardNonnullClass:
		v.checkClassOperand(i, op)
	}

	v.checkResult(i, op, info)
}

func (v *validator) checkArgs(i int, op *ir.ResOp, info *ir.OpInfo) {
	n := op.NumArgs()
	if n < len(info.Args) || (!info.Variadic() && n != len(info.Args)) {
		want := fmt.Sprintf("%d", len(info.Args))
		if info.Variadic() {
			want = "at least " + want
		}
		v.opErr(i, ErrArity, "expected %s operands, got %d", want, n)
		return
	}
	for j, a := range op.Args() {
		if a == nil {
			v.opErr(i, ErrUndefinedBox, "operand %d is nil", j)
			continue
		}
		if b, ok := a.(*ir.Box); ok {
			if !v.defined[b] {
				v.opErr(i, ErrUndefinedBox, "operand %d is used before it is produced", j)
			}
			if b.Kind() == ir.KindVoid {
				v.opErr(i, ErrVoidBox, "operand %d has kind void", j)
			}
		}
		spec := info.VarArgs
		if j < len(info.Args) {
			spec = info.Args[j]
		}
		switch spec {
		case ir.ArgSameKind:
			if first := op.Arg(0); first != nil && a.Kind() != first.Kind() {
				v.opErr(i, ErrOperandKind, "operand %d is %s, operand 0 is %s", j, a.Kind(), first.Kind())
			}
		default:
			if want, ok := spec.Kind(); ok && a.Kind() != want {
				v.opErr(i, ErrOperandKind, "operand %d must be %s, got %s", j, want, a.Kind())
			}
		}
	}
}

// expectedResult returns the result kind op must produce, or KindVoid when
// it produces none. anyKind is true when any kind is accepted.
func expectedResult(op *ir.ResOp, info *ir.OpInfo) (kind ir.Kind, anyKind bool) {
	switch info.Result {
	case ir.ResultInt:
		return ir.KindInt, false
	case ir.ResultRef:
		return ir.KindRef, false
	case ir.ResultFloat:
		return ir.KindFloat, false
	case ir.ResultSameAsArg:
		if op.NumArgs() > 0 && op.Arg(0) != nil {
			return op.Arg(0).Kind(), false
		}
		return ir.KindVoid, false
	case ir.ResultAny:
		return ir.KindVoid, true
	case ir.ResultFromDescr:
		switch d := op.Descr().(type) {
		case ir.FieldDescr:
			return d.FieldKind(), false
		case ir.ArrayDescr:
			return d.ItemKind(), false
		case ir.CallDescr:
			return d.ResultKind(), false
		}
	}
	return ir.KindVoid, false
}

func (v *validator) checkResult(i int, op *ir.ResOp, info *ir.OpInfo) {
	res := op.Result()
	want, anyKind := expectedResult(op, info)
	optional := info.Has(ir.FlagCall) || info.Has(ir.FlagGuard)

	switch {
	case res == nil:
		if want != ir.KindVoid && !optional {
			v.opErr(i, ErrResult, "missing %s result", want)
		}
		return
	case anyKind:
		if res.Kind() == ir.KindVoid {
			v.opErr(i, ErrVoidBox, "result has kind void")
		}
	case want == ir.KindVoid:
		v.opErr(i, ErrResult, "%s produces no result", op.Opcode())
	case res.Kind() != want:
		v.opErr(i, ErrResult, "result must be %s, got %s", want, res.Kind())
	}
	if v.defined[res] {
		v.opErr(i, ErrRedefinedBox, "result box is already defined")
	}
	v.defined[res] = true
}

func (v *validator) checkDescr(i int, op *ir.ResOp, info *ir.OpInfo) {
	d := op.Descr()
	missing := func(what string) {
		if d == nil {
			v.opErr(i, ErrDescr, "requires a %s descriptor", what)
		} else {
			v.opErr(i, ErrDescr, "descriptor %s is not a %s descriptor", d.Repr(), what)
		}
	}
	switch info.Descr {
	case ir.DescrNone:
		if d != nil {
			v.opErr(i, ErrDescr, "takes no descriptor, got %s", d.Repr())
		}
	case ir.DescrOptional:
	case ir.DescrField:
		fd, ok := d.(ir.FieldDescr)
		if !ok {
			missing("field")
			return
		}
		v.checkStored(i, op, fd.FieldKind())
		raw := op.Opcode() == ir.OpGetfieldRaw || op.Opcode() == ir.OpSetfieldRaw
		if raw && fd.IsPointerField() {
			v.opErr(i, ErrRawPointer, "raw memory cannot hold the pointer field %s", fd.Repr())
		}
	case ir.DescrArray:
		ad, ok := d.(ir.ArrayDescr)
		if !ok {
			missing("array")
			return
		}
		v.checkStored(i, op, ad.ItemKind())
		raw := op.Opcode() == ir.OpGetarrayitemRaw || op.Opcode() == ir.OpSetarrayitemRaw
		if raw && ad.IsArrayOfPointers() {
			v.opErr(i, ErrRawPointer, "raw memory cannot hold pointer items")
		}
	case ir.DescrSize:
		if _, ok := d.(ir.SizeDescr); !ok {
			missing("size")
		}
	case ir.DescrCall:
		cd, ok := d.(ir.CallDescr)
		if !ok {
			missing("call")
			return
		}
		v.checkCallArgs(i, op, cd)
	case ir.DescrFail:
		fd, ok := d.(ir.FailDescr)
		if !ok {
			missing("fail")
			return
		}
		if op.IsGuard() {
			v.checkFailDescrUnique(i, fd)
		}
	case ir.DescrWriteBarrier:
		if _, ok := d.(ir.WriteBarrierDescr); !ok {
			missing("write barrier")
		}
	case ir.DescrLoopToken:
		if _, ok := d.(*ir.LoopToken); !ok {
			missing("loop token")
		}
	case ir.DescrJumpTarget:
		if d == nil {
			return
		}
		if _, ok := d.(*ir.LoopToken); !ok {
			missing("loop token")
		}
	}
}

// checkStored checks the stored operand of SETFIELD/SETARRAYITEM against
// the descriptor's kind.
func (v *validator) checkStored(i int, op *ir.ResOp, kind ir.Kind) {
	var pos int
	switch op.Opcode() {
	case ir.OpSetfieldGC, ir.OpSetfieldRaw:
		pos = 1
	case ir.OpSetarrayitemGC, ir.OpSetarrayitemRaw:
		pos = 2
	default:
		return
	}
	if pos >= op.NumArgs() || op.Arg(pos) == nil {
		return
	}
	if got := op.Arg(pos).Kind(); got != kind {
		v.opErr(i, ErrOperandKind, "stored value must be %s, got %s", kind, got)
	}
}

func (v *validator) checkCallArgs(i int, op *ir.ResOp, cd ir.CallDescr) {
	want := cd.ArgKinds()
	args := op.Args()
	if len(args) == 0 {
		return
	}
	args = args[1:]
	if len(args) != len(want) {
		v.opErr(i, ErrCallSignature, "%s takes %d arguments, got %d", cd.Repr(), len(want), len(args))
		return
	}
	for j, a := range args {
		if a != nil && a.Kind() != want[j] {
			v.opErr(i, ErrCallSignature, "argument %d must be %s, got %s", j, want[j], a.Kind())
		}
	}
}

func (v *validator) checkFailDescrUnique(i int, fd ir.FailDescr) {
	if prev, ok := v.failSeen[fd]; ok {
		v.opErr(i, ErrDuplicateFailDescr, "descriptor %s is already used by op %d", fd.Repr(), prev)
		return
	}
	v.failSeen[fd] = i
	if _, live := v.cpu.guards[fd]; live {
		v.opErr(i, ErrDuplicateFailDescr, "descriptor %s already belongs to a compiled guard", fd.Repr())
	}
	if _, done := v.cpu.doneKind(fd); done {
		v.opErr(i, ErrDuplicateFailDescr, "descriptor %s is reserved for FINISH", fd.Repr())
	}
}

func (v *validator) checkFailArgs(i int, op *ir.ResOp) {
	if !op.HasFailArgs() {
		v.opErr(i, ErrFailArgs, "guard has no fail arguments")
		return
	}
	for j, b := range op.FailArgs() {
		if b == nil {
			continue
		}
		if !v.defined[b] {
			v.opErr(i, ErrFailArgs, "fail argument %d is not defined here", j)
		}
	}
}

func (v *validator) prev(i int) *ir.ResOp {
	if i == 0 {
		return nil
	}
	return v.ops[i-1]
}

func (v *validator) next(i int) *ir.ResOp {
	if i+1 >= len(v.ops) {
		return nil
	}
	return v.ops[i+1]
}

func has(op *ir.ResOp, f ir.OpFlags) bool {
	return op != nil && op.Opcode().Info().Has(f)
}

func (v *validator) checkPairing(i int, op *ir.ResOp, info *ir.OpInfo) {
	if info.Has(ir.FlagOvf) && !has(v.next(i), ir.FlagOvfGuard) {
		v.opErr(i, ErrOvfPairing, "must be followed by guard_no_overflow or guard_overflow")
	}
	if info.Has(ir.FlagOvfGuard) && !has(v.prev(i), ir.FlagOvf) {
		v.opErr(i, ErrOvfGuardPlacement, "must directly follow an overflow-checked operation")
	}
	if info.Has(ir.FlagMayForce) {
		if n := v.next(i); n == nil || n.Opcode() != ir.OpGuardNotForced {
			v.opErr(i, ErrForcePairing, "must be followed by guard_not_forced")
		}
	}
	if op.Opcode() == ir.OpGuardNotForced && !has(v.prev(i), ir.FlagMayForce) {
		v.opErr(i, ErrNotForcedPlacement, "must directly follow call_may_force or call_assembler")
	}
	if info.Has(ir.FlagExcGuard) {
		p := v.prev(i)
		if !has(p, ir.FlagCall) && (p == nil || p.Opcode() != ir.OpGuardNotForced) {
			v.opErr(i, ErrExcGuardPlacement, "must directly follow a call or its guard_not_forced")
		}
	}
}

// targetLoop resolves a live compiled loop behind token.
func targetLoop(token *ir.LoopToken) (*compiledLoop, bool) {
	l, ok := token.Unit().(*compiledLoop)
	if !ok || l == nil || l.freed.Load() {
		return nil, false
	}
	return l, true
}

func (v *validator) checkJump(i int, op *ir.ResOp) {
	kinds := v.selfKinds
	if tok, ok := op.Descr().(*ir.LoopToken); ok {
		l, live := targetLoop(tok)
		if !live {
			v.opErr(i, ErrJumpTarget, "target %s is not compiled or was freed", tok.Repr())
			return
		}
		kinds = l.inputKinds
	}
	v.checkSignature(i, op.Args(), kinds, ErrJumpSignature)
}

func (v *validator) checkCallAssembler(i int, op *ir.ResOp) {
	tok, ok := op.Descr().(*ir.LoopToken)
	if !ok {
		return
	}
	l, live := targetLoop(tok)
	if !live {
		v.opErr(i, ErrJumpTarget, "target %s is not compiled or was freed", tok.Repr())
		return
	}
	v.checkSignature(i, op.Args(), l.inputKinds, ErrCallSignature)
}

func (v *validator) checkSignature(i int, args []ir.Operand, kinds []ir.Kind, code string) {
	if len(args) != len(kinds) {
		v.opErr(i, code, "target takes %d values, got %d", len(kinds), len(args))
		return
	}
	for j, a := range args {
		if a != nil && a.Kind() != kinds[j] {
			v.opErr(i, code, "value %d must be %s, got %s", j, kinds[j], a.Kind())
		}
	}
}

func (v *validator) checkClassOperand(i int, op *ir.ResOp) {
	pos := 1
	if op.Opcode() == ir.OpNewWithVtable {
		pos = 0
	}
	if pos >= op.NumArgs() {
		return
	}
	c, ok := op.Arg(pos).(ir.Const)
	if !ok {
		if op.Opcode() == ir.OpNewWithVtable {
			v.opErr(i, ErrConstClassRequired, "class operand must be a literal")
		}
		return
	}
	if c.Kind() != ir.KindInt {
		return
	}
	if _, known := v.cpu.heap.ClassAt(c.Value().Int); !known {
		v.opErr(i, ErrUnknownClass, "no class at vtable %#x", c.Value().Int)
	}
}

// classOf resolves a class literal. Validation has already ensured it
// exists for NEW_WITH_VTABLE.
func classOf(h *heap.Heap, o ir.Operand) *heap.Class {
	c, ok := o.(ir.Const)
	if !ok {
		return nil
	}
	cls, _ := h.ClassAt(c.Value().Int)
	return cls
}
