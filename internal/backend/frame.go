package backend

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/roach88/tracejit/internal/executor"
	"github.com/roach88/tracejit/internal/heap"
	"github.com/roach88/tracejit/internal/ir"
)

// operand is a resolved instruction operand: a register, or a literal
// when reg is negative.
type operand struct {
	reg int
	val ir.Value
}

type handler func(f *frame, in *instr)

// instr is one assembled operation. Descriptor facts are resolved at
// assembly time; handlers read only the fields their opcode needs.
type instr struct {
	exec  handler
	op    ir.Opcode
	index int
	args  []operand
	res   int
	kind  ir.Kind

	offset int
	size   int
	signed bool
	vkind  ir.Kind
	class  *heap.Class
	call   ir.CallDescr

	wbMask byte
	wbOfs  int
	wbFn   ir.WriteBarrierFunc

	guard  *guardSite
	fail   ir.FailDescr
	target *ir.LoopToken
	entry  *compiledTrace

	intBin func(a, b int64) int64
	intUn  func(a int64) int64
	ovf    func(a, b int64) (int64, bool)
	fltBin func(a, b float64) float64
	fltUn  func(a float64) float64
	fltCmp func(a, b float64) bool
}

// frame is the activation of one ExecuteToken or call_assembler. It is
// owned by a single goroutine.
type frame struct {
	engine *Engine
	cpu    *CPU
	depth  int

	trace *compiledTrace
	code  []instr
	pc    int
	cur   *instr

	regs    []ir.Value
	scratch []ir.Value

	overflow bool
	excClass *heap.Class
	excValue heap.Ref

	exit *DeadFrame

	// force protocol state
	forceToken int64
	forced     bool
	pending    *instr
	callRes    int
}

// enter transfers control to the start of t with vals as its inputs.
func (f *frame) enter(t *compiledTrace, vals []ir.Value) {
	if cap(f.regs) < t.nregs {
		f.regs = make([]ir.Value, t.nregs)
	} else {
		f.regs = f.regs[:t.nregs]
	}
	copy(f.regs, vals)
	f.trace = t
	f.code = t.code
	f.pc = 0
}

func (f *frame) get(o operand) ir.Value {
	if o.reg < 0 {
		return o.val
	}
	return f.regs[o.reg]
}

func (f *frame) int(o operand) int64 {
	if o.reg < 0 {
		return o.val.Int
	}
	return f.regs[o.reg].Int
}

func (f *frame) float(o operand) float64 {
	if o.reg < 0 {
		return o.val.Float
	}
	return f.regs[o.reg].Float
}

func (f *frame) ref(o operand) heap.Ref {
	if o.reg < 0 {
		return o.val.Ref
	}
	return f.regs[o.reg].Ref
}

func (f *frame) set(in *instr, v ir.Value) {
	if in.res >= 0 {
		f.regs[in.res] = v
	}
}

// gather collects the values of args into the scratch buffer.
func (f *frame) gather(args []operand) []ir.Value {
	f.scratch = f.scratch[:0]
	for _, a := range args {
		f.scratch = append(f.scratch, f.get(a))
	}
	return f.scratch
}

func (f *frame) snapshot(g *guardSite) []ir.Value {
	vals := make([]ir.Value, len(g.failRegs))
	for j, r := range g.failRegs {
		if r >= 0 {
			vals[j] = f.regs[r]
		}
	}
	return vals
}

// fail handles a failing guard: it continues in the attached bridge, or
// exits with the guard's fail arguments.
func (f *frame) fail(in *instr) {
	g := in.guard
	g.failures.Add(1)
	if br := g.bridge.Load(); br != nil {
		f.scratch = f.scratch[:0]
		for _, r := range g.failRegs {
			if r >= 0 {
				f.scratch = append(f.scratch, f.regs[r])
			}
		}
		f.enter(br, f.scratch)
		return
	}
	f.leave(in, g.descr, f.snapshot(g))
}

func (f *frame) leave(in *instr, descr ir.FailDescr, vals []ir.Value) {
	f.exit = &DeadFrame{
		descr:   descr,
		values:  vals,
		exc:     f.excValue,
		loop:    f.trace.loop.number,
		opIndex: in.index,
		guard:   in.guard,
	}
}

func (f *frame) raise(cls *heap.Class, v heap.Ref) {
	f.excClass = cls
	f.excValue = v
}

func (f *frame) clearException() {
	f.excClass = nil
	f.excValue = nil
}

func (f *frame) runtimeErr(code RuntimeErrorCode, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Loop:    f.trace.loop.number,
		OpIndex: f.cur.index,
	}
}

// recovered converts a panic raised by a handler into an error. Panics
// that are not execution faults are re-raised.
func (f *frame) recovered(r any) error {
	loop, index := int64(0), -1
	if f.trace != nil {
		loop = f.trace.loop.number
	}
	if f.cur != nil {
		index = f.cur.index
	}

	err, ok := r.(error)
	if !ok {
		panic(r)
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		if re.Loop == 0 {
			re.Loop, re.OpIndex = loop, index
		}
		return re
	}
	var hf *heap.Fault
	if errors.As(err, &hf) {
		return &RuntimeError{Code: ErrCodeMemoryFault, Message: hf.Message, Loop: loop, OpIndex: index, Err: hf}
	}
	var ef *executor.Fault
	if errors.As(err, &ef) && ef.Code == executor.FaultZeroDivision {
		return &RuntimeError{Code: ErrCodeZeroDivision, Message: ef.Message, Loop: loop, OpIndex: index, Err: ef}
	}
	var rte runtime.Error
	if errors.As(err, &rte) {
		return &RuntimeError{Code: ErrCodeInternal, Message: rte.Error(), Loop: loop, OpIndex: index, Err: rte}
	}
	panic(r)
}
