package backend

import (
	"errors"
	"log/slog"

	"github.com/roach88/tracejit/internal/ir"
)

const forceBase = 0x4000_0000

// narrow truncates v to size bytes and extends it back to 64 bits.
func narrow(v int64, size int, signed bool) int64 {
	if size <= 0 || size >= 8 {
		return v
	}
	shift := uint(64 - 8*size)
	if signed {
		return v << shift >> shift
	}
	return int64(uint64(v) << shift >> shift)
}

func (f *frame) collect(args []operand) []ir.Value {
	vals := make([]ir.Value, len(args))
	for j, a := range args {
		vals[j] = f.get(a)
	}
	return vals
}

// suspend records that the frame is inside a call that may force it. The
// next instruction is the GUARD_NOT_FORCED that checks the outcome.
func (f *frame) suspend(in *instr) {
	f.pending = &f.code[f.pc]
	f.callRes = in.res
}

func (f *frame) resume() {
	f.pending = nil
	f.callRes = -1
}

func execCall(f *frame, in *instr) {
	addr := f.int(in.args[0])
	entry, ok := f.cpu.lookupFunc(addr)
	if !ok {
		panic(f.runtimeErr(ErrCodeBadFunction, "no function at %#x", addr))
	}
	args := f.collect(in.args[1:])

	if in.op == ir.OpCallMayForce {
		f.suspend(in)
	}
	v, err := entry.fn(args)
	if in.op == ir.OpCallMayForce {
		f.resume()
	}

	rk := in.call.ResultKind()
	if err != nil {
		var r *Raise
		if !errors.As(err, &r) {
			re := f.runtimeErr(ErrCodeForeignCall, "%s failed: %v", entry.name, err)
			re.Err = err
			panic(re)
		}
		f.raise(r.class(), r.Value)
		f.set(in, ir.Zero(rk))
		return
	}
	f.clearException()

	switch {
	case rk == ir.KindVoid:
		return
	case v.Kind == ir.KindVoid:
		v = ir.Zero(rk)
	case v.Kind != rk:
		panic(f.runtimeErr(ErrCodeForeignCall, "%s returned %s, declared %s", entry.name, v.Kind, rk))
	}
	if rk == ir.KindInt {
		v.Int = narrow(v.Int, in.call.ResultSize(), in.call.IsResultSigned())
	}
	f.set(in, v)
}

func execForceToken(f *frame, in *instr) {
	if f.forceToken == 0 {
		f.forceToken = forceBase + f.cpu.nextForce.Add(1)*16
		f.cpu.framesMu.Lock()
		f.cpu.frames[f.forceToken] = f
		f.cpu.framesMu.Unlock()
	}
	f.set(in, ir.IntValue(f.forceToken))
}

func (f *frame) unregister() {
	if f.forceToken == 0 {
		return
	}
	f.cpu.framesMu.Lock()
	delete(f.cpu.frames, f.forceToken)
	f.cpu.framesMu.Unlock()
}

// Force forces the frame identified by token, a FORCE_TOKEN result, while
// it is suspended in CALL_MAY_FORCE or CALL_ASSEMBLER. The fail arguments
// of the GUARD_NOT_FORCED after the call are captured, with the call's own
// result reading as zero, and become the latest values of the frame's
// engine. When the call returns, that guard fails and exits with a fresh
// snapshot that includes the result.
//
// Force must be called from the goroutine executing the frame, typically
// from inside the called function.
func (c *CPU) Force(token int64) (ir.FailDescr, error) {
	c.framesMu.Lock()
	f, ok := c.frames[token]
	c.framesMu.Unlock()

	switch {
	case !ok:
		return nil, newRuntimeError(ErrCodeForce, "no live frame for force token %#x", token)
	case f.pending == nil:
		return nil, newRuntimeError(ErrCodeForce, "frame %#x is not inside a call that may force", token)
	case f.forced:
		return nil, newRuntimeError(ErrCodeForce, "frame %#x is already forced", token)
	}

	g := f.pending.guard
	vals := make([]ir.Value, len(g.failRegs))
	for j, r := range g.failRegs {
		switch {
		case r < 0:
		case r == f.callRes:
			vals[j] = ir.Zero(g.failKinds[j])
		default:
			vals[j] = f.regs[r]
		}
	}
	df := &DeadFrame{
		descr:   g.descr,
		values:  vals,
		loop:    f.trace.loop.number,
		opIndex: f.pending.index,
		guard:   g,
	}
	f.forced = true
	f.engine.latest = df

	slog.Debug("frame forced", "loop", df.loop, "guard", g.descr.Identifier())
	return g.descr, nil
}

// execCallAssembler runs another compiled loop as a nested call. A callee
// exiting through a DoneWithThisFrame descriptor returns its value
// directly; any other exit goes through the assembler helper.
func execCallAssembler(f *frame, in *instr) {
	loop, ok := targetLoop(in.target)
	if !ok {
		panic(f.runtimeErr(ErrCodeFreedToken, "call to %s, which is not compiled or was freed", in.target.Repr()))
	}
	if f.depth+1 > f.cpu.maxCallDepth {
		panic(f.runtimeErr(ErrCodeCallDepth, "call_assembler nesting exceeds %d", f.cpu.maxCallDepth))
	}
	args := f.collect(in.args)

	f.suspend(in)
	df, err := f.engine.run(loop.entry, args, f.depth+1)
	f.resume()
	if err != nil {
		panic(err)
	}

	var result ir.Value
	if kind, done := f.cpu.doneKind(df.descr); done {
		if df.exc != nil {
			f.raise(df.exc.Class(), df.exc)
		} else {
			f.clearException()
		}
		if kind != ir.KindVoid {
			result = df.Value(0)
		}
	} else {
		helper := f.cpu.assemblerHelper
		if helper == nil {
			panic(f.runtimeErr(ErrCodeNoAssemblerHelper, "%s exited through %s", loop.token.Repr(), df.descr.Repr()))
		}
		v, herr := helper(df.descr, df)
		if herr != nil {
			var r *Raise
			if !errors.As(herr, &r) {
				re := f.runtimeErr(ErrCodeForeignCall, "assembler helper failed: %v", herr)
				re.Err = herr
				panic(re)
			}
			f.raise(r.class(), r.Value)
			f.set(in, ir.Zero(in.kind))
			return
		}
		f.clearException()
		result = v
	}

	if in.res < 0 {
		return
	}
	if result.Kind == ir.KindVoid {
		result = ir.Zero(in.kind)
	}
	if result.Kind != in.kind {
		panic(f.runtimeErr(ErrCodeBadInput, "call_assembler result is %s, expected %s", result.Kind, in.kind))
	}
	f.set(in, result)
}
