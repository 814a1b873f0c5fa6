package backend

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/tracejit/internal/executor"
	"github.com/roach88/tracejit/internal/ir"
)

func boxKinds(boxes []*ir.Box) []ir.Kind {
	kinds := make([]ir.Kind, len(boxes))
	for i, b := range boxes {
		if b != nil {
			kinds[i] = b.Kind()
		}
	}
	return kinds
}

// CompileLoop validates and compiles a loop trace and returns the token
// that now designates it. A rejected trace leaves the code cache untouched
// and returns every structural violation joined into one error.
func (c *CPU) CompileLoop(inputs []*ir.Box, ops []*ir.ResOp) (*ir.LoopToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kinds := boxKinds(inputs)
	if errs := c.validateTrace(inputs, ops, kinds); len(errs) > 0 {
		slog.Debug("loop rejected", "ops", len(ops), "errors", len(errs))
		return nil, fmt.Errorf("compile loop: %w", errors.Join(errs...))
	}

	lowered, origin, st := c.rewrite(ops)
	number := c.nextLoop.Add(1)
	token := ir.NewLoopToken(number)
	loop := &compiledLoop{
		token:       token,
		number:      number,
		inputKinds:  kinds,
		fingerprint: ir.LoopFingerprint(inputs, ops),
	}
	entry := &compiledTrace{loop: loop, inputKinds: kinds, fingerprint: loop.fingerprint}
	loop.entry = entry
	c.assemble(entry, inputs, lowered, origin)

	loop.size = entry.size
	c.install(loop, entry)
	c.owned[token] = loop
	token.Publish(loop)

	c.totalLoops.Add(1)
	c.codeCacheSize.Add(entry.size)
	c.checkCacheBudget()

	slog.Debug("loop compiled",
		"loop", number,
		"ops", len(entry.code),
		"guards", len(entry.guards),
		"size", entry.size,
		"barriers", st.barriers,
	)
	c.emit(func(s EventSink) error {
		return s.UnitCompiled(UnitEvent{
			Loop:        number,
			Fingerprint: entry.fingerprint,
			Ops:         len(entry.code),
			Size:        entry.size,
			Barriers:    st.barriers,
			MergePoints: st.mergePoints,
		})
	}, "compile")
	return token, nil
}

// CompileBridge compiles a trace and attaches it to the guard identified by
// fail inside the loop compiled for token. From then on a failure of that
// guard continues in the bridge instead of exiting. inputs must match the
// guard's non-hole fail arguments in order and kind.
func (c *CPU) CompileBridge(fail ir.FailDescr, inputs []*ir.Box, ops []*ir.ResOp, token *ir.LoopToken) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	loop, ok := c.owned[token]
	if !ok || loop.freed.Load() {
		return &StructuralError{Code: ErrFreedToken, OpIndex: -1, Message: fmt.Sprintf("%s is not compiled or was freed", token.Repr())}
	}
	g, ok := c.guards[fail]
	if !ok || g.trace.loop != loop {
		name := "<nil>"
		if fail != nil {
			name = fail.Repr()
		}
		return &StructuralError{Code: ErrUnknownGuard, OpIndex: -1, Message: fmt.Sprintf("no guard %s in %s", name, token.Repr())}
	}
	if g.bridge.Load() != nil {
		return &StructuralError{Code: ErrGuardBridged, OpIndex: -1, Message: fmt.Sprintf("guard %s already has a bridge", fail.Repr())}
	}

	var errs []error
	want := g.liveKinds()
	got := boxKinds(inputs)
	if !equalKinds(want, got) {
		errs = append(errs, &StructuralError{
			Code:    ErrBridgeInputs,
			OpIndex: -1,
			Message: fmt.Sprintf("bridge inputs %s do not match guard fail arguments %s", kindString(got), kindString(want)),
		})
	}
	errs = append(errs, c.validateTrace(inputs, ops, loop.inputKinds)...)
	if len(errs) > 0 {
		slog.Debug("bridge rejected", "loop", loop.number, "guard", fail.Identifier(), "errors", len(errs))
		return fmt.Errorf("compile bridge: %w", errors.Join(errs...))
	}

	lowered, origin, st := c.rewrite(ops)
	br := &compiledTrace{
		loop:        loop,
		bridge:      true,
		origin:      g,
		inputKinds:  got,
		fingerprint: ir.BridgeFingerprint(inputs, ops),
	}
	c.assemble(br, inputs, lowered, origin)

	c.install(loop, br)
	loop.bridges = append(loop.bridges, br)
	loop.size += br.size
	g.bridge.Store(br)

	c.totalBridges.Add(1)
	c.codeCacheSize.Add(br.size)
	c.checkCacheBudget()

	slog.Debug("bridge compiled",
		"loop", loop.number,
		"guard", fail.Identifier(),
		"ops", len(br.code),
		"size", br.size,
		"barriers", st.barriers,
	)
	c.emit(func(s EventSink) error {
		return s.UnitCompiled(UnitEvent{
			Loop:        loop.number,
			Bridge:      true,
			Fingerprint: br.fingerprint,
			Ops:         len(br.code),
			Size:        br.size,
			Barriers:    st.barriers,
			MergePoints: st.mergePoints,
			Origin:      fail.Identifier(),
		})
	}, "compile")
	return nil
}

// install registers the guards of t in the CPU-wide guard table.
func (c *CPU) install(loop *compiledLoop, t *compiledTrace) {
	for _, g := range t.guards {
		c.guards[g.descr] = g
	}
	loop.guards = append(loop.guards, t.guards...)
}

func equalKinds(a, b []ir.Kind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func kindString(kinds []ir.Kind) string {
	b := make([]byte, len(kinds))
	for i, k := range kinds {
		b[i] = k.Char()
	}
	return "[" + string(b) + "]"
}

// assemble translates a validated, rewritten trace into executable code.
// Boxes are mapped to registers: inputs take registers 0..n-1 in order,
// each result takes the next free register.
func (c *CPU) assemble(t *compiledTrace, inputs []*ir.Box, ops []*ir.ResOp, origin []int) {
	regs := make(map[*ir.Box]int, len(inputs)+len(ops))
	for j, b := range inputs {
		regs[b] = j
	}
	next := len(inputs)

	code := make([]instr, len(ops))
	for k, op := range ops {
		in := &code[k]
		in.op = op.Opcode()
		in.index = origin[k]
		in.exec = handlers[in.op]
		in.res = -1
		in.args = make([]operand, op.NumArgs())
		for j, a := range op.Args() {
			in.args[j] = resolve(a, regs)
		}
		if op.IsGuard() {
			g := newGuardSite(op, t, origin[k], regs)
			in.guard = g
			t.guards = append(t.guards, g)
		}
		if r := op.Result(); r != nil {
			regs[r] = next
			in.res = next
			in.kind = r.Kind()
			next++
		}
		c.bind(in, op, t)
	}

	t.code = code
	t.nregs = next
	t.size = codeSize(code)
}

func resolve(a ir.Operand, regs map[*ir.Box]int) operand {
	switch v := a.(type) {
	case *ir.Box:
		return operand{reg: regs[v]}
	case ir.Const:
		return operand{reg: -1, val: v.Value()}
	}
	return operand{reg: -1}
}

// bind resolves the descriptor facts and operation semantics an instr
// needs at run time, so the handlers never consult descriptors.
func (c *CPU) bind(in *instr, op *ir.ResOp, t *compiledTrace) {
	if fn, ok := executor.IntBinary(in.op); ok {
		in.intBin = fn
	}
	if fn, ok := executor.IntUnary(in.op); ok {
		in.intUn = fn
	}
	if fn, ok := executor.IntOvf(in.op); ok {
		in.ovf = fn
	}
	if fn, ok := executor.FloatBinary(in.op); ok {
		in.fltBin = fn
	}
	if fn, ok := executor.FloatUnary(in.op); ok {
		in.fltUn = fn
	}
	if fn, ok := executor.FloatCompare(in.op); ok {
		in.fltCmp = fn
	}

	switch d := op.Descr().(type) {
	case ir.FieldDescr:
		in.offset = d.FieldOffset()
		in.size = d.FieldSize()
		in.signed = d.IsFieldSigned()
		in.vkind = d.FieldKind()
	case ir.ArrayDescr:
		in.size = d.ItemSize()
		in.signed = d.IsItemSigned()
		in.vkind = d.ItemKind()
	case ir.SizeDescr:
		in.size = d.StructSize()
	case ir.CallDescr:
		in.call = d
	case ir.WriteBarrierDescr:
		in.wbMask, in.wbOfs, in.wbFn = d.WriteBarrierTarget()
	case *ir.LoopToken:
		in.target = d
	}

	switch in.op {
	case ir.OpFinish:
		in.fail = op.FailDescr()
	case ir.OpJump:
		if in.target == nil {
			in.entry = t.loop.entry
		}
	case ir.OpNewWithVtable:
		in.class = classOf(c.heap, op.Arg(0))
	}
}
