package backend

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/tracejit/internal/ir"
)

// Code size model, in bytes. Deterministic so that cache accounting is
// reproducible across runs.
const (
	sizeHeader     = 64
	sizePerInstr   = 16
	sizePerOperand = 8
	sizePerFailArg = 4
)

// compiledLoop is the unit a LoopToken publishes: the loop trace plus
// every bridge attached to its guards.
type compiledLoop struct {
	token       *ir.LoopToken
	number      int64
	inputKinds  []ir.Kind
	entry       *compiledTrace
	bridges     []*compiledTrace
	guards      []*guardSite
	size        int64
	freed       atomic.Bool
	fingerprint string
}

// InputKinds returns the loop's input signature.
func (l *compiledLoop) InputKinds() []ir.Kind { return l.inputKinds }

// compiledTrace is one assembled trace, loop or bridge.
type compiledTrace struct {
	loop        *compiledLoop
	bridge      bool
	origin      *guardSite
	inputKinds  []ir.Kind
	nregs       int
	code        []instr
	guards      []*guardSite
	size        int64
	fingerprint string
}

func codeSize(code []instr) int64 {
	n := int64(sizeHeader)
	for i := range code {
		in := &code[i]
		n += sizePerInstr + int64(len(in.args))*sizePerOperand
		if in.guard != nil {
			n += int64(len(in.guard.failRegs)) * sizePerFailArg
		}
	}
	return n
}

func (c *CPU) checkCacheBudget() {
	if c.codeCacheLimit > 0 && c.codeCacheSize.Load() > c.codeCacheLimit {
		slog.Warn("code cache over budget", "size", c.codeCacheSize.Load(), "limit", c.codeCacheLimit)
	}
}

// FreeLoopAndBridges releases the loop compiled for token and all its
// bridges. The caller guarantees no live compiled unit still jumps to or
// calls into it. Executing the token afterwards is an error.
func (c *CPU) FreeLoopAndBridges(token *ir.LoopToken) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	loop, ok := c.owned[token]
	if !ok {
		return &StructuralError{Code: ErrFreedToken, OpIndex: -1, Message: fmt.Sprintf("%s is not compiled or already freed", token.Repr())}
	}
	loop.freed.Store(true)
	delete(c.owned, token)
	for _, g := range loop.guards {
		if c.guards[g.descr] == g {
			delete(c.guards, g.descr)
		}
	}
	if token.Unit() == ir.CompiledUnit(loop) {
		token.Retire()
	}

	c.codeCacheSize.Add(-loop.size)
	c.freedLoops.Add(1)
	c.freedBridges.Add(int64(len(loop.bridges)))

	slog.Debug("loop freed", "loop", loop.number, "bridges", len(loop.bridges), "size", loop.size)
	c.emit(func(s EventSink) error {
		return s.UnitFreed(FreeEvent{Loop: loop.number, Bridges: len(loop.bridges), Size: loop.size})
	}, "free")
	return nil
}

// UnitInfo summarizes a compiled loop.
type UnitInfo struct {
	Loop        int64
	Inputs      []ir.Kind
	Ops         int
	Bridges     int
	Guards      int
	Size        int64
	Fingerprint string
}

// Describe summarizes the loop compiled for token.
func (c *CPU) Describe(token *ir.LoopToken) (UnitInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	loop, ok := c.owned[token]
	if !ok {
		return UnitInfo{}, false
	}
	return UnitInfo{
		Loop:        loop.number,
		Inputs:      loop.inputKinds,
		Ops:         len(loop.entry.code),
		Bridges:     len(loop.bridges),
		Guards:      len(loop.guards),
		Size:        loop.size,
		Fingerprint: loop.fingerprint,
	}, true
}

// RedirectCallAssembler makes oldToken designate the loop compiled for
// newToken. Every JUMP and CALL_ASSEMBLER targeting oldToken, compiled
// before or after, reaches the new loop from then on. The old loop stays
// owned by oldToken for FreeLoopAndBridges.
func (c *CPU) RedirectCallAssembler(oldToken, newToken *ir.LoopToken) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	target, ok := c.owned[newToken]
	if !ok || target.freed.Load() {
		return &StructuralError{Code: ErrJumpTarget, OpIndex: -1, Message: fmt.Sprintf("redirect target %s is not compiled or was freed", newToken.Repr())}
	}
	old, ok := targetLoop(oldToken)
	if !ok {
		return &StructuralError{Code: ErrFreedToken, OpIndex: -1, Message: fmt.Sprintf("%s is not compiled or was freed", oldToken.Repr())}
	}
	if !equalKinds(old.inputKinds, target.inputKinds) {
		return &StructuralError{
			Code:    ErrRedirectSignature,
			OpIndex: -1,
			Message: fmt.Sprintf("%s takes %s, %s takes %s", oldToken.Repr(), kindString(old.inputKinds), newToken.Repr(), kindString(target.inputKinds)),
		}
	}
	oldToken.Publish(target)
	slog.Debug("token redirected", "from", oldToken.Number(), "to", target.number)
	return nil
}
