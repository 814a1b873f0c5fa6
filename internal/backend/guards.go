package backend

import (
	"sync/atomic"

	"github.com/roach88/tracejit/internal/ir"
)

// guardSite is the run-time record of one compiled guard: where its fail
// arguments live, how often it failed and the bridge attached to it.
type guardSite struct {
	descr ir.FailDescr
	trace *compiledTrace
	// index is the guard's position in the submitted trace.
	index int
	// failRegs holds the register of each fail argument, -1 for a hole.
	failRegs  []int
	failKinds []ir.Kind

	bridge   atomic.Pointer[compiledTrace]
	failures atomic.Int64
}

func newGuardSite(op *ir.ResOp, t *compiledTrace, index int, regs map[*ir.Box]int) *guardSite {
	fa := op.FailArgs()
	g := &guardSite{
		descr:     op.FailDescr(),
		trace:     t,
		index:     index,
		failRegs:  make([]int, len(fa)),
		failKinds: make([]ir.Kind, len(fa)),
	}
	for j, b := range fa {
		if b == nil {
			g.failRegs[j] = -1
			continue
		}
		g.failRegs[j] = regs[b]
		g.failKinds[j] = b.Kind()
	}
	return g
}

// liveKinds returns the kinds of the non-hole fail arguments, the input
// signature of a bridge attached to the guard.
func (g *guardSite) liveKinds() []ir.Kind {
	kinds := make([]ir.Kind, 0, len(g.failKinds))
	for j, r := range g.failRegs {
		if r >= 0 {
			kinds = append(kinds, g.failKinds[j])
		}
	}
	return kinds
}

// GuardFailures returns how often the guard identified by descr has failed,
// counting failures that continued into a bridge. The second result is
// false when no live compiled guard uses descr.
func (c *CPU) GuardFailures(descr ir.FailDescr) (int64, bool) {
	c.mu.Lock()
	g, ok := c.guards[descr]
	c.mu.Unlock()
	if !ok {
		return 0, false
	}
	return g.failures.Load(), true
}

// GuardFailArgs returns the kinds of the guard's fail arguments, with
// KindVoid at hole positions.
func (c *CPU) GuardFailArgs(descr ir.FailDescr) ([]ir.Kind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guards[descr]
	if !ok {
		return nil, false
	}
	return append([]ir.Kind(nil), g.failKinds...), true
}
