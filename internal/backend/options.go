package backend

import (
	"github.com/roach88/tracejit/internal/heap"
	"github.com/roach88/tracejit/internal/ir"
)

// DefaultMaxCallDepth bounds nested call_assembler frames.
const DefaultMaxCallDepth = 10_000

// AssemblerHelper computes the result of a call_assembler whose callee
// exited through a descriptor other than a DoneWithThisFrame descriptor.
// Returning a *Raise raises in the caller.
type AssemblerHelper func(descr ir.FailDescr, frame *DeadFrame) (ir.Value, error)

// Option configures a CPU.
type Option func(*CPU)

// WithHeap sets the heap objects are allocated on. By default each CPU
// owns a fresh heap.
func WithHeap(h *heap.Heap) Option {
	return func(c *CPU) {
		c.heap = h
	}
}

// WithWriteBarrier enables the write-barrier rewrite: pointer stores into
// managed objects are preceded by COND_CALL_GC_WB using d.
func WithWriteBarrier(d ir.WriteBarrierDescr) Option {
	return func(c *CPU) {
		c.wb = d
	}
}

// WithAssemblerHelper sets the call_assembler slow path.
func WithAssemblerHelper(fn AssemblerHelper) Option {
	return func(c *CPU) {
		c.assemblerHelper = fn
	}
}

// WithHoleChecks makes latest-value reads panic on holes, out-of-range
// indexes and kind mismatches instead of returning zero.
func WithHoleChecks(enabled bool) Option {
	return func(c *CPU) {
		c.holeChecks = enabled
	}
}

// WithMaxCallDepth bounds nested call_assembler frames.
func WithMaxCallDepth(n int) Option {
	return func(c *CPU) {
		c.maxCallDepth = n
	}
}

// WithEventSink receives compile, exit and free events.
func WithEventSink(s EventSink) Option {
	return func(c *CPU) {
		c.sink = s
	}
}

// WithCodeCacheLimit sets the code-cache size above which compilation logs
// a warning. Zero disables the warning.
func WithCodeCacheLimit(bytes int64) Option {
	return func(c *CPU) {
		c.codeCacheLimit = bytes
	}
}
