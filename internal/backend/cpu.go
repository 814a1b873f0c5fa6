package backend

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/tracejit/internal/heap"
	"github.com/roach88/tracejit/internal/ir"
)

// Version identifies the backend in event logs and CLI output.
const Version = "0.1.0"

const funcBase = 0x2000_0000

// Func is a foreign function callable by CALL and CALL_MAY_FORCE.
// Returning a *Raise raises an exception in the calling trace; any other
// error aborts execution with a RuntimeError.
type Func func(args []ir.Value) (ir.Value, error)

type funcEntry struct {
	name string
	fn   Func
}

// CPU is a portable backend. It owns the code cache, the foreign function
// table and a default Engine.
//
// CompileLoop, CompileBridge, RedirectCallAssembler and FreeLoopAndBridges
// are serialized by one compiler lock. Compiled code is immutable once
// published and may be executed by any number of Engines concurrently.
type CPU struct {
	mu     sync.Mutex
	owned  map[*ir.LoopToken]*compiledLoop
	guards map[ir.FailDescr]*guardSite

	heap            *heap.Heap
	wb              ir.WriteBarrierDescr
	assemblerHelper AssemblerHelper
	holeChecks      bool
	maxCallDepth    int
	sink            EventSink
	codeCacheLimit  int64

	funcsMu sync.RWMutex
	funcs   map[int64]funcEntry
	nextFn  int64

	framesMu  sync.Mutex
	frames    map[int64]*frame
	nextForce atomic.Int64

	done [4]*ir.BasicFailDescr

	nextLoop      atomic.Int64
	totalLoops    atomic.Int64
	totalBridges  atomic.Int64
	freedLoops    atomic.Int64
	freedBridges  atomic.Int64
	codeCacheSize atomic.Int64

	engine *Engine
}

// NewCPU creates a backend with the given options.
func NewCPU(opts ...Option) *CPU {
	c := &CPU{
		owned:        make(map[*ir.LoopToken]*compiledLoop),
		guards:       make(map[ir.FailDescr]*guardSite),
		maxCallDepth: DefaultMaxCallDepth,
		funcs:        make(map[int64]funcEntry),
		nextFn:       funcBase,
		frames:       make(map[int64]*frame),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.heap == nil {
		c.heap = heap.New()
	}
	for k, name := range []string{"done_void", "done_int", "done_ref", "done_float"} {
		c.done[k] = &ir.BasicFailDescr{ID: -int64(k + 1), Name: name}
	}
	c.engine = c.NewEngine()
	return c
}

// Heap returns the heap this CPU allocates on.
func (c *CPU) Heap() *heap.Heap { return c.heap }

// NewEngine returns an execution engine for one goroutine.
func (c *CPU) NewEngine() *Engine {
	return &Engine{cpu: c, holeChecks: c.holeChecks}
}

// Engine returns the CPU's default engine.
func (c *CPU) Engine() *Engine { return c.engine }

// DoneWithThisFrame returns the FINISH descriptor a callee uses to hand a
// result of kind directly back to a call_assembler site.
func (c *CPU) DoneWithThisFrame(kind ir.Kind) ir.FailDescr {
	return c.done[kind]
}

func (c *CPU) doneKind(d ir.FailDescr) (ir.Kind, bool) {
	for k, dd := range c.done {
		if ir.FailDescr(dd) == d {
			return ir.Kind(k), true
		}
	}
	return ir.KindVoid, false
}

// RegisterFunc installs a foreign function and returns its address, the
// integer first operand of CALL.
func (c *CPU) RegisterFunc(name string, fn Func) int64 {
	c.funcsMu.Lock()
	defer c.funcsMu.Unlock()

	addr := c.nextFn
	c.nextFn += 16
	c.funcs[addr] = funcEntry{name: name, fn: fn}
	slog.Debug("function registered", "name", name, "addr", addr)
	return addr
}

func (c *CPU) lookupFunc(addr int64) (funcEntry, bool) {
	c.funcsMu.RLock()
	defer c.funcsMu.RUnlock()
	e, ok := c.funcs[addr]
	return e, ok
}

// TotalCompiledLoops returns the number of loops compiled so far.
func (c *CPU) TotalCompiledLoops() int64 { return c.totalLoops.Load() }

// TotalCompiledBridges returns the number of bridges compiled so far.
func (c *CPU) TotalCompiledBridges() int64 { return c.totalBridges.Load() }

// TotalFreedLoops returns the number of loops freed so far.
func (c *CPU) TotalFreedLoops() int64 { return c.freedLoops.Load() }

// TotalFreedBridges returns the number of bridges freed with their loops.
func (c *CPU) TotalFreedBridges() int64 { return c.freedBridges.Load() }

// CodeCacheSize returns the bytes of live compiled code.
func (c *CPU) CodeCacheSize() int64 { return c.codeCacheSize.Load() }

// SetFutureValueInt stages integer input index on the default engine.
func (c *CPU) SetFutureValueInt(index int, v int64) { c.engine.SetFutureValueInt(index, v) }

// SetFutureValueRef stages reference input index on the default engine.
func (c *CPU) SetFutureValueRef(index int, v heap.Ref) { c.engine.SetFutureValueRef(index, v) }

// SetFutureValueFloat stages float input index on the default engine.
func (c *CPU) SetFutureValueFloat(index int, v float64) { c.engine.SetFutureValueFloat(index, v) }

// ExecuteToken runs token on the default engine.
func (c *CPU) ExecuteToken(token *ir.LoopToken) (ir.FailDescr, error) {
	return c.engine.ExecuteToken(token)
}

// GetLatestValueInt reads exit value index from the default engine.
func (c *CPU) GetLatestValueInt(index int) int64 { return c.engine.GetLatestValueInt(index) }

// GetLatestValueRef reads exit value index from the default engine.
func (c *CPU) GetLatestValueRef(index int) heap.Ref { return c.engine.GetLatestValueRef(index) }

// GetLatestValueFloat reads exit value index from the default engine.
func (c *CPU) GetLatestValueFloat(index int) float64 { return c.engine.GetLatestValueFloat(index) }

// GetLatestValue reads exit value index from the default engine.
func (c *CPU) GetLatestValue(index int) ir.Value { return c.engine.GetLatestValue(index) }

// GetLatestValueCount returns the exit value count of the default engine.
func (c *CPU) GetLatestValueCount() int { return c.engine.GetLatestValueCount() }

// ClearLatestValues releases the first n exit values of the default engine.
func (c *CPU) ClearLatestValues(n int) { c.engine.ClearLatestValues(n) }

// GrabExcValue takes the pending exception of the default engine.
func (c *CPU) GrabExcValue() heap.Ref { return c.engine.GrabExcValue() }

func (c *CPU) emit(fn func(EventSink) error, what string) {
	if c.sink == nil {
		return
	}
	if err := fn(c.sink); err != nil {
		slog.Warn("event sink failed", "event", what, "error", err)
	}
}
