package backend

import (
	"log/slog"

	"github.com/roach88/tracejit/internal/heap"
	"github.com/roach88/tracejit/internal/ir"
)

// Engine executes compiled loops. It holds the staged inputs of the next
// execution and the exit state of the last one. An Engine must be used by
// one goroutine at a time; create one Engine per goroutine to run compiled
// code concurrently.
type Engine struct {
	cpu        *CPU
	holeChecks bool

	future []ir.Value
	latest *DeadFrame
	exc    heap.Ref
}

func (e *Engine) stage(index int, v ir.Value) {
	if index < 0 {
		panic(newRuntimeError(ErrCodeBadInput, "negative input index %d", index))
	}
	for len(e.future) <= index {
		e.future = append(e.future, ir.Value{})
	}
	e.future[index] = v
}

// SetFutureValueInt stages integer input index of the next execution.
func (e *Engine) SetFutureValueInt(index int, v int64) { e.stage(index, ir.IntValue(v)) }

// SetFutureValueRef stages reference input index of the next execution.
func (e *Engine) SetFutureValueRef(index int, v heap.Ref) { e.stage(index, ir.RefValue(v)) }

// SetFutureValueFloat stages float input index of the next execution.
func (e *Engine) SetFutureValueFloat(index int, v float64) { e.stage(index, ir.FloatValue(v)) }

// ExecuteToken runs the loop designated by token with the staged inputs
// and returns the descriptor of the exit it took. Staged inputs are
// consumed whether or not execution succeeds.
func (e *Engine) ExecuteToken(token *ir.LoopToken) (ir.FailDescr, error) {
	staged := e.future
	e.future = nil

	loop, ok := targetLoop(token)
	if !ok {
		return nil, newRuntimeError(ErrCodeFreedToken, "%s is not compiled or was freed", token.Repr())
	}
	args, err := checkInputs(loop, staged)
	if err != nil {
		return nil, err
	}

	df, err := e.run(loop.entry, args, 0)
	if err != nil {
		slog.Debug("execution failed", "loop", loop.number, "error", err)
		return nil, err
	}
	e.latest = df
	e.exc = df.exc

	var failures int64
	if df.guard != nil {
		failures = df.guard.failures.Load()
	}
	e.cpu.emit(func(s EventSink) error {
		return s.GuardExited(ExitEvent{
			Loop:     df.loop,
			Descr:    df.descr,
			Guard:    df.guard != nil,
			OpIndex:  df.opIndex,
			Values:   df.Values(),
			Failures: failures,
		})
	}, "exit")
	return df.descr, nil
}

func checkInputs(loop *compiledLoop, staged []ir.Value) ([]ir.Value, error) {
	kinds := loop.inputKinds
	if len(staged) < len(kinds) {
		return nil, newRuntimeError(ErrCodeBadInput, "loop%d takes %d inputs, %d staged", loop.number, len(kinds), len(staged))
	}
	for i, k := range kinds {
		if staged[i].Kind != k {
			return nil, newRuntimeError(ErrCodeBadInput, "input %d must be %s, got %s", i, k, staged[i].Kind)
		}
	}
	return staged[:len(kinds)], nil
}

// run executes t from its first operation until it exits. Execution faults
// raised by handlers are returned as a *RuntimeError.
func (e *Engine) run(t *compiledTrace, args []ir.Value, depth int) (df *DeadFrame, err error) {
	f := &frame{engine: e, cpu: e.cpu, depth: depth, callRes: -1}
	defer f.unregister()
	defer func() {
		if r := recover(); r != nil {
			err = f.recovered(r)
		}
	}()

	f.enter(t, args)
	for f.exit == nil {
		in := &f.code[f.pc]
		f.pc++
		f.cur = in
		in.exec(f, in)
	}
	return f.exit, nil
}

// LatestFrame returns the exit state of the last execution, or nil.
func (e *Engine) LatestFrame() *DeadFrame { return e.latest }

func (e *Engine) latestValue(index int, kind ir.Kind) ir.Value {
	if e.latest == nil || index < 0 || index >= len(e.latest.values) {
		if e.holeChecks {
			panic(newRuntimeError(ErrCodeBadInput, "no exit value at index %d", index))
		}
		return ir.Zero(kind)
	}
	v := e.latest.values[index]
	if v.Kind != kind {
		if e.holeChecks {
			panic(newRuntimeError(ErrCodeBadInput, "exit value %d is %s, read as %s", index, v.Kind, kind))
		}
		return ir.Zero(kind)
	}
	return v
}

// GetLatestValueInt returns integer exit value index of the last exit.
func (e *Engine) GetLatestValueInt(index int) int64 { return e.latestValue(index, ir.KindInt).Int }

// GetLatestValueRef returns reference exit value index of the last exit.
func (e *Engine) GetLatestValueRef(index int) heap.Ref { return e.latestValue(index, ir.KindRef).Ref }

// GetLatestValueFloat returns float exit value index of the last exit.
func (e *Engine) GetLatestValueFloat(index int) float64 {
	return e.latestValue(index, ir.KindFloat).Float
}

// GetLatestValue returns exit value index of the last exit as is, void for
// holes and out-of-range indexes.
func (e *Engine) GetLatestValue(index int) ir.Value {
	if e.latest == nil {
		return ir.Value{}
	}
	return e.latest.Value(index)
}

// GetLatestValueCount returns the number of exit values of the last exit.
func (e *Engine) GetLatestValueCount() int {
	if e.latest == nil {
		return 0
	}
	return len(e.latest.values)
}

// ClearLatestValues drops the references held by the first n exit values.
func (e *Engine) ClearLatestValues(n int) {
	if e.latest == nil {
		return
	}
	for i := 0; i < n && i < len(e.latest.values); i++ {
		e.latest.values[i].Ref = nil
	}
}

// GrabExcValue returns the exception pending at the last exit and clears
// it. A second call returns nil.
func (e *Engine) GrabExcValue() heap.Ref {
	v := e.exc
	e.exc = nil
	return v
}
