package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/tracejit/internal/backend"
	"github.com/roach88/tracejit/internal/config"
	"github.com/roach88/tracejit/internal/executor"
	"github.com/roach88/tracejit/internal/ir"
	"github.com/roach88/tracejit/internal/testutil"
	"github.com/roach88/tracejit/internal/tracetext"
)

// Harness is the scenario execution engine. It owns one CPU and the
// namespace every trace of the scenario is parsed in.
type Harness struct {
	cpu    *backend.CPU
	ns     *tracetext.Namespace
	clock  *testutil.DeterministicClock
	logger *slog.Logger

	loops  map[string]*loopState
	first  string
	result *Result
}

type loopState struct {
	name    string
	token   *ir.LoopToken
	trace   *tracetext.Trace
	bridges int
}

type runConfig struct {
	cfg    config.Config
	sink   backend.EventSink
	logger *slog.Logger
}

// Option configures Run.
type Option func(*runConfig)

// WithConfig sets the base configuration scenario options are applied to.
// Defaults to config.Default().
func WithConfig(cfg config.Config) Option {
	return func(c *runConfig) { c.cfg = cfg }
}

// WithSink forwards the CPU's compile, exit and free events to s.
func WithSink(s backend.EventSink) Option {
	return func(c *runConfig) { c.sink = s }
}

// WithLogger sets the logger steps are reported to. Defaults to discarding.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// Run executes a scenario on a fresh CPU and returns the result.
//
// Mismatches between a step and its expectation are recorded in the
// result and do not stop the scenario. The returned error is reserved for
// scenarios that cannot be set up: bad declarations, trace text that does
// not parse, or a cancelled context.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	rc := runConfig{cfg: config.Default()}
	for _, opt := range opts {
		opt(&rc)
	}
	if rc.logger == nil {
		rc.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cfg := rc.cfg
	if scenario.Options.HoleChecks {
		cfg.HoleChecks = true
	}
	if scenario.Options.WriteBarrier {
		cfg.WriteBarrier.Enabled = true
	}
	if scenario.Options.MaxCallDepth > 0 {
		cfg.MaxCallDepth = scenario.Options.MaxCallDepth
	}
	cpuOpts, err := cfg.BackendOptions(nil)
	if err != nil {
		return nil, err
	}
	cpuOpts = append(cpuOpts, backend.WithAssemblerHelper(firstValueHelper))
	if rc.sink != nil {
		cpuOpts = append(cpuOpts, backend.WithEventSink(rc.sink))
	}

	h := &Harness{
		cpu:    backend.NewCPU(cpuOpts...),
		ns:     tracetext.NewNamespace(),
		clock:  testutil.NewDeterministicClock(),
		logger: rc.logger.With("scenario", scenario.Name),
		loops:  make(map[string]*loopState),
		result: NewResult(),
	}
	if err := declare(h.cpu, h.ns, scenario.Declare); err != nil {
		return nil, fmt.Errorf("declare: %w", err)
	}

	for _, l := range scenario.Loops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := h.compileLoop(l); err != nil {
			return nil, err
		}
	}
	h.first = scenario.Loops[0].Name

	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := h.step(ctx, i, step); err != nil {
			return nil, err
		}
	}

	for _, msg := range h.evaluateAssertions(scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// RunAll runs scenarios concurrently, at most jobs at a time, and returns
// their results in order. A scenario that cannot be set up fails the
// whole batch.
func RunAll(ctx context.Context, scenarios []*Scenario, jobs int, opts ...Option) ([]*Result, error) {
	results := make([]*Result, len(scenarios))
	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, s := range scenarios {
		g.Go(func() error {
			r, err := Run(ctx, s, opts...)
			if err != nil {
				return fmt.Errorf("scenario %s: %w", s.Name, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// firstValueHelper is the call_assembler slow path used by scenarios: the
// call returns the callee's first exit value.
func firstValueHelper(d ir.FailDescr, df *backend.DeadFrame) (ir.Value, error) {
	if df.Len() == 0 {
		return ir.Value{}, fmt.Errorf("exit %s carries no value", d.Repr())
	}
	return df.Value(0), nil
}

func (h *Harness) event(ev TraceEvent) {
	ev.Seq = h.clock.Next()
	h.result.AddEvent(ev)
}

func (h *Harness) compileLoop(l LoopDef) error {
	trace, err := tracetext.Parse(l.Trace, h.ns)
	if err != nil {
		return fmt.Errorf("loop %s: %w", l.Name, err)
	}
	token, err := h.cpu.CompileLoop(trace.Inputs, trace.Ops)
	if err != nil {
		code := matchCode(err, l.Error)
		h.logger.Debug("loop rejected", "loop", l.Name, "error", err)
		h.event(TraceEvent{Type: EventError, Loop: l.Name, Error: code})
		if l.Error == "" {
			h.result.AddError(fmt.Sprintf("loop %s: compile failed: %v", l.Name, err))
		} else if code != l.Error {
			h.result.AddError(fmt.Sprintf("loop %s: expected error %s, got %v", l.Name, l.Error, err))
		}
		return nil
	}
	if l.Error != "" {
		h.result.AddError(fmt.Sprintf("loop %s: expected error %s, compiled", l.Name, l.Error))
	}

	token.SetName(l.Name)
	h.ns.Descrs[l.Name] = token
	h.loops[l.Name] = &loopState{name: l.Name, token: token, trace: trace}
	h.logger.Debug("loop compiled", "loop", l.Name, "ops", len(trace.Ops))
	h.event(TraceEvent{Type: EventLoop, Loop: l.Name, Ops: len(trace.Ops)})
	return nil
}

// loop resolves a step's loop name, defaulting to the first loop.
func (h *Harness) loop(i int, name string) (*loopState, bool) {
	if name == "" {
		name = h.first
	}
	l, ok := h.loops[name]
	if !ok {
		h.result.AddError(fmt.Sprintf("steps[%d]: loop %s was not compiled", i, name))
	}
	return l, ok
}

func (h *Harness) step(ctx context.Context, i int, s Step) error {
	switch {
	case s.Run != nil:
		return h.run(ctx, i, s.Run)
	case s.Bridge != nil:
		return h.bridge(i, s.Bridge)
	case s.Redirect != nil:
		h.redirect(i, s.Redirect)
	case s.Free != "":
		h.free(i, s.Free)
	}
	return nil
}

func (h *Harness) bridge(i int, s *BridgeStep) error {
	l, ok := h.loop(i, s.Loop)
	if !ok {
		return nil
	}
	fail, ok := h.ns.FailDescr(s.Guard)
	if !ok {
		h.result.AddError(fmt.Sprintf("steps[%d]: unknown guard %s", i, s.Guard))
		return nil
	}
	trace, err := tracetext.Parse(s.Trace, h.ns)
	if err != nil {
		return fmt.Errorf("steps[%d]: bridge: %w", i, err)
	}

	err = h.cpu.CompileBridge(fail, trace.Inputs, trace.Ops, l.token)
	if err != nil {
		code := matchCode(err, s.Error)
		h.event(TraceEvent{Type: EventError, Loop: l.name, Guard: s.Guard, Error: code})
		if code != s.Error {
			h.result.AddError(fmt.Sprintf("steps[%d]: bridge on %s: expected %q, got %v", i, s.Guard, s.Error, err))
		}
		return nil
	}
	if s.Error != "" {
		h.result.AddError(fmt.Sprintf("steps[%d]: bridge on %s: expected error %s, compiled", i, s.Guard, s.Error))
	}
	l.bridges++
	h.logger.Debug("bridge compiled", "loop", l.name, "guard", s.Guard, "ops", len(trace.Ops))
	h.event(TraceEvent{Type: EventBridge, Loop: l.name, Guard: s.Guard, Ops: len(trace.Ops)})
	return nil
}

func (h *Harness) redirect(i int, s *RedirectStep) {
	from, ok := h.loop(i, s.From)
	if !ok {
		return
	}
	to, ok := h.loop(i, s.To)
	if !ok {
		return
	}
	ev := TraceEvent{Type: EventRedirect, Loop: s.From, Target: s.To}
	if err := h.cpu.RedirectCallAssembler(from.token, to.token); err != nil {
		ev.Type = EventError
		ev.Error = matchCode(err, s.Error)
		if ev.Error != s.Error {
			h.result.AddError(fmt.Sprintf("steps[%d]: redirect %s -> %s: expected %q, got %v", i, s.From, s.To, s.Error, err))
		}
	} else if s.Error != "" {
		h.result.AddError(fmt.Sprintf("steps[%d]: redirect %s -> %s: expected error %s", i, s.From, s.To, s.Error))
	}
	h.event(ev)
}

func (h *Harness) free(i int, name string) {
	l, ok := h.loop(i, name)
	if !ok {
		return
	}
	if err := h.cpu.FreeLoopAndBridges(l.token); err != nil {
		h.event(TraceEvent{Type: EventError, Loop: name, Error: matchCode(err, "")})
		h.result.AddError(fmt.Sprintf("steps[%d]: free %s: %v", i, name, err))
		return
	}
	h.event(TraceEvent{Type: EventFree, Loop: name})
}

// exit is the rendered outcome of one execution.
type exit struct {
	descr     string
	values    []string
	exception string
	err       error
}

func (e exit) same(o exit) bool {
	return e.descr == o.descr && e.exception == o.exception &&
		slices.Equal(e.values, o.values) && errorCode(e.err) == errorCode(o.err)
}

func (e exit) String() string {
	if e.err != nil {
		return "error " + errorCode(e.err)
	}
	return fmt.Sprintf("%s %v", e.descr, e.values)
}

func (h *Harness) execute(engine *backend.Engine, l *loopState, args []ir.Value) exit {
	for j, v := range args {
		switch v.Kind {
		case ir.KindInt:
			engine.SetFutureValueInt(j, v.Int)
		case ir.KindFloat:
			engine.SetFutureValueFloat(j, v.Float)
		case ir.KindRef:
			engine.SetFutureValueRef(j, v.Ref)
		}
	}
	d, err := engine.ExecuteToken(l.token)
	if err != nil {
		return exit{err: err}
	}
	df := engine.LatestFrame()
	out := exit{descr: d.Repr(), values: h.render(df.Values())}
	if exc := engine.GrabExcValue(); exc != nil {
		out.exception = exc.Class().Name
	}
	return out
}

func (h *Harness) run(ctx context.Context, i int, s *RunStep) error {
	l, ok := h.loop(i, s.Loop)
	if !ok {
		return nil
	}
	args, err := h.inputs(l.trace.Inputs, s.Inputs)
	if err != nil {
		return fmt.Errorf("steps[%d]: %w", i, err)
	}

	got := h.execute(h.cpu.Engine(), l, args)
	h.logger.Debug("loop executed", "loop", l.name, "exit", got)

	ev := TraceEvent{Type: EventExit, Loop: l.name, Inputs: h.render(args)}
	if got.err != nil {
		ev.Type = EventError
		ev.Error = errorCode(got.err)
	} else {
		ev.Descr = got.descr
		ev.Values = got.values
		ev.Exception = got.exception
	}
	h.event(ev)
	h.check(i, s.Expect, got)

	if s.Reference {
		h.reference(i, l, args, got)
	}
	if s.Engines > 0 {
		if err := h.concurrent(ctx, i, l, args, s.Engines, got); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) check(i int, want Expect, got exit) {
	prefix := fmt.Sprintf("steps[%d]", i)
	if want.Error != "" {
		if code := errorCode(got.err); code != want.Error {
			h.result.AddError(fmt.Sprintf("%s: expected error %s, got %s", prefix, want.Error, got))
		}
		return
	}
	if got.err != nil {
		h.result.AddError(fmt.Sprintf("%s: execution failed: %v", prefix, got.err))
		return
	}
	if want.Descr != "" && want.Descr != got.descr {
		h.result.AddError(fmt.Sprintf("%s: expected exit %s, got %s", prefix, want.Descr, got.descr))
	}
	if want.Values != nil {
		expected := make([]string, len(want.Values))
		for j, v := range want.Values {
			expected[j] = expectedString(v)
		}
		if !valuesMatch(expected, got.values) {
			h.result.AddError(fmt.Sprintf("%s: expected values %v, got %v", prefix, expected, got.values))
		}
	}
	if want.Exception != got.exception {
		h.result.AddError(fmt.Sprintf("%s: expected exception %q, got %q", prefix, want.Exception, got.exception))
	}
}

// reference replays the run on the reference evaluator and compares
// the exits.
func (h *Harness) reference(i int, l *loopState, args []ir.Value, got exit) {
	if l.bridges > 0 {
		h.result.AddError(fmt.Sprintf("steps[%d]: reference check on %s, which has bridges", i, l.name))
		return
	}
	out, err := executor.Evaluate(l.trace.Inputs, l.trace.Ops, args)
	if err != nil {
		if errors.Is(err, executor.ErrUnsupported) {
			h.result.AddError(fmt.Sprintf("steps[%d]: reference evaluator: %v", i, err))
			return
		}
		if got.err == nil {
			h.result.AddError(fmt.Sprintf("steps[%d]: reference evaluator failed (%v), backend exited %s", i, err, got))
		}
		return
	}
	want := exit{descr: out.Descr.Repr(), values: h.render(out.Values)}
	if !want.same(got) {
		h.result.AddError(fmt.Sprintf("steps[%d]: backend exited %s, reference %s", i, got, want))
	}
}

// concurrent runs the same execution on n engines at once. Every engine
// must reproduce the primary exit. Cancelling ctx stops engines that have
// not started and fails the step.
func (h *Harness) concurrent(ctx context.Context, i int, l *loopState, args []ir.Value, n int, primary exit) error {
	exits := make([]exit, n)
	g, gctx := errgroup.WithContext(ctx)
	for k := range n {
		engine := h.cpu.NewEngine()
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			exits[k] = h.execute(engine, l, args)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("steps[%d]: concurrent engines: %w", i, err)
	}
	for k, e := range exits {
		if !e.same(primary) {
			h.result.AddError(fmt.Sprintf("steps[%d]: engine %d exited %s, primary %s", i, k, e, primary))
		}
	}
	return nil
}
