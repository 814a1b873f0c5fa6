package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tracejit/internal/backend"
	"github.com/roach88/tracejit/internal/ir"
	"github.com/roach88/tracejit/internal/tracetext"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Inputs   []string
	Bridges  []string
	EventLog string
}

// RunResult is the outcome of the run command.
type RunResult struct {
	Exit           string   `json:"exit"`
	Values         []string `json:"values"`
	Exception      string   `json:"exception,omitempty"`
	Loops          int64    `json:"loops"`
	Bridges        int64    `json:"bridges"`
	CodeCacheBytes int64    `json:"code_cache_bytes"`
	Session        string   `json:"session,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <trace-file>",
		Short: "Compile a loop and execute it once",
		Long: `Compile a loop from trace text, attach bridges and execute it.

Inputs are given in order with --input, one per loop input. Bridges are
attached before execution with --bridge guard=path, in order, so a bridge
may attach to a guard of an earlier bridge.

Exit codes:
  0 - The loop exited through a guard or FINISH
  1 - Structural or runtime error
  2 - Command error (missing files, bad flags, etc.)

Examples:
  tracejit run loop.trace --input 2
  tracejit run loop.trace --input 2 --bridge fail1=bridge.trace
  tracejit run loop.trace --input 2 --event-log ./events.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Inputs, "input", "i", nil, "loop input value (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Bridges, "bridge", "b", nil, "bridge as guard=path (repeatable)")
	cmd.Flags().StringVar(&opts.EventLog, "event-log", "", "record events to this SQLite file (overrides configuration)")

	return cmd
}

func runTrace(opts *RunOptions, path string, cmd *cobra.Command) error {
	out := NewOutputFormatter(cmd, opts.RootOptions)
	cfg, err := prepare(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.EventLog != "" {
		cfg.EventLog = opts.EventLog
	}

	log, err := openEventLog(cmd.Context(), cfg.EventLog, "run "+path)
	if err != nil {
		return err
	}
	defer log.Close()

	cpuOpts, err := cfg.BackendOptions(nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if sink := log.Sink(); sink != nil {
		cpuOpts = append(cpuOpts, backend.WithEventSink(sink))
	}
	cpu := backend.NewCPU(cpuOpts...)

	ns := tracetext.NewNamespace()
	loop, err := loadTrace(path, ns)
	if err != nil {
		return err
	}
	token, err := cpu.CompileLoop(loop.Inputs, loop.Ops)
	if err != nil {
		return failWith(out, "compile "+path, err)
	}
	slog.Info("loop compiled", "file", path, "ops", len(loop.Ops))

	for _, b := range opts.Bridges {
		guard, bridgePath, err := splitBridge(b)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --bridge", err)
		}
		fail, ok := ns.FailDescr(guard)
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown guard %s", guard))
		}
		bridge, err := loadTrace(bridgePath, ns)
		if err != nil {
			return err
		}
		if err := cpu.CompileBridge(fail, bridge.Inputs, bridge.Ops, token); err != nil {
			return failWith(out, "compile bridge "+bridgePath, err)
		}
		slog.Info("bridge compiled", "file", bridgePath, "guard", guard, "ops", len(bridge.Ops))
	}

	if len(opts.Inputs) != len(loop.Inputs) {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("loop takes %d inputs, got %d", len(loop.Inputs), len(opts.Inputs)))
	}
	for i, s := range opts.Inputs {
		v, err := parseInput(loop.Inputs[i].Kind(), s)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("input %d", i), err)
		}
		switch v.Kind {
		case ir.KindInt:
			cpu.SetFutureValueInt(i, v.Int)
		case ir.KindFloat:
			cpu.SetFutureValueFloat(i, v.Float)
		case ir.KindRef:
			cpu.SetFutureValueRef(i, v.Ref)
		}
	}

	descr, err := cpu.ExecuteToken(token)
	if err != nil {
		return failWith(out, "execute "+path, err)
	}

	frame := cpu.Engine().LatestFrame()
	result := RunResult{
		Exit:           descr.Repr(),
		Values:         renderValues(frame.Values()),
		Loops:          cpu.TotalCompiledLoops(),
		Bridges:        cpu.TotalCompiledBridges(),
		CodeCacheBytes: cpu.CodeCacheSize(),
		Session:        log.SessionID(),
	}
	if exc := cpu.GrabExcValue(); exc != nil && exc.Class() != nil {
		result.Exception = exc.Class().Name
	}

	if out.Format == "json" {
		return out.Success(result)
	}
	w := out.Writer
	fmt.Fprintf(w, "%s exit %s [%s]\n", out.Mark(true), result.Exit, strings.Join(result.Values, ", "))
	if result.Exception != "" {
		fmt.Fprintf(w, "  exception: %s\n", result.Exception)
	}
	fmt.Fprintf(w, "  code cache: %s in %s loops, %s bridges\n",
		out.Bytes(result.CodeCacheBytes), out.Count(result.Loops), out.Count(result.Bridges))
	if result.Session != "" {
		fmt.Fprintf(w, "  session: %s\n", result.Session)
	}
	return nil
}

// failWith reports a backend error and returns the matching exit error.
func failWith(out *OutputFormatter, what string, err error) error {
	code, details := errorCode(err)
	if outErr := out.Error(code, fmt.Sprintf("%s: %v", what, err), details); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, what+" failed", err)
}
