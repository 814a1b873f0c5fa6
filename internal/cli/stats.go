package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tracejit/internal/store"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Database string
	Top      int
}

// StatsResult aggregates one session.
type StatsResult struct {
	Session   string             `json:"session"`
	Summary   store.Summary      `json:"summary"`
	HotGuards []store.GuardCount `json:"hot_guards"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats [session-id]",
		Short: "Summarize a recorded session",
		Long: `Summarize a recorded session: compiled loops and bridges, exits,
frees, code size and the guards that failed most often.

Without a session ID the latest session is summarized.

Examples:
  tracejit stats --db ./events.db
  tracejit stats --db ./events.db --top 5 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runStats(opts, id, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "event log path (default from configuration)")
	cmd.Flags().IntVar(&opts.Top, "top", 10, "number of hot guards to show")

	return cmd
}

func runStats(opts *StatsOptions, id string, cmd *cobra.Command) error {
	out := NewOutputFormatter(cmd, opts.RootOptions)
	if opts.Top < 0 {
		return NewExitError(ExitCommandError, "--top must be non-negative")
	}
	st, err := openExistingLog(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := cmd.Context()

	session, err := resolveSession(ctx, st, id)
	if err != nil {
		return err
	}
	sum, err := st.Summarize(ctx, session.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to summarize session", err)
	}
	hot, err := st.HotGuards(ctx, session.ID, opts.Top)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read hot guards", err)
	}

	result := StatsResult{Session: session.ID, Summary: sum, HotGuards: hot}
	if out.Format == "json" {
		return out.Success(result)
	}

	w := out.Writer
	fmt.Fprintf(w, "session %s  %s\n", session.ID, session.Label)
	fmt.Fprintf(w, "  loops:      %s\n", out.Count(sum.Loops))
	fmt.Fprintf(w, "  bridges:    %s\n", out.Count(sum.Bridges))
	fmt.Fprintf(w, "  exits:      %s\n", out.Count(sum.Exits))
	fmt.Fprintf(w, "  frees:      %s\n", out.Count(sum.Frees))
	fmt.Fprintf(w, "  code:       %s (%s freed)\n", out.Bytes(sum.CodeBytes), out.Bytes(sum.FreedBytes))
	if len(hot) > 0 {
		fmt.Fprintln(w, "  hot guards:")
		for _, g := range hot {
			fmt.Fprintf(w, "    descr %d in loop%d: %s exits\n", g.Descr, g.Loop, out.Count(g.Exits))
		}
	}
	return nil
}
