package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tracejit/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database string
	List     bool
}

// LogEntry is one event of a session, in seq order.
type LogEntry struct {
	Seq    int64    `json:"seq"`
	Type   string   `json:"type"` // "loop", "bridge", "exit" or "free"
	Loop   int64    `json:"loop"`
	Descr  int64    `json:"descr,omitempty"`
	Guard  bool     `json:"guard,omitempty"`
	Values []string `json:"values,omitempty"`
	Ops    int      `json:"ops,omitempty"`
	Size   int64    `json:"size,omitempty"`
}

// LogResult is a session with its events.
type LogResult struct {
	Session store.SessionInfo `json:"session"`
	Events  []LogEntry        `json:"events"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log [session-id]",
		Short: "Show recorded events",
		Long: `Show the compile, exit and free events of a recorded session.

Without a session ID the latest session is shown. With --list, the
sessions in the log are listed instead.

Examples:
  tracejit log --db ./events.db
  tracejit log --db ./events.db --list
  tracejit log --db ./events.db 0192d8e4-... --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runLog(opts, id, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "event log path (default from configuration)")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list sessions")

	return cmd
}

func runLog(opts *LogOptions, id string, cmd *cobra.Command) error {
	out := NewOutputFormatter(cmd, opts.RootOptions)
	st, err := openExistingLog(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := cmd.Context()

	if opts.List {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		if out.Format == "json" {
			return out.Success(sessions)
		}
		if len(sessions) == 0 {
			fmt.Fprintln(out.Writer, "No sessions.")
			return nil
		}
		for _, s := range sessions {
			fmt.Fprintf(out.Writer, "%s  %s  (backend %s)\n", s.ID, s.Label, s.EngineVersion)
		}
		return nil
	}

	session, err := resolveSession(ctx, st, id)
	if err != nil {
		return err
	}
	events, err := readEvents(cmd, st, session.ID)
	if err != nil {
		return err
	}

	result := LogResult{Session: session, Events: events}
	if out.Format == "json" {
		return out.Success(result)
	}

	w := out.Writer
	fmt.Fprintf(w, "session %s  %s\n", session.ID, session.Label)
	for _, e := range events {
		switch e.Type {
		case "loop", "bridge":
			fmt.Fprintf(w, "%6d  %-6s loop%d  %d ops, %s\n", e.Seq, e.Type, e.Loop, e.Ops, out.Bytes(e.Size))
		case "exit":
			via := "finish"
			if e.Guard {
				via = "guard"
			}
			fmt.Fprintf(w, "%6d  exit   loop%d  %s %d [%s]\n", e.Seq, e.Loop, via, e.Descr, strings.Join(e.Values, ", "))
		case "free":
			fmt.Fprintf(w, "%6d  free   loop%d  %s\n", e.Seq, e.Loop, out.Bytes(e.Size))
		}
	}
	return nil
}

// readEvents merges the units, exits and frees of a session by seq.
func readEvents(cmd *cobra.Command, st *store.Store, sessionID string) ([]LogEntry, error) {
	ctx := cmd.Context()
	units, err := st.ReadUnits(ctx, sessionID)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read units", err)
	}
	exits, err := st.ReadExits(ctx, sessionID)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read exits", err)
	}
	frees, err := st.ReadFrees(ctx, sessionID)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read frees", err)
	}

	events := make([]LogEntry, 0, len(units)+len(exits)+len(frees))
	for _, u := range units {
		typ := "loop"
		if u.Bridge {
			typ = "bridge"
		}
		events = append(events, LogEntry{Seq: u.Seq, Type: typ, Loop: u.Loop, Ops: u.Ops, Size: u.Size})
	}
	for _, e := range exits {
		values := make([]string, len(e.Values))
		for i, v := range e.Values {
			values[i] = v.String()
		}
		events = append(events, LogEntry{Seq: e.Seq, Type: "exit", Loop: e.Loop, Descr: e.Descr, Guard: e.Guard, Values: values})
	}
	for _, f := range frees {
		events = append(events, LogEntry{Seq: f.Seq, Type: "free", Loop: f.Loop, Size: f.Size})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}
