package cli

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tracejit/internal/backend"
	"github.com/roach88/tracejit/internal/config"
	"github.com/roach88/tracejit/internal/store"
)

// loadConfig reads --config, or tracejit.cue in the working directory when
// present, or falls back to the defaults.
func loadConfig(opts *RootOptions) (config.Config, error) {
	path := opts.Config
	if path == "" {
		if _, err := os.Stat(config.FileName); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return config.Default(), nil
			}
			return config.Config{}, WrapExitError(ExitCommandError, "failed to read configuration", err)
		}
		path = config.FileName
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// setupLogging installs the default slog handler on w: the configured
// level, or debug with --verbose.
func setupLogging(w io.Writer, opts *RootOptions, cfg config.Config) {
	level := cfg.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// prepare loads the configuration and sets up logging for cmd.
func prepare(cmd *cobra.Command, opts *RootOptions) (config.Config, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return config.Config{}, err
	}
	setupLogging(cmd.ErrOrStderr(), opts, cfg)
	return cfg, nil
}

// eventLog is an open event-log session. The zero value records nothing.
type eventLog struct {
	store   *store.Store
	session *store.Session
}

// openEventLog opens the event log at path and starts a session labelled
// label. An empty path disables the log.
func openEventLog(ctx context.Context, path, label string) (*eventLog, error) {
	if path == "" {
		return &eventLog{}, nil
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open event log", err)
	}
	session, err := st.NewSession(ctx, label)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start event log session", err)
	}
	slog.Info("event log session started", "path", path, "session", session.ID())
	return &eventLog{store: st, session: session}, nil
}

// Sink returns the session as an event sink, or nil when disabled.
func (l *eventLog) Sink() backend.EventSink {
	if l.session == nil {
		return nil
	}
	return l.session
}

// SessionID returns the session identifier, or "" when disabled.
func (l *eventLog) SessionID() string {
	if l.session == nil {
		return ""
	}
	return l.session.ID()
}

// Close closes the underlying store.
func (l *eventLog) Close() {
	if l.store == nil {
		return
	}
	if err := l.store.Close(); err != nil {
		slog.Error("error closing event log", "error", err)
	}
}
