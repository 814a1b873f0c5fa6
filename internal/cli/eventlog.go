package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/tracejit/internal/store"
)

// openExistingLog opens the event log at path, or the configured one when
// path is empty. Unlike openEventLog it never creates the file.
func openExistingLog(opts *RootOptions, path string) (*store.Store, error) {
	if path == "" {
		cfg, err := loadConfig(opts)
		if err != nil {
			return nil, err
		}
		path = cfg.EventLog
	}
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no event log: pass --db or set event_log in the configuration")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("event log not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open event log", err)
	}
	return st, nil
}

// resolveSession returns the session named by id, or the latest session
// when id is empty or "latest".
func resolveSession(ctx context.Context, st *store.Store, id string) (store.SessionInfo, error) {
	var (
		si  store.SessionInfo
		err error
	)
	if id == "" || id == "latest" {
		si, err = st.LatestSession(ctx)
	} else {
		si, err = st.ReadSession(ctx, id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		if id == "" || id == "latest" {
			return si, NewExitError(ExitCommandError, "event log has no sessions")
		}
		return si, NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", id))
	}
	if err != nil {
		return si, WrapExitError(ExitCommandError, "failed to read session", err)
	}
	return si, nil
}
