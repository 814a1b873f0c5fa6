package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordRun runs the counting loop with a bridge into a fresh event log
// and returns the log path.
func recordRun(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	loop := writeFile(t, dir, "loop.trace", countingLoop)
	bridge := writeFile(t, dir, "bridge.trace", countingBridge)
	db := filepath.Join(dir, "events.db")

	_, err := runCmd(t, "text", loop, "-i", "2", "-b", "fail1="+bridge, "--event-log", db)
	require.NoError(t, err)
	return db
}

func logCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewLogCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func statsCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewStatsCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestLogCommandNoDatabase(t *testing.T) {
	_, err := logCmd(t, "text")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no event log")

	_, err = logCmd(t, "text", "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event log not found")
}

func TestLogCommandList(t *testing.T) {
	db := recordRun(t)

	out, err := logCmd(t, "text", "--db", db, "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "run ")
	assert.Contains(t, out, "(backend ")
}

func TestLogCommandLatestSession(t *testing.T) {
	db := recordRun(t)

	out, err := logCmd(t, "json", "--db", db)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   LogResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	var types []string
	for i, e := range resp.Data.Events {
		types = append(types, e.Type)
		if i > 0 {
			assert.Greater(t, e.Seq, resp.Data.Events[i-1].Seq)
		}
	}
	assert.Equal(t, []string{"loop", "bridge", "exit"}, types)

	exit := resp.Data.Events[2]
	assert.True(t, exit.Guard)
	assert.Equal(t, []string{"20"}, exit.Values)

	// the same session by id, in text
	out, err = logCmd(t, "text", "--db", db, resp.Data.Session.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "session "+resp.Data.Session.ID)
	assert.Contains(t, out, "guard")
	assert.Contains(t, out, "[20]")
}

func TestLogCommandUnknownSession(t *testing.T) {
	db := recordRun(t)

	_, err := logCmd(t, "text", "--db", db, "no-such-session")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "session not found: no-such-session")
}

func TestStatsCommand(t *testing.T) {
	db := recordRun(t)

	out, err := statsCmd(t, "json", "--db", db, "--top", "5")
	require.NoError(t, err)

	var resp struct {
		Data StatsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, int64(1), resp.Data.Summary.Loops)
	assert.Equal(t, int64(1), resp.Data.Summary.Bridges)
	assert.Equal(t, int64(1), resp.Data.Summary.Exits)
	assert.Positive(t, resp.Data.Summary.CodeBytes)
	require.Len(t, resp.Data.HotGuards, 1)
	assert.Equal(t, int64(1), resp.Data.HotGuards[0].Exits)

	out, err = statsCmd(t, "text", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "loops:      1")
	assert.Contains(t, out, "hot guards:")
}

func TestStatsCommandNegativeTop(t *testing.T) {
	_, err := statsCmd(t, "text", "--top", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
