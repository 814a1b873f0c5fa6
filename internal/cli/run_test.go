package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCmd executes the run command with args and returns stdout.
func runCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRunCommandMissingArgs(t *testing.T) {
	_, err := runCmd(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestRunCommandCountingLoop(t *testing.T) {
	dir := t.TempDir()
	loop := writeFile(t, dir, "loop.trace", countingLoop)

	out, err := runCmd(t, "text", loop, "--input", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ exit fail1 [10]")
	assert.Contains(t, out, "in 1 loops, 0 bridges")
}

func TestRunCommandWithBridge(t *testing.T) {
	dir := t.TempDir()
	loop := writeFile(t, dir, "loop.trace", countingLoop)
	bridge := writeFile(t, dir, "bridge.trace", countingBridge)

	out, err := runCmd(t, "json", loop, "-i", "2", "-b", "fail1="+bridge)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "fail2", resp.Data.Exit)
	assert.Equal(t, []string{"20"}, resp.Data.Values)
	assert.Equal(t, int64(1), resp.Data.Loops)
	assert.Equal(t, int64(1), resp.Data.Bridges)
	assert.Positive(t, resp.Data.CodeCacheBytes)
	assert.Empty(t, resp.Data.Session)
}

func TestRunCommandInputCount(t *testing.T) {
	dir := t.TempDir()
	loop := writeFile(t, dir, "loop.trace", countingLoop)

	_, err := runCmd(t, "text", loop)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "loop takes 1 inputs, got 0")
}

func TestRunCommandBadInput(t *testing.T) {
	dir := t.TempDir()
	loop := writeFile(t, dir, "loop.trace", countingLoop)

	_, err := runCmd(t, "text", loop, "-i", "two")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `bad integer "two"`)
}

func TestRunCommandMissingFile(t *testing.T) {
	_, err := runCmd(t, "text", filepath.Join(t.TempDir(), "missing.trace"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommandParseError(t *testing.T) {
	dir := t.TempDir()
	loop := writeFile(t, dir, "loop.trace", "[i0]\ni1 = no_such_op(i0)\n")

	_, err := runCmd(t, "text", loop, "-i", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "parse error")
}

func TestRunCommandStructuralError(t *testing.T) {
	dir := t.TempDir()
	loop := writeFile(t, dir, "loop.trace", unpairedLoop)

	out, err := runCmd(t, "json", loop, "-i", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E211", resp.Error.Code)
}

func TestRunCommandRuntimeError(t *testing.T) {
	dir := t.TempDir()
	loop := writeFile(t, dir, "loop.trace", dividingLoop)

	out, err := runCmd(t, "text", loop, "-i", "0")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [ZERO_DIVISION]")
}

func TestRunCommandUnknownGuard(t *testing.T) {
	dir := t.TempDir()
	loop := writeFile(t, dir, "loop.trace", countingLoop)
	bridge := writeFile(t, dir, "bridge.trace", countingBridge)

	_, err := runCmd(t, "text", loop, "-i", "2", "-b", "nope="+bridge)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown guard nope")
}

func TestRunCommandEventLog(t *testing.T) {
	dir := t.TempDir()
	loop := writeFile(t, dir, "loop.trace", countingLoop)
	db := filepath.Join(dir, "events.db")

	out, err := runCmd(t, "text", loop, "-i", "2", "--event-log", db)
	require.NoError(t, err)
	assert.Contains(t, out, "session: ")
	assert.FileExists(t, db)
}

func TestSplitBridge(t *testing.T) {
	guard, path, err := splitBridge("fail1=b.trace")
	require.NoError(t, err)
	assert.Equal(t, "fail1", guard)
	assert.Equal(t, "b.trace", path)

	for _, bad := range []string{"fail1", "=b.trace", "fail1="} {
		_, _, err := splitBridge(bad)
		assert.Error(t, err, bad)
	}
}
