package harness

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracejit/internal/store"
	"github.com/roach88/tracejit/internal/testutil"
)

func loadTestdata(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func runScenario(t *testing.T, s *Scenario, opts ...Option) *Result {
	t.Helper()
	result, err := Run(context.Background(), s, opts...)
	require.NoError(t, err)
	return result
}

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}

func TestRun_Testdata(t *testing.T) {
	for _, name := range []string{"counting_loop", "call_assembler", "exceptions", "values"} {
		t.Run(name, func(t *testing.T) {
			result := runScenario(t, loadTestdata(t, name))
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_Golden(t *testing.T) {
	for _, name := range []string{"counting_loop", "call_assembler"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadTestdata(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_ExpectationMismatch(t *testing.T) {
	s := mustParse(t, `
name: mismatch
description: wrong expectations are reported, not returned
loops:
  - name: loop
    trace: |
      [i0]
      i1 = int_add(i0, 1)
      finish(i1, descr=out)
steps:
  - run:
      inputs: [1]
      expect: {descr: other, values: [3]}
  - run:
      inputs: [1]
      expect: {error: ZERO_DIVISION}
`)
	result := runScenario(t, s)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "expected exit other, got out")
	assert.Contains(t, result.Errors[1], "expected values [3], got [2]")
	assert.Contains(t, result.Errors[2], "expected error ZERO_DIVISION")
}

func TestRun_UnexpectedCompileError(t *testing.T) {
	s := mustParse(t, `
name: broken
description: a loop that fails validation takes its runs down with it
loops:
  - name: loop
    trace: |
      [i0]
      i1 = int_add(i0, 1)
steps:
  - run:
      inputs: [1]
      expect: {descr: out}
`)
	result := runScenario(t, s)
	assert.False(t, result.Pass)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, EventError, result.Trace[0].Type)
	assert.Equal(t, "E201", result.Trace[0].Error)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[1], "loop loop was not compiled")
}

func TestRun_ExpectedCompileErrorThatCompiles(t *testing.T) {
	s := mustParse(t, `
name: lenient
description: expecting an error from a well-formed loop fails
loops:
  - name: loop
    error: E200
    trace: |
      [i0]
      finish(i0, descr=out)
steps:
  - free: loop
`)
	result := runScenario(t, s)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected error E200, compiled")
}

func TestRun_ParseErrorIsReturned(t *testing.T) {
	s := mustParse(t, `
name: unparsable
description: trace text errors abort the scenario
loops:
  - name: loop
    trace: |
      [i0]
      i1 = int_frob(i0)
steps:
  - free: loop
`)
	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loop loop")
	assert.Contains(t, err.Error(), "unknown operation")
}

func TestRun_BadDeclarations(t *testing.T) {
	tests := map[string]string{
		"unknown function":  "functions: [nope]",
		"unknown type":      "structs: [{name: S, fields: [{name: f, type: Word}]}]",
		"unknown item type": "arrays: [{name: a, item: Void}]",
		"bad call kinds":    `calls: [{name: c, args: "x", result: "i"}]`,
		"unknown class":     "objects: [{name: o, class: Missing}]",
		"class and str":     "classes: [{name: C, size: 8}]\n  objects: [{name: o, class: C, str: s}]",
	}
	for name, decl := range tests {
		t.Run(name, func(t *testing.T) {
			s := mustParse(t, `
name: decl
description: bad declarations
declare:
  `+decl+`
loops:
  - name: loop
    trace: |
      [i0]
      finish(i0, descr=out)
steps:
  - free: loop
`)
			_, err := Run(context.Background(), s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "declare")
		})
	}
}

func TestRun_StructsAndArrays(t *testing.T) {
	s := mustParse(t, `
name: memory
description: struct and array descriptors from declarations
declare:
  structs:
    - name: Point
      fields:
        - {name: x, type: Signed}
        - {name: y, type: Short}
  arrays:
    - {name: bytes, item: Char}
loops:
  - name: loop
    trace: |
      [i0]
      p1 = new(descr=Point)
      setfield_gc(p1, i0, descr=Point.x)
      setfield_gc(p1, 70000, descr=Point.y)
      i2 = getfield_gc(p1, descr=Point.x)
      i3 = getfield_gc(p1, descr=Point.y)
      p4 = new_array(3, descr=bytes)
      setarrayitem_gc(p4, 1, 300, descr=bytes)
      i5 = getarrayitem_gc(p4, 1, descr=bytes)
      i6 = arraylen_gc(p4, descr=bytes)
      finish(i2, i3, i5, i6, descr=out)
steps:
  - run:
      inputs: [9]
      expect: {descr: out, values: [9, 4464, 44, 3]}
`)
	result := runScenario(t, s)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ForceBuiltin(t *testing.T) {
	s := mustParse(t, `
name: force
description: a foreign function forces its caller
declare:
  calls:
    - {name: forcing, args: "ii", result: "i"}
  functions: [force]
loops:
  - name: loop
    trace: |
      [i0]
      i1 = force_token()
      i2 = call_may_force(ConstInt(force), i1, 42, descr=forcing)
      guard_not_forced(descr=forced) [i0, i2]
      finish(i2, descr=out)
steps:
  - run:
      inputs: [1]
      expect: {descr: forced, values: [1, 42]}
`)
	result := runScenario(t, s)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_Assertions(t *testing.T) {
	s := loadTestdata(t, "counting_loop")
	wrong := int64(99)
	s.Assertions = []Assertion{
		{Type: AssertExitCount, Descr: "fail1", Count: &wrong},
		{Type: AssertGuardFailures, Descr: "fail1", Count: &wrong},
		{Type: AssertGuardFailures, Descr: "missing", Count: &wrong},
		{Type: AssertCounters, Loops: &wrong},
		{Type: AssertCodeCache, Bytes: &wrong},
	}
	result := runScenario(t, s)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "99 exits through fail1")
	assert.Contains(t, result.Errors[0], "Full trace:")
	assert.Contains(t, result.Errors[1], "12 failures")
	assert.Contains(t, result.Errors[2], "unknown descriptor missing")
	assert.Contains(t, result.Errors[3], "loops=1 (want 99)")
	assert.Contains(t, result.Errors[4], "code_cache")
}

func TestRun_ReferenceRejectsBridgedLoop(t *testing.T) {
	s := loadTestdata(t, "counting_loop")
	s.Steps[2].Run.Reference = true
	result := runScenario(t, s)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "has bridges")
}

func TestRun_WithSinkRecordsSession(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	session, err := st.NewSession(ctx, "counting_loop",
		store.WithClock(testutil.NewDeterministicClock()),
		store.WithIDGenerator(testutil.NewSequentialIDGenerator("session")))
	require.NoError(t, err)

	result := runScenario(t, loadTestdata(t, "counting_loop"), WithSink(session))
	require.True(t, result.Pass, "errors: %v", result.Errors)

	sum, err := st.Summarize(ctx, session.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Loops)
	assert.Equal(t, int64(1), sum.Bridges)
	assert.Equal(t, int64(2), sum.Exits)
}

func TestRun_WithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	runScenario(t, loadTestdata(t, "counting_loop"), WithLogger(logger))
	out := buf.String()
	assert.Contains(t, out, "scenario=counting_loop")
	assert.Contains(t, out, "loop compiled")
	assert.Contains(t, out, "bridge compiled")
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, loadTestdata(t, "counting_loop"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunAll(t *testing.T) {
	var scenarios []*Scenario
	for _, name := range []string{"counting_loop", "call_assembler", "exceptions", "values"} {
		scenarios = append(scenarios, loadTestdata(t, name))
	}
	results, err := RunAll(context.Background(), scenarios, 2)
	require.NoError(t, err)
	require.Len(t, results, len(scenarios))
	for i, r := range results {
		assert.True(t, r.Pass, "%s: %v", scenarios[i].Name, r.Errors)
	}
}

func TestRunAll_SetupFailure(t *testing.T) {
	bad := mustParse(t, minimalScenario)
	bad.Declare.Functions = []string{"nope"}
	_, err := RunAll(context.Background(), []*Scenario{loadTestdata(t, "values"), bad}, 0)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "scenario minimal"), err.Error())
}
