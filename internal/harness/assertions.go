package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, describeEvent(ev))
		}
	}
	return buf.String()
}

func describeEvent(ev TraceEvent) string {
	switch ev.Type {
	case EventExit:
		return fmt.Sprintf("exit %s via %s %v", ev.Loop, ev.Descr, ev.Values)
	case EventBridge:
		return fmt.Sprintf("bridge %s on %s", ev.Loop, ev.Guard)
	case EventRedirect:
		return fmt.Sprintf("redirect %s -> %s", ev.Loop, ev.Target)
	case EventError:
		return fmt.Sprintf("error %s in %s", ev.Error, ev.Loop)
	default:
		return fmt.Sprintf("%s %s", ev.Type, ev.Loop)
	}
}

// assertExitCount checks how many exits went through a descriptor.
func assertExitCount(trace []TraceEvent, a Assertion) error {
	var n int64
	for _, ev := range trace {
		if ev.Type == EventExit && ev.Descr == a.Descr {
			n++
		}
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertExitCount,
			Expected: fmt.Sprintf("%d exits through %s", *a.Count, a.Descr),
			Actual:   fmt.Sprintf("%d exits", n),
			Trace:    trace,
		}
	}
	return nil
}

// assertGuardFailures checks the failure counter of a live guard. Exits
// from concurrent engines count too.
func (h *Harness) assertGuardFailures(a Assertion) error {
	d, ok := h.ns.FailDescr(a.Descr)
	if !ok {
		return fmt.Errorf("guard_failures: unknown descriptor %s", a.Descr)
	}
	n, live := h.cpu.GuardFailures(d)
	if !live {
		return &AssertionError{
			Type:     AssertGuardFailures,
			Expected: fmt.Sprintf("live guard %s", a.Descr),
			Actual:   "no live guard",
		}
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertGuardFailures,
			Expected: fmt.Sprintf("%s failed %d times", a.Descr, *a.Count),
			Actual:   fmt.Sprintf("%d failures", n),
		}
	}
	return nil
}

func (h *Harness) assertCounters(a Assertion) error {
	var diffs []string
	check := func(name string, want *int64, got int64) {
		if want != nil && *want != got {
			diffs = append(diffs, fmt.Sprintf("%s=%d (want %d)", name, got, *want))
		}
	}
	check("loops", a.Loops, h.cpu.TotalCompiledLoops())
	check("bridges", a.Bridges, h.cpu.TotalCompiledBridges())
	check("freed_loops", a.FreedLoops, h.cpu.TotalFreedLoops())
	check("freed_bridges", a.FreedBridges, h.cpu.TotalFreedBridges())
	if len(diffs) > 0 {
		return &AssertionError{
			Type:     AssertCounters,
			Expected: "matching counters",
			Actual:   strings.Join(diffs, ", "),
		}
	}
	return nil
}

func (h *Harness) assertCodeCache(a Assertion) error {
	if got := h.cpu.CodeCacheSize(); got != *a.Bytes {
		return &AssertionError{
			Type:     AssertCodeCache,
			Expected: fmt.Sprintf("%d bytes", *a.Bytes),
			Actual:   fmt.Sprintf("%d bytes", got),
		}
	}
	return nil
}

// evaluateAssertions evaluates all assertions against the harness state.
// Returns a slice of error messages for failed assertions.
func (h *Harness) evaluateAssertions(assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertExitCount:
			err = assertExitCount(h.result.Trace, assertion)
		case AssertGuardFailures:
			err = h.assertGuardFailures(assertion)
		case AssertCounters:
			err = h.assertCounters(assertion)
		case AssertCodeCache:
			err = h.assertCodeCache(assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
