package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/roach88/tracejit/internal/backend"
	"github.com/roach88/tracejit/internal/ir"
	"github.com/roach88/tracejit/internal/tracetext"
)

// loadTrace reads and parses a trace file in ns.
func loadTrace(path string, ns *tracetext.Namespace) (*tracetext.Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read trace", err)
	}
	tr, err := tracetext.Parse(string(data), ns)
	if err != nil {
		return nil, WrapExitError(ExitFailure, fmt.Sprintf("%s: parse error", path), err)
	}
	return tr, nil
}

// parseInput converts a command-line value to kind: integers in any Go
// base, floats including inf and nan, and null for references.
func parseInput(kind ir.Kind, s string) (ir.Value, error) {
	switch kind {
	case ir.KindInt:
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return ir.Value{}, fmt.Errorf("bad integer %q", s)
		}
		return ir.IntValue(n), nil
	case ir.KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return ir.Value{}, fmt.Errorf("bad float %q", s)
		}
		return ir.FloatValue(f), nil
	case ir.KindRef:
		if s != "null" {
			return ir.Value{}, fmt.Errorf("reference inputs must be null, got %q", s)
		}
		return ir.RefValue(nil), nil
	}
	return ir.Value{}, fmt.Errorf("cannot pass a %s input", kind)
}

// renderValues formats exit values, with _ for holes.
func renderValues(vals []ir.Value) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		if v.Kind == ir.KindVoid {
			out[i] = "_"
			continue
		}
		out[i] = v.String()
	}
	return out
}

// errorCode returns the code of a backend error and its details: every
// structural violation, or the runtime error itself.
func errorCode(err error) (string, any) {
	if ses := backend.StructuralErrors(err); len(ses) > 0 {
		return ses[0].Code, ses
	}
	var re *backend.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code), nil
	}
	return "ERROR", nil
}

// splitBridge splits a --bridge value of the form guard=path.
func splitBridge(s string) (guard, path string, err error) {
	guard, path, ok := strings.Cut(s, "=")
	if !ok || guard == "" || path == "" {
		return "", "", fmt.Errorf("bridge %q: expected guard=path", s)
	}
	return guard, path, nil
}
