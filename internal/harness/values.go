package harness

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/roach88/tracejit/internal/backend"
	"github.com/roach88/tracejit/internal/heap"
	"github.com/roach88/tracejit/internal/ir"
)

// hole renders a fail-argument position with no value.
const hole = "_"

// inputs converts the YAML inputs of a run to values of the loop's input
// kinds.
func (h *Harness) inputs(boxes []*ir.Box, raw []any) ([]ir.Value, error) {
	if len(raw) != len(boxes) {
		return nil, fmt.Errorf("loop takes %d inputs, got %d", len(boxes), len(raw))
	}
	args := make([]ir.Value, len(raw))
	for j, v := range raw {
		val, err := h.input(boxes[j].Kind(), v)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", j, err)
		}
		args[j] = val
	}
	return args, nil
}

func (h *Harness) input(kind ir.Kind, v any) (ir.Value, error) {
	switch kind {
	case ir.KindInt:
		switch x := v.(type) {
		case int:
			return ir.IntValue(int64(x)), nil
		case int64:
			return ir.IntValue(x), nil
		case uint64:
			return ir.IntValue(int64(x)), nil
		case string:
			if n, ok := h.ns.Ints[x]; ok {
				return ir.IntValue(n), nil
			}
			if c, ok := h.ns.Classes[x]; ok {
				return ir.IntValue(c.Addr), nil
			}
		}
	case ir.KindFloat:
		switch x := v.(type) {
		case int:
			return ir.FloatValue(float64(x)), nil
		case float64:
			return ir.FloatValue(x), nil
		case string:
			switch x {
			case "inf":
				return ir.FloatValue(math.Inf(1)), nil
			case "-inf":
				return ir.FloatValue(math.Inf(-1)), nil
			case "nan":
				return ir.FloatValue(math.NaN()), nil
			}
		}
	case ir.KindRef:
		switch x := v.(type) {
		case nil:
			return ir.RefValue(nil), nil
		case string:
			if x == "null" {
				return ir.RefValue(nil), nil
			}
			if r, ok := h.ns.Ptrs[x]; ok {
				return ir.RefValue(r), nil
			}
		}
	}
	return ir.Value{}, fmt.Errorf("%v is not a %s value", v, kind)
}

// render formats exit values for traces and comparisons.
func (h *Harness) render(vals []ir.Value) []string {
	out := make([]string, len(vals))
	for j, v := range vals {
		out[j] = h.renderValue(v)
	}
	return out
}

func (h *Harness) renderValue(v ir.Value) string {
	switch v.Kind {
	case ir.KindInt:
		return strconv.FormatInt(v.Int, 10)
	case ir.KindFloat:
		return ir.FormatFloat(v.Float)
	case ir.KindRef:
		if v.Ref == nil {
			return "null"
		}
		if name, ok := h.ptrName(v.Ref); ok {
			return name
		}
		return "ptr"
	default:
		return hole
	}
}

func (h *Harness) ptrName(r heap.Ref) (string, bool) {
	for name, p := range h.ns.Ptrs {
		if p == r {
			return name, true
		}
	}
	return "", false
}

// expectedString renders an expected value from YAML.
func expectedString(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatInt(int64(x), 10)
	case float64:
		return ir.FormatFloat(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// valuesMatch compares rendered values. An integer expectation matches a
// float that formats to the same number.
func valuesMatch(want, got []string) bool {
	if len(want) != len(got) {
		return false
	}
	for j := range want {
		if want[j] == got[j] {
			continue
		}
		w, err1 := strconv.ParseFloat(want[j], 64)
		g, err2 := strconv.ParseFloat(got[j], 64)
		if err1 != nil || err2 != nil || w != g {
			return false
		}
	}
	return true
}

// errorCode returns the code of a structural or runtime error, or ""
// when err carries neither.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if ses := backend.StructuralErrors(err); len(ses) > 0 {
		return ses[0].Code
	}
	var re *backend.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return "ERROR"
}

// matchCode returns want when err carries it among its structural errors,
// and the first code otherwise.
func matchCode(err error, want string) string {
	for _, se := range backend.StructuralErrors(err) {
		if se.Code == want {
			return want
		}
	}
	return errorCode(err)
}
