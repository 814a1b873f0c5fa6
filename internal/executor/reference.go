package executor

import (
	"errors"
	"fmt"

	"github.com/roach88/tracejit/internal/ir"
)

// DefaultMaxSteps bounds the operations Evaluate executes.
const DefaultMaxSteps = 1_000_000

// ErrUnsupported is returned for operations the reference evaluator does
// not model.
var ErrUnsupported = errors.New("unsupported by reference evaluator")

// Outcome is the exit a trace took.
type Outcome struct {
	// OpIndex is the index of the guard or FINISH that exited.
	OpIndex int
	Descr   ir.FailDescr
	Values  []ir.Value
}

type config struct {
	maxSteps int
}

// Option configures Evaluate.
type Option func(*config)

// WithMaxSteps bounds the executed operations.
func WithMaxSteps(n int) Option {
	return func(c *config) { c.maxSteps = n }
}

// Evaluate runs a trace naively and reports its exit. Values at hole
// positions are void.
func Evaluate(inputs []*ir.Box, ops []*ir.ResOp, args []ir.Value, opts ...Option) (out *Outcome, err error) {
	cfg := config{maxSteps: DefaultMaxSteps}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(args) != len(inputs) {
		return nil, fmt.Errorf("evaluate: %d arguments for %d inputs", len(args), len(inputs))
	}

	defer func() {
		if r := recover(); r != nil {
			var f *Fault
			if e, ok := r.(error); ok && errors.As(e, &f) {
				err = fmt.Errorf("evaluate: %w", f)
				return
			}
			panic(r)
		}
	}()

	env := make(map[*ir.Box]ir.Value, len(inputs)+len(ops))
	for i, b := range inputs {
		env[b] = args[i]
	}
	read := func(o ir.Operand) (ir.Value, error) {
		switch v := o.(type) {
		case ir.Const:
			return v.Value(), nil
		case *ir.Box:
			val, ok := env[v]
			if !ok {
				return ir.Value{}, fmt.Errorf("evaluate: box read before definition")
			}
			return val, nil
		default:
			return ir.Value{}, fmt.Errorf("evaluate: unknown operand %T", o)
		}
	}
	exit := func(i int, op *ir.ResOp, boxes []*ir.Box) *Outcome {
		vals := make([]ir.Value, len(boxes))
		for j, b := range boxes {
			if b != nil {
				vals[j] = env[b]
			}
		}
		return &Outcome{OpIndex: i, Descr: op.FailDescr(), Values: vals}
	}

	overflow := false
	steps := 0
	for pc := 0; pc < len(ops); pc++ {
		steps++
		if steps > cfg.maxSteps {
			return nil, fmt.Errorf("evaluate: exceeded %d steps", cfg.maxSteps)
		}
		op := ops[pc]
		vals := make([]ir.Value, op.NumArgs())
		for j, a := range op.Args() {
			v, err := read(a)
			if err != nil {
				return nil, err
			}
			vals[j] = v
		}

		code := op.Opcode()
		switch {
		case code == ir.OpFinish:
			return &Outcome{OpIndex: pc, Descr: op.FailDescr(), Values: vals}, nil

		case code == ir.OpJump:
			if op.Descr() != nil {
				return nil, fmt.Errorf("evaluate: jump to another loop: %w", ErrUnsupported)
			}
			for j, b := range inputs {
				env[b] = vals[j]
			}
			pc = -1
			continue

		case code.IsGuard():
			if !guardHolds(code, vals, overflow) {
				return exit(pc, op, op.FailArgs()), nil
			}
			continue
		}

		res, ovf, err := Eval(code, vals)
		if err != nil {
			return nil, err
		}
		overflow = ovf
		if r := op.Result(); r != nil {
			env[r] = res
		}
	}
	return nil, fmt.Errorf("evaluate: trace fell off the end")
}

func guardHolds(code ir.Opcode, vals []ir.Value, overflow bool) bool {
	switch code {
	case ir.OpGuardTrue:
		return vals[0].Int != 0
	case ir.OpGuardFalse:
		return vals[0].Int == 0
	case ir.OpGuardValue:
		return vals[0].Same(vals[1])
	case ir.OpGuardNonnull:
		return vals[0].Ref != nil
	case ir.OpGuardIsnull:
		return vals[0].Ref == nil
	case ir.OpGuardNoOverflow:
		return !overflow
	case ir.OpGuardOverflow:
		return overflow
	default:
		return false
	}
}

// Eval computes one pure or overflow-checked operation. The boolean result
// is the overflow flag, meaningful only for *_OVF opcodes.
func Eval(code ir.Opcode, vals []ir.Value) (ir.Value, bool, error) {
	if fn, ok := intBinary[code]; ok {
		return ir.IntValue(fn(vals[0].Int, vals[1].Int)), false, nil
	}
	if fn, ok := intUnary[code]; ok {
		return ir.IntValue(fn(vals[0].Int)), false, nil
	}
	if fn, ok := intOvf[code]; ok {
		r, ovf := fn(vals[0].Int, vals[1].Int)
		return ir.IntValue(r), ovf, nil
	}
	if fn, ok := floatBinary[code]; ok {
		return ir.FloatValue(fn(vals[0].Float, vals[1].Float)), false, nil
	}
	if fn, ok := floatUnary[code]; ok {
		return ir.FloatValue(fn(vals[0].Float)), false, nil
	}
	if fn, ok := floatCompare[code]; ok {
		return ir.IntValue(b2i(fn(vals[0].Float, vals[1].Float))), false, nil
	}
	switch code {
	case ir.OpFloatIsTrue:
		return ir.IntValue(FloatIsTrue(vals[0].Float)), false, nil
	case ir.OpCastFloatToInt:
		return ir.IntValue(FloatToInt(vals[0].Float)), false, nil
	case ir.OpCastIntToFloat:
		return ir.FloatValue(float64(vals[0].Int)), false, nil
	case ir.OpPtrEq:
		return ir.IntValue(b2i(vals[0].Ref == vals[1].Ref)), false, nil
	case ir.OpPtrNe:
		return ir.IntValue(b2i(vals[0].Ref != vals[1].Ref)), false, nil
	case ir.OpPtrIsnull:
		return ir.IntValue(b2i(vals[0].Ref == nil)), false, nil
	case ir.OpPtrNonnull:
		return ir.IntValue(b2i(vals[0].Ref != nil)), false, nil
	case ir.OpCastPtrToInt:
		return ir.IntValue(vals[0].Ref.Addr()), false, nil
	case ir.OpSameAs:
		return vals[0], false, nil
	case ir.OpDebugMergePoint:
		return ir.Value{}, false, nil
	}
	return ir.Value{}, false, fmt.Errorf("evaluate: %s: %w", code, ErrUnsupported)
}
