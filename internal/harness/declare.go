package harness

import (
	"errors"
	"fmt"

	"github.com/roach88/tracejit/internal/backend"
	"github.com/roach88/tracejit/internal/descr"
	"github.com/roach88/tracejit/internal/heap"
	"github.com/roach88/tracejit/internal/ir"
	"github.com/roach88/tracejit/internal/tracetext"
)

// errFailCalled is what the "fail" builtin returns.
var errFailCalled = errors.New("fail called")

// builtins are the foreign functions a scenario can declare by name.
// Each takes the CPU so it can raise or force.
var builtins = map[string]func(cpu *backend.CPU) backend.Func{
	"add": func(*backend.CPU) backend.Func {
		return func(args []ir.Value) (ir.Value, error) {
			var sum int64
			for _, a := range args {
				sum += a.Int
			}
			return ir.IntValue(sum), nil
		}
	},
	"neg": func(*backend.CPU) backend.Func {
		return func(args []ir.Value) (ir.Value, error) {
			if len(args) != 1 {
				return ir.Value{}, fmt.Errorf("neg takes 1 argument, got %d", len(args))
			}
			return ir.IntValue(-args[0].Int), nil
		}
	},
	"fail": func(*backend.CPU) backend.Func {
		return func([]ir.Value) (ir.Value, error) {
			return ir.Value{}, errFailCalled
		}
	},
	// raise(vtable) raises a fresh instance of the class at vtable.
	"raise": func(cpu *backend.CPU) backend.Func {
		return func(args []ir.Value) (ir.Value, error) {
			if len(args) != 1 {
				return ir.Value{}, fmt.Errorf("raise takes 1 argument, got %d", len(args))
			}
			cls, ok := cpu.Heap().ClassAt(args[0].Int)
			if !ok {
				return ir.Value{}, fmt.Errorf("raise: no class at %#x", args[0].Int)
			}
			return ir.Value{}, &backend.Raise{Class: cls, Value: cpu.Heap().NewInstance(cls)}
		}
	},
	// force(token, v) forces the calling frame and returns v.
	"force": func(cpu *backend.CPU) backend.Func {
		return func(args []ir.Value) (ir.Value, error) {
			if len(args) == 0 {
				return ir.Value{}, fmt.Errorf("force needs a force token")
			}
			if _, err := cpu.Force(args[0].Int); err != nil {
				return ir.Value{}, err
			}
			if len(args) > 1 {
				return args[1], nil
			}
			return ir.IntValue(0), nil
		}
	},
}

// declare registers d on cpu and fills ns. The DoneWithThisFrame
// descriptors are always declared.
func declare(cpu *backend.CPU, ns *tracetext.Namespace, d Declarations) error {
	h := cpu.Heap()
	reg := descr.NewRegistry()

	// done_void, done_int, done_ref and done_float
	for _, k := range []ir.Kind{ir.KindVoid, ir.KindInt, ir.KindRef, ir.KindFloat} {
		d := cpu.DoneWithThisFrame(k)
		ns.Descrs[d.Repr()] = d
	}

	for _, c := range d.Classes {
		if c.Name == "" || c.Size < 0 {
			return fmt.Errorf("class %q: name and a non-negative size are required", c.Name)
		}
		ns.Classes[c.Name] = h.RegisterClass(c.Name, c.Size)
	}

	for _, s := range d.Structs {
		fields := make([]descr.Field, 0, len(s.Fields))
		for _, f := range s.Fields {
			t, ok := descr.TypeByName(f.Type)
			if !ok || t.Kind == ir.KindVoid {
				return fmt.Errorf("struct %s: field %s: unknown type %q", s.Name, f.Name, f.Type)
			}
			fields = append(fields, descr.F(f.Name, t))
		}
		st := descr.NewStruct(s.Name, fields...)
		ns.Descrs[s.Name] = reg.SizeDescrOf(st)
		for _, f := range s.Fields {
			fd, err := reg.FieldDescrOf(st, f.Name)
			if err != nil {
				return fmt.Errorf("struct %s: %w", s.Name, err)
			}
			ns.Descrs[s.Name+"."+f.Name] = fd
		}
	}

	for _, a := range d.Arrays {
		t, ok := descr.TypeByName(a.Item)
		if !ok || t.Kind == ir.KindVoid {
			return fmt.Errorf("array %s: unknown item type %q", a.Name, a.Item)
		}
		ns.Descrs[a.Name] = reg.ArrayDescrOf(t)
	}

	for _, c := range d.Calls {
		result := byte('v')
		if c.Result != "" {
			result = c.Result[0]
		}
		cd, err := reg.CallDescrDynamic(c.Args, result)
		if err != nil {
			return fmt.Errorf("call %s: %w", c.Name, err)
		}
		ns.Descrs[c.Name] = cd
	}

	for _, name := range d.Functions {
		mk, ok := builtins[name]
		if !ok {
			return fmt.Errorf("unknown function %q", name)
		}
		ns.Ints[name] = cpu.RegisterFunc(name, mk(cpu))
	}

	for _, o := range d.Objects {
		var obj heap.Ref
		switch {
		case o.Class != "" && o.Str != "":
			return fmt.Errorf("object %s: class and str are exclusive", o.Name)
		case o.Class != "":
			cls, ok := ns.Classes[o.Class]
			if !ok {
				return fmt.Errorf("object %s: unknown class %q", o.Name, o.Class)
			}
			obj = h.NewInstance(cls)
		default:
			obj = h.StrFrom(o.Str)
		}
		ns.Ptrs[o.Name] = obj
	}
	return nil
}
