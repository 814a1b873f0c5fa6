package descr

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/tracejit/internal/heap"
	"github.com/roach88/tracejit/internal/ir"
)

type fieldKey struct {
	s    *Struct
	name string
}

type callKey struct {
	args   string
	result ir.Kind
	size   int
	signed bool
}

// Registry interns descriptors. It is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	fields map[fieldKey]*FieldDescr
	arrays map[Type]*ArrayDescr
	sizes  map[*Struct]*SizeDescr
	calls  map[callKey]*CallDescr
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		fields: make(map[fieldKey]*FieldDescr),
		arrays: make(map[Type]*ArrayDescr),
		sizes:  make(map[*Struct]*SizeDescr),
		calls:  make(map[callKey]*CallDescr),
	}
}

// FieldDescrOf returns the descriptor of field name in s.
func (r *Registry) FieldDescrOf(s *Struct, name string) (*FieldDescr, error) {
	t, off, err := s.field(name)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	k := fieldKey{s: s, name: name}
	if d, ok := r.fields[k]; ok {
		return d, nil
	}
	d := &FieldDescr{Struct: s, Name: name, Type: t, Offset: off}
	r.fields[k] = d
	return d, nil
}

// ArrayDescrOf returns the descriptor for arrays of item.
func (r *Registry) ArrayDescrOf(item Type) *ArrayDescr {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.arrays[item]; ok {
		return d
	}
	d := &ArrayDescr{Item: item}
	r.arrays[item] = d
	return d
}

// SizeDescrOf returns the size descriptor of s.
func (r *Registry) SizeDescrOf(s *Struct) *SizeDescr {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.sizes[s]; ok {
		return d
	}
	d := &SizeDescr{Struct: s}
	r.sizes[s] = d
	return d
}

// CallDescrOf returns the descriptor for a statically typed signature.
func (r *Registry) CallDescrOf(args []Type, result Type) *CallDescr {
	kinds := make([]byte, len(args))
	for i, a := range args {
		kinds[i] = a.Kind.Char()
	}
	size, signed := result.Size, result.Signed
	if result.Kind != ir.KindInt {
		size, signed = resultWidth(result.Kind)
	}
	return r.internCall(callKey{args: string(kinds), result: result.Kind, size: size, signed: signed})
}

// CallDescrDynamic returns the descriptor for a signature given as kind
// letters, for example ("ii", 'i'). Integer results are full-width signed
// words, so CallDescrDynamic("ii", 'i') is the same descriptor as
// CallDescrOf([Signed, Signed], Signed).
func (r *Registry) CallDescrDynamic(args string, result byte) (*CallDescr, error) {
	for i := 0; i < len(args); i++ {
		k, ok := ir.KindFromChar(args[i])
		if !ok || k == ir.KindVoid {
			return nil, fmt.Errorf("call signature %q: bad argument kind %q", args, args[i])
		}
	}
	rk, ok := ir.KindFromChar(result)
	if !ok {
		return nil, fmt.Errorf("call signature %q: bad result kind %q", args, result)
	}
	size, signed := resultWidth(rk)
	return r.internCall(callKey{args: args, result: rk, size: size, signed: signed}), nil
}

func resultWidth(k ir.Kind) (int, bool) {
	switch k {
	case ir.KindVoid:
		return 0, false
	case ir.KindInt:
		return heap.WordSize, true
	default:
		return heap.WordSize, false
	}
}

func (r *Registry) internCall(k callKey) *CallDescr {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.calls[k]; ok {
		return d
	}
	args := make([]ir.Kind, len(k.args))
	for i := 0; i < len(k.args); i++ {
		args[i], _ = ir.KindFromChar(k.args[i])
	}
	d := &CallDescr{args: args, result: k.result, size: k.size, signed: k.signed}
	r.calls[k] = d
	slog.Debug("call descr interned", "signature", d.Repr())
	return d
}
