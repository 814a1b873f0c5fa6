package tracetext

import (
	"strconv"
	"strings"

	"github.com/roach88/tracejit/internal/heap"
	"github.com/roach88/tracejit/internal/ir"
)

// Namespace resolves the names a trace refers to.
type Namespace struct {
	Descrs  map[string]ir.Descr
	Ptrs    map[string]heap.Ref
	Classes map[string]*heap.Class
	// Ints holds integer constants such as function addresses, used as
	// ConstInt(name).
	Ints map[string]int64

	nextID int64
}

// NewNamespace returns an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{
		Descrs:  make(map[string]ir.Descr),
		Ptrs:    make(map[string]heap.Ref),
		Classes: make(map[string]*heap.Class),
		Ints:    make(map[string]int64),
	}
}

// FailDescr returns the fail descriptor called name, if one is known.
func (ns *Namespace) FailDescr(name string) (ir.FailDescr, bool) {
	d, ok := ns.Descrs[name].(ir.FailDescr)
	return d, ok
}

// Token returns the loop token called name, if one is known.
func (ns *Namespace) Token(name string) (*ir.LoopToken, bool) {
	t, ok := ns.Descrs[name].(*ir.LoopToken)
	return t, ok
}

// failDescr returns the descriptor called name, creating it on first use.
// A created descriptor takes its identifier from the name's trailing
// digits ("fail12" is 12) or from a counter.
func (ns *Namespace) failDescr(name string) (ir.FailDescr, bool) {
	if d, ok := ns.Descrs[name]; ok {
		fd, isFail := d.(ir.FailDescr)
		return fd, isFail
	}
	fd := &ir.BasicFailDescr{ID: ns.idFor(name), Name: name}
	ns.Descrs[name] = fd
	return fd, true
}

func (ns *Namespace) anonymous() ir.FailDescr {
	ns.nextID++
	return ir.NewFailDescr(1000 + ns.nextID)
}

func (ns *Namespace) idFor(name string) int64 {
	digits := strings.TrimLeftFunc(name, func(r rune) bool { return r < '0' || r > '9' })
	if id, err := strconv.ParseInt(digits, 10, 64); err == nil && digits != "" {
		return id
	}
	ns.nextID++
	return 1000 + ns.nextID
}
