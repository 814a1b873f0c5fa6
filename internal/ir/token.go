package ir

import (
	"fmt"
	"sync/atomic"
)

// CompiledUnit is the backend's compiled form of a loop, as seen through a
// LoopToken.
type CompiledUnit interface {
	InputKinds() []Kind
}

type unitRef struct {
	unit CompiledUnit
}

// LoopToken is the handle to one compiled loop. It is the jump and
// call_assembler target, the engine argument and the bridge anchor.
//
// The compiled unit behind a token is published atomically, so a
// redirection is observed by other goroutines either fully or not at all.
type LoopToken struct {
	number int64
	name   string
	target atomic.Pointer[unitRef]
}

// NewLoopToken returns an empty token. Backends assign the number.
func NewLoopToken(number int64) *LoopToken {
	return &LoopToken{number: number}
}

// Number returns the token's sequence number.
func (t *LoopToken) Number() int64 { return t.number }

// SetName attaches a display name.
func (t *LoopToken) SetName(name string) { t.name = name }

// Repr returns the display name or "loop<N>".
func (t *LoopToken) Repr() string {
	if t.name != "" {
		return t.name
	}
	return fmt.Sprintf("loop%d", t.number)
}

// Unit returns the compiled unit currently behind the token, or nil.
func (t *LoopToken) Unit() CompiledUnit {
	if r := t.target.Load(); r != nil {
		return r.unit
	}
	return nil
}

// Publish installs unit behind the token.
func (t *LoopToken) Publish(unit CompiledUnit) {
	t.target.Store(&unitRef{unit: unit})
}

// Retire removes the compiled unit from the token.
func (t *LoopToken) Retire() {
	t.target.Store(nil)
}

// InputKinds returns the input signature of the current unit, or nil.
func (t *LoopToken) InputKinds() []Kind {
	if u := t.Unit(); u != nil {
		return u.InputKinds()
	}
	return nil
}
