package backend

import (
	"errors"
	"fmt"

	"github.com/roach88/tracejit/internal/heap"
)

// Structural error codes (E200-E299). A structural error means the trace
// producer built an ill-formed trace; nothing is installed.
const (
	ErrEmptyTrace         = "E200" // trace has no operations
	ErrNotTerminated      = "E201" // last operation is not JUMP or FINISH
	ErrFinalNotLast       = "E202" // JUMP or FINISH before the end
	ErrArity              = "E203" // wrong operand count
	ErrOperandKind        = "E204" // operand of the wrong kind
	ErrUndefinedBox       = "E205" // box read before it is produced
	ErrRedefinedBox       = "E206" // box produced twice
	ErrDuplicateInput     = "E207" // box listed twice among the inputs
	ErrResult             = "E208" // missing, unexpected or mistyped result
	ErrDescr              = "E209" // missing descriptor or capability
	ErrFailArgs           = "E210" // guard fail arguments unset or undefined
	ErrOvfPairing         = "E211" // *_OVF not followed by an overflow guard
	ErrOvfGuardPlacement  = "E212" // overflow guard not directly after *_OVF
	ErrForcePairing       = "E213" // may-force call not followed by GUARD_NOT_FORCED
	ErrNotForcedPlacement = "E214" // GUARD_NOT_FORCED not after a may-force call
	ErrJumpSignature      = "E215" // jump arguments do not match the target inputs
	ErrJumpTarget         = "E216" // jump or call target not compiled or freed
	ErrBridgeInputs       = "E217" // bridge inputs do not match the guard's fail arguments
	ErrUnknownGuard       = "E218" // fail descr is not a live guard of the token
	ErrGuardBridged       = "E219" // guard already has a bridge
	ErrRawPointer         = "E220" // raw access to a pointer field or item
	ErrExcGuardPlacement  = "E221" // exception guard not at a call checkpoint
	ErrRedirectSignature  = "E222" // redirect between tokens of different inputs
	ErrFreedToken         = "E223" // token is not compiled or already freed
	ErrInvalidOpcode      = "E224" // opcode outside the closed set
	ErrVoidBox            = "E225" // box of kind void used as a value
	ErrCallSignature      = "E226" // call arguments do not match the descriptor
	ErrDuplicateFailDescr = "E227" // fail descr already used by another live guard
	ErrUnknownClass       = "E228" // vtable address not registered on the heap
	ErrConstClassRequired = "E229" // class operand must be a literal
)

// StructuralError describes one structural violation of a trace.
type StructuralError struct {
	Code    string `json:"code"`
	OpIndex int    `json:"op_index"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	if e.OpIndex >= 0 {
		return fmt.Sprintf("[%s] op %d (%s): %s", e.Code, e.OpIndex, e.Op, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// IsStructuralError reports whether err contains a StructuralError.
// Uses errors.As to handle wrapped and joined errors.
func IsStructuralError(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// StructuralErrors flattens every StructuralError in err, in order.
func StructuralErrors(err error) []*StructuralError {
	var out []*StructuralError
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if se, ok := e.(*StructuralError); ok {
			out = append(out, se)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeZeroDivision indicates integer division or modulo by zero.
	ErrCodeZeroDivision RuntimeErrorCode = "ZERO_DIVISION"

	// ErrCodeMemoryFault indicates an out-of-range or null memory access.
	ErrCodeMemoryFault RuntimeErrorCode = "MEMORY_FAULT"

	// ErrCodeFreedToken indicates execution of a freed or uncompiled token.
	ErrCodeFreedToken RuntimeErrorCode = "FREED_TOKEN"

	// ErrCodeBadInput indicates a missing or mistyped staged input.
	ErrCodeBadInput RuntimeErrorCode = "BAD_INPUT"

	// ErrCodeBadFunction indicates a call to an unregistered address.
	ErrCodeBadFunction RuntimeErrorCode = "BAD_FUNCTION"

	// ErrCodeForeignCall indicates a foreign function failed with an error
	// that is not a Raise.
	ErrCodeForeignCall RuntimeErrorCode = "FOREIGN_CALL"

	// ErrCodeNoAssemblerHelper indicates call_assembler reached a slow
	// path with no helper configured.
	ErrCodeNoAssemblerHelper RuntimeErrorCode = "NO_ASSEMBLER_HELPER"

	// ErrCodeCallDepth indicates nested call_assembler exceeded the limit.
	ErrCodeCallDepth RuntimeErrorCode = "CALL_DEPTH"

	// ErrCodeUnknownClass indicates a vtable address with no class.
	ErrCodeUnknownClass RuntimeErrorCode = "UNKNOWN_CLASS"

	// ErrCodeForce indicates a misuse of Force.
	ErrCodeForce RuntimeErrorCode = "FORCE"

	// ErrCodeInternal indicates a Go runtime panic inside compiled code or
	// a foreign function, such as an index out of range.
	ErrCodeInternal RuntimeErrorCode = "INTERNAL"
)

// RuntimeError is a fault raised while executing compiled code. Guard
// failures are not runtime errors.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Loop is the number of the executing loop, zero if unknown.
	Loop int64

	// OpIndex is the index of the faulting operation, -1 if unknown.
	OpIndex int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Loop != 0 && e.OpIndex >= 0 {
		return fmt.Sprintf("%s: %s (loop=%d, op=%d)", e.Code, e.Message, e.Loop, e.OpIndex)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error { return e.Err }

// IsRuntimeError reports whether err contains a RuntimeError.
func IsRuntimeError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re)
}

// IsZeroDivision reports whether err is a division-by-zero fault.
func IsZeroDivision(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeZeroDivision
	}
	return false
}

// IsMemoryFault reports whether err is an invalid memory access.
func IsMemoryFault(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeMemoryFault
	}
	return false
}

func newRuntimeError(code RuntimeErrorCode, format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: code, Message: fmt.Sprintf(format, args...), OpIndex: -1}
}

// Raise is returned by a foreign function to raise an exception in the
// calling trace. The exception stays pending until a guard consumes it or
// the engine's GrabExcValue takes it.
type Raise struct {
	// Class is the exception class. When nil, the class of Value is used.
	Class *heap.Class
	Value heap.Ref
}

// Error implements the error interface.
func (r *Raise) Error() string {
	return fmt.Sprintf("raise %s", r.class())
}

func (r *Raise) class() *heap.Class {
	if r.Class != nil {
		return r.Class
	}
	if r.Value != nil {
		return r.Value.Class()
	}
	return nil
}
