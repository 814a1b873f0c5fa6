package executor

import (
	"fmt"
	"math"

	"github.com/roach88/tracejit/internal/ir"
)

// FaultCode identifies an arithmetic fault.
type FaultCode string

// FaultZeroDivision is integer division or modulo by zero.
const FaultZeroDivision FaultCode = "ZERO_DIVISION"

// Fault is an arithmetic fault raised by an operation.
type Fault struct {
	Code    FaultCode
	Message string
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func floorDiv(a, b int64) int64 {
	if b == 0 {
		panic(&Fault{Code: FaultZeroDivision, Message: fmt.Sprintf("%d // 0", a)})
	}
	return a / b
}

func mod(a, b int64) int64 {
	if b == 0 {
		panic(&Fault{Code: FaultZeroDivision, Message: fmt.Sprintf("%d %% 0", a)})
	}
	return a % b
}

var intBinary = map[ir.Opcode]func(a, b int64) int64{
	ir.OpIntAdd:      func(a, b int64) int64 { return a + b },
	ir.OpIntSub:      func(a, b int64) int64 { return a - b },
	ir.OpIntMul:      func(a, b int64) int64 { return a * b },
	ir.OpIntFloorDiv: floorDiv,
	ir.OpIntMod:      mod,
	ir.OpIntAnd:      func(a, b int64) int64 { return a & b },
	ir.OpIntOr:       func(a, b int64) int64 { return a | b },
	ir.OpIntXor:      func(a, b int64) int64 { return a ^ b },
	ir.OpIntLshift:   func(a, b int64) int64 { return a << (uint64(b) & 63) },
	ir.OpIntRshift:   func(a, b int64) int64 { return a >> (uint64(b) & 63) },
	ir.OpUintRshift:  func(a, b int64) int64 { return int64(uint64(a) >> (uint64(b) & 63)) },
	ir.OpIntLt:       func(a, b int64) int64 { return b2i(a < b) },
	ir.OpIntLe:       func(a, b int64) int64 { return b2i(a <= b) },
	ir.OpIntEq:       func(a, b int64) int64 { return b2i(a == b) },
	ir.OpIntNe:       func(a, b int64) int64 { return b2i(a != b) },
	ir.OpIntGt:       func(a, b int64) int64 { return b2i(a > b) },
	ir.OpIntGe:       func(a, b int64) int64 { return b2i(a >= b) },
	ir.OpUintLt:      func(a, b int64) int64 { return b2i(uint64(a) < uint64(b)) },
	ir.OpUintLe:      func(a, b int64) int64 { return b2i(uint64(a) <= uint64(b)) },
	ir.OpUintGt:      func(a, b int64) int64 { return b2i(uint64(a) > uint64(b)) },
	ir.OpUintGe:      func(a, b int64) int64 { return b2i(uint64(a) >= uint64(b)) },
}

var intUnary = map[ir.Opcode]func(a int64) int64{
	ir.OpIntIsTrue: func(a int64) int64 { return b2i(a != 0) },
	ir.OpIntNeg:    func(a int64) int64 { return -a },
	ir.OpIntInvert: func(a int64) int64 { return ^a },
	ir.OpBoolNot:   func(a int64) int64 { return b2i(a == 0) },
}

var intOvf = map[ir.Opcode]func(a, b int64) (int64, bool){
	ir.OpIntAddOvf: AddOvf,
	ir.OpIntSubOvf: SubOvf,
	ir.OpIntMulOvf: MulOvf,
}

var floatBinary = map[ir.Opcode]func(a, b float64) float64{
	ir.OpFloatAdd:     func(a, b float64) float64 { return a + b },
	ir.OpFloatSub:     func(a, b float64) float64 { return a - b },
	ir.OpFloatMul:     func(a, b float64) float64 { return a * b },
	ir.OpFloatTrueDiv: func(a, b float64) float64 { return a / b },
}

var floatUnary = map[ir.Opcode]func(a float64) float64{
	ir.OpFloatNeg: func(a float64) float64 { return -a },
	ir.OpFloatAbs: math.Abs,
}

var floatCompare = map[ir.Opcode]func(a, b float64) bool{
	ir.OpFloatLt: func(a, b float64) bool { return a < b },
	ir.OpFloatLe: func(a, b float64) bool { return a <= b },
	ir.OpFloatEq: func(a, b float64) bool { return a == b },
	ir.OpFloatNe: func(a, b float64) bool { return a != b },
	ir.OpFloatGt: func(a, b float64) bool { return a > b },
	ir.OpFloatGe: func(a, b float64) bool { return a >= b },
}

// IntBinary returns the semantics of a two-operand integer opcode.
func IntBinary(op ir.Opcode) (func(a, b int64) int64, bool) {
	fn, ok := intBinary[op]
	return fn, ok
}

// IntUnary returns the semantics of a one-operand integer opcode.
func IntUnary(op ir.Opcode) (func(a int64) int64, bool) {
	fn, ok := intUnary[op]
	return fn, ok
}

// IntOvf returns the semantics of an overflow-checked opcode. The boolean
// result reports signed overflow; the integer result is the wrapped value.
func IntOvf(op ir.Opcode) (func(a, b int64) (int64, bool), bool) {
	fn, ok := intOvf[op]
	return fn, ok
}

// FloatBinary returns the semantics of a two-operand float opcode.
func FloatBinary(op ir.Opcode) (func(a, b float64) float64, bool) {
	fn, ok := floatBinary[op]
	return fn, ok
}

// FloatUnary returns the semantics of a one-operand float opcode.
func FloatUnary(op ir.Opcode) (func(a float64) float64, bool) {
	fn, ok := floatUnary[op]
	return fn, ok
}

// FloatCompare returns the semantics of a float comparison.
func FloatCompare(op ir.Opcode) (func(a, b float64) bool, bool) {
	fn, ok := floatCompare[op]
	return fn, ok
}

// AddOvf adds with overflow detection.
func AddOvf(a, b int64) (int64, bool) {
	r := a + b
	return r, (a > 0 && b > 0 && r < 0) || (a < 0 && b < 0 && r >= 0)
}

// SubOvf subtracts with overflow detection.
func SubOvf(a, b int64) (int64, bool) {
	r := a - b
	return r, (a >= 0 && b < 0 && r < 0) || (a < 0 && b > 0 && r >= 0)
}

// MulOvf multiplies with overflow detection.
func MulOvf(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}
	r := a * b
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return r, true
	}
	return r, r/b != a
}

// FloatToInt truncates toward zero. NaN and out-of-range values yield
// math.MinInt64, the integer-indefinite value of common hardware.
func FloatToInt(f float64) int64 {
	if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return math.MinInt64
	}
	return int64(f)
}

// FloatIsTrue reports whether f is non-zero. NaN is true.
func FloatIsTrue(f float64) int64 {
	return b2i(f != 0)
}
