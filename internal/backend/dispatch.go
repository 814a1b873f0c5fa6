package backend

import (
	"github.com/roach88/tracejit/internal/executor"
	"github.com/roach88/tracejit/internal/ir"
)

// handlers maps each opcode to its implementation. Opcodes with generic
// integer or float semantics share one handler; the instr carries the
// operation itself.
var handlers [ir.OpcodeCount]handler

func init() {
	for _, op := range ir.Opcodes() {
		if _, ok := executor.IntBinary(op); ok {
			handlers[op] = execIntBinary
		}
		if _, ok := executor.IntUnary(op); ok {
			handlers[op] = execIntUnary
		}
		if _, ok := executor.IntOvf(op); ok {
			handlers[op] = execIntOvf
		}
		if _, ok := executor.FloatBinary(op); ok {
			handlers[op] = execFloatBinary
		}
		if _, ok := executor.FloatUnary(op); ok {
			handlers[op] = execFloatUnary
		}
		if _, ok := executor.FloatCompare(op); ok {
			handlers[op] = execFloatCompare
		}
	}

	for op, h := range map[ir.Opcode]handler{
		ir.OpJump:   execJump,
		ir.OpFinish: execFinish,

		ir.OpGuardTrue:         execGuardTrue,
		ir.OpGuardFalse:        execGuardFalse,
		ir.OpGuardValue:        execGuardValue,
		ir.OpGuardClass:        execGuardClass,
		ir.OpGuardNonnull:      execGuardNonnull,
		ir.OpGuardIsnull:       execGuardIsnull,
		ir.OpGuardNonnullClass: execGuardClass,
		ir.OpGuardNoException:  execGuardNoException,
		ir.OpGuardException:    execGuardException,
		ir.OpGuardNoOverflow:   execGuardNoOverflow,
		ir.OpGuardOverflow:     execGuardOverflow,
		ir.OpGuardNotForced:    execGuardNotForced,

		ir.OpFloatIsTrue:    execFloatIsTrue,
		ir.OpCastFloatToInt: execCastFloatToInt,
		ir.OpCastIntToFloat: execCastIntToFloat,

		ir.OpPtrEq:        execPtrEq,
		ir.OpPtrNe:        execPtrNe,
		ir.OpPtrIsnull:    execPtrIsnull,
		ir.OpPtrNonnull:   execPtrNonnull,
		ir.OpCastPtrToInt: execCastPtrToInt,
		ir.OpSameAs:       execSameAs,

		ir.OpNew:                execNew,
		ir.OpNewWithVtable:      execNewWithVtable,
		ir.OpNewArray:           execNewArray,
		ir.OpNewStr:             execNewStr,
		ir.OpNewUnicode:         execNewUnicode,
		ir.OpGetfieldGC:         execGetfieldGC,
		ir.OpSetfieldGC:         execSetfieldGC,
		ir.OpArraylenGC:         execArraylenGC,
		ir.OpGetarrayitemGC:     execGetarrayitemGC,
		ir.OpSetarrayitemGC:     execSetarrayitemGC,
		ir.OpStrlen:             execStrlen,
		ir.OpStrgetitem:         execStrgetitem,
		ir.OpStrsetitem:         execStrsetitem,
		ir.OpUnicodelen:         execStrlen,
		ir.OpUnicodegetitem:     execStrgetitem,
		ir.OpUnicodesetitem:     execStrsetitem,
		ir.OpCopystrcontent:     execCopyContent,
		ir.OpCopyunicodecontent: execCopyContent,

		ir.OpGetfieldRaw:     execGetfieldRaw,
		ir.OpSetfieldRaw:     execSetfieldRaw,
		ir.OpGetarrayitemRaw: execGetarrayitemRaw,
		ir.OpSetarrayitemRaw: execSetarrayitemRaw,

		ir.OpCondCallGCWB: execCondCallGCWB,

		ir.OpCall:          execCall,
		ir.OpCallMayForce:  execCall,
		ir.OpCallAssembler: execCallAssembler,
		ir.OpForceToken:    execForceToken,

		ir.OpDebugMergePoint: execNop,
	} {
		handlers[op] = h
	}
}
