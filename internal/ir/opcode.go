package ir

import (
	"fmt"
	"strings"
)

// Opcode identifies an operation. The set is closed.
type Opcode uint8

const (
	OpInvalid Opcode = iota

	// control
	OpJump
	OpFinish

	// guards
	OpGuardTrue
	OpGuardFalse
	OpGuardValue
	OpGuardClass
	OpGuardNonnull
	OpGuardIsnull
	OpGuardNonnullClass
	OpGuardNoException
	OpGuardException
	OpGuardNoOverflow
	OpGuardOverflow
	OpGuardNotForced

	// integer
	OpIntAdd
	OpIntSub
	OpIntMul
	OpIntFloorDiv
	OpIntMod
	OpIntAnd
	OpIntOr
	OpIntXor
	OpIntLshift
	OpIntRshift
	OpUintRshift
	OpIntLt
	OpIntLe
	OpIntEq
	OpIntNe
	OpIntGt
	OpIntGe
	OpUintLt
	OpUintLe
	OpUintGt
	OpUintGe
	OpIntIsTrue
	OpIntNeg
	OpIntInvert
	OpBoolNot

	// overflow-checked
	OpIntAddOvf
	OpIntSubOvf
	OpIntMulOvf

	// float
	OpFloatAdd
	OpFloatSub
	OpFloatMul
	OpFloatTrueDiv
	OpFloatNeg
	OpFloatAbs
	OpFloatIsTrue
	OpFloatLt
	OpFloatLe
	OpFloatEq
	OpFloatNe
	OpFloatGt
	OpFloatGe
	OpCastFloatToInt
	OpCastIntToFloat

	// pointer
	OpPtrEq
	OpPtrNe
	OpPtrIsnull
	OpPtrNonnull
	OpCastPtrToInt
	OpSameAs

	// managed memory
	OpNew
	OpNewWithVtable
	OpNewArray
	OpNewStr
	OpNewUnicode
	OpGetfieldGC
	OpSetfieldGC
	OpArraylenGC
	OpGetarrayitemGC
	OpSetarrayitemGC
	OpStrlen
	OpStrgetitem
	OpStrsetitem
	OpUnicodelen
	OpUnicodegetitem
	OpUnicodesetitem
	OpCopystrcontent
	OpCopyunicodecontent

	// raw memory
	OpGetfieldRaw
	OpSetfieldRaw
	OpGetarrayitemRaw
	OpSetarrayitemRaw

	// gc
	OpCondCallGCWB

	// calls
	OpCall
	OpCallMayForce
	OpCallAssembler
	OpForceToken

	// debugging
	OpDebugMergePoint

	opCount
)

// ArgSpec is the static kind requirement of one operand position.
type ArgSpec uint8

const (
	ArgInt ArgSpec = iota + 1
	ArgRef
	ArgFloat
	// ArgAny is checked against the descriptor (stored values, call
	// arguments, jump arguments).
	ArgAny
	// ArgSameKind must have the kind of the first operand.
	ArgSameKind
)

// Kind returns the concrete kind for ArgInt, ArgRef and ArgFloat.
func (a ArgSpec) Kind() (Kind, bool) {
	switch a {
	case ArgInt:
		return KindInt, true
	case ArgRef:
		return KindRef, true
	case ArgFloat:
		return KindFloat, true
	default:
		return KindVoid, false
	}
}

// ResultSpec is the static result requirement of an opcode.
type ResultSpec uint8

const (
	ResultNone ResultSpec = iota
	ResultInt
	ResultRef
	ResultFloat
	// ResultFromDescr takes the kind of the field, array item or call
	// result named by the descriptor.
	ResultFromDescr
	// ResultSameAsArg takes the kind of the first operand.
	ResultSameAsArg
	// ResultAny accepts a result box of any kind, or none.
	ResultAny
)

// DescrNeed is the descriptor capability an opcode requires.
type DescrNeed uint8

const (
	DescrNone DescrNeed = iota
	DescrField
	DescrArray
	DescrSize
	DescrCall
	DescrFail
	DescrWriteBarrier
	DescrLoopToken
	// DescrJumpTarget is an optional *LoopToken; nil means the start of
	// the unit being compiled.
	DescrJumpTarget
	// DescrOptional accepts any descriptor or none.
	DescrOptional
)

// OpFlags are boolean facts about an opcode.
type OpFlags uint16

const (
	FlagGuard OpFlags = 1 << iota
	FlagFinal
	FlagOvf
	FlagOvfGuard
	FlagExcGuard
	FlagCall
	FlagMayForce
	FlagPure
	FlagBool
)

// OpInfo holds the static facts about one opcode.
type OpInfo struct {
	Name    string
	Args    []ArgSpec
	VarArgs ArgSpec
	Result  ResultSpec
	Descr   DescrNeed
	Flags   OpFlags
}

// Variadic reports whether operands beyond Args are accepted.
func (i *OpInfo) Variadic() bool { return i.VarArgs != 0 }

// Has reports whether all bits of f are set.
func (i *OpInfo) Has(f OpFlags) bool { return i.Flags&f == f }

var (
	ii   = []ArgSpec{ArgInt, ArgInt}
	i1   = []ArgSpec{ArgInt}
	ff   = []ArgSpec{ArgFloat, ArgFloat}
	f1   = []ArgSpec{ArgFloat}
	rr   = []ArgSpec{ArgRef, ArgRef}
	r1   = []ArgSpec{ArgRef}
	none = []ArgSpec{}
)

const (
	pureInt  = FlagPure
	pureBool = FlagPure | FlagBool
	guard    = FlagGuard
)

var opTable = [opCount]OpInfo{
	OpInvalid: {Name: "invalid"},

	OpJump:   {Name: "jump", Args: none, VarArgs: ArgAny, Descr: DescrJumpTarget, Flags: FlagFinal},
	OpFinish: {Name: "finish", Args: none, VarArgs: ArgAny, Descr: DescrFail, Flags: FlagFinal},

	OpGuardTrue:         {Name: "guard_true", Args: i1, Descr: DescrFail, Flags: guard},
	OpGuardFalse:        {Name: "guard_false", Args: i1, Descr: DescrFail, Flags: guard},
	OpGuardValue:        {Name: "guard_value", Args: []ArgSpec{ArgAny, ArgSameKind}, Descr: DescrFail, Flags: guard},
	OpGuardClass:        {Name: "guard_class", Args: []ArgSpec{ArgRef, ArgInt}, Descr: DescrFail, Flags: guard},
	OpGuardNonnull:      {Name: "guard_nonnull", Args: r1, Descr: DescrFail, Flags: guard},
	OpGuardIsnull:       {Name: "guard_isnull", Args: r1, Descr: DescrFail, Flags: guard},
	OpGuardNonnullClass: {Name: "guard_nonnull_class", Args: []ArgSpec{ArgRef, ArgInt}, Descr: DescrFail, Flags: guard},
	OpGuardNoException:  {Name: "guard_no_exception", Args: none, Descr: DescrFail, Flags: guard | FlagExcGuard},
	OpGuardException:    {Name: "guard_exception", Args: i1, Result: ResultRef, Descr: DescrFail, Flags: guard | FlagExcGuard},
	OpGuardNoOverflow:   {Name: "guard_no_overflow", Args: none, Descr: DescrFail, Flags: guard | FlagOvfGuard},
	OpGuardOverflow:     {Name: "guard_overflow", Args: none, Descr: DescrFail, Flags: guard | FlagOvfGuard},
	OpGuardNotForced:    {Name: "guard_not_forced", Args: none, Descr: DescrFail, Flags: guard},

	OpIntAdd:      {Name: "int_add", Args: ii, Result: ResultInt, Flags: pureInt},
	OpIntSub:      {Name: "int_sub", Args: ii, Result: ResultInt, Flags: pureInt},
	OpIntMul:      {Name: "int_mul", Args: ii, Result: ResultInt, Flags: pureInt},
	OpIntFloorDiv: {Name: "int_floordiv", Args: ii, Result: ResultInt, Flags: pureInt},
	OpIntMod:      {Name: "int_mod", Args: ii, Result: ResultInt, Flags: pureInt},
	OpIntAnd:      {Name: "int_and", Args: ii, Result: ResultInt, Flags: pureInt},
	OpIntOr:       {Name: "int_or", Args: ii, Result: ResultInt, Flags: pureInt},
	OpIntXor:      {Name: "int_xor", Args: ii, Result: ResultInt, Flags: pureInt},
	OpIntLshift:   {Name: "int_lshift", Args: ii, Result: ResultInt, Flags: pureInt},
	OpIntRshift:   {Name: "int_rshift", Args: ii, Result: ResultInt, Flags: pureInt},
	OpUintRshift:  {Name: "uint_rshift", Args: ii, Result: ResultInt, Flags: pureInt},
	OpIntLt:       {Name: "int_lt", Args: ii, Result: ResultInt, Flags: pureBool},
	OpIntLe:       {Name: "int_le", Args: ii, Result: ResultInt, Flags: pureBool},
	OpIntEq:       {Name: "int_eq", Args: ii, Result: ResultInt, Flags: pureBool},
	OpIntNe:       {Name: "int_ne", Args: ii, Result: ResultInt, Flags: pureBool},
	OpIntGt:       {Name: "int_gt", Args: ii, Result: ResultInt, Flags: pureBool},
	OpIntGe:       {Name: "int_ge", Args: ii, Result: ResultInt, Flags: pureBool},
	OpUintLt:      {Name: "uint_lt", Args: ii, Result: ResultInt, Flags: pureBool},
	OpUintLe:      {Name: "uint_le", Args: ii, Result: ResultInt, Flags: pureBool},
	OpUintGt:      {Name: "uint_gt", Args: ii, Result: ResultInt, Flags: pureBool},
	OpUintGe:      {Name: "uint_ge", Args: ii, Result: ResultInt, Flags: pureBool},
	OpIntIsTrue:   {Name: "int_is_true", Args: i1, Result: ResultInt, Flags: pureBool},
	OpIntNeg:      {Name: "int_neg", Args: i1, Result: ResultInt, Flags: pureInt},
	OpIntInvert:   {Name: "int_invert", Args: i1, Result: ResultInt, Flags: pureInt},
	OpBoolNot:     {Name: "bool_not", Args: i1, Result: ResultInt, Flags: pureBool},

	OpIntAddOvf: {Name: "int_add_ovf", Args: ii, Result: ResultInt, Flags: FlagOvf},
	OpIntSubOvf: {Name: "int_sub_ovf", Args: ii, Result: ResultInt, Flags: FlagOvf},
	OpIntMulOvf: {Name: "int_mul_ovf", Args: ii, Result: ResultInt, Flags: FlagOvf},

	OpFloatAdd:       {Name: "float_add", Args: ff, Result: ResultFloat, Flags: FlagPure},
	OpFloatSub:       {Name: "float_sub", Args: ff, Result: ResultFloat, Flags: FlagPure},
	OpFloatMul:       {Name: "float_mul", Args: ff, Result: ResultFloat, Flags: FlagPure},
	OpFloatTrueDiv:   {Name: "float_truediv", Args: ff, Result: ResultFloat, Flags: FlagPure},
	OpFloatNeg:       {Name: "float_neg", Args: f1, Result: ResultFloat, Flags: FlagPure},
	OpFloatAbs:       {Name: "float_abs", Args: f1, Result: ResultFloat, Flags: FlagPure},
	OpFloatIsTrue:    {Name: "float_is_true", Args: f1, Result: ResultInt, Flags: pureBool},
	OpFloatLt:        {Name: "float_lt", Args: ff, Result: ResultInt, Flags: pureBool},
	OpFloatLe:        {Name: "float_le", Args: ff, Result: ResultInt, Flags: pureBool},
	OpFloatEq:        {Name: "float_eq", Args: ff, Result: ResultInt, Flags: pureBool},
	OpFloatNe:        {Name: "float_ne", Args: ff, Result: ResultInt, Flags: pureBool},
	OpFloatGt:        {Name: "float_gt", Args: ff, Result: ResultInt, Flags: pureBool},
	OpFloatGe:        {Name: "float_ge", Args: ff, Result: ResultInt, Flags: pureBool},
	OpCastFloatToInt: {Name: "cast_float_to_int", Args: f1, Result: ResultInt, Flags: FlagPure},
	OpCastIntToFloat: {Name: "cast_int_to_float", Args: i1, Result: ResultFloat, Flags: FlagPure},

	OpPtrEq:        {Name: "ptr_eq", Args: rr, Result: ResultInt, Flags: pureBool},
	OpPtrNe:        {Name: "ptr_ne", Args: rr, Result: ResultInt, Flags: pureBool},
	OpPtrIsnull:    {Name: "ptr_isnull", Args: r1, Result: ResultInt, Flags: pureBool},
	OpPtrNonnull:   {Name: "ptr_nonnull", Args: r1, Result: ResultInt, Flags: pureBool},
	OpCastPtrToInt: {Name: "cast_ptr_to_int", Args: r1, Result: ResultInt, Flags: FlagPure},
	OpSameAs:       {Name: "same_as", Args: []ArgSpec{ArgAny}, Result: ResultSameAsArg, Flags: FlagPure},

	OpNew:                {Name: "new", Args: none, Result: ResultRef, Descr: DescrSize},
	OpNewWithVtable:      {Name: "new_with_vtable", Args: i1, Result: ResultRef},
	OpNewArray:           {Name: "new_array", Args: i1, Result: ResultRef, Descr: DescrArray},
	OpNewStr:             {Name: "newstr", Args: i1, Result: ResultRef},
	OpNewUnicode:         {Name: "newunicode", Args: i1, Result: ResultRef},
	OpGetfieldGC:         {Name: "getfield_gc", Args: r1, Result: ResultFromDescr, Descr: DescrField},
	OpSetfieldGC:         {Name: "setfield_gc", Args: []ArgSpec{ArgRef, ArgAny}, Descr: DescrField},
	OpArraylenGC:         {Name: "arraylen_gc", Args: r1, Result: ResultInt, Descr: DescrArray},
	OpGetarrayitemGC:     {Name: "getarrayitem_gc", Args: []ArgSpec{ArgRef, ArgInt}, Result: ResultFromDescr, Descr: DescrArray},
	OpSetarrayitemGC:     {Name: "setarrayitem_gc", Args: []ArgSpec{ArgRef, ArgInt, ArgAny}, Descr: DescrArray},
	OpStrlen:             {Name: "strlen", Args: r1, Result: ResultInt},
	OpStrgetitem:         {Name: "strgetitem", Args: []ArgSpec{ArgRef, ArgInt}, Result: ResultInt},
	OpStrsetitem:         {Name: "strsetitem", Args: []ArgSpec{ArgRef, ArgInt, ArgInt}},
	OpUnicodelen:         {Name: "unicodelen", Args: r1, Result: ResultInt},
	OpUnicodegetitem:     {Name: "unicodegetitem", Args: []ArgSpec{ArgRef, ArgInt}, Result: ResultInt},
	OpUnicodesetitem:     {Name: "unicodesetitem", Args: []ArgSpec{ArgRef, ArgInt, ArgInt}},
	OpCopystrcontent:     {Name: "copystrcontent", Args: []ArgSpec{ArgRef, ArgRef, ArgInt, ArgInt, ArgInt}},
	OpCopyunicodecontent: {Name: "copyunicodecontent", Args: []ArgSpec{ArgRef, ArgRef, ArgInt, ArgInt, ArgInt}},

	OpGetfieldRaw:     {Name: "getfield_raw", Args: i1, Result: ResultFromDescr, Descr: DescrField},
	OpSetfieldRaw:     {Name: "setfield_raw", Args: []ArgSpec{ArgInt, ArgAny}, Descr: DescrField},
	OpGetarrayitemRaw: {Name: "getarrayitem_raw", Args: ii, Result: ResultFromDescr, Descr: DescrArray},
	OpSetarrayitemRaw: {Name: "setarrayitem_raw", Args: []ArgSpec{ArgInt, ArgInt, ArgAny}, Descr: DescrArray},

	OpCondCallGCWB: {Name: "cond_call_gc_wb", Args: []ArgSpec{ArgRef, ArgAny}, Descr: DescrWriteBarrier},

	OpCall:          {Name: "call", Args: i1, VarArgs: ArgAny, Result: ResultFromDescr, Descr: DescrCall, Flags: FlagCall},
	OpCallMayForce:  {Name: "call_may_force", Args: i1, VarArgs: ArgAny, Result: ResultFromDescr, Descr: DescrCall, Flags: FlagCall | FlagMayForce},
	OpCallAssembler: {Name: "call_assembler", Args: none, VarArgs: ArgAny, Result: ResultAny, Descr: DescrLoopToken, Flags: FlagCall | FlagMayForce},
	OpForceToken:    {Name: "force_token", Args: none, Result: ResultInt},

	OpDebugMergePoint: {Name: "debug_merge_point", Args: none, VarArgs: ArgAny, Descr: DescrOptional},
}

var opByName = func() map[string]Opcode {
	m := make(map[string]Opcode, opCount)
	for op := OpInvalid + 1; op < opCount; op++ {
		m[opTable[op].Name] = op
	}
	return m
}()

// Info returns the static facts for op.
func (op Opcode) Info() *OpInfo {
	if op >= opCount {
		return &opTable[OpInvalid]
	}
	return &opTable[op]
}

// String returns the lowercase trace-text name.
func (op Opcode) String() string {
	if op >= opCount {
		return fmt.Sprintf("Opcode(%d)", uint8(op))
	}
	return opTable[op].Name
}

// Valid reports whether op is a real opcode.
func (op Opcode) Valid() bool {
	return op > OpInvalid && op < opCount
}

// IsGuard reports whether op is a guard.
func (op Opcode) IsGuard() bool { return op.Info().Has(FlagGuard) }

// IsFinal reports whether op ends a trace.
func (op Opcode) IsFinal() bool { return op.Info().Has(FlagFinal) }

// OpcodeByName looks up an opcode by trace-text name. Upper-case names are
// accepted too.
func OpcodeByName(name string) (Opcode, bool) {
	op, ok := opByName[strings.ToLower(name)]
	return op, ok
}

// Opcodes returns every valid opcode in declaration order.
func Opcodes() []Opcode {
	out := make([]Opcode, 0, opCount-1)
	for op := OpInvalid + 1; op < opCount; op++ {
		out = append(out, op)
	}
	return out
}

// OpcodeCount is one past the largest opcode, for dispatch tables.
const OpcodeCount = int(opCount)
