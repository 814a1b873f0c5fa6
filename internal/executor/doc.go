// Package executor holds the pure semantics of the integer, float and
// pointer operations, shared by the backend's dispatch handlers and by a
// naive reference evaluator.
//
// Integer arithmetic wraps on overflow. INT_FLOORDIV and INT_MOD truncate
// toward zero; a zero divisor panics with a *Fault. Shift counts are taken
// modulo 64. Comparisons yield 1 or 0. Float operations follow IEEE 754:
// every ordered comparison involving NaN is false and FLOAT_NE is true.
//
// The reference evaluator (Evaluate) interprets a trace op by op over a
// map from boxes to values. It exists to cross-check compiled execution
// and supports only pure operations, guards over their results, and
// self-jumps.
package executor
