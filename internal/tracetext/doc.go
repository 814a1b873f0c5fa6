// Package tracetext reads traces written in trace text:
//
//	[i0, p1, f2]
//	i1 = int_add(i0, 1)
//	i2 = int_le(i1, 9)
//	guard_true(i2, descr=fail1) [i1]
//	jump(i1)
//
// The first line lists the input boxes. A box name's first letter gives its
// kind: i (int), p (ref) or f (float). Literals are integers, floats
// (including inf, -inf and nan), null, ConstInt(name), ConstPtr(name) and
// ConstClass(name); names are resolved through a Namespace. Fail-argument
// lists follow a guard in brackets, with _ marking a hole. Lines starting
// with # are comments.
//
// Guards and FINISH may name a fail descriptor the namespace does not
// know; it is created on first use and added to the namespace, so a
// bridge parsed later against the same namespace can refer to it.
package tracetext
