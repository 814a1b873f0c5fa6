// Package heap is the memory manager behind compiled traces.
//
// It owns two families of memory:
//
//   - Managed objects (structs, arrays, strings, unicode strings) reached
//     through Ref values. Each object carries a header word with GC flag
//     bits, an optional Class (vtable) and a payload split into a byte area
//     for non-pointer data and a pointer area so the Go collector can trace
//     references held by compiled code.
//   - Raw memory addressed by plain integers, allocated with RawMalloc and
//     released with RawFree. Raw memory never holds managed references.
//
// Accesses that fall outside an object or raw block panic with a *Fault.
// The execution engine recovers these and reports them as runtime errors;
// callers outside the engine should treat a Fault panic as a bug.
//
// Classes are registered per Heap. There is no process-wide class table:
// NEW_WITH_VTABLE resolves the vtable address through the Heap that the
// CPU was built with.
package heap
