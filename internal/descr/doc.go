// Package descr provides concrete descriptors for struct fields, arrays,
// struct sizes, call signatures and write barriers, interned by a
// Registry.
//
// Front ends describe their layouts with Struct and Type values and ask
// the Registry for descriptors. Equal layouts yield the same descriptor
// pointer, so descriptors can be compared by identity. The static
// CallDescrOf and the dynamic CallDescrDynamic intern into the same table:
// equivalent signatures produce the same *CallDescr.
//
// The backend never sees these concrete types; it reaches them through the
// capability interfaces in package ir.
package descr
