package backend

import (
	"github.com/roach88/tracejit/internal/heap"
	"github.com/roach88/tracejit/internal/ir"
)

func execNew(f *frame, in *instr) {
	f.set(in, ir.RefValue(f.cpu.heap.NewStruct(in.size, nil)))
}

func execNewWithVtable(f *frame, in *instr) {
	f.set(in, ir.RefValue(f.cpu.heap.NewInstance(in.class)))
}

func execNewArray(f *frame, in *instr) {
	n := int(f.int(in.args[0]))
	f.set(in, ir.RefValue(f.cpu.heap.NewArray(in.size, in.vkind == ir.KindRef, n)))
}

func execNewStr(f *frame, in *instr) {
	f.set(in, ir.RefValue(f.cpu.heap.NewStr(int(f.int(in.args[0])))))
}

func execNewUnicode(f *frame, in *instr) {
	f.set(in, ir.RefValue(f.cpu.heap.NewUnicode(int(f.int(in.args[0])))))
}

func execGetfieldGC(f *frame, in *instr) {
	obj := f.ref(in.args[0])
	switch in.vkind {
	case ir.KindRef:
		f.set(in, ir.RefValue(obj.LoadRef(in.offset)))
	case ir.KindFloat:
		f.set(in, ir.FloatValue(obj.LoadFloat(in.offset)))
	default:
		f.set(in, ir.IntValue(obj.LoadInt(in.offset, in.size, in.signed)))
	}
}

func execSetfieldGC(f *frame, in *instr) {
	obj := f.ref(in.args[0])
	v := in.args[1]
	switch in.vkind {
	case ir.KindRef:
		obj.StoreRef(in.offset, f.ref(v))
	case ir.KindFloat:
		obj.StoreFloat(in.offset, f.float(v))
	default:
		obj.StoreInt(in.offset, in.size, f.int(v))
	}
}

func execArraylenGC(f *frame, in *instr) {
	f.set(in, ir.IntValue(int64(f.ref(in.args[0]).Len())))
}

func execGetarrayitemGC(f *frame, in *instr) {
	arr := f.ref(in.args[0])
	i := int(f.int(in.args[1]))
	switch in.vkind {
	case ir.KindRef:
		f.set(in, ir.RefValue(arr.ItemRef(i)))
	case ir.KindFloat:
		f.set(in, ir.FloatValue(arr.ItemFloat(i)))
	default:
		f.set(in, ir.IntValue(arr.ItemInt(i, in.signed)))
	}
}

func execSetarrayitemGC(f *frame, in *instr) {
	arr := f.ref(in.args[0])
	i := int(f.int(in.args[1]))
	v := in.args[2]
	switch in.vkind {
	case ir.KindRef:
		arr.SetItemRef(i, f.ref(v))
	case ir.KindFloat:
		arr.SetItemFloat(i, f.float(v))
	default:
		arr.SetItemInt(i, f.int(v))
	}
}

func execStrlen(f *frame, in *instr) {
	f.set(in, ir.IntValue(int64(f.ref(in.args[0]).Len())))
}

func execStrgetitem(f *frame, in *instr) {
	f.set(in, ir.IntValue(f.ref(in.args[0]).CharAt(int(f.int(in.args[1])))))
}

func execStrsetitem(f *frame, in *instr) {
	f.ref(in.args[0]).SetCharAt(int(f.int(in.args[1])), f.int(in.args[2]))
}

func execCopyContent(f *frame, in *instr) {
	heap.CopyChars(
		f.ref(in.args[0]),
		f.ref(in.args[1]),
		int(f.int(in.args[2])),
		int(f.int(in.args[3])),
		int(f.int(in.args[4])),
	)
}

// Raw memory is addressed by integers into the heap's arena. Pointer
// values never live there.

func execGetfieldRaw(f *frame, in *instr) {
	f.set(in, f.loadRaw(f.int(in.args[0])+int64(in.offset), in))
}

func execSetfieldRaw(f *frame, in *instr) {
	f.storeRaw(f.int(in.args[0])+int64(in.offset), in, in.args[1])
}

func execGetarrayitemRaw(f *frame, in *instr) {
	addr := f.int(in.args[0]) + f.int(in.args[1])*int64(in.size)
	f.set(in, f.loadRaw(addr, in))
}

func execSetarrayitemRaw(f *frame, in *instr) {
	addr := f.int(in.args[0]) + f.int(in.args[1])*int64(in.size)
	f.storeRaw(addr, in, in.args[2])
}

func (f *frame) loadRaw(addr int64, in *instr) ir.Value {
	arena := f.cpu.heap.Raw()
	if in.vkind == ir.KindFloat {
		return ir.FloatValue(arena.LoadFloat(addr))
	}
	return ir.IntValue(arena.LoadInt(addr, in.size, in.signed))
}

func (f *frame) storeRaw(addr int64, in *instr, v operand) {
	arena := f.cpu.heap.Raw()
	if in.vkind == ir.KindFloat {
		arena.StoreFloat(addr, f.float(v))
		return
	}
	arena.StoreInt(addr, in.size, f.int(v))
}

// execCondCallGCWB calls the barrier function when the descriptor's flag
// byte is set in the header of the object being written.
func execCondCallGCWB(f *frame, in *instr) {
	obj := f.ref(in.args[0])
	if obj == nil {
		return
	}
	if byte(obj.Header()>>(8*in.wbOfs))&in.wbMask != 0 {
		in.wbFn(obj, f.get(in.args[1]))
	}
}
