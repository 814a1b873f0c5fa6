package backend

import "github.com/roach88/tracejit/internal/ir"

func execFinish(f *frame, in *instr) {
	vals := make([]ir.Value, len(in.args))
	for j, a := range in.args {
		vals[j] = f.get(a)
	}
	f.leave(in, in.fail, vals)
}

// execJump continues at the start of the owning loop, or of the loop
// currently published behind the target token.
func execJump(f *frame, in *instr) {
	t := in.entry
	if t == nil {
		loop, ok := targetLoop(in.target)
		if !ok {
			panic(f.runtimeErr(ErrCodeFreedToken, "jump to %s, which is not compiled or was freed", in.target.Repr()))
		}
		t = loop.entry
	}
	f.enter(t, f.gather(in.args))
}

func execNop(*frame, *instr) {}
