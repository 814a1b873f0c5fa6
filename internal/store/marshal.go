package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/roach88/tracejit/internal/ir"
)

// SnapshotValue is one stored exit value. References are recorded by
// address; the objects themselves do not outlive the process.
type SnapshotValue struct {
	Kind  string  `cbor:"1,keyasint"`
	Int   int64   `cbor:"2,keyasint,omitempty"`
	Float float64 `cbor:"3,keyasint"`
	Addr  int64   `cbor:"4,keyasint,omitempty"`
}

// String renders the value the way trace text writes literals.
func (v SnapshotValue) String() string {
	switch v.Kind {
	case "i":
		return fmt.Sprintf("%d", v.Int)
	case "f":
		return ir.FormatFloat(v.Float)
	case "r":
		if v.Addr == 0 {
			return "null"
		}
		return fmt.Sprintf("ptr(%#x)", v.Addr)
	default:
		return "_"
	}
}

var snapshotEnc = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// snapshotOf converts exit values to their stored form. Void entries are
// holes.
func snapshotOf(values []ir.Value) []SnapshotValue {
	out := make([]SnapshotValue, len(values))
	for i, v := range values {
		sv := SnapshotValue{Kind: string(v.Kind.Char())}
		switch v.Kind {
		case ir.KindInt:
			sv.Int = v.Int
		case ir.KindFloat:
			sv.Float = v.Float
		case ir.KindRef:
			sv.Addr = v.Ref.Addr()
		}
		out[i] = sv
	}
	return out
}

// marshalSnapshot encodes exit values as deterministic CBOR.
func marshalSnapshot(values []ir.Value) ([]byte, error) {
	data, err := snapshotEnc.Marshal(snapshotOf(values))
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// unmarshalSnapshot decodes a stored snapshot.
func unmarshalSnapshot(data []byte) ([]SnapshotValue, error) {
	var out []SnapshotValue
	if err := cbor.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if out == nil {
		out = []SnapshotValue{}
	}
	return out, nil
}
