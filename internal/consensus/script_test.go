package consensus

import (
	"bytes"
	"testing"
)

func scriptsEqual(a, b Script) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].IsOpcode != b[i].IsOpcode || a[i].Opcode != b[i].Opcode || !bytes.Equal(a[i].Data, b[i].Data) {
			return false
		}
	}
	return true
}

func TestP2PKHScriptPubKey_SerializeParseRoundTrip(t *testing.T) {
	var h160 [20]byte
	for i := range h160 {
		h160[i] = byte(i + 1)
	}
	pk := NewP2PKHScriptPubKey(h160)

	raw := pk.Serialize()
	c := newCursor(raw)
	got, err := parseScript(c)
	if err != nil {
		t.Fatalf("parseScript: %v", err)
	}
	if !scriptsEqual(got, pk) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, pk)
	}

	gotH160, ok := got.IsP2PKH()
	if !ok || gotH160 != h160 {
		t.Fatalf("IsP2PKH() = %x, %v", gotH160, ok)
	}
}

func TestIsP2PKH_RejectsOtherShapes(t *testing.T) {
	s := Script{{IsOpcode: true, Opcode: OpDup}}
	if _, ok := s.IsP2PKH(); ok {
		t.Fatal("expected non-P2PKH script to be rejected")
	}
}

func TestScript_PushDataSizeClasses(t *testing.T) {
	for _, n := range []int{10, 74, 75, 255, 256, 520} {
		data := bytes.Repeat([]byte{0xAB}, n)
		s := Script{{Data: data}}
		raw := s.Serialize()
		c := newCursor(raw)
		body, err := parseScript(c)
		if err != nil {
			t.Fatalf("n=%d: parseScript: %v", n, err)
		}
		if len(body) != 1 || !bytes.Equal(body[0].Data, data) {
			t.Fatalf("n=%d: round trip mismatch", n)
		}
	}
}

func TestParseScriptBody_PushData1Overflow(t *testing.T) {
	raw := []byte{opPushData1, 0xFF} // claims 255 bytes, none present
	if _, err := parseScriptBody(raw); err == nil {
		t.Fatal("expected truncation error")
	}
}

func TestConcat(t *testing.T) {
	sig := Script{{Data: []byte{1}}}
	pk := Script{{Data: []byte{2}}}
	combined := Concat(sig, pk)
	if len(combined) != 2 || combined[0].Data[0] != 1 || combined[1].Data[0] != 2 {
		t.Fatalf("Concat = %+v", combined)
	}
}
