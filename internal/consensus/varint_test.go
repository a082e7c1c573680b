package consensus

import (
	"bytes"
	"testing"
)

func TestAppendVarInt_Boundaries(t *testing.T) {
	cases := []struct {
		n    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{0xFC, []byte{0xFC}},
		{0xFD, []byte{0xFD, 0xFD, 0x00}},
		{0xFFFF, []byte{0xFD, 0xFF, 0xFF}},
		{0x10000, []byte{0xFE, 0x00, 0x00, 0x01, 0x00}},
		{1 << 32, []byte{0xFF, 0, 0, 0, 0, 1, 0, 0, 0}},
	}
	for _, c := range cases {
		got := AppendVarInt(nil, c.n)
		if !bytes.Equal(got, c.want) {
			t.Fatalf("AppendVarInt(%d) = % x, want % x", c.n, got, c.want)
		}
		if len(got) != VarIntSize(c.n) {
			t.Fatalf("VarIntSize(%d) = %d, want %d", c.n, VarIntSize(c.n), len(got))
		}
	}
}

func TestVarIntRoundTrip(t *testing.T) {
	for _, n := range []uint64{0, 1, 0xFC, 0xFD, 0xFFFF, 0x10000, 1 << 40} {
		buf := AppendVarInt(nil, n)
		got, rest, err := ReadVarIntPrefix(buf)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if got != n {
			t.Fatalf("n=%d: got %d", n, got)
		}
		if len(rest) != 0 {
			t.Fatalf("n=%d: leftover bytes % x", n, rest)
		}
	}
}

func TestReadVarIntPrefix_TrailingData(t *testing.T) {
	buf := append(AppendVarInt(nil, 5), 0xAA, 0xBB)
	n, rest, err := ReadVarIntPrefix(buf)
	if err != nil || n != 5 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if !bytes.Equal(rest, []byte{0xAA, 0xBB}) {
		t.Fatalf("rest = % x", rest)
	}
}

func TestReadVarIntPrefix_Truncated(t *testing.T) {
	if _, _, err := ReadVarIntPrefix([]byte{0xFD, 0x01}); err == nil {
		t.Fatal("expected error on truncated u16 varint")
	}
}
