package p2p

import "testing"

func TestNodeList_EncodeDecodeRoundTrip(t *testing.T) {
	addrs := []string{"127.0.0.1:9000", "example.org:9001", ""}
	raw, err := EncodeNodeList(addrs)
	if err != nil {
		t.Fatalf("EncodeNodeList: %v", err)
	}
	got, err := DecodeNodeList(raw)
	if err != nil {
		t.Fatalf("DecodeNodeList: %v", err)
	}
	if len(got) != len(addrs) {
		t.Fatalf("got %d addrs, want %d", len(got), len(addrs))
	}
	for i := range addrs {
		if got[i] != addrs[i] {
			t.Fatalf("addr[%d] = %q, want %q", i, got[i], addrs[i])
		}
	}
}

func TestNodeList_EncodeRejectsOverlongAddress(t *testing.T) {
	long := make([]byte, 0x100)
	if _, err := EncodeNodeList([]string{string(long)}); err == nil {
		t.Fatal("expected error for an address longer than 255 bytes")
	}
}

func TestNodeList_DecodeTruncated(t *testing.T) {
	if _, err := DecodeNodeList([]byte{0xFC}); err == nil {
		t.Fatal("expected error for a truncated nodelist payload")
	}
}

func TestRequestBlock_EncodeDecodeRoundTrip(t *testing.T) {
	want := RequestBlockPayload{StartHeight: 42, EndHash: [32]byte{1, 2, 3}}
	raw := EncodeRequestBlock(want)
	got, err := DecodeRequestBlock(raw)
	if err != nil {
		t.Fatalf("DecodeRequestBlock: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestRequestBlock_DecodeTruncated(t *testing.T) {
	if _, err := DecodeRequestBlock([]byte{1, 2}); err == nil {
		t.Fatal("expected error for a truncated requestBlock payload")
	}
}

func TestFinished_EncodeDecodeRoundTripWithParam(t *testing.T) {
	v := uint32(777)
	raw := EncodeFinished(&v)
	got, err := DecodeFinished(raw)
	if err != nil {
		t.Fatalf("DecodeFinished: %v", err)
	}
	if got == nil || *got != v {
		t.Fatalf("got %v, want %d", got, v)
	}
}

func TestFinished_EncodeDecodeRoundTripWithoutParam(t *testing.T) {
	raw := EncodeFinished(nil)
	got, err := DecodeFinished(raw)
	if err != nil {
		t.Fatalf("DecodeFinished: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no param, got %v", *got)
	}
}

func TestFinished_DecodeBadMarker(t *testing.T) {
	if _, err := DecodeFinished([]byte{0, 0, 0, 0}); err == nil {
		t.Fatal("expected error for a payload not starting with the Finished marker")
	}
}
