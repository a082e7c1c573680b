package consensus

import "testing"

func TestBase58CheckRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	encoded := Base58CheckEncode(0x00, payload)

	version, got, err := Base58CheckDecode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if version != 0x00 {
		t.Fatalf("version = %d, want 0", version)
	}
	if !bytesEqual(got, payload) {
		t.Fatalf("payload round-trip mismatch: got % x, want % x", got, payload)
	}
}

func TestBase58CheckDecode_BadChecksum(t *testing.T) {
	encoded := Base58CheckEncode(0x80, []byte("some key material"))
	tampered := encoded[:len(encoded)-1] + "z"

	_, _, err := Base58CheckDecode(tampered)
	if err == nil {
		t.Fatal("expected checksum error")
	}
	ce, ok := err.(*ConsensusError)
	if !ok || ce.Code != ErrAddrChecksum {
		t.Fatalf("got %v, want ErrAddrChecksum", err)
	}
}

func TestBase58CheckDecode_TooShort(t *testing.T) {
	if _, _, err := Base58CheckDecode("a"); err == nil {
		t.Fatal("expected error for too-short input")
	}
}
