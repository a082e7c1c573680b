package consensus

import (
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // ripemd160 is required by the P2PKH hash160 scheme, not a choice.
)

// Hash256 is double-SHA256, the block/transaction id hash used throughout
// this system: hash256(x) = sha256(sha256(x)).
func Hash256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second
}

// Hash160 is ripemd160(sha256(x)), the 20-byte payee identifier used by
// P2PKH scripts and base58check addresses.
func Hash160(b []byte) [20]byte {
	first := sha256.Sum256(b)
	h := ripemd160.New()
	h.Write(first[:])
	sum := h.Sum(nil)
	var out [20]byte
	copy(out[:], sum)
	return out
}

// ReverseBytes returns a new slice with b's bytes reversed; used to display
// little-endian-stored hashes in the conventional reversed-hex form.
func ReverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
