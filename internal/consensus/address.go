package consensus

import (
	"github.com/btcsuite/btcd/btcutil/base58"
)

// Base58CheckEncode encodes payload with a version byte and a 4-byte
// hash256 checksum, the way wallet addresses are rendered for display.
func Base58CheckEncode(version byte, payload []byte) string {
	body := make([]byte, 0, 1+len(payload))
	body = append(body, version)
	body = append(body, payload...)
	sum := Hash256(body)
	body = append(body, sum[:4]...)
	return base58.Encode(body)
}

// Base58CheckDecode reverses Base58CheckEncode, verifying the checksum.
// A mismatched checksum fails with ErrAddrChecksum.
func Base58CheckDecode(s string) (version byte, payload []byte, err error) {
	raw := base58.Decode(s)
	if len(raw) < 5 {
		return 0, nil, newErr(ErrAddrChecksum, "base58check: too short")
	}
	body, checksum := raw[:len(raw)-4], raw[len(raw)-4:]
	sum := Hash256(body)
	if !bytesEqual(sum[:4], checksum) {
		return 0, nil, newErr(ErrAddrChecksum, "base58check: checksum mismatch")
	}
	return body[0], body[1:], nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
