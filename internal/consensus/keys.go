package consensus

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// PrivateKey is a secp256k1 signing key. Signing uses RFC6979 deterministic
// nonce generation with low-s normalization, delegated entirely to
// decred's secp256k1 implementation rather than hand-rolled field/curve
// arithmetic (spec §4.1).
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// PublicKey is a secp256k1 point, serialized in SEC compressed form for
// scripts and hash160.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// GeneratePrivateKey returns a fresh random signing key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, newErrf(ErrMalformedKey, "generate key: %v", err)
	}
	return &PrivateKey{key: key}, nil
}

// ParsePrivateKey parses a 32-byte big-endian scalar.
func ParsePrivateKey(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, newErr(ErrMalformedKey, "private key must be 32 bytes")
	}
	key := secp256k1.PrivKeyFromBytes(b)
	return &PrivateKey{key: key}, nil
}

// Bytes returns the 32-byte big-endian scalar.
func (p *PrivateKey) Bytes() []byte {
	return p.key.Serialize()
}

// PubKey derives the corresponding public key.
func (p *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{key: p.key.PubKey()}
}

// Sign produces a deterministic (RFC6979) low-s DER signature over a
// 32-byte digest (the sighash §4.3 computes).
func (p *PrivateKey) Sign(digest [32]byte) []byte {
	sig := ecdsa.Sign(p.key, digest[:])
	return sig.Serialize()
}

// ParsePublicKey parses a SEC-encoded (compressed or uncompressed) point.
func ParsePublicKey(b []byte) (*PublicKey, error) {
	key, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, newErrf(ErrMalformedKey, "parse pubkey: %v", err)
	}
	return &PublicKey{key: key}, nil
}

// SerializeCompressed returns the 33-byte compressed SEC encoding.
func (p *PublicKey) SerializeCompressed() []byte {
	return p.key.SerializeCompressed()
}

// Hash160 is the on-chain payee identifier: ripemd160(sha256(pubkey)).
func (p *PublicKey) Hash160() [20]byte {
	return Hash160(p.SerializeCompressed())
}

// VerifySignature checks a DER signature (without the trailing sighash-type
// byte) against digest using pubkey. Signatures made by Sign are low-s;
// VerifySignature itself does not check s, so a valid high-s signature
// also verifies.
func VerifySignature(pubkey *PublicKey, digest [32]byte, der []byte) bool {
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return false
	}
	return sig.Verify(digest[:], pubkey.key)
}
