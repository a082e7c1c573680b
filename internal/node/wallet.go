package node

import (
	"fmt"

	"github.com/p2pchain/node/internal/consensus"
)

// walletKeyVersion is the base58check version byte used for this chain's
// private-key export format (a minimal, non-BIP38 WIF analogue — full
// wallet key-management UX is out of scope per spec §1).
const walletKeyVersion = 0x80

// LoadMiningKey parses the WIF-style key string from config's node.wallet
// field into a private key and the h160 the miner pays its reward to.
func LoadMiningKey(wif string) (*consensus.PrivateKey, [20]byte, error) {
	version, payload, err := consensus.Base58CheckDecode(wif)
	if err != nil {
		return nil, [20]byte{}, fmt.Errorf("wallet: %w", err)
	}
	if version != walletKeyVersion {
		return nil, [20]byte{}, fmt.Errorf("wallet: unexpected version byte 0x%02x", version)
	}
	key, err := consensus.ParsePrivateKey(payload)
	if err != nil {
		return nil, [20]byte{}, fmt.Errorf("wallet: %w", err)
	}
	return key, key.PubKey().Hash160(), nil
}

// EncodeMiningKey renders key in the same WIF-style format LoadMiningKey
// reads, for `--generate-wallet`-style tooling.
func EncodeMiningKey(key *consensus.PrivateKey) string {
	return consensus.Base58CheckEncode(walletKeyVersion, key.Bytes())
}
