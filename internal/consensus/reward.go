package consensus

// HalvingIntervalBlocks is the height span between reward halvings
// (spec §4.7): roughly one year at one block per minute.
const HalvingIntervalBlocks = 525_600

// RewardCutoffHeight is the height at which the subsidy drops to zero
// (spec §4.7).
const RewardCutoffHeight = 5_256_000

// InitialReward is the block 0 subsidy in satoshis: 5 coins.
const InitialReward int64 = 5_000_000_000

// BlockReward computes reward(height) = 5e9 * 2^(-floor(height/525600))
// sat for height < 5_256_000, else 0.
func BlockReward(height uint32) int64 {
	if height >= RewardCutoffHeight {
		return 0
	}
	halvings := height / HalvingIntervalBlocks
	if halvings >= 63 {
		return 0
	}
	return InitialReward >> halvings
}

// minimalLE encodes n as the shortest little-endian byte string with no
// redundant trailing zero byte (except for n==0, which encodes as a single
// zero byte), the way the coinbase height is pushed into script_sig.
func minimalLE(n uint32) []byte {
	if n == 0 {
		return []byte{0}
	}
	var out []byte
	for n > 0 {
		out = append(out, byte(n))
		n >>= 8
	}
	return out
}

// NewCoinbaseTx builds the coinbase transaction for height, paying amount
// (reward + collected fees) to payeeH160. The sole input carries the
// height in its scriptSig (spec §4.7); its scriptSig is otherwise unused
// since a coinbase input has nothing to authorize.
func NewCoinbaseTx(height uint32, amount int64, payeeH160 [20]byte, timestamp uint32) *Tx {
	heightPush := minimalLE(height)
	scriptSig := Script{{Data: heightPush}}
	return &Tx{
		Version: 1,
		Inputs: []TxIn{{
			PrevTxID:  [32]byte{},
			PrevIndex: CoinbasePrevIdx,
			ScriptSig: scriptSig,
			Sequence:  0xFFFFFFFF,
		}},
		Outputs: []*TxOut{{
			Amount:       amount,
			ScriptPubKey: NewP2PKHScriptPubKey(payeeH160),
		}},
		LockTime:  0,
		Timestamp: timestamp,
	}
}
