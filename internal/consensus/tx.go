package consensus

import "encoding/hex"

// Outpoint identifies a specific output of a previous transaction.
type Outpoint struct {
	PrevTxID [32]byte
	PrevIdx  uint32
}

// CoinbasePrevIdx is the sentinel prev_index a coinbase input's outpoint
// carries (spec §3): 0xFFFFFFFF.
const CoinbasePrevIdx = 0xFFFFFFFF

// TxIn is one transaction input.
type TxIn struct {
	PrevTxID  [32]byte
	PrevIndex uint32
	ScriptSig Script
	Sequence  uint32
}

// Outpoint returns the outpoint this input spends.
func (in TxIn) Outpoint() Outpoint {
	return Outpoint{PrevTxID: in.PrevTxID, PrevIdx: in.PrevIndex}
}

// TxOut is one transaction output. A nil *TxOut entry in Tx.Outputs denotes
// "spent but slot retained" (spec §3 UTXO semantics); TxOut itself is never
// nil once created.
type TxOut struct {
	Amount       int64
	ScriptPubKey Script
}

// Tx is a transaction. Outputs is []*TxOut so a spent slot can be
// represented as a nil entry without shifting indices.
type Tx struct {
	Version   uint32
	Inputs    []TxIn
	Outputs   []*TxOut
	LockTime  uint32
	Timestamp uint32
}

// IsCoinbase reports whether tx has exactly one input whose prev_tx_id is
// all-zero and prev_index is the sentinel 0xFFFFFFFF.
func (tx *Tx) IsCoinbase() bool {
	if len(tx.Inputs) != 1 {
		return false
	}
	in := tx.Inputs[0]
	if in.PrevIndex != CoinbasePrevIdx {
		return false
	}
	for _, b := range in.PrevTxID {
		if b != 0 {
			return false
		}
	}
	return true
}

// ID is the double-SHA256 of the canonical serialization, in hash byte
// order; IDHex gives the reversed display form.
func (tx *Tx) ID() [32]byte {
	return Hash256(tx.Serialize())
}

// IDHex renders ID() as lowercase reversed hex.
func (tx *Tx) IDHex() string {
	id := tx.ID()
	return hex.EncodeToString(ReverseBytes(id[:]))
}

// Size is the serialized byte length of tx.
func (tx *Tx) Size() int {
	return len(tx.Serialize())
}

// Serialize writes the canonical transaction encoding: version, inputs,
// outputs (null slots encoded as a zero-length-script, -1-amount
// placeholder), locktime, and the non-standard trailing timestamp field
// that is part of the signed data (spec §3).
func (tx *Tx) Serialize() []byte {
	out := AppendU32LE(nil, tx.Version)
	out = AppendVarInt(out, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		out = append(out, in.PrevTxID[:]...)
		out = AppendU32LE(out, in.PrevIndex)
		sigBytes := in.ScriptSig.Serialize()
		out = append(out, sigBytes...)
		out = AppendU32LE(out, in.Sequence)
	}
	out = AppendVarInt(out, uint64(len(tx.Outputs)))
	for _, o := range tx.Outputs {
		out = serializeTxOut(out, o)
	}
	out = AppendU32LE(out, tx.LockTime)
	out = AppendU32LE(out, tx.Timestamp)
	return out
}

func serializeTxOut(out []byte, o *TxOut) []byte {
	if o == nil {
		// Spent slot: amount -1, empty script. This is never a valid
		// unspent output (amounts are non-negative), so it round-trips
		// unambiguously.
		out = AppendU64LE(out, uint64(int64(-1)))
		return AppendVarInt(out, 0)
	}
	out = AppendU64LE(out, uint64(o.Amount))
	pk := o.ScriptPubKey.Serialize()
	return append(out, pk...)
}

// ParseTx parses a canonical transaction from the start of b.
func ParseTx(b []byte) (*Tx, int, error) {
	c := newCursor(b)
	tx, err := parseTxFrom(c)
	if err != nil {
		return nil, 0, err
	}
	return tx, c.pos, nil
}

func parseTxFrom(c *cursor) (*Tx, error) {
	version, err := c.readU32le()
	if err != nil {
		return nil, err
	}
	nIn, err := c.readVarInt()
	if err != nil {
		return nil, err
	}
	inputs := make([]TxIn, 0, nIn)
	for i := uint64(0); i < nIn; i++ {
		prevTxID, err := c.readExact(32)
		if err != nil {
			return nil, err
		}
		var id [32]byte
		copy(id[:], prevTxID)
		prevIdx, err := c.readU32le()
		if err != nil {
			return nil, err
		}
		scriptSig, err := parseScript(c)
		if err != nil {
			return nil, err
		}
		seq, err := c.readU32le()
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, TxIn{PrevTxID: id, PrevIndex: prevIdx, ScriptSig: scriptSig, Sequence: seq})
	}

	nOut, err := c.readVarInt()
	if err != nil {
		return nil, err
	}
	outputs := make([]*TxOut, 0, nOut)
	for i := uint64(0); i < nOut; i++ {
		amountRaw, err := c.readU64le()
		if err != nil {
			return nil, err
		}
		amount := int64(amountRaw)
		pk, err := parseScript(c)
		if err != nil {
			return nil, err
		}
		if amount < 0 {
			outputs = append(outputs, nil)
			continue
		}
		outputs = append(outputs, &TxOut{Amount: amount, ScriptPubKey: pk})
	}

	lockTime, err := c.readU32le()
	if err != nil {
		return nil, err
	}
	timestamp, err := c.readU32le()
	if err != nil {
		return nil, err
	}

	return &Tx{
		Version:   version,
		Inputs:    inputs,
		Outputs:   outputs,
		LockTime:  lockTime,
		Timestamp: timestamp,
	}, nil
}
