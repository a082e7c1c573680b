package consensus

// SighashType is the only signature hash type this system supports (spec
// §4.3): a 4-byte little-endian constant appended to the signed preimage.
const SighashType uint32 = 1

// Sighash computes the digest a signer signs for input i: a re-serialization
// of tx with every input's scriptSig blanked except input i, whose scriptSig
// is replaced by scriptPubKey, followed by the 4-byte little-endian sighash
// type. The transaction is rebuilt from its components rather than mutated
// in place, so re-signing never leaks a previous input's script into the
// digest for another input (spec §9 design note).
func Sighash(tx *Tx, i int, scriptPubKey Script) ([32]byte, error) {
	if i < 0 || i >= len(tx.Inputs) {
		return [32]byte{}, newErr(ErrBadSignature, "sighash: input index out of range")
	}

	shadow := &Tx{
		Version:   tx.Version,
		Outputs:   tx.Outputs,
		LockTime:  tx.LockTime,
		Timestamp: tx.Timestamp,
		Inputs:    make([]TxIn, len(tx.Inputs)),
	}
	for idx, in := range tx.Inputs {
		blanked := TxIn{
			PrevTxID:  in.PrevTxID,
			PrevIndex: in.PrevIndex,
			Sequence:  in.Sequence,
		}
		if idx == i {
			blanked.ScriptSig = scriptPubKey
		}
		shadow.Inputs[idx] = blanked
	}

	preimage := shadow.Serialize()
	preimage = AppendU32LE(preimage, SighashType)
	return Hash256(preimage), nil
}

// VerifyInput checks input i's (scriptSig ++ scriptPubKey) against the
// sighash computed for scriptPubKey.
func VerifyInput(tx *Tx, i int, scriptPubKey Script) (bool, error) {
	if i < 0 || i >= len(tx.Inputs) {
		return false, newErr(ErrBadSignature, "verify_input: index out of range")
	}
	z, err := Sighash(tx, i, scriptPubKey)
	if err != nil {
		return false, err
	}
	combined := Concat(tx.Inputs[i].ScriptSig, scriptPubKey)
	return Evaluate(combined, z), nil
}

// SignInput signs input i with key, claiming scriptPubKey, and installs the
// resulting scriptSig (sig+sighash-byte, compressed pubkey) on tx.Inputs[i].
func SignInput(tx *Tx, i int, key *PrivateKey, scriptPubKey Script) error {
	if i < 0 || i >= len(tx.Inputs) {
		return newErr(ErrBadSignature, "sign_input: index out of range")
	}
	z, err := Sighash(tx, i, scriptPubKey)
	if err != nil {
		return err
	}
	der := key.Sign(z)
	sigWithType := append(append([]byte(nil), der...), byte(SighashType))
	tx.Inputs[i].ScriptSig = NewP2PKHScriptSig(sigWithType, key.PubKey().SerializeCompressed())
	return nil
}
