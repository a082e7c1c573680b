package consensus

// VerifyNonCoinbaseTx checks every input of tx against utxos: the
// referenced output must exist and be unspent, and its scriptSig must
// satisfy the referenced scriptPubKey. Returns the total input sum and
// total output sum so the caller can derive the fee.
func VerifyNonCoinbaseTx(tx *Tx, utxos *UtxoSet) (inputSum, outputSum int64, err error) {
	for i, in := range tx.Inputs {
		prevOut, ok := utxos.OutputAt(in.PrevTxID, in.PrevIndex)
		if !ok {
			return 0, 0, newErr(ErrPrevBlockMissing, "input references missing or spent output")
		}
		ok2, verr := VerifyInput(tx, i, prevOut.ScriptPubKey)
		if verr != nil {
			return 0, 0, verr
		}
		if !ok2 {
			return 0, 0, newErr(ErrBadSignature, "input signature does not verify")
		}
		inputSum += prevOut.Amount
	}
	for _, out := range tx.Outputs {
		if out != nil {
			outputSum += out.Amount
		}
	}
	return inputSum, outputSum, nil
}

// VerifyBlockRewards checks that the coinbase does not mint more than
// reward(height) plus the fees actually collected by the block's other
// transactions (spec §4.8.3, §8: "mined - fees > reward(height)" is a
// rejection condition).
func VerifyBlockRewards(height uint32, coinbase *Tx, totalFees int64) error {
	var minted int64
	for _, out := range coinbase.Outputs {
		if out != nil {
			minted += out.Amount
		}
	}
	if minted-totalFees > BlockReward(height) {
		return newErr(ErrRewardTooLarge, "coinbase mints more than reward plus fees")
	}
	return nil
}
