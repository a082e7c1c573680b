package consensus

import "testing"

func buildSpendableTx(t *testing.T) (prevTx *Tx, spender *Tx, key *PrivateKey) {
	t.Helper()
	key, h160 := sampleKeyAndH160(t)
	prevTx = NewCoinbaseTx(0, 5_000_000_000, h160, 1700000000)

	spender = &Tx{
		Version: 1,
		Inputs: []TxIn{{
			PrevTxID:  prevTx.ID(),
			PrevIndex: 0,
			Sequence:  0xFFFFFFFF,
		}},
		Outputs: []*TxOut{{
			Amount:       4_000_000_000,
			ScriptPubKey: NewP2PKHScriptPubKey(h160),
		}},
		Timestamp: 1700000100,
	}
	return prevTx, spender, key
}

func TestSignInput_VerifyInput_RoundTrip(t *testing.T) {
	prevTx, spender, key := buildSpendableTx(t)
	scriptPubKey := prevTx.Outputs[0].ScriptPubKey

	if err := SignInput(spender, 0, key, scriptPubKey); err != nil {
		t.Fatalf("SignInput: %v", err)
	}
	ok, err := VerifyInput(spender, 0, scriptPubKey)
	if err != nil {
		t.Fatalf("VerifyInput: %v", err)
	}
	if !ok {
		t.Fatal("expected signed input to verify")
	}
}

func TestVerifyInput_RejectsTamperedOutput(t *testing.T) {
	prevTx, spender, key := buildSpendableTx(t)
	scriptPubKey := prevTx.Outputs[0].ScriptPubKey
	if err := SignInput(spender, 0, key, scriptPubKey); err != nil {
		t.Fatalf("SignInput: %v", err)
	}

	spender.Outputs[0].Amount += 1 // mutate after signing
	ok, err := VerifyInput(spender, 0, scriptPubKey)
	if err != nil {
		t.Fatalf("VerifyInput: %v", err)
	}
	if ok {
		t.Fatal("expected tampered output to invalidate the signature")
	}
}

func TestSighash_IgnoresOtherInputsScriptSig(t *testing.T) {
	_, h160 := sampleKeyAndH160(t)
	pkScript := NewP2PKHScriptPubKey(h160)

	tx := &Tx{
		Version: 1,
		Inputs: []TxIn{
			{PrevTxID: [32]byte{1}, PrevIndex: 0, ScriptSig: Script{{Data: []byte{0xAA}}}},
			{PrevTxID: [32]byte{2}, PrevIndex: 0, ScriptSig: Script{{Data: []byte{0xBB}}}},
		},
		Outputs:   []*TxOut{{Amount: 1, ScriptPubKey: pkScript}},
		Timestamp: 1700000000,
	}
	z1, err := Sighash(tx, 0, pkScript)
	if err != nil {
		t.Fatalf("sighash: %v", err)
	}

	tx.Inputs[1].ScriptSig = Script{{Data: []byte{0xCC, 0xDD, 0xEE}}}
	z1Again, err := Sighash(tx, 0, pkScript)
	if err != nil {
		t.Fatalf("sighash: %v", err)
	}
	if z1 != z1Again {
		t.Fatal("sighash for input 0 should be unaffected by input 1's scriptSig")
	}
}

func TestSighash_IndexOutOfRange(t *testing.T) {
	tx := &Tx{Version: 1}
	if _, err := Sighash(tx, 0, nil); err == nil {
		t.Fatal("expected error for out-of-range input index")
	}
}
