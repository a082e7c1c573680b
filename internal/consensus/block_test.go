package consensus

import (
	"math/big"
	"testing"
)

func TestBlockHeader_SerializeParseRoundTrip(t *testing.T) {
	h := &BlockHeader{
		Version:       1,
		PrevBlockHash: [32]byte{1, 2, 3},
		MerkleRoot:    [32]byte{4, 5, 6},
		Timestamp:     1700000000,
		Bits:          TargetToBits(InitialTarget),
		Nonce:         42,
	}
	raw := h.Serialize()
	if len(raw) != HeaderSize {
		t.Fatalf("header serialized to %d bytes, want %d", len(raw), HeaderSize)
	}
	got, err := ParseBlockHeader(raw)
	if err != nil {
		t.Fatalf("ParseBlockHeader: %v", err)
	}
	if got.Version != h.Version || got.PrevBlockHash != h.PrevBlockHash || got.MerkleRoot != h.MerkleRoot ||
		got.Timestamp != h.Timestamp || got.Bits != h.Bits || got.Nonce != h.Nonce {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestBlock_SerializeParseRoundTrip(t *testing.T) {
	_, h160 := sampleKeyAndH160(t)
	cb := NewCoinbaseTx(5, BlockReward(5), h160, 1700000000)
	block := &Block{
		Height: 5,
		Header: BlockHeader{
			Version:       1,
			PrevBlockHash: [32]byte{9, 9, 9},
			MerkleRoot:    MerkleRoot(block5TxIDs(cb)),
			Timestamp:     1700000000,
			Bits:          TargetToBits(InitialTarget),
		},
		Txs: []*Tx{cb},
	}

	raw := block.Serialize()
	got, err := ParseBlock(raw)
	if err != nil {
		t.Fatalf("ParseBlock: %v", err)
	}
	if got.Height != block.Height || len(got.Txs) != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Txs[0].ID() != cb.ID() {
		t.Fatal("coinbase tx did not round-trip")
	}
	if err := got.VerifyMerkleRoot(); err != nil {
		t.Fatalf("VerifyMerkleRoot: %v", err)
	}
}

func block5TxIDs(txs ...*Tx) [][32]byte {
	out := make([][32]byte, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID()
	}
	return out
}

func TestBlock_VerifyMerkleRoot_Mismatch(t *testing.T) {
	_, h160 := sampleKeyAndH160(t)
	cb := NewCoinbaseTx(0, 1, h160, 1)
	block := &Block{
		Height: 0,
		Header: BlockHeader{MerkleRoot: [32]byte{0xFF}},
		Txs:    []*Tx{cb},
	}
	err := block.VerifyMerkleRoot()
	if err == nil {
		t.Fatal("expected merkle mismatch error")
	}
	ce, ok := err.(*ConsensusError)
	if !ok || ce.Code != ErrMerkleMismatch {
		t.Fatalf("got %v, want ErrMerkleMismatch", err)
	}
}

func TestBlock_VerifyPoW(t *testing.T) {
	header := &BlockHeader{Bits: TargetToBits(InitialTarget)}
	easyTarget := InitialTarget
	block := &Block{Header: *header}
	// A target of zero can never be satisfied.
	if err := block.VerifyPoW(big.NewInt(0)); err == nil {
		t.Fatal("expected PoW failure against a zero target")
	}
	// The initial target admits about one hash in 65536, so searching the
	// first 2^20 nonces finds a match for this header.
	found := false
	for nonce := uint32(0); nonce < 1<<20; nonce++ {
		block.Header.Nonce = nonce
		if block.Header.HashAsInt().Cmp(easyTarget) < 0 {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("expected at least one nonce under 2^20 to satisfy the initial target")
	}
	if err := block.VerifyPoW(easyTarget); err != nil {
		t.Fatalf("VerifyPoW: %v", err)
	}
}
