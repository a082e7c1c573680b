package node

import (
	"testing"

	"github.com/p2pchain/node/internal/consensus"
)

func TestScenario_Genesis(t *testing.T) {
	store := newMemStore()
	chain := NewChainManager(store, NewMempool(nil), nil, minerH160(t))

	signal := make(chan struct{})
	result, err := chain.MineNextBlock(signal)
	if err != nil {
		t.Fatalf("MineNextBlock: %v", err)
	}
	if !result.Won || result.Block.Height != 0 {
		t.Fatalf("expected genesis to be mined at height 0, got won=%v height=%d", result.Won, result.Block.Height)
	}
	var zero [32]byte
	if result.Block.Header.PrevBlockHash != zero {
		t.Fatal("genesis block should have an all-zero prev hash")
	}
	if result.Block.Txs[0].Outputs[0].Amount != consensus.InitialReward {
		t.Fatalf("genesis coinbase amount = %d, want %d", result.Block.Txs[0].Outputs[0].Amount, consensus.InitialReward)
	}

	height, _, ok := chain.Tip()
	if !ok || height != 0 {
		t.Fatal("canonical chain should have exactly one block after genesis")
	}
	if _, ok := chain.UTXOs().Get(result.Block.Txs[0].ID()); !ok {
		t.Fatal("genesis coinbase should be in the UTXO set")
	}
}

func TestScenario_SimpleSpend(t *testing.T) {
	store := newMemStore()
	minerKey, err := consensus.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate miner key: %v", err)
	}
	walletKey, err := consensus.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate wallet key: %v", err)
	}
	minerH160 := minerKey.PubKey().Hash160()
	walletH160 := walletKey.PubKey().Hash160()

	mempool := NewMempool(nil)
	chain := NewChainManager(store, mempool, nil, minerH160)

	signal := make(chan struct{})
	genesis, err := chain.MineNextBlock(signal)
	if err != nil || !genesis.Won {
		t.Fatalf("mine genesis: won=%v err=%v", genesis != nil && genesis.Won, err)
	}
	coinbase := genesis.Block.Txs[0]

	const sendAmount = 1_000_000_000
	fee := int64(300) * mempool.FeeRate() // generous fee well above the minimum
	changeAmount := coinbase.Outputs[0].Amount - sendAmount - fee

	spend := &consensus.Tx{
		Version: 1,
		Inputs: []consensus.TxIn{{
			PrevTxID:  coinbase.ID(),
			PrevIndex: 0,
			Sequence:  0xFFFFFFFF,
		}},
		Outputs: []*consensus.TxOut{
			{Amount: sendAmount, ScriptPubKey: consensus.NewP2PKHScriptPubKey(walletH160)},
			{Amount: changeAmount, ScriptPubKey: consensus.NewP2PKHScriptPubKey(minerH160)},
		},
		Timestamp: uint32(wallClockNow().Unix()),
	}
	if err := consensus.SignInput(spend, 0, minerKey, coinbase.Outputs[0].ScriptPubKey); err != nil {
		t.Fatalf("SignInput: %v", err)
	}

	if err := mempool.Add(spend, chain.UTXOs()); err != nil {
		t.Fatalf("mempool.Add: %v", err)
	}

	result, err := chain.MineNextBlock(signal)
	if err != nil || !result.Won {
		t.Fatalf("mine height 1: won=%v err=%v", result != nil && result.Won, err)
	}

	if mempool.Size() != 0 {
		t.Fatalf("mempool should be empty after the spend is mined, size=%d", mempool.Size())
	}

	walletUTXOs := chain.UTXOs().GetUTXOsByWallet(walletH160)
	if len(walletUTXOs) != 1 {
		t.Fatalf("expected exactly one UTXO for the receiving wallet, got %d", len(walletUTXOs))
	}
	minerUTXOs := chain.UTXOs().GetUTXOsByWallet(minerH160)
	foundChange := false
	for _, op := range minerUTXOs {
		if op.PrevTxID == spend.ID() {
			foundChange = true
		}
	}
	if !foundChange {
		t.Fatal("expected the miner's change output to appear in the UTXO set")
	}

	confirmed, ok, err := store.FindTransaction(spend.ID())
	if err != nil || !ok {
		t.Fatalf("spend tx should be queryable by id: ok=%v err=%v", ok, err)
	}
	if confirmed.Tx.ID() != spend.ID() {
		t.Fatal("FindTransaction returned the wrong tx")
	}
}

func TestScenario_DoubleSpendRejection(t *testing.T) {
	store := newMemStore()
	minerKey, err := consensus.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate miner key: %v", err)
	}
	minerH160 := minerKey.PubKey().Hash160()
	mempool := NewMempool(nil)
	chain := NewChainManager(store, mempool, nil, minerH160)

	signal := make(chan struct{})
	genesis, err := chain.MineNextBlock(signal)
	if err != nil || !genesis.Won {
		t.Fatalf("mine genesis: won=%v err=%v", genesis != nil && genesis.Won, err)
	}
	coinbase := genesis.Block.Txs[0]

	otherH160 := minerH160
	buildSpend := func(amount int64) *consensus.Tx {
		tx := &consensus.Tx{
			Version: 1,
			Inputs:  []consensus.TxIn{{PrevTxID: coinbase.ID(), PrevIndex: 0, Sequence: 0xFFFFFFFF}},
			Outputs: []*consensus.TxOut{{Amount: amount, ScriptPubKey: consensus.NewP2PKHScriptPubKey(otherH160)}},
			Timestamp: uint32(wallClockNow().Unix()),
		}
		if err := consensus.SignInput(tx, 0, minerKey, coinbase.Outputs[0].ScriptPubKey); err != nil {
			t.Fatalf("SignInput: %v", err)
		}
		return tx
	}

	first := buildSpend(coinbase.Outputs[0].Amount - 300*mempool.FeeRate())
	second := buildSpend(coinbase.Outputs[0].Amount - 400*mempool.FeeRate())

	if err := mempool.Add(first, chain.UTXOs()); err != nil {
		t.Fatalf("first spend should be admitted: %v", err)
	}
	// The second transaction's referenced output is still "unspent" in the
	// live UTXO set (admission doesn't remove it until mined), but its
	// outpoint is already held by the first mempool transaction; the
	// conflict surfaces at block-assembly time via PickTxsToBlock's
	// eviction, matching the scenario's requirement that only one spend of
	// a given outpoint is ever confirmed.
	if err := mempool.Add(second, chain.UTXOs()); err != nil {
		t.Fatalf("second spend passes admission (fee/signature only): %v", err)
	}

	result, err := chain.MineNextBlock(signal)
	if err != nil || !result.Won {
		t.Fatalf("mine height 1: won=%v err=%v", result != nil && result.Won, err)
	}

	includedFirst := false
	includedSecond := false
	for _, tx := range result.Block.Txs {
		if tx.ID() == first.ID() {
			includedFirst = true
		}
		if tx.ID() == second.ID() {
			includedSecond = true
		}
	}
	if includedFirst == includedSecond {
		t.Fatalf("expected exactly one of the conflicting spends to be confirmed, got first=%v second=%v", includedFirst, includedSecond)
	}
}

func TestScenario_ForkDepth2_SwitchesToHeavierChain(t *testing.T) {
	chain, store, genesis, block1 := mineGenesisAndOne(t)
	payee := minerH160(t)

	alt1 := buildChildBlock(t, genesis, block1.Header.Bits, payee)
	alt2 := buildChildBlock(t, alt1, alt1.Header.Bits, payee)

	chain.EnqueueArrival(alt1)
	if err := chain.ProcessArrivals(); err != nil {
		t.Fatalf("ProcessArrivals(alt1): %v", err)
	}
	chain.EnqueueArrival(alt2)
	if err := chain.ProcessArrivals(); err != nil {
		t.Fatalf("ProcessArrivals(alt2): %v", err)
	}

	height, hash, ok := chain.Tip()
	if !ok || height != 2 || hash != alt2.Header.Hash() {
		t.Fatalf("expected the canonical chain to switch to the alternate 2-block chain, got height=%d ok=%v", height, ok)
	}

	// The original block1 should now sit in the secondary buffer rather
	// than the canonical chain.
	found := false
	for _, b := range chain.SecondaryBlocks() {
		if b.Header.Hash() == block1.Header.Hash() {
			found = true
		}
	}
	if !found {
		t.Fatal("the displaced original block1 should be retained in the secondary chain buffer")
	}
	_ = store
}

func TestScenario_Retarget_AdjustsDifficultyAtInterval(t *testing.T) {
	store := newMemStore()
	chain := NewChainManager(store, NewMempool(nil), nil, minerH160(t))

	fastClock := uint32(1_700_000_000)
	chain.nowFn = func() uint32 {
		fastClock++
		return fastClock
	}

	signal := make(chan struct{})
	var last *MineResult
	for i := 0; i < consensus.RetargetIntervalBlocks+1; i++ {
		r, err := chain.MineNextBlock(signal)
		if err != nil || !r.Won {
			t.Fatalf("mine block %d: won=%v err=%v", i, r != nil && r.Won, err)
		}
		last = r
	}

	if last.Block.Header.Bits == consensus.TargetToBits(consensus.InitialTarget) {
		t.Fatal("expected the retarget at the interval boundary to change the difficulty from genesis's bits")
	}
	newTarget := consensus.BitsToTarget(last.Block.Header.Bits)
	if newTarget.Cmp(consensus.InitialTarget) >= 0 {
		t.Fatal("blocks mined far faster than the target spacing should produce a harder (smaller) target")
	}

	// Mining should continue correctly at the new difficulty.
	again, err := chain.MineNextBlock(signal)
	if err != nil || !again.Won {
		t.Fatalf("mine past the retarget boundary: won=%v err=%v", again != nil && again.Won, err)
	}
}
