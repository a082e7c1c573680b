package node

import (
	"log/slog"

	"github.com/p2pchain/node/internal/consensus"
)

// lostCompetitionLocked drains the arrival buffer, re-validating each block
// and either extending the local tip directly or handing it to
// resolveConflictLocked (spec §4.8.2). Caller must hold c.mu.
func (c *ChainManager) lostCompetitionLocked() error {
	arrivals := c.arrivals
	c.arrivals = nil

	for _, b := range arrivals {
		if err := c.checkBlockLocked(b); err != nil {
			slog.Warn("dropping invalid arrival block", "height", b.Height, "err", err)
			continue
		}

		if c.hasTip && b.Header.PrevBlockHash == c.tipHash && c.bitsAtOrBelowCurrentLocked(b.Header.Bits) {
			c.extendTipLocked(b)
			continue
		}
		if err := c.resolveConflictLocked(b); err != nil {
			slog.Warn("fork resolution failed", "height", b.Height, "err", err)
		}
	}
	return nil
}

// bitsAtOrBelowCurrentLocked reports whether candidateBits encodes a target
// no easier than the current difficulty (spec §4.8.2: "bits <= current_target").
func (c *ChainManager) bitsAtOrBelowCurrentLocked(candidateBits [4]byte) bool {
	candidateTarget := consensus.BitsToTarget(candidateBits)
	return candidateTarget.Cmp(c.currentTarget) <= 0
}

// extendTipLocked applies b directly on top of the current tip: update
// UTXOs, remove its transactions from the mempool, persist.
func (c *ChainManager) extendTipLocked(b *consensus.Block) {
	for _, tx := range b.Txs {
		c.utxos.Add(tx)
	}
	for _, tx := range b.Txs {
		if tx.IsCoinbase() {
			continue
		}
		for _, in := range tx.Inputs {
			c.utxos.Remove(in.Outpoint())
			c.mempool.Remove(in.Outpoint().PrevTxID)
		}
	}
	for _, tx := range b.Txs {
		c.mempool.Remove(tx.ID())
	}
	if err := c.store.SaveBlock(b); err != nil {
		slog.Error("persisting extended block failed", "height", b.Height, "err", err)
		return
	}
	c.commitTipLocked(b, b.Header.Bits)
}

// checkBlockLocked validates b against a shadow UTXO set materialized at
// its parent (spec §4.8.3): every non-coinbase input must resolve and
// verify, and the coinbase must not mint beyond reward(height)+fees.
func (c *ChainManager) checkBlockLocked(b *consensus.Block) error {
	if len(b.Txs) == 0 || !b.Txs[0].IsCoinbase() {
		return chainErr(ErrPrevBlockMissing, "block has no coinbase")
	}
	for _, tx := range b.Txs[1:] {
		if tx.IsCoinbase() {
			return chainErr(ErrPrevBlockMissing, "multiple coinbase transactions")
		}
	}
	if err := b.VerifyMerkleRoot(); err != nil {
		return err
	}

	shadow, err := c.shadowUTXOAtLocked(b.Header.PrevBlockHash)
	if err != nil {
		return err
	}

	var totalFees int64
	for _, tx := range b.Txs[1:] {
		inSum, outSum, err := consensus.VerifyNonCoinbaseTx(tx, shadow)
		if err != nil {
			return err
		}
		totalFees += inSum - outSum
	}
	if err := consensus.VerifyBlockRewards(b.Height, b.Txs[0], totalFees); err != nil {
		return err
	}
	return nil
}

// shadowUTXOAtLocked replays the canonical chain up to the ancestor of
// parentHash plus whatever secondary-chain blocks lead up to it, giving a
// UTXO set "as of" parentHash without mutating the live set (spec §4.8.3).
func (c *ChainManager) shadowUTXOAtLocked(parentHash [32]byte) (*consensus.UtxoSet, error) {
	if c.hasTip && parentHash == c.tipHash {
		return c.utxos.Clone(), nil
	}

	var path []*consensus.Block
	cursor := parentHash
	for {
		if blk, ok := c.secondary[cursor]; ok {
			path = append([]*consensus.Block{blk}, path...)
			cursor = blk.Header.PrevBlockHash
			continue
		}
		break
	}

	ancestorHeight := uint32(0)
	hasAncestor := false
	if found, ok, err := c.store.FindBlock(cursor); err == nil && ok {
		ancestorHeight = found.Height
		hasAncestor = true
	}

	var blocks []*consensus.Block
	if hasAncestor {
		canonical, err := c.store.GetBlocks(0, ancestorHeight)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, canonical...)
	}
	blocks = append(blocks, path...)

	shadow := consensus.NewUtxoSet()
	shadow.Build(blocks)
	return shadow, nil
}

// resolveConflictLocked decides whether a remote block begins a heavier
// chain and switches to it if so (spec §4.8.4). "Heavier" is approximated
// by height; ties favor the incumbent canonical chain.
func (c *ChainManager) resolveConflictLocked(b *consensus.Block) error {
	if c.hasTip && b.Height <= c.tipHeight {
		c.secondary[b.Header.Hash()] = b
		return nil
	}

	chainCandidates := []*consensus.Block{b}
	cursor := b.Header.PrevBlockHash
	var ancestorHeight uint32
	hasAncestor := false
	for {
		if blk, ok := c.secondary[cursor]; ok {
			chainCandidates = append([]*consensus.Block{blk}, chainCandidates...)
			cursor = blk.Header.PrevBlockHash
			continue
		}
		if found, ok, err := c.store.FindBlock(cursor); err == nil && ok {
			ancestorHeight = found.Height
			hasAncestor = true
		}
		break
	}

	var zeroHash [32]byte
	if !hasAncestor && cursor != zeroHash {
		// Prefix incomplete and not genesis: store for now, await more peers.
		c.secondary[b.Header.Hash()] = b
		return nil
	}

	if err := c.verifyCandidateDifficultyLocked(chainCandidates, ancestorHeight); err != nil {
		return err
	}

	var orphans []*consensus.Tx
	if c.hasTip {
		for h := ancestorHeight + 1; h <= c.tipHeight; h++ {
			displaced, ok, err := c.store.GetBlock(h)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			c.secondary[displaced.Header.Hash()] = displaced
			for _, tx := range displaced.Txs {
				if !tx.IsCoinbase() {
					orphans = append(orphans, tx)
				}
			}
		}
	}

	canonicalPrefix, err := c.store.GetBlocks(0, ancestorHeight)
	if err != nil {
		return err
	}
	fullChain := append(append([]*consensus.Block(nil), canonicalPrefix...), chainCandidates...)

	included := make(map[[32]byte]bool)
	for _, blk := range chainCandidates {
		if err := c.store.SaveBlock(blk); err != nil {
			return err
		}
		for _, tx := range blk.Txs {
			included[tx.ID()] = true
		}
	}

	c.utxos.Build(fullChain)

	tipBlock := chainCandidates[len(chainCandidates)-1]
	c.hasTip = true
	c.tipHeight = tipBlock.Height
	c.tipHash = tipBlock.Header.Hash()
	c.bits = tipBlock.Header.Bits
	c.currentTarget = consensus.BitsToTarget(c.bits)
	c.tipTimestamps = recentTimestamps(fullChain)

	for _, tx := range orphans {
		if included[tx.ID()] {
			continue
		}
		if err := c.mempool.Add(tx, c.utxos); err != nil {
			slog.Info("orphaned transaction not re-admitted", "txid", tx.IDHex(), "err", err)
		}
	}

	for _, blk := range chainCandidates {
		delete(c.secondary, blk.Header.Hash())
	}
	return nil
}

// verifyCandidateDifficultyLocked walks chain (the candidate/secondary
// blocks being spliced in, in ascending height order) and re-derives the
// expected bits at every retarget boundary from the chain's own history,
// the way the ground-truth resolve_conflict does it: seed the running
// target from the epoch-start block's own bits, then re-adjust it at each
// subsequent 10-block boundary using that epoch's actual blocks, rather
// than the node's own live current target (which may predate or postdate
// the fork entirely) (spec §4.8.4 step 3).
func (c *ChainManager) verifyCandidateDifficultyLocked(chain []*consensus.Block, ancestorHeight uint32) error {
	if len(chain) == 0 {
		return nil
	}
	firstHeight := chain[0].Height
	if firstHeight == 0 {
		return nil
	}

	prevBlock, ok := c.blockAtHeightLocked(chain, ancestorHeight, firstHeight-1)
	if !ok {
		return nil
	}

	var decBlockHeight uint32
	switch {
	case firstHeight%consensus.RetargetIntervalBlocks != 0:
		decBlockHeight = (firstHeight / consensus.RetargetIntervalBlocks) * consensus.RetargetIntervalBlocks
	case firstHeight >= consensus.RetargetIntervalBlocks:
		decBlockHeight = firstHeight - consensus.RetargetIntervalBlocks
	default:
		return nil
	}
	decBlock, ok := c.blockAtHeightLocked(chain, ancestorHeight, decBlockHeight)
	if !ok {
		return nil
	}

	decBits := decBlock.Header.Bits
	for _, blk := range chain {
		if blk.Height%consensus.RetargetIntervalBlocks == 0 {
			newTarget := consensus.Retarget(consensus.BitsToTarget(decBlock.Header.Bits), decBlock.Header.Timestamp, prevBlock.Header.Timestamp)
			decBits = consensus.TargetToBits(newTarget)
			decBlock = blk
		}
		if blk.Header.Bits != decBits {
			return chainErr(ErrDifficultyViolation, "retarget mismatch in candidate chain")
		}
		prevBlock = blk
	}
	return nil
}

// blockAtHeightLocked resolves height to a block, first checking chain
// (the in-flight candidate blocks) and falling back to the persisted
// canonical chain for heights at or below ancestorHeight.
func (c *ChainManager) blockAtHeightLocked(chain []*consensus.Block, ancestorHeight, height uint32) (*consensus.Block, bool) {
	for _, blk := range chain {
		if blk.Height == height {
			return blk, true
		}
	}
	if height <= ancestorHeight {
		if b, ok, err := c.store.GetBlock(height); err == nil && ok {
			return b, true
		}
	}
	return nil, false
}

func recentTimestamps(chain []*consensus.Block) []uint32 {
	n := consensus.RetargetIntervalBlocks + 1
	if len(chain) < n {
		n = len(chain)
	}
	out := make([]uint32, 0, n)
	for _, blk := range chain[len(chain)-n:] {
		out = append(out, blk.Header.Timestamp)
	}
	return out
}
