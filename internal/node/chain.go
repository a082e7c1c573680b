package node

import (
	"math/big"
	"sync"

	"github.com/p2pchain/node/internal/consensus"
)

// SecondaryChainDepth is MEMORY_SIZE from spec §3: the secondary chain
// holds blocks within this many heights of the current tip.
const SecondaryChainDepth = 50

// RequestBlockSendLimit is SEND_LIMIT from spec §4.9: at most this many
// blocks are sent per `requestBlock`.
const RequestBlockSendLimit = 50

// Broadcaster sends a newly-accepted block to the peer set. It is a thin
// seam over the p2p layer so ChainManager stays transport-agnostic.
type Broadcaster interface {
	BroadcastBlock(b *consensus.Block)
}

type nullBroadcaster struct{}

func (nullBroadcaster) BroadcastBlock(*consensus.Block) {}

// ChainManager owns the canonical chain, the UTXO set, the mempool, and the
// secondary (off-chain) block buffer, and implements the mining /
// fork-resolution algorithm of spec §4.8. A single mutex guards all of its
// mutable state (UTXO set, arrival buffer, secondary chain, tip); the
// mempool carries its own lock.
type ChainManager struct {
	mu sync.Mutex

	store   Store
	utxos   *consensus.UtxoSet
	mempool *Mempool
	bc      Broadcaster

	secondary map[[32]byte]*consensus.Block // off-chain blocks, bounded to SecondaryChainDepth behind tip
	arrivals  []*consensus.Block            // blocks received from peers, awaiting LostCompetition
	arrivalCh chan struct{}                 // pulsed once per EnqueueArrival so a miner can preempt

	hasTip        bool
	tipHeight     uint32
	tipHash       [32]byte
	tipTimestamps []uint32 // most recent RetargetIntervalBlocks+1 timestamps, newest last
	currentTarget *big.Int
	bits          [4]byte

	minerH160 [20]byte
	nowFn     func() uint32
}

// NewChainManager constructs a chain manager with an empty chain: height 0
// is not yet mined.
func NewChainManager(store Store, mempool *Mempool, bc Broadcaster, minerH160 [20]byte) *ChainManager {
	if bc == nil {
		bc = nullBroadcaster{}
	}
	bits := consensus.TargetToBits(consensus.InitialTarget)
	return &ChainManager{
		store:         store,
		utxos:         consensus.NewUtxoSet(),
		mempool:       mempool,
		bc:            bc,
		secondary:     make(map[[32]byte]*consensus.Block),
		arrivalCh:     make(chan struct{}, 1),
		currentTarget: new(big.Int).Set(consensus.InitialTarget),
		bits:          bits,
		minerH160:     minerH160,
		nowFn:         defaultNow,
	}
}

// Tip returns the current canonical height/hash, and whether any block has
// been mined yet.
func (c *ChainManager) Tip() (height uint32, hash [32]byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tipHeight, c.tipHash, c.hasTip
}

// UTXOs exposes the live UTXO set for read-only query-API style consumers.
// Per spec §5, query-API workers are read-only consumers of the shared maps.
func (c *ChainManager) UTXOs() *consensus.UtxoSet {
	return c.utxos
}

// EnqueueArrival appends a peer-supplied block to the arrival buffer that
// LostCompetition drains (spec §4.8.2), and pulses ArrivalNotify so an
// in-progress mining attempt can abort immediately instead of waiting for
// its current nonce search to exhaust on its own.
func (c *ChainManager) EnqueueArrival(b *consensus.Block) {
	c.mu.Lock()
	c.arrivals = append(c.arrivals, b)
	c.mu.Unlock()

	select {
	case c.arrivalCh <- struct{}{}:
	default:
	}
}

// ArrivalNotify returns a channel that receives a value whenever a peer
// block is enqueued. A mining loop selects on it alongside its own shutdown
// signal so an in-progress MineHeader call preempts on arrival, not just on
// shutdown.
func (c *ChainManager) ArrivalNotify() <-chan struct{} {
	return c.arrivalCh
}

// ProcessArrivals drains and validates the arrival buffer outside of a
// mining attempt (spec §4.8.2's LostCompetition path), for callers such as
// the sync/bootstrap loop that need arrivals applied without waiting for
// the local miner to lose a round.
func (c *ChainManager) ProcessArrivals() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lostCompetitionLocked()
}

// SecondaryBlocks returns every block currently held in the secondary
// chain buffer, in no particular order (spec §4.9 `requestSecondaryChain`).
func (c *ChainManager) SecondaryBlocks() []*consensus.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*consensus.Block, 0, len(c.secondary))
	for _, b := range c.secondary {
		out = append(out, b)
	}
	return out
}

// Mempool exposes the chain manager's mempool for the p2p and sync layers.
func (c *ChainManager) Mempool() *Mempool {
	return c.mempool
}

// Store exposes the chain manager's persistence layer for the p2p and sync
// layers' read-only queries (spec §5: query-API workers are read-only
// consumers of the shared state).
func (c *ChainManager) Store() Store {
	return c.store
}

// pruneSecondaryLocked clears secondary-chain entries older than
// height-SecondaryChainDepth (spec §4.8.1 step 1).
func (c *ChainManager) pruneSecondaryLocked() {
	if !c.hasTip || c.tipHeight < SecondaryChainDepth {
		return
	}
	floor := c.tipHeight - SecondaryChainDepth
	for hash, b := range c.secondary {
		if b.Height < floor {
			delete(c.secondary, hash)
		}
	}
}

// MineResult summarizes the outcome of MineNextBlock.
type MineResult struct {
	Won   bool
	Block *consensus.Block
}

// MineNextBlock runs one pass of the local mining loop (spec §4.8.1): build
// a candidate block from the mempool, mine its header against newBlockSignal,
// and either persist it (won) or run LostCompetition (lost).
func (c *ChainManager) MineNextBlock(newBlockSignal <-chan struct{}) (*MineResult, error) {
	c.mu.Lock()
	c.pruneSecondaryLocked()

	nextHeight := uint32(0)
	var prevHash [32]byte
	if c.hasTip {
		nextHeight = c.tipHeight + 1
		prevHash = c.tipHash
	}

	candidates := c.mempool.Drain()
	sel := PickTxsToBlock(candidates, c.utxos)

	// Transactions that didn't make it into this block (but weren't
	// evicted for referencing missing/conflicting inputs) go back to the
	// mempool for the next attempt.
	selectedSet := make(map[[32]byte]bool, len(sel.Txs))
	for _, id := range sel.TxIDs {
		selectedSet[id] = true
	}
	evictedSet := make(map[[32]byte]bool, len(sel.Evicted))
	for _, id := range sel.Evicted {
		evictedSet[id] = true
	}
	var unselected []*consensus.Tx
	for _, tx := range candidates {
		id := tx.ID()
		if !selectedSet[id] && !evictedSet[id] {
			unselected = append(unselected, tx)
		}
	}
	c.mempool.Restore(unselected)

	now := c.nowFn()
	coinbase := consensus.NewCoinbaseTx(nextHeight, consensus.BlockReward(nextHeight)+sel.Fee, c.minerH160, now)

	txIDs := append([][32]byte{coinbase.ID()}, sel.TxIDs...)
	merkleRoot := consensus.MerkleRoot(txIDs)

	bits, target := c.maybeRetargetLocked(nextHeight)

	header := consensus.BlockHeader{
		Version:       1,
		PrevBlockHash: prevHash,
		MerkleRoot:    merkleRoot,
		Timestamp:     now,
		Bits:          bits,
	}
	c.mu.Unlock()

	finishedLost := MineHeader(&header, target, newBlockSignal)

	c.mu.Lock()

	if finishedLost {
		err := c.lostCompetitionLocked()
		// Transactions drained for the losing attempt are still valid
		// candidates; put them back for the next round.
		c.mempool.Restore(append(sel.Txs, unselected...))
		c.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return &MineResult{Won: false}, nil
	}

	allTxs := append([]*consensus.Tx{coinbase}, sel.Txs...)
	block := &consensus.Block{Height: nextHeight, Header: header, Txs: allTxs}

	if err := c.store.SaveBlock(block); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	for _, tx := range allTxs {
		c.utxos.Add(tx)
	}
	for _, op := range sel.SpentOutpoint {
		c.utxos.Remove(op)
	}
	c.commitTipLocked(block, bits)
	c.mu.Unlock()

	// Broadcast after releasing c.mu (spec §4.8.1 step 7), so a slow peer
	// write does not hold the lock during network I/O. The call itself is
	// synchronous: MineNextBlock returns once every peer send has finished
	// or failed.
	c.bc.BroadcastBlock(block)

	return &MineResult{Won: true, Block: block}, nil
}

func (c *ChainManager) commitTipLocked(block *consensus.Block, bits [4]byte) {
	c.hasTip = true
	c.tipHeight = block.Height
	c.tipHash = block.Header.Hash()
	c.bits = bits
	c.currentTarget = consensus.BitsToTarget(bits)
	c.tipTimestamps = append(c.tipTimestamps, block.Header.Timestamp)
	if len(c.tipTimestamps) > consensus.RetargetIntervalBlocks+1 {
		c.tipTimestamps = c.tipTimestamps[len(c.tipTimestamps)-(consensus.RetargetIntervalBlocks+1):]
	}
}

// maybeRetargetLocked returns the bits/target to use for nextHeight,
// recomputing per spec §4.7 every RetargetIntervalBlocks blocks.
func (c *ChainManager) maybeRetargetLocked(nextHeight uint32) ([4]byte, *big.Int) {
	if nextHeight == 0 || nextHeight%consensus.RetargetIntervalBlocks != 0 {
		return c.bits, c.currentTarget
	}
	tsLast, okLast := c.blockTimestampLocked(nextHeight - 1)
	tsFirst, okFirst := c.blockTimestampLocked(nextHeight - consensus.RetargetIntervalBlocks)
	if !okLast || !okFirst {
		return c.bits, c.currentTarget
	}
	newTarget := consensus.Retarget(c.currentTarget, tsFirst, tsLast)
	return consensus.TargetToBits(newTarget), newTarget
}

func (c *ChainManager) blockTimestampLocked(height uint32) (uint32, bool) {
	if c.store == nil {
		return 0, false
	}
	b, ok, err := c.store.GetBlock(height)
	if err != nil || !ok {
		return 0, false
	}
	return b.Header.Timestamp, true
}
