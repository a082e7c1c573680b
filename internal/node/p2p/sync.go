package p2p

import (
	"log/slog"

	"github.com/p2pchain/node/internal/consensus"
	"github.com/p2pchain/node/internal/node"
)

// Bootstrap runs the on-boot sync sequence of spec §4.10 against a chain
// manager and its store: handshake known peers, merge node lists, pull the
// mempool, download blocks until caught up, then pull the secondary chain.
type Bootstrap struct {
	store node.Store
	chain *node.ChainManager
}

// NewBootstrap constructs a bootstrap runner.
func NewBootstrap(store node.Store, chain *node.ChainManager) *Bootstrap {
	return &Bootstrap{store: store, chain: chain}
}

// Run executes the full sequence once. Per spec §5, the sync loop retries
// on any peer error without backoff, so a failure against one peer simply
// moves on to the next.
func (bs *Bootstrap) Run() {
	peers := bs.livePeers()
	if len(peers) == 0 {
		slog.Info("p2p: bootstrap: no responsive peers, starting from local state only")
		return
	}

	bs.mergeNodeLists(peers)
	bs.pullMempool(peers)
	bs.downloadBlocks(peers)
	bs.pullSecondaryChain(peers)
}

func (bs *Bootstrap) livePeers() []string {
	recs, err := bs.store.GetAllNodes()
	if err != nil {
		slog.Warn("p2p: bootstrap: could not load node table", "err", err)
		return nil
	}
	var live []string
	for _, rec := range recs {
		if Handshake(rec.Address) {
			live = append(live, rec.Address)
		}
	}
	return live
}

func (bs *Bootstrap) mergeNodeLists(peers []string) {
	seen := make(map[string]bool)
	for _, addr := range peers {
		seen[addr] = true
	}
	for _, addr := range peers {
		others, err := RequestNodes(addr)
		if err != nil {
			slog.Debug("p2p: bootstrap: requestNodes failed", "peer", addr, "err", err)
			continue
		}
		for _, o := range others {
			if seen[o] {
				continue
			}
			seen[o] = true
			if err := bs.store.AddNode(node.NodeRecord{Address: o}); err != nil {
				slog.Warn("p2p: bootstrap: could not persist discovered node", "node", o, "err", err)
			}
		}
	}
}

func (bs *Bootstrap) pullMempool(peers []string) {
	mempool := bs.chain.Mempool()
	for _, addr := range peers {
		err := RequestMemPool(addr, func(tx *consensus.Tx) {
			if err := mempool.Add(tx, bs.chain.UTXOs()); err != nil {
				slog.Debug("p2p: bootstrap: peer mempool tx not admitted", "txid", tx.IDHex(), "err", err)
			}
		})
		if err != nil {
			slog.Debug("p2p: bootstrap: requestMemPool failed", "peer", addr, "err", err)
		}
	}
}

// downloadBlocks implements startDownloadBlocks (spec §4.10): for each known
// peer, request blocks from last_height+1, drop any whose header does not
// meet its own bits' target, hand the rest to the chain manager (which
// extends the tip on a prev-hash match and otherwise runs fork resolution),
// and repeat until local height reaches the highest height any peer reported.
func (bs *Bootstrap) downloadBlocks(peers []string) {
	var highestKnown uint32
	for {
		nextHeight := bs.nextHeight()
		progressed := false

		for _, addr := range peers {
			received := 0
			param, err := RequestBlocks(addr, nextHeight, func(b *consensus.Block) {
				if err := b.VerifyPoW(consensus.BitsToTarget(b.Header.Bits)); err != nil {
					slog.Debug("p2p: bootstrap: dropping block with invalid proof of work", "peer", addr, "height", b.Height, "err", err)
					return
				}
				received++
				bs.chain.EnqueueArrival(b)
			})
			if err != nil {
				slog.Debug("p2p: bootstrap: requestBlock failed", "peer", addr, "err", err)
				continue
			}
			if received > 0 {
				if err := bs.chain.ProcessArrivals(); err != nil {
					slog.Warn("p2p: bootstrap: applying downloaded blocks failed", "peer", addr, "err", err)
				} else {
					progressed = true
				}
			}
			if param != nil && *param > highestKnown {
				highestKnown = *param
			}
		}

		if !progressed || bs.nextHeight() > highestKnown {
			return
		}
	}
}

func (bs *Bootstrap) nextHeight() uint32 {
	height, _, hasTip := bs.chain.Tip()
	if !hasTip {
		return 0
	}
	return height + 1
}

func (bs *Bootstrap) pullSecondaryChain(peers []string) {
	for _, addr := range peers {
		received := 0
		err := RequestSecondaryChain(addr, func(b *consensus.Block) {
			received++
			bs.chain.EnqueueArrival(b)
		})
		if err != nil {
			slog.Debug("p2p: bootstrap: requestSecondaryChain failed", "peer", addr, "err", err)
			continue
		}
		if received > 0 {
			if err := bs.chain.ProcessArrivals(); err != nil {
				slog.Warn("p2p: bootstrap: applying secondary chain blocks failed", "peer", addr, "err", err)
			}
		}
		return
	}
}
