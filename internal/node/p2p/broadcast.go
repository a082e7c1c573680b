package p2p

import (
	"log/slog"

	"github.com/p2pchain/node/internal/consensus"
	"github.com/p2pchain/node/internal/node"
)

// PeerBroadcaster fans a newly-won block out to every known peer, satisfying
// node.Broadcaster. Each send is a fresh single-shot connection.
type PeerBroadcaster struct {
	store node.Store
}

// NewPeerBroadcaster constructs a broadcaster backed by store's node table.
func NewPeerBroadcaster(store node.Store) *PeerBroadcaster {
	return &PeerBroadcaster{store: store}
}

// BroadcastBlock implements node.Broadcaster.
func (p *PeerBroadcaster) BroadcastBlock(b *consensus.Block) {
	recs, err := p.store.GetAllNodes()
	if err != nil {
		slog.Warn("p2p: broadcast: could not load node table", "err", err)
		return
	}
	for _, rec := range recs {
		if err := BroadcastBlock(rec.Address, b); err != nil {
			slog.Debug("p2p: broadcast to peer failed", "peer", rec.Address, "err", err)
		}
	}
}
