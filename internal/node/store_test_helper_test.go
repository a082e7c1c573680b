package node

import (
	"sync"

	"github.com/p2pchain/node/internal/consensus"
)

// memStore is a minimal in-memory Store used by chain-manager tests; it
// implements just enough of the persistence contract to exercise
// ChainManager without a real bbolt file on disk.
type memStore struct {
	mu     sync.Mutex
	blocks map[uint32]*consensus.Block
	byHash map[[32]byte]uint32
	nodes  map[string]NodeRecord
}

func newMemStore() *memStore {
	return &memStore{
		blocks: make(map[uint32]*consensus.Block),
		byHash: make(map[[32]byte]uint32),
		nodes:  make(map[string]NodeRecord),
	}
}

func (s *memStore) SaveBlock(b *consensus.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.Height] = b
	s.byHash[b.Header.Hash()] = b.Height
	return nil
}

func (s *memStore) GetBlock(height uint32) (*consensus.Block, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[height]
	return b, ok, nil
}

func (s *memStore) FindBlock(hash [32]byte) (*consensus.Block, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	height, ok := s.byHash[hash]
	if !ok {
		return nil, false, nil
	}
	return s.blocks[height], true, nil
}

func (s *memStore) LastBlock() (*consensus.Block, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *consensus.Block
	for _, b := range s.blocks {
		if best == nil || b.Height > best.Height {
			best = b
		}
	}
	return best, best != nil, nil
}

func (s *memStore) GetBlocks(fromHeight, toHeight uint32) ([]*consensus.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*consensus.Block
	for h := fromHeight; h <= toHeight; h++ {
		if b, ok := s.blocks[h]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) FindTransaction(txID [32]byte) (*ConfirmedTx, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.blocks {
		for _, tx := range b.Txs {
			if tx.ID() == txID {
				return &ConfirmedTx{Tx: tx, BlockHash: b.Header.Hash()}, true, nil
			}
		}
	}
	return nil, false, nil
}

func (s *memStore) GetAllNodes() ([]NodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]NodeRecord, 0, len(s.nodes))
	for _, rec := range s.nodes {
		out = append(out, rec)
	}
	return out, nil
}

func (s *memStore) AddNode(rec NodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[rec.Address] = rec
	return nil
}

func (s *memStore) UpdateNodes(recs []NodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		s.nodes[rec.Address] = rec
	}
	return nil
}

var _ Store = (*memStore)(nil)
