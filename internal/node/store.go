package node

import "github.com/p2pchain/node/internal/consensus"

// NodeRecord is one row of the persisted node table (spec §6: get_all_nodes
// / add_node / update_nodes), unique on Address.
type NodeRecord struct {
	Address  string
	LastSeen int64
}

// ConfirmedTx is the result of Store.FindTransaction: a transaction plus
// the hash of the block that confirmed it (spec §6).
type ConfirmedTx struct {
	Tx        *consensus.Tx
	BlockHash [32]byte
}

// Store is the persistence adapter contract spec §6 describes: any
// document store can sit behind it. save_block on a duplicate height
// replaces the stored block and its indexed transactions (used by fork
// resolution switching the canonical chain at a height).
type Store interface {
	SaveBlock(b *consensus.Block) error
	GetBlock(height uint32) (*consensus.Block, bool, error)
	FindBlock(hash [32]byte) (*consensus.Block, bool, error)
	LastBlock() (*consensus.Block, bool, error)
	GetBlocks(fromHeight, toHeight uint32) ([]*consensus.Block, error)
	FindTransaction(txID [32]byte) (*ConfirmedTx, bool, error)

	GetAllNodes() ([]NodeRecord, error)
	AddNode(rec NodeRecord) error
	UpdateNodes(recs []NodeRecord) error
}
