// Package store implements the persistence adapter (spec §6) on top of
// bbolt: a bucket per collection, with the indexes the spec requires
// expressed as secondary buckets keyed by the indexed field.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/p2pchain/node/internal/consensus"
	"github.com/p2pchain/node/internal/node"
)

var (
	bucketBlocksByHeight = []byte("blocks_by_height")
	bucketBlocksByHash   = []byte("blocks_by_hash") // hash -> height, secondary index
	bucketTxIndex        = []byte("tx_by_id")       // tx_id -> {height, blockHash}
	bucketNodes          = []byte("nodes_by_address")
)

// DB is a bbolt-backed Store (spec §6).
type DB struct {
	bolt *bolt.DB
}

// Open opens or creates the bbolt file at path and ensures every bucket
// this store needs exists.
func Open(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt: %w", err)
	}
	d := &DB{bolt: bdb}
	err = bdb.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketBlocksByHeight, bucketBlocksByHash, bucketTxIndex, bucketNodes} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("store: create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return d, nil
}

// Close releases the underlying bbolt file.
func (d *DB) Close() error {
	return d.bolt.Close()
}

func heightKey(height uint32) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], height)
	return k[:]
}

type txIndexEntry struct {
	Height    uint32
	BlockHash [32]byte
}

// SaveBlock inserts b, replacing whatever was previously stored at its
// height (spec §6: "on duplicate-height, replace and re-insert its txs;
// previously-indexed txs for the displaced block are removed").
func (d *DB) SaveBlock(b *consensus.Block) error {
	return d.bolt.Update(func(tx *bolt.Tx) error {
		heights := tx.Bucket(bucketBlocksByHeight)
		hashes := tx.Bucket(bucketBlocksByHash)
		txs := tx.Bucket(bucketTxIndex)

		key := heightKey(b.Height)
		if prevRaw := heights.Get(key); prevRaw != nil {
			prev, err := consensus.ParseBlock(prevRaw)
			if err != nil {
				return fmt.Errorf("store: corrupt existing block at height %d: %w", b.Height, err)
			}
			prevHash := prev.Header.Hash()
			if err := hashes.Delete(prevHash[:]); err != nil {
				return err
			}
			for _, ptx := range prev.Txs {
				id := ptx.ID()
				if err := txs.Delete(id[:]); err != nil {
					return err
				}
			}
		}

		raw := b.Serialize()
		if err := heights.Put(key, raw); err != nil {
			return err
		}
		hash := b.Header.Hash()
		if err := hashes.Put(hash[:], key); err != nil {
			return err
		}
		for _, btx := range b.Txs {
			id := btx.ID()
			entry, err := json.Marshal(txIndexEntry{Height: b.Height, BlockHash: hash})
			if err != nil {
				return err
			}
			if err := txs.Put(id[:], entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetBlock returns the block stored at height, if any.
func (d *DB) GetBlock(height uint32) (*consensus.Block, bool, error) {
	var out *consensus.Block
	err := d.bolt.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketBlocksByHeight).Get(heightKey(height))
		if raw == nil {
			return nil
		}
		b, err := consensus.ParseBlock(raw)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, out != nil, err
}

// FindBlock returns the block with the given header hash, if any.
func (d *DB) FindBlock(hash [32]byte) (*consensus.Block, bool, error) {
	var out *consensus.Block
	err := d.bolt.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketBlocksByHash).Get(hash[:])
		if key == nil {
			return nil
		}
		raw := tx.Bucket(bucketBlocksByHeight).Get(key)
		if raw == nil {
			return nil
		}
		b, err := consensus.ParseBlock(raw)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, out != nil, err
}

// LastBlock returns the highest-height stored block.
func (d *DB) LastBlock() (*consensus.Block, bool, error) {
	var out *consensus.Block
	err := d.bolt.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketBlocksByHeight).Cursor()
		_, raw := c.Last()
		if raw == nil {
			return nil
		}
		b, err := consensus.ParseBlock(raw)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, out != nil, err
}

// GetBlocks returns every block in [fromHeight, toHeight], inclusive, in
// ascending height order.
func (d *DB) GetBlocks(fromHeight, toHeight uint32) ([]*consensus.Block, error) {
	var out []*consensus.Block
	err := d.bolt.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketBlocksByHeight).Cursor()
		for k, v := c.Seek(heightKey(fromHeight)); k != nil; k, v = c.Next() {
			height := binary.BigEndian.Uint32(k)
			if height > toHeight {
				break
			}
			b, err := consensus.ParseBlock(v)
			if err != nil {
				return err
			}
			out = append(out, b)
		}
		return nil
	})
	return out, err
}

// FindTransaction returns a confirmed transaction and the hash of the block
// that confirmed it.
func (d *DB) FindTransaction(txID [32]byte) (*node.ConfirmedTx, bool, error) {
	var out *node.ConfirmedTx
	err := d.bolt.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketTxIndex).Get(txID[:])
		if raw == nil {
			return nil
		}
		var entry txIndexEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return err
		}
		blockRaw := tx.Bucket(bucketBlocksByHeight).Get(heightKey(entry.Height))
		if blockRaw == nil {
			return nil
		}
		blk, err := consensus.ParseBlock(blockRaw)
		if err != nil {
			return err
		}
		for _, btx := range blk.Txs {
			if btx.ID() == txID {
				out = &node.ConfirmedTx{Tx: btx, BlockHash: entry.BlockHash}
				return nil
			}
		}
		return nil
	})
	return out, out != nil, err
}

// GetAllNodes returns every known peer, unique on address.
func (d *DB) GetAllNodes() ([]node.NodeRecord, error) {
	var out []node.NodeRecord
	err := d.bolt.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(_, v []byte) error {
			var rec node.NodeRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// AddNode inserts or updates rec, unique on rec.Address.
func (d *DB) AddNode(rec node.NodeRecord) error {
	return d.bolt.Update(func(tx *bolt.Tx) error {
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketNodes).Put([]byte(rec.Address), raw)
	})
}

// UpdateNodes upserts every record in recs in a single transaction.
func (d *DB) UpdateNodes(recs []node.NodeRecord) error {
	return d.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		for _, rec := range recs {
			raw, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(rec.Address), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ node.Store = (*DB)(nil)
