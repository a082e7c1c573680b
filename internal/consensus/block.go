package consensus

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"
)

// HeaderSize is the fixed 80-byte serialized length of a BlockHeader.
const HeaderSize = 4 + 32 + 32 + 4 + 4 + 4

// BlockHeader is the 80-byte proof-of-work header (spec §3).
type BlockHeader struct {
	Version       uint32
	PrevBlockHash [32]byte
	MerkleRoot    [32]byte
	Timestamp     uint32
	Bits          [4]byte
	Nonce         uint32
}

// Serialize writes the canonical 80-byte header encoding.
func (h *BlockHeader) Serialize() []byte {
	out := make([]byte, 0, HeaderSize)
	out = AppendU32LE(out, h.Version)
	out = append(out, h.PrevBlockHash[:]...)
	out = append(out, h.MerkleRoot[:]...)
	out = AppendU32LE(out, h.Timestamp)
	out = append(out, h.Bits[:]...)
	out = AppendU32LE(out, h.Nonce)
	return out
}

// ParseBlockHeader parses an 80-byte header.
func ParseBlockHeader(b []byte) (*BlockHeader, error) {
	if len(b) < HeaderSize {
		return nil, newErr(ErrTruncatedStream, "header: short read")
	}
	h := &BlockHeader{
		Version:   binary.LittleEndian.Uint32(b[0:4]),
		Timestamp: binary.LittleEndian.Uint32(b[68:72]),
		Nonce:     binary.LittleEndian.Uint32(b[76:80]),
	}
	copy(h.PrevBlockHash[:], b[4:36])
	copy(h.MerkleRoot[:], b[36:68])
	copy(h.Bits[:], b[72:76])
	return h, nil
}

// Hash is the double-SHA256 of the 80-byte serialization, interpreted
// little-endian for PoW comparison.
func (h *BlockHeader) Hash() [32]byte {
	return Hash256(h.Serialize())
}

// HashHex renders Hash() as conventional reversed hex.
func (h *BlockHeader) HashHex() string {
	hh := h.Hash()
	return hex.EncodeToString(ReverseBytes(hh[:]))
}

// HashAsInt interprets Hash() as a little-endian unsigned integer, the form
// compared against the target during mining (spec §4.6).
func (h *BlockHeader) HashAsInt() *big.Int {
	hh := h.Hash()
	le := ReverseBytes(hh[:])
	return new(big.Int).SetBytes(le)
}

// Block is height + size + header + transactions. The first transaction is
// always the coinbase.
type Block struct {
	Height uint32
	Header BlockHeader
	Txs    []*Tx
}

// Size is the byte-length of the block's transaction-list serialization
// (header is fixed-size and reported separately).
func (b *Block) Size() uint32 {
	size := 0
	for _, tx := range b.Txs {
		size += tx.Size()
	}
	return uint32(size)
}

// TxIDs returns the double-SHA256 ids of every transaction in order.
func (b *Block) TxIDs() [][32]byte {
	out := make([][32]byte, len(b.Txs))
	for i, tx := range b.Txs {
		out[i] = tx.ID()
	}
	return out
}

// SerializeTxs encodes tx_count + the transaction list, the payload carried
// alongside the header in the `newBlockAvbl` / block-download wire formats.
func (b *Block) SerializeTxs() []byte {
	out := AppendVarInt(nil, uint64(len(b.Txs)))
	for _, tx := range b.Txs {
		out = append(out, tx.Serialize()...)
	}
	return out
}

// Serialize encodes the full wire block: height, size, header, tx_count, txs.
func (b *Block) Serialize() []byte {
	out := AppendU32LE(nil, b.Height)
	out = AppendU32LE(out, b.Size())
	out = append(out, b.Header.Serialize()...)
	out = append(out, b.SerializeTxs()...)
	return out
}

// ParseBlock parses a full wire block.
func ParseBlock(raw []byte) (*Block, error) {
	c := newCursor(raw)
	height, err := c.readU32le()
	if err != nil {
		return nil, err
	}
	if _, err := c.readU32le(); err != nil { // declared size, recomputed rather than trusted
		return nil, err
	}
	headerBytes, err := c.readExact(HeaderSize)
	if err != nil {
		return nil, err
	}
	header, err := ParseBlockHeader(headerBytes)
	if err != nil {
		return nil, err
	}
	nTx, err := c.readVarInt()
	if err != nil {
		return nil, err
	}
	txs := make([]*Tx, 0, nTx)
	for i := uint64(0); i < nTx; i++ {
		tx, err := parseTxFrom(c)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return &Block{Height: height, Header: *header, Txs: txs}, nil
}

// VerifyMerkleRoot checks b.Header.MerkleRoot against the Merkle root of
// b's transaction ids.
func (b *Block) VerifyMerkleRoot() error {
	got := MerkleRoot(b.TxIDs())
	if got != b.Header.MerkleRoot {
		return newErr(ErrMerkleMismatch, "merkle root mismatch")
	}
	return nil
}

// VerifyPoW checks hash256(header) < target.
func (b *Block) VerifyPoW(target *big.Int) error {
	if b.Header.HashAsInt().Cmp(target) >= 0 {
		return newErr(ErrPoWMismatch, "proof-of-work hash does not satisfy target")
	}
	return nil
}
