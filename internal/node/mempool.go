package node

import (
	"sort"
	"sync"

	"github.com/p2pchain/node/internal/consensus"
)

// MaxBlockSize is MAX_BLOCK_SIZE from spec §4.4: 1 MiB.
const MaxBlockSize = 1 << 20

// BaseFee is BASE_FEE from spec §4.4, in satoshis.
const BaseFee = 100_000

// headerReserveBytes is the 80-byte reserve subtracted from MaxBlockSize
// when selecting transactions for a block (spec §4.4 pick_txs_to_block).
const headerReserveBytes = 80

// staleWindowSeconds bounds how far in the past a transaction's timestamp
// may sit to still be admitted (spec §4.4 StaleTimestamp: now-3600 <= ts <= now).
const staleWindowSeconds = 3600

// Mempool holds unconfirmed, admission-checked transactions in insertion
// order (spec §3). A single mutex guards it, matching the "single mutex per
// shared map" design spec §5/§9 calls sufficient for a block-per-minute
// hot path.
type Mempool struct {
	mu     sync.Mutex
	byID   map[[32]byte]*consensus.Tx
	order  [][32]byte
	nowFn  func() uint32
}

// NewMempool constructs an empty mempool. nowFn defaults to a real wall
// clock; tests substitute a fixed clock to exercise StaleTimestamp exactly.
func NewMempool(nowFn func() uint32) *Mempool {
	if nowFn == nil {
		nowFn = defaultNow
	}
	return &Mempool{
		byID:  make(map[[32]byte]*consensus.Tx),
		nowFn: nowFn,
	}
}

// Size returns the number of transactions currently held.
func (m *Mempool) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// TotalBytes sums the serialized size of every held transaction, the
// input to the fee-rate formula (spec §4.4).
func (m *Mempool) TotalBytes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytesLocked()
}

func (m *Mempool) totalBytesLocked() int {
	total := 0
	for _, id := range m.order {
		total += m.byID[id].Size()
	}
	return total
}

// FeeRate computes the required satoshi-per-byte fee rate (spec §4.4):
// max(1, total_mempool_bytes/MAX_BLOCK_SIZE) * BASE_FEE. This grows the
// required fee as the mempool backs up.
func (m *Mempool) FeeRate() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return feeRate(m.totalBytesLocked())
}

func feeRate(totalBytes int) int64 {
	ratio := totalBytes / MaxBlockSize
	if ratio < 1 {
		ratio = 1
	}
	return int64(ratio) * BaseFee
}

// Add runs the full admission check (spec §4.4) against utxos and, on
// success, inserts tx. Failures return a *MempoolError identifying which
// predicate failed; admission is all-or-nothing (atomic w.r.t. the
// mempool's own state — nothing is inserted on any failure).
func (m *Mempool) Add(tx *consensus.Tx, utxos *consensus.UtxoSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn()
	if tx.Timestamp > now || (now-tx.Timestamp) > staleWindowSeconds {
		return mempoolErr(ErrStaleTimestamp, "timestamp outside the admissible window")
	}

	var inputSum int64
	for i, in := range tx.Inputs {
		prevTx, ok := utxos.Get(in.PrevTxID)
		if !ok {
			return mempoolErr(ErrUnknownInput, "input references unknown transaction")
		}
		if int(in.PrevIndex) >= len(prevTx.Outputs) {
			return mempoolErr(ErrUnknownInput, "input references out-of-range output")
		}
		prevOut := prevTx.Outputs[in.PrevIndex]
		if prevOut == nil {
			return mempoolErr(ErrDoubleSpend, "referenced output already spent")
		}
		ok2, err := consensus.VerifyInput(tx, i, prevOut.ScriptPubKey)
		if err != nil || !ok2 {
			return mempoolErr(ErrBadSignature, "input signature does not verify")
		}
		inputSum += prevOut.Amount
	}

	var outputSum int64
	for _, out := range tx.Outputs {
		if out != nil {
			outputSum += out.Amount
		}
	}

	requiredFee := int64(tx.Size()) * feeRate(m.totalBytesLocked())
	// Corrected predicate (spec §4.4 item 5 / §9 design note): the
	// source's comparison is inverted and rejects valid transactions.
	// Reject iff output_amount > input_amount - required_fee.
	if outputSum > inputSum-requiredFee {
		return mempoolErr(ErrInsufficientFee, "fee below required fee rate")
	}

	id := tx.ID()
	if _, exists := m.byID[id]; exists {
		return nil
	}
	m.byID[id] = tx
	m.order = append(m.order, id)
	return nil
}

// Remove drops txID from the mempool if present.
func (m *Mempool) Remove(txID [32]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(txID)
}

func (m *Mempool) removeLocked(txID [32]byte) {
	if _, ok := m.byID[txID]; !ok {
		return
	}
	delete(m.byID, txID)
	for i, id := range m.order {
		if id == txID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Restore reinserts previously-validated transactions (e.g. ones drained
// for a block attempt that did not end up including them) without
// re-running admission, preserving their relative order.
func (m *Mempool) Restore(txs []*consensus.Tx) {
	if len(txs) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		id := tx.ID()
		if _, exists := m.byID[id]; exists {
			continue
		}
		m.byID[id] = tx
		m.order = append(m.order, id)
	}
}

// Get returns the transaction for txID, if held.
func (m *Mempool) Get(txID [32]byte) (*consensus.Tx, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.byID[txID]
	return tx, ok
}

// All returns every held transaction in insertion order, used to stream the
// mempool over the p2p `requestMemPool` command and to drain a block
// candidate list.
func (m *Mempool) All() []*consensus.Tx {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*consensus.Tx, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	return out
}

// Drain removes and returns every held transaction, used when assembling a
// candidate block (spec §4.8.1 step 2).
func (m *Mempool) Drain() []*consensus.Tx {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*consensus.Tx, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	m.byID = make(map[[32]byte]*consensus.Tx)
	m.order = nil
	return out
}

// Selection is the result of PickTxsToBlock (spec §4.4).
type Selection struct {
	Txs           []*consensus.Tx
	SpentOutpoint []consensus.Outpoint
	TxIDs         [][32]byte
	Fee           int64
	BlockSize     uint32
	Evicted       [][32]byte
}

// PickTxsToBlock sorts candidates by fee-per-byte descending and greedily
// fills a block, stopping once the next transaction would exceed
// MAX_BLOCK_SIZE-80 (spec §4.4). Any transaction whose inputs conflict with
// an already-selected transaction in this block, or whose referenced
// transaction is absent from utxos, is rejected and reported as Evicted so
// the caller can drop it from the mempool.
func PickTxsToBlock(candidates []*consensus.Tx, utxos *consensus.UtxoSet) Selection {
	type scored struct {
		tx       *consensus.Tx
		feePerKB int64
	}
	sel := Selection{}
	scoredTxs := make([]scored, 0, len(candidates))
	for _, tx := range candidates {
		fee, ok := txFee(tx, utxos)
		if !ok {
			sel.Evicted = append(sel.Evicted, tx.ID())
			continue
		}
		size := tx.Size()
		if size == 0 {
			continue
		}
		scoredTxs = append(scoredTxs, scored{tx: tx, feePerKB: fee / int64(size)})
	}
	sort.SliceStable(scoredTxs, func(i, j int) bool {
		return scoredTxs[i].feePerKB > scoredTxs[j].feePerKB
	})

	spent := make(map[consensus.Outpoint]bool)
	var runningSize uint32

	for _, s := range scoredTxs {
		tx := s.tx
		conflict := false
		for _, in := range tx.Inputs {
			op := in.Outpoint()
			if spent[op] {
				conflict = true
				break
			}
			if _, ok := utxos.OutputAt(op.PrevTxID, op.PrevIdx); !ok {
				conflict = true
				break
			}
		}
		if conflict {
			sel.Evicted = append(sel.Evicted, tx.ID())
			continue
		}

		size := uint32(tx.Size())
		if runningSize+size > MaxBlockSize-headerReserveBytes {
			continue
		}

		fee, _ := txFee(tx, utxos)
		sel.Txs = append(sel.Txs, tx)
		sel.Fee += fee
		runningSize += size
		id := tx.ID()
		sel.TxIDs = append(sel.TxIDs, id)
		for _, in := range tx.Inputs {
			op := in.Outpoint()
			spent[op] = true
			sel.SpentOutpoint = append(sel.SpentOutpoint, op)
		}
	}
	sel.BlockSize = runningSize
	return sel
}

func txFee(tx *consensus.Tx, utxos *consensus.UtxoSet) (int64, bool) {
	var inputSum int64
	for _, in := range tx.Inputs {
		out, ok := utxos.OutputAt(in.PrevTxID, in.PrevIndex)
		if !ok {
			return 0, false
		}
		inputSum += out.Amount
	}
	var outputSum int64
	for _, out := range tx.Outputs {
		if out != nil {
			outputSum += out.Amount
		}
	}
	return inputSum - outputSum, true
}

func defaultNow() uint32 {
	return uint32(wallClockNow().Unix())
}
