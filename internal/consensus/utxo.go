package consensus

// UtxoSet is the in-memory map tx_id -> transaction with partial outputs,
// plus a secondary owner index (spec §3/§4.5). Construct it with
// NewUtxoSet: the zero value has nil maps and Add on it panics. UtxoSet has
// no lock of its own; callers needing concurrent access wrap it with their
// own lock (see node.ChainManager), since every compound operation here
// already runs to completion without yielding.
type UtxoSet struct {
	txs   map[[32]byte]*Tx
	index map[[20]byte]map[[32]byte]struct{}
}

// NewUtxoSet returns an empty, ready-to-use set.
func NewUtxoSet() *UtxoSet {
	return &UtxoSet{
		txs:   make(map[[32]byte]*Tx),
		index: make(map[[20]byte]map[[32]byte]struct{}),
	}
}

// Get returns the stored transaction for txID, if any.
func (u *UtxoSet) Get(txID [32]byte) (*Tx, bool) {
	tx, ok := u.txs[txID]
	return tx, ok
}

// OutputAt returns output prevIdx of txID if it exists and is unspent.
func (u *UtxoSet) OutputAt(txID [32]byte, prevIdx uint32) (*TxOut, bool) {
	tx, ok := u.txs[txID]
	if !ok || int(prevIdx) >= len(tx.Outputs) {
		return nil, false
	}
	out := tx.Outputs[prevIdx]
	if out == nil {
		return nil, false
	}
	return out, true
}

func (u *UtxoSet) indexAdd(owner [20]byte, txID [32]byte) {
	set, ok := u.index[owner]
	if !ok {
		set = make(map[[32]byte]struct{})
		u.index[owner] = set
	}
	set[txID] = struct{}{}
}

func (u *UtxoSet) indexRemove(owner [20]byte, txID [32]byte) {
	set, ok := u.index[owner]
	if !ok {
		return
	}
	delete(set, txID)
	if len(set) == 0 {
		delete(u.index, owner)
	}
}

// Add stores tx under its id and indexes every non-null output by its
// owner's h160 (spec §4.5 add).
func (u *UtxoSet) Add(tx *Tx) {
	txID := tx.ID()
	u.txs[txID] = tx
	for _, out := range tx.Outputs {
		if out == nil {
			continue
		}
		h160, ok := out.ScriptPubKey.IsP2PKH()
		if !ok {
			continue
		}
		u.indexAdd(h160, txID)
	}
}

// Remove nulls out (or deletes) the output referenced by op, following
// spec §4.5 remove: if the referenced tx has more than one remaining
// non-null output, null just that slot (the tx leaves the owner's index
// once no remaining output pays that owner); otherwise delete the tx
// entirely and drop it from the index.
func (u *UtxoSet) Remove(op Outpoint) {
	tx, ok := u.txs[op.PrevTxID]
	if !ok || int(op.PrevIdx) >= len(tx.Outputs) {
		return
	}
	out := tx.Outputs[op.PrevIdx]
	if out == nil {
		return
	}

	remaining := 0
	for _, o := range tx.Outputs {
		if o != nil {
			remaining++
		}
	}

	h160, isP2PKH := out.ScriptPubKey.IsP2PKH()
	if remaining > 1 {
		tx.Outputs[op.PrevIdx] = nil
		if isP2PKH {
			for _, o := range tx.Outputs {
				if o == nil {
					continue
				}
				if owner, ok := o.ScriptPubKey.IsP2PKH(); ok && owner == h160 {
					return
				}
			}
			u.indexRemove(h160, op.PrevTxID)
		}
		return
	}
	if isP2PKH {
		u.indexRemove(h160, op.PrevTxID)
	}
	delete(u.txs, op.PrevTxID)
}

// Build replaces the set's contents with the result of replaying blocks in
// two passes (spec §4.5 build): insert all transactions, then null/delete
// every spent slot. This makes Build idempotent regardless of input order
// within a single call, since every output exists before any input is
// applied.
func (u *UtxoSet) Build(blocks []*Block) {
	u.txs = make(map[[32]byte]*Tx)
	u.index = make(map[[20]byte]map[[32]byte]struct{})

	for _, b := range blocks {
		for _, tx := range b.Txs {
			u.Add(tx)
		}
	}
	for _, b := range blocks {
		for _, tx := range b.Txs {
			if tx.IsCoinbase() {
				continue
			}
			for _, in := range tx.Inputs {
				u.Remove(in.Outpoint())
			}
		}
	}
}

// GetUTXOsByWallet resolves every unspent output currently paying h160.
func (u *UtxoSet) GetUTXOsByWallet(h160 [20]byte) []Outpoint {
	set, ok := u.index[h160]
	if !ok {
		return nil
	}
	out := make([]Outpoint, 0, len(set))
	for txID := range set {
		tx := u.txs[txID]
		for idx, o := range tx.Outputs {
			if o == nil {
				continue
			}
			owner, ok := o.ScriptPubKey.IsP2PKH()
			if ok && owner == h160 {
				out = append(out, Outpoint{PrevTxID: txID, PrevIdx: uint32(idx)})
			}
		}
	}
	return out
}

// Clone deep-copies the set, used by the chain manager to materialize a
// shadow UTXO set during fork-resolution validation (spec §4.8.3).
func (u *UtxoSet) Clone() *UtxoSet {
	out := NewUtxoSet()
	for id, tx := range u.txs {
		cp := *tx
		cp.Outputs = append([]*TxOut(nil), tx.Outputs...)
		out.txs[id] = &cp
	}
	for owner, set := range u.index {
		cpSet := make(map[[32]byte]struct{}, len(set))
		for id := range set {
			cpSet[id] = struct{}{}
		}
		out.index[owner] = cpSet
	}
	return out
}
