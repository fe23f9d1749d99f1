package state

import (
	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
)

// maxHistory bounds how many transactions that left the mempool are
// remembered.
const maxHistory = 1000

// txRecord is a transaction that left the mempool and the block that took
// it. Status pending means the block sits on a competing branch.
type txRecord struct {
	tx         database.Tx
	blockIndex uint64
}

// txHistory remembers transactions by signature in the order they were
// first recorded.
type txHistory struct {
	records map[string]txRecord
	order   []string
}

func newTxHistory() *txHistory {
	return &txHistory{
		records: make(map[string]txRecord),
	}
}

func (h *txHistory) get(sig string) (txRecord, bool) {
	r, exists := h.records[sig]
	return r, exists
}

func (h *txHistory) put(r txRecord) {
	sig := r.tx.Signature
	if _, exists := h.records[sig]; !exists {
		h.order = append(h.order, sig)
	}
	h.records[sig] = r

	if len(h.order) > maxHistory {
		drop := h.order[0]
		h.order = h.order[1:]
		delete(h.records, drop)
	}
}

// byStatus returns the recorded transactions with the status, newest
// first.
func (h *txHistory) byStatus(status database.TxStatus) []database.Tx {
	var out []database.Tx
	for i := len(h.order) - 1; i >= 0; i-- {
		if r := h.records[h.order[i]]; r.tx.Status == status {
			out = append(out, r.tx)
		}
	}
	return out
}
