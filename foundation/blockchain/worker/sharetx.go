package worker

import (
	"context"
	"slices"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
)

// DefaultSpike is the number of transactions a mempool spike adds.
const DefaultSpike = 15

// Bounds for background transaction values in micro units.
const (
	minAmount = database.AmountScale / 1000
	maxAmount = 10 * database.AmountScale
	minFee    = database.AmountScale / 10000
	maxFee    = 2 * database.AmountScale / 1000
)

// runTxOperation creates a background transaction and schedules the next.
func (w *Worker) runTxOperation(ctx context.Context) {
	w.createRandomTransaction()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		w.txTimer = w.after(w.uniform(w.txMin, w.txMax), w.runTxOperation)
	}
}

// TriggerMempoolSpike adds count background transactions at once and
// returns how many were accepted.
func (w *Worker) TriggerMempoolSpike(count int) int {
	if count <= 0 {
		count = DefaultSpike
	}

	var added int
	for range count {
		if w.createRandomTransaction() {
			added++
		}
	}

	w.evHandler("worker: TriggerMempoolSpike: requested[%d] added[%d]", count, added)

	return added
}

// createRandomTransaction moves a random amount between two distinct peer
// wallets. A sender that cannot cover it is skipped.
func (w *Worker) createRandomTransaction() bool {
	var candidates []string
	for _, name := range w.Peers() {
		if slices.Contains(candidates, name) {
			continue
		}
		if _, err := w.state.Wallet(name); err == nil {
			candidates = append(candidates, name)
		}
	}

	if len(candidates) < 2 {
		return false
	}

	w.mu.Lock()
	i := w.rand.IntN(len(candidates))
	from := candidates[i]
	others := slices.Delete(slices.Clone(candidates), i, i+1)
	to := others[w.rand.IntN(len(others))]

	// Amounts carry four decimals and fees five.
	amount := (minAmount + database.Amount(w.rand.Int64N(int64(maxAmount-minAmount+1)))) / 100 * 100
	fee := (minFee + database.Amount(w.rand.Int64N(int64(maxFee-minFee+1)))) / 10 * 10
	w.mu.Unlock()

	tx, err := w.state.SendTransaction(from, to, amount, fee)
	if err != nil {
		w.evHandler("worker: createRandomTransaction: skipped: %s -> %s: %s", from, to, err)
		return false
	}

	w.evHandler("worker: createRandomTransaction: tx[%s] %s -> %s (%s)", tx, from, to, amount)

	return true
}
