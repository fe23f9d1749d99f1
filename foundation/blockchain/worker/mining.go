package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ardanlabs/blocksim/foundation/blockchain/genesis"
)

// Fast forward mines one block for every blockEvery of elapsed time.
const (
	blockEvery       = 30 * time.Second
	maxFastForward   = 500
	fastForwardMinTx = 2
	fastForwardMaxTx = 5
)

// scheduleNextBlock draws an exponential wait so blocks arrive as a Poisson
// process around the genesis block interval. It must be called with the
// lock held.
func (w *Worker) scheduleNextBlock() {
	mean := float64(w.interval) * w.multiplier
	delay := time.Duration(w.rand.ExpFloat64() * mean)

	w.evHandler("worker: scheduleNextBlock: next block in[%v]", delay)

	w.blockTimer = w.after(delay, func(ctx context.Context) {
		w.runMiningOperation(ctx)

		w.mu.Lock()
		defer w.mu.Unlock()

		if w.running {
			w.scheduleNextBlock()
		}
	})
}

// runMiningOperation picks the winning miner and mines the next block.
func (w *Worker) runMiningOperation(ctx context.Context) {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	w.mu.Lock()
	winner := w.pickMiner()
	w.mu.Unlock()

	if winner == "" {
		w.evHandler("worker: runMiningOperation: MINING: WARNING: no miners")
		return
	}

	t := time.Now()
	out, err := w.state.MineNext(ctx, winner)
	duration := time.Since(t)

	w.evHandler("worker: runMiningOperation: MINING: mining duration[%v]", duration)

	if err != nil {
		switch {
		case ctx.Err() != nil:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: complete")
		default:
			w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
		}
		return
	}

	w.evHandler("worker: runMiningOperation: MINING: blk[%d] miner[%s] branch[%s]", out.Block.Index, winner, out.Branch)
}

// pickMiner draws a miner with probability proportional to its hash rate.
// It must be called with the lock held.
func (w *Worker) pickMiner() string {
	if len(w.miners) == 0 {
		return ""
	}

	var total int
	for _, m := range w.miners {
		total += m.HashRate
	}

	r := w.rand.Float64() * float64(total)
	for _, m := range w.miners {
		r -= float64(m.HashRate)
		if r <= 0 {
			return m.Name
		}
	}

	return w.miners[0].Name
}

// =============================================================================

// FastForward catches the simulation up after it was away for elapsed time.
// It mines one block per 30 seconds up to 500 blocks at difficulty 1, adding
// a few random transactions before each, then puts the difficulty back.
func (w *Worker) FastForward(ctx context.Context, elapsed time.Duration) (int, error) {
	blocks := min(int(elapsed/blockEvery), maxFastForward)
	if blocks <= 0 {
		return 0, nil
	}

	w.evHandler("worker: FastForward: started: elapsed[%v] blocks[%d]", elapsed, blocks)

	previous := w.state.Difficulty()
	if err := w.state.SetDifficulty(1); err != nil {
		return 0, err
	}
	defer func() {
		if err := w.state.SetDifficulty(previous); err != nil {
			w.evHandler("worker: FastForward: ERROR: restore difficulty: %s", err)
		}
	}()

	var mined int
	for range blocks {
		w.mu.Lock()
		txs := fastForwardMinTx + w.rand.IntN(fastForwardMaxTx-fastForwardMinTx+1)
		w.mu.Unlock()

		for range txs {
			w.createRandomTransaction()
		}

		w.mu.Lock()
		winner := w.pickMiner()
		w.mu.Unlock()

		if _, err := w.state.MineNext(ctx, winner); err != nil {
			return mined, fmt.Errorf("fast forward block %d: %w", mined+1, err)
		}
		mined++
	}

	w.evHandler("worker: FastForward: completed: mined[%d]", mined)

	return mined, nil
}

// =============================================================================

// Miners returns a copy of the simulated miners.
func (w *Worker) Miners() []genesis.Miner {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]genesis.Miner(nil), w.miners...)
}

// AdjustHashRates scales every miner's hash rate by the factor, keeping each
// at least 1.
func (w *Worker) AdjustHashRates(factor float64) error {
	if factor <= 0 {
		return ErrInvalidFactor
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.adjustHashRates(factor)

	return nil
}

// adjustHashRates must be called with the lock held.
func (w *Worker) adjustHashRates(factor float64) {
	for i := range w.miners {
		w.miners[i].HashRate = max(1, int(float64(w.miners[i].HashRate)*factor))
	}

	w.evHandler("worker: AdjustHashRates: factor[%v]", factor)
}
