package state

import (
	"context"
	"fmt"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/fork"
	"github.com/ardanlabs/blocksim/foundation/events"
)

// MineNext takes the best transactions from the mempool, builds a block
// credited to the miner and hands it to the fork manager. Transactions in a
// canonical block are confirmed at once, transactions on a competing branch
// wait for the fork to resolve. Nothing changes when mining fails.
func (s *State) MineNext(ctx context.Context, minerID string) (fork.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mine(ctx, minerID, func(ctx context.Context, data string) (fork.Outcome, error) {
		return s.fork.OnBlockMined(ctx, data, minerID)
	})
}

// ForceFork mines the next block and starts a fork with it regardless of the
// fork probability. An empty competing miner gets a generated identity.
func (s *State) ForceFork(ctx context.Context, minerID string, competingMinerID string) (fork.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mine(ctx, minerID, func(ctx context.Context, data string) (fork.Outcome, error) {
		return s.fork.ForceFork(ctx, data, minerID, competingMinerID)
	})
}

// =============================================================================

// mine must be called with the lock held.
func (s *State) mine(ctx context.Context, minerID string, route func(ctx context.Context, data string) (fork.Outcome, error)) (fork.Outcome, error) {
	if minerID == "" {
		return fork.Outcome{}, fmt.Errorf("miner id is required")
	}

	s.evHandler("state: MineNext: MINING: select transactions: miner[%s]", minerID)

	batch := s.mempool.SelectForBlock(s.genesis.TransPerBlock)

	payload, err := database.NewPayload(minerID, batch)
	if err != nil {
		return fork.Outcome{}, err
	}

	data, err := payload.Encode()
	if err != nil {
		return fork.Outcome{}, err
	}

	s.evHandler("state: MineNext: MINING: perform POW: txs[%d]", len(batch))

	out, err := route(ctx, data)
	if err != nil {
		s.evHandler("state: MineNext: MINING: ERROR: %s", err)
		return fork.Outcome{}, err
	}

	sigs := make([]string, len(batch))
	for i, tx := range batch {
		sigs[i] = tx.Signature
	}
	s.mempool.Remove(sigs...)

	ev := events.New(events.TypeBlockMined, s.sched.Now().UnixMilli(), fmt.Sprintf("Block #%d mined by %s with %d transactions", out.Block.Index, minerID, len(batch)))
	ev.BlockIndex = out.Block.Index
	ev.MinerID = minerID
	ev.Count = len(batch)
	s.emit(ev)

	switch {
	case out.Canonical():
		s.confirmBatch(out.Block.Index, batch)

	default:
		// The resolution may already have adopted this batch.
		for _, tx := range batch {
			if _, exists := s.history.get(tx.Signature); !exists {
				tx.Status = database.TxPending
				s.history.put(txRecord{tx: tx, blockIndex: out.Block.Index})
			}
		}
	}

	s.evHandler("state: MineNext: MINING: completed: blk[%d] branch[%s] fork[%s]", out.Block.Index, out.Branch, s.fork.Status())

	return out, nil
}

// confirmBatch applies the balance changes for transactions that landed on
// the canonical chain. A transaction the sender can no longer pay for is
// failed.
func (s *State) confirmBatch(blockIndex uint64, txs []database.Tx) {
	var confirmed int
	for _, tx := range txs {
		if s.confirmTx(blockIndex, tx) {
			confirmed++
		}
	}

	if confirmed == 0 {
		return
	}

	ev := events.New(events.TypeTxConfirmed, s.sched.Now().UnixMilli(), fmt.Sprintf("%d transactions confirmed in block #%d", confirmed, blockIndex))
	ev.BlockIndex = blockIndex
	ev.Count = confirmed
	s.emit(ev)
}

// confirmTx reports whether the transaction was newly confirmed.
func (s *State) confirmTx(blockIndex uint64, tx database.Tx) bool {
	if r, exists := s.history.get(tx.Signature); exists && r.tx.Status == database.TxConfirmed {
		return false
	}

	if err := s.wallets.Apply(tx); err != nil {
		s.evHandler("state: confirmTx: WARNING: tx[%s]: %s", tx, err)
		tx.Status = database.TxFailed
		s.history.put(txRecord{tx: tx, blockIndex: blockIndex})
		return false
	}

	tx.Status = database.TxConfirmed
	s.history.put(txRecord{tx: tx, blockIndex: blockIndex})

	return true
}

// failTx marks a transaction from a losing branch as lost, undoing its
// balance changes when it had been confirmed.
func (s *State) failTx(tx database.Tx) {
	r, exists := s.history.get(tx.Signature)
	if exists && r.tx.Status == database.TxConfirmed {
		if shortfall := s.wallets.Revert(r.tx); shortfall > 0 {
			s.evHandler("state: failTx: WARNING: tx[%s]: recipient already spent %s", r.tx, shortfall)
		}
	}

	tx.Status = database.TxFailed
	s.history.put(txRecord{tx: tx, blockIndex: r.blockIndex})
}

// applyResolution settles the transactions of a resolved fork. It runs with
// the lock held, either inside a mutator or a locked scheduler callback.
func (s *State) applyResolution(res fork.Resolution) {
	for _, tx := range res.OrphanedTxs {
		s.failTx(tx)
	}

	if res.Winner != fork.BranchB {
		return
	}

	indexes := make(map[string]uint64)
	for _, b := range res.Reorg.NewChain {
		if p, ok := database.DecodePayload(b.Data); ok {
			for _, tx := range p.Txs {
				indexes[tx.Signature] = b.Index
			}
		}
	}

	var adopted int
	for _, tx := range res.AdoptedTxs {
		if s.confirmTx(indexes[tx.Signature], tx) {
			adopted++
		}
	}

	s.evHandler("state: applyResolution: reorg: orphaned[%d] adopted[%d]", len(res.OrphanedTxs), adopted)
}
