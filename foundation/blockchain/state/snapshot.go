package state

import (
	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/snapshot"
)

// RestoreReport describes what a restore could not use.
type RestoreReport struct {
	ChainRestored  bool
	WalletsSkipped int
	TxsSkipped     int
}

// Snapshot captures the simulation into a bundle. The scheduler settings
// come from the worker and may be nil.
func (s *State) Snapshot(cfg *snapshot.SchedulerConfig) snapshot.Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()

	return snapshot.Bundle{
		Blocks:              s.db.Blocks(),
		Wallets:             s.wallets.All(),
		Mempool:             s.mempool.Pending(),
		SchedulerConfig:     cfg,
		RecentEvents:        s.events.History(),
		LastActiveTimestamp: s.sched.Now().UnixMilli(),
	}
}

// Restore rebuilds the simulation from a bundle. A chain that cannot be
// loaded leaves a fresh genesis chain, wallets and transactions that do
// not check out are skipped. Parts missing from the bundle keep their
// genesis values.
func (s *State) Restore(b snapshot.Bundle) RestoreReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report RestoreReport

	s.fork.Reset()
	s.limiter.Reset()
	s.history = newTxHistory()

	s.db.Reset()
	if len(b.Blocks) > 0 {
		if err := s.db.Restore(b.Blocks); err != nil {
			s.evHandler("state: Restore: WARNING: chain: %s", err)
		} else {
			report.ChainRestored = true
		}
	}

	if len(b.Wallets) > 0 {
		report.WalletsSkipped = s.wallets.Restore(b.Wallets)
	}

	var txs []database.Tx
	for _, tx := range b.Mempool {
		if err := tx.ValidatePending(); err != nil {
			report.TxsSkipped++
			continue
		}
		txs = append(txs, tx)
	}
	s.mempool.Restore(txs)

	if len(b.RecentEvents) > 0 {
		s.events.Restore(b.RecentEvents)
	}

	s.evHandler("state: Restore: chain[%t] blocks[%d] wallets[%d] skipped[%d] txs[%d] skipped[%d]",
		report.ChainRestored, s.db.Length(), s.wallets.Len(), report.WalletsSkipped, len(txs), report.TxsSkipped)

	return report
}
