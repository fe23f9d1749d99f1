package worker

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/genesis"
	"github.com/ardanlabs/blocksim/foundation/blockchain/snapshot"
	"github.com/ardanlabs/blocksim/foundation/blockchain/state"
	"github.com/ardanlabs/blocksim/foundation/blockchain/wallet"
)

// minPeers is the number of peers RemovePeer always leaves.
const minPeers = 2

// peerBalance is the starting balance of a peer added at runtime.
const peerBalance = 100 * database.AmountScale

// Peers returns a copy of the background wallet names.
func (w *Worker) Peers() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return slices.Clone(w.peers)
}

// AddPeer registers a background wallet and creates it with the default
// peer balance. An empty name gets a generated Node_ identity.
func (w *Worker) AddPeer(name string) (string, error) {
	w.mu.Lock()
	if name == "" {
		name = fmt.Sprintf("Node_%X", w.rand.IntN(10000))
	}
	known := slices.Contains(w.peers, name)
	w.mu.Unlock()

	if known {
		return name, nil
	}

	if _, err := w.state.CreateWallet(name, peerBalance); err != nil && !errors.Is(err, wallet.ErrWalletExists) {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !slices.Contains(w.peers, name) {
		w.peers = append(w.peers, name)
	}

	w.evHandler("worker: AddPeer: peer[%s] peers[%d]", name, len(w.peers))

	return name, nil
}

// RemovePeer drops a random peer from the background traffic. The wallet
// itself is kept. Nothing is removed when only two peers remain.
func (w *Worker) RemovePeer() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.peers) <= minPeers {
		return "", false
	}

	i := w.rand.IntN(len(w.peers))
	removed := w.peers[i]
	w.peers = slices.Delete(w.peers, i, i+1)

	w.evHandler("worker: RemovePeer: peer[%s] peers[%d]", removed, len(w.peers))

	return removed, true
}

// ensurePeerWallets creates any peer wallet the state does not know yet.
func (w *Worker) ensurePeerWallets() {
	for _, name := range w.Peers() {
		if _, err := w.state.Wallet(name); errors.Is(err, state.ErrWalletNotFound) {
			if _, err := w.state.CreateWallet(name, peerBalance); err != nil {
				w.evHandler("worker: ensurePeerWallets: ERROR: %s: %s", name, err)
			}
		}
	}
}

// =============================================================================

// SchedulerConfig returns the scheduler settings that belong in a snapshot.
func (w *Worker) SchedulerConfig() *snapshot.SchedulerConfig {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &snapshot.SchedulerConfig{
		Miners:               slices.Clone(w.miners),
		PeerWallets:          slices.Clone(w.peers),
		BlockDelayMultiplier: w.multiplier,
	}
}

// RestoreConfig applies saved scheduler settings. Miners without a name or
// a positive hash rate and repeated peers are dropped. Parts left empty keep
// their current values.
func (w *Worker) RestoreConfig(cfg *snapshot.SchedulerConfig) {
	if cfg == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if miners := validMiners(cfg.Miners); len(miners) > 0 {
		w.miners = miners
	}

	if peers := uniquePeers(cfg.PeerWallets); len(peers) > 0 {
		w.peers = peers
	}

	if cfg.BlockDelayMultiplier > 0 {
		w.multiplier = cfg.BlockDelayMultiplier
	}

	w.evHandler("worker: RestoreConfig: miners[%d] peers[%d] multiplier[%v]", len(w.miners), len(w.peers), w.multiplier)
}

// validMiners keeps the first miner for each name that has a positive hash
// rate.
func validMiners(miners []genesis.Miner) []genesis.Miner {
	var out []genesis.Miner
	for _, m := range miners {
		if m.Name == "" || m.HashRate <= 0 {
			continue
		}
		if slices.ContainsFunc(out, func(o genesis.Miner) bool { return o.Name == m.Name }) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// uniquePeers drops empty and repeated names keeping the first occurrence.
func uniquePeers(peers []string) []string {
	var out []string
	for _, name := range peers {
		if name == "" || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}
