// Package worker implements the background mining, transaction traffic and
// network events that keep the simulation moving.
package worker

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ardanlabs/blocksim/foundation/blockchain/genesis"
	"github.com/ardanlabs/blocksim/foundation/blockchain/scheduler"
	"github.com/ardanlabs/blocksim/foundation/blockchain/state"
)

// Set of error variables for worker operations.
var (
	ErrInvalidMultiplier = errors.New("block delay multiplier must be positive")
	ErrInvalidFactor     = errors.New("hash rate factor must be positive")
	ErrUnknownEvent      = errors.New("unknown network event")
)

// Config represents the configuration required to run the worker. Miners
// and peer wallets default to the genesis values.
type Config struct {
	Rand          *rand.Rand
	Miners        []genesis.Miner
	PeerWallets   []string
	NetworkEvents bool
	EvHandler     state.EventHandler
}

// =============================================================================

// Worker manages the background workflows for the simulation. All work is
// scheduled on the state's scheduler so a virtual clock can drive it.
type Worker struct {
	state     *state.State
	sched     scheduler.Scheduler
	evHandler state.EventHandler

	interval time.Duration
	txMin    time.Duration
	txMax    time.Duration

	mu         sync.Mutex
	rand       *rand.Rand
	miners     []genesis.Miner
	peers      []string
	multiplier float64
	network    bool
	running    bool
	gen        uint64
	ctx        context.Context
	cancel     context.CancelFunc
	blockTimer scheduler.Timer
	txTimer    scheduler.Timer
	netTimer   scheduler.Timer
	resets     map[uint64]scheduler.Timer
	resetSeq   uint64
}

// Run creates a worker and registers the worker with the state package.
// The loops do not run until Start is called.
func Run(st *state.State, cfg Config) *Worker {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	gen := st.Genesis()

	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	if cfg.Miners == nil {
		cfg.Miners = gen.Miners
	}

	if cfg.PeerWallets == nil {
		cfg.PeerWallets = gen.PeerWallets
	}

	w := Worker{
		state:      st,
		sched:      st.Scheduler(),
		evHandler:  ev,
		interval:   gen.BlockInterval.Std(),
		txMin:      gen.TxIntervalMin.Std(),
		txMax:      gen.TxIntervalMax.Std(),
		rand:       cfg.Rand,
		miners:     append([]genesis.Miner(nil), cfg.Miners...),
		peers:      append([]string(nil), cfg.PeerWallets...),
		multiplier: 1,
		network:    cfg.NetworkEvents,
		resets:     make(map[uint64]scheduler.Timer),
	}

	// Register this worker with the state package.
	st.Worker = &w

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Start begins the block, transaction and network event loops. Missing peer
// wallets are created first. Calling Start on a running worker does nothing.
func (w *Worker) Start() {
	w.ensurePeerWallets()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}

	w.evHandler("worker: Start: started")

	w.running = true
	w.gen++
	w.ctx, w.cancel = context.WithCancel(context.Background())

	w.txTimer = w.after(0, w.runTxOperation)
	w.scheduleNextBlock()
	if w.network {
		w.scheduleNextNetworkEvent()
	}
}

// Stop cancels every pending timer and any block being mined.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.evHandler("worker: Stop: stopping loops")

	w.running = false
	w.gen++
	w.cancel()

	for _, t := range []scheduler.Timer{w.blockTimer, w.txTimer, w.netTimer} {
		if t != nil {
			t.Stop()
		}
	}
	w.blockTimer, w.txTimer, w.netTimer = nil, nil, nil

	for seq, t := range w.resets {
		t.Stop()
		delete(w.resets, seq)
	}
}

// IsRunning reports whether the loops are scheduled.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.running
}

// Shutdown terminates the work being performed.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.Stop()
}

// =============================================================================

// SetBlockDelayMultiplier scales the mean time between blocks. It takes
// effect when the next block is scheduled.
func (w *Worker) SetBlockDelayMultiplier(m float64) error {
	if m <= 0 {
		return ErrInvalidMultiplier
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.multiplier = m
	w.evHandler("worker: SetBlockDelayMultiplier: multiplier[%v]", m)

	return nil
}

// BlockDelayMultiplier returns the current block delay multiplier.
func (w *Worker) BlockDelayMultiplier() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.multiplier
}

// =============================================================================

// after schedules fn for the current generation. A callback that fires after
// Stop or a restart does nothing. It must be called with the lock held.
func (w *Worker) after(d time.Duration, fn func(ctx context.Context)) scheduler.Timer {
	gen := w.gen
	ctx := w.ctx

	return w.sched.AfterFunc(d, func() {
		w.mu.Lock()
		live := w.running && w.gen == gen
		w.mu.Unlock()

		if live {
			fn(ctx)
		}
	})
}

// afterReset schedules a temporary effect to be undone. It must be called
// with the lock held.
func (w *Worker) afterReset(d time.Duration, fn func()) {
	w.resetSeq++
	seq := w.resetSeq

	w.resets[seq] = w.after(d, func(context.Context) {
		w.mu.Lock()
		delete(w.resets, seq)
		w.mu.Unlock()

		fn()
	})
}

// uniform returns a duration in [lo, hi] with millisecond resolution. It
// must be called with the lock held.
func (w *Worker) uniform(lo time.Duration, hi time.Duration) time.Duration {
	span := (hi - lo).Milliseconds()
	if span <= 0 {
		return lo
	}

	return lo + time.Duration(w.rand.Int64N(span+1))*time.Millisecond
}
