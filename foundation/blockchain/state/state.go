// Package state is the core API for the simulation and implements all the
// business rules and processing. It owns one instance of every component
// and serializes access to them.
package state

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/fork"
	"github.com/ardanlabs/blocksim/foundation/blockchain/genesis"
	"github.com/ardanlabs/blocksim/foundation/blockchain/mempool"
	"github.com/ardanlabs/blocksim/foundation/blockchain/scheduler"
	"github.com/ardanlabs/blocksim/foundation/blockchain/wallet"
	"github.com/ardanlabs/blocksim/foundation/events"
)

// Set of error variables returned by the engine.
var (
	ErrRateLimited       = errors.New("too many transactions, try again later")
	ErrInsufficientFunds = wallet.ErrInsufficientFunds
	ErrWalletNotFound    = wallet.ErrWalletNotFound
	ErrTxNotFound        = mempool.ErrTxNotFound
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of the simulation.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for driving the simulation in the background.
type Worker interface {
	Shutdown()
	Start()
	Stop()
	IsRunning() bool
}

// =============================================================================

// Config represents the configuration required to start the simulation.
type Config struct {
	Genesis     genesis.Genesis
	Scheduler   scheduler.Scheduler
	Rand        *rand.Rand
	Events      *events.Events
	Strategy    string
	MaxAttempts uint64
	RatePerMin  int
	RateBurst   int
	EvHandler   EventHandler
}

// State manages the simulation.
type State struct {
	mu        sync.Mutex
	genesis   genesis.Genesis
	sched     scheduler.Scheduler
	evHandler EventHandler
	events    *events.Events

	db      *database.Database
	mempool *mempool.Mempool
	wallets *wallet.Manager
	limiter *wallet.Limiter
	fork    *fork.Manager
	history *txHistory

	Worker Worker
}

// New constructs the simulation from the genesis information.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if err := cfg.Genesis.Validate(); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	if cfg.Scheduler == nil {
		return nil, errors.New("scheduler is required")
	}

	if cfg.Events == nil {
		cfg.Events = events.NewEvents()
	}

	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	db, err := database.New(database.Config{
		Difficulty:  cfg.Genesis.Difficulty,
		MaxAttempts: cfg.MaxAttempts,
		Now:         cfg.Scheduler.Now,
		EvHandler:   ev,
	})
	if err != nil {
		return nil, err
	}

	// Construct a mempool with the specified sort strategy measuring
	// staleness against simulated time.
	mp, err := mempool.NewWithConfig(mempool.Config{
		Now:      cfg.Scheduler.Now,
		Strategy: cfg.Strategy,
	})
	if err != nil {
		return nil, err
	}

	state := State{
		genesis:   cfg.Genesis,
		sched:     cfg.Scheduler,
		evHandler: ev,
		events:    cfg.Events,
		db:        db,
		mempool:   mp,
		wallets:   wallet.NewManager(),
		limiter:   wallet.NewLimiter(cfg.RatePerMin, cfg.RateBurst),
		history:   newTxHistory(),
	}

	// Fork callbacks run on the scheduler. They are made to hold the state
	// lock so no reader sees a partially applied resolution.
	fm, err := fork.New(fork.Config{
		Ledger:      db,
		Scheduler:   scheduler.Locked(cfg.Scheduler, &state.mu),
		Rand:        cfg.Rand,
		Probability: cfg.Genesis.ForkProbability,
		Emit:        state.emit,
		OnResolve:   state.applyResolution,
		EvHandler:   ev,
	})
	if err != nil {
		return nil, err
	}
	state.fork = fm

	if err := state.seedWallets(); err != nil {
		return nil, err
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the simulation.

	return &state, nil
}

// Shutdown cleanly brings the simulation down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.fork.Reset()

	return nil
}

// Reset puts the simulation back to its genesis state.
func (s *State) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fork.Reset()
	s.db.Reset()
	s.mempool.Truncate()
	s.limiter.Reset()
	s.history = newTxHistory()
	s.wallets.Restore(nil)

	if err := s.db.SetDifficulty(s.genesis.Difficulty); err != nil {
		return err
	}

	return s.seedWallets()
}

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// Events returns the event bus the simulation reports to.
func (s *State) Events() *events.Events {
	return s.events
}

// Now returns the simulated time.
func (s *State) Now() time.Time {
	return s.sched.Now()
}

// Scheduler returns the clock driving the simulation.
func (s *State) Scheduler() scheduler.Scheduler {
	return s.sched
}

// =============================================================================

// seedWallets creates the genesis wallets. It must be called with the lock
// held or before the state is shared.
func (s *State) seedWallets() error {
	for _, acct := range s.genesis.Wallets {
		if _, err := s.wallets.Create(acct.Name, acct.Balance); err != nil {
			return err
		}
	}

	for _, name := range s.genesis.PeerWallets {
		if _, err := s.wallets.Create(name, s.genesis.PeerWalletBalance); err != nil {
			return err
		}
	}

	return nil
}

// emit records an event on the bus.
func (s *State) emit(ev events.Event) {
	if ev.Timestamp == 0 {
		ev.Timestamp = s.sched.Now().UnixMilli()
	}

	s.evHandler("state: emit: type[%s] msg[%s]", ev.Type, ev.Message)
	s.events.Send(ev)
}
