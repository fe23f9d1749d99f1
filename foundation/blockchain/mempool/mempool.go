// Package mempool maintains the pool of signed transactions waiting to be
// included in a block.
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/mempool/selector"
)

// DefaultStaleAfter is how long a transaction below the standard fee tier
// may wait before it is pruned.
const DefaultStaleAfter = 30 * time.Minute

// Set of error variables for pool operations.
var (
	ErrTxNotFound       = errors.New("transaction not found")
	ErrFeeNotHigher     = errors.New("new fee must be higher than the current fee")
	ErrMissingSignature = errors.New("transaction has no signature")
)

// Config represents the configuration required to construct a mempool.
type Config struct {
	Now        func() time.Time
	Strategy   string
	StaleAfter time.Duration
}

// entry keeps the arrival sequence next to the transaction so ordering ties
// resolve to the order transactions arrived in.
type entry struct {
	tx  database.Tx
	seq uint64
}

// Mempool represents a cache of transactions keyed by signature.
type Mempool struct {
	mu         sync.RWMutex
	pool       map[string]entry
	seq        uint64
	now        func() time.Time
	staleAfter time.Duration
	selectFn   selector.Func
}

// New constructs a new mempool using the default fee strategy.
func New() *Mempool {
	mp, _ := NewWithConfig(Config{})
	return mp
}

// NewWithConfig constructs a new mempool with the specified clock and
// select strategy.
func NewWithConfig(cfg Config) (*Mempool, error) {
	if cfg.Strategy == "" {
		cfg.Strategy = selector.StrategyFee
	}

	selectFn, err := selector.Retrieve(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}

	mp := Mempool{
		pool:       make(map[string]entry),
		now:        cfg.Now,
		staleAfter: cfg.StaleAfter,
		selectFn:   selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Add inserts a transaction. If a transaction with the same signature is
// already held it is replaced only when the new fee is strictly higher.
// The returned bool reports whether the pool changed.
func (mp *Mempool) Add(tx database.Tx) (bool, error) {
	if tx.Signature == "" {
		return false, ErrMissingSignature
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	tx.Status = database.TxPending

	if e, exists := mp.pool[tx.Signature]; exists {
		if tx.Fee <= e.tx.Fee {
			return false, nil
		}

		e.tx = tx
		mp.pool[tx.Signature] = e
		return true, nil
	}

	mp.seq++
	mp.pool[tx.Signature] = entry{tx: tx, seq: mp.seq}

	return true, nil
}

// Cancel replaces the transaction with a zero amount transfer back to the
// sender at a higher fee.
func (mp *Mempool) Cancel(signature string, newFee database.Amount) (database.Tx, error) {
	return mp.replace(signature, newFee, func(tx *database.Tx) {
		tx.To = tx.From
		tx.Amount = 0
	})
}

// ReplaceFee raises the fee of the transaction keeping its amount and
// recipient.
func (mp *Mempool) ReplaceFee(signature string, newFee database.Amount) (database.Tx, error) {
	return mp.replace(signature, newFee, nil)
}

// Prune removes transactions older than the staleness window whose fee is
// below the standard tier. It returns the number removed.
func (mp *Mempool) Prune() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.prune()
}

// SelectForBlock prunes the pool and returns at most howMany transactions
// in the configured strategy order. The transactions stay in the pool.
func (mp *Mempool) SelectForBlock(howMany int) []database.Tx {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.prune()

	return mp.selectFn(mp.arrivalOrder(), howMany)
}

// Pending returns every transaction in the configured strategy order.
func (mp *Mempool) Pending() []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.selectFn(mp.arrivalOrder(), -1)
}

// PositionOf returns the 1 based rank of the transaction in the current
// ordering or -1 if it is not held.
func (mp *Mempool) PositionOf(signature string) int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if _, exists := mp.pool[signature]; !exists {
		return -1
	}

	for i, tx := range mp.selectFn(mp.arrivalOrder(), -1) {
		if tx.Signature == signature {
			return i + 1
		}
	}

	return -1
}

// Lookup returns the transaction held for the signature.
func (mp *Mempool) Lookup(signature string) (database.Tx, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	e, exists := mp.pool[signature]
	return e.tx, exists
}

// Remove deletes the transactions with the specified signatures and returns
// how many were held.
func (mp *Mempool) Remove(signatures ...string) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var n int
	for _, sig := range signatures {
		if _, exists := mp.pool[sig]; exists {
			delete(mp.pool, sig)
			n++
		}
	}

	return n
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]entry)
}

// Restore replaces the pool with the transactions, treating the slice order
// as arrival order.
func (mp *Mempool) Restore(txs []database.Tx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]entry)
	for _, tx := range txs {
		if tx.Signature == "" {
			continue
		}
		if _, exists := mp.pool[tx.Signature]; exists {
			continue
		}

		tx.Status = database.TxPending
		mp.seq++
		mp.pool[tx.Signature] = entry{tx: tx, seq: mp.seq}
	}
}

// =============================================================================

// EstimateBlocks returns how many blocks a transaction paying the fee is
// expected to wait before confirmation.
func EstimateBlocks(fee database.Amount) int {
	switch {
	case fee >= database.FeeHigh:
		return 1
	case fee >= database.FeeStandard:
		return 3
	case fee >= database.FeeEconomy:
		return 10
	default:
		return 20
	}
}

// =============================================================================

// replace applies a fee replacement with an optional rewrite of the fields.
func (mp *Mempool) replace(signature string, newFee database.Amount, rewrite func(tx *database.Tx)) (database.Tx, error) {
	if newFee <= 0 || newFee > database.MaxFee {
		return database.Tx{}, database.NewValidationError("fee", fmt.Errorf("%w: must be in (0, %s]", database.ErrInvalidFee, database.MaxFee))
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	e, exists := mp.pool[signature]
	if !exists {
		return database.Tx{}, ErrTxNotFound
	}

	if newFee <= e.tx.Fee {
		return database.Tx{}, fmt.Errorf("%w: current %s, new %s", ErrFeeNotHigher, e.tx.Fee, newFee)
	}

	e.tx.Fee = newFee
	e.tx.Status = database.TxPending
	if rewrite != nil {
		rewrite(&e.tx)
	}
	mp.pool[signature] = e

	return e.tx, nil
}

// prune must be called with the write lock held.
func (mp *Mempool) prune() int {
	now := mp.now().UnixMilli()
	window := mp.staleAfter.Milliseconds()

	var n int
	for sig, e := range mp.pool {
		if now-e.tx.Timestamp > window && e.tx.Fee < database.FeeStandard {
			delete(mp.pool, sig)
			n++
		}
	}

	return n
}

// arrivalOrder must be called with a lock held.
func (mp *Mempool) arrivalOrder() []database.Tx {
	entries := make([]entry, 0, len(mp.pool))
	for _, e := range mp.pool {
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})

	txs := make([]database.Tx, len(entries))
	for i, e := range entries {
		txs[i] = e.tx
	}

	return txs
}
