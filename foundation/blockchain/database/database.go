// Package database maintains the hash linked ledger of blocks. It is the
// sole authority over chain validity and the only place blocks are
// appended, re-mined or replaced.
package database

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config represents the configuration required to construct a ledger.
type Config struct {
	Difficulty  int
	MaxAttempts uint64
	Now         func() time.Time
	EvHandler   func(v string, args ...any)
}

// Database manages the chain of blocks.
type Database struct {
	mu          sync.RWMutex
	blocks      []Block
	difficulty  int
	maxAttempts uint64
	now         func() time.Time
	evHandler   func(v string, args ...any)
}

// New constructs a ledger holding only the genesis block.
func New(cfg Config) (*Database, error) {
	if cfg.Difficulty < 0 || cfg.Difficulty > MaxDifficulty {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDifficulty, cfg.Difficulty)
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	db := Database{
		blocks:      []Block{Genesis()},
		difficulty:  cfg.Difficulty,
		maxAttempts: cfg.MaxAttempts,
		now:         now,
		evHandler:   ev,
	}

	return &db, nil
}

// Reset re-initializes the ledger back to the genesis block.
func (db *Database) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.blocks = []Block{Genesis()}
}

// =============================================================================

// Blocks returns a copy of the current chain.
func (db *Database) Blocks() []Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return copyBlocks(db.blocks)
}

// Block returns the block at the specified index.
func (db *Database) Block(index uint64) (Block, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if index >= uint64(len(db.blocks)) {
		return Block{}, fmt.Errorf("%w: %d", ErrBlockNotFound, index)
	}

	return db.blocks[index], nil
}

// LatestBlock returns the current tip of the chain.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.blocks[len(db.blocks)-1]
}

// Length returns the number of blocks including genesis.
func (db *Database) Length() int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return len(db.blocks)
}

// Difficulty returns the difficulty future blocks are mined at.
func (db *Database) Difficulty() int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.difficulty
}

// SetDifficulty changes the difficulty for future mining only.
func (db *Database) SetDifficulty(difficulty int) error {
	if difficulty < 0 || difficulty > MaxDifficulty {
		return fmt.Errorf("%w: %d", ErrInvalidDifficulty, difficulty)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.difficulty = difficulty
	db.evHandler("database: SetDifficulty: difficulty[%d]", difficulty)

	return nil
}

// Confirmations returns the depth of the block at index counting the block
// itself, so the tip has 1. An index beyond the chain has 0.
func (db *Database) Confirmations(index uint64) int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if index >= uint64(len(db.blocks)) {
		return 0
	}

	return len(db.blocks) - int(index)
}

// IsValid checks the current chain and reports the first broken block.
func (db *Database) IsValid() error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return ValidateChain(db.blocks)
}

// =============================================================================

// AddBlock builds a block on top of the current tip, mines it at the current
// difficulty and appends it.
func (db *Database) AddBlock(ctx context.Context, data string) (Block, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	nb, err := POW(ctx, POWArgs{
		Parent:      db.blocks[len(db.blocks)-1],
		Timestamp:   db.now().UnixMilli(),
		Data:        data,
		Difficulty:  db.difficulty,
		MaxAttempts: db.maxAttempts,
		EvHandler:   db.evHandler,
	})
	if err != nil {
		return Block{}, err
	}

	db.blocks = append(db.blocks, nb)
	db.evHandler("database: AddBlock: blk[%d] hash[%s]", nb.Index, nb.Hash)

	return nb, nil
}

// BuildOn constructs and mines a block on top of an arbitrary parent
// without touching the chain. Competing branches are grown this way.
func (db *Database) BuildOn(ctx context.Context, parent Block, data string) (Block, error) {
	db.mu.RLock()
	difficulty := db.difficulty
	maxAttempts := db.maxAttempts
	db.mu.RUnlock()

	return POW(ctx, POWArgs{
		Parent:      parent,
		Timestamp:   db.now().UnixMilli(),
		Data:        data,
		Difficulty:  difficulty,
		MaxAttempts: maxAttempts,
		EvHandler:   db.evHandler,
	})
}

// MineBlock re-mines the block at index in place at the current difficulty.
// Later blocks are not relinked.
func (db *Database) MineBlock(ctx context.Context, index uint64) (Block, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if index >= uint64(len(db.blocks)) {
		return Block{}, fmt.Errorf("%w: %d", ErrBlockNotFound, index)
	}

	b, err := Mine(ctx, db.blocks[index], db.difficulty, db.maxAttempts, db.evHandler)
	if err != nil {
		return Block{}, err
	}

	db.blocks[index] = b
	db.evHandler("database: MineBlock: blk[%d] hash[%s]", b.Index, b.Hash)

	return b, nil
}

// EditBlockData rewrites a block's data and recomputes its hash without
// mining. The following block keeps its old previous hash so the broken
// link stays visible.
func (db *Database) EditBlockData(index uint64, data string) (Block, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if index >= uint64(len(db.blocks)) {
		return Block{}, fmt.Errorf("%w: %d", ErrBlockNotFound, index)
	}

	b := db.blocks[index]
	b.Data = data
	b.Hash = ComputeHash(b)
	db.blocks[index] = b

	db.evHandler("database: EditBlockData: blk[%d] hash[%s]", b.Index, b.Hash)

	return b, nil
}

// ReplaceChain swaps the chain for a strictly longer valid chain. Blocks
// past the prefix shared with the current chain must satisfy the current
// difficulty whatever difficulty they claim. On any rejection the current
// chain is left untouched.
func (db *Database) ReplaceChain(blocks []Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if len(blocks) <= len(db.blocks) {
		return fmt.Errorf("%w: got %d, have %d", ErrChainTooShort, len(blocks), len(db.blocks))
	}

	if err := ValidateChain(blocks); err != nil {
		return err
	}

	for _, b := range blocks[commonPrefix(db.blocks, blocks):] {
		if b.Difficulty < db.difficulty || !isHashSolved(db.difficulty, b.Hash) {
			return &ChainError{Index: b.Index, Reason: fmt.Sprintf("hash does not satisfy ledger difficulty %d", db.difficulty)}
		}
	}

	db.blocks = copyBlocks(blocks)
	db.evHandler("database: ReplaceChain: length[%d]", len(db.blocks))

	return nil
}

// Reorganize drops every block after forkPoint and appends the branch in
// their place. The branch was mined locally so each block is checked at the
// difficulty it was mined at. The result must be strictly longer.
func (db *Database) Reorganize(forkPoint uint64, branch []Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if forkPoint >= uint64(len(db.blocks)) {
		return fmt.Errorf("%w: fork point %d", ErrBlockNotFound, forkPoint)
	}

	chain := make([]Block, 0, int(forkPoint)+1+len(branch))
	chain = append(chain, db.blocks[:forkPoint+1]...)
	chain = append(chain, branch...)

	if len(chain) <= len(db.blocks) {
		return fmt.Errorf("%w: got %d, have %d", ErrChainTooShort, len(chain), len(db.blocks))
	}

	if err := ValidateChain(chain); err != nil {
		return err
	}

	db.blocks = chain
	db.evHandler("database: Reorganize: forkPoint[%d] length[%d]", forkPoint, len(db.blocks))

	return nil
}

// Restore loads a previously saved chain regardless of its length. Only
// the shape is checked so a tampered chain survives a reload with its broken
// links intact.
func (db *Database) Restore(blocks []Block) error {
	if len(blocks) == 0 {
		return &ChainError{Reason: "empty chain"}
	}

	for i, b := range blocks {
		if b.Index != uint64(i) {
			return &ChainError{Index: b.Index, Reason: fmt.Sprintf("index out of order, exp %d", i)}
		}
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.blocks = copyBlocks(blocks)

	return nil
}

// =============================================================================

// commonPrefix returns how many leading blocks the two chains share.
func commonPrefix(a, b []Block) int {
	n := min(len(a), len(b))
	for i := range n {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func copyBlocks(blocks []Block) []Block {
	out := make([]Block, len(blocks))
	copy(out, blocks)
	return out
}
