package state

import (
	"context"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
)

// AddBlock mines a block with free form data onto the canonical chain.
// While a fork exists the block extends branch A.
func (s *State) AddBlock(ctx context.Context, data string) (database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.fork.AddCanonical(ctx, data)
	if err != nil {
		return database.Block{}, err
	}

	return out.Block, nil
}

// MineBlock re-mines the block at index in place at the current difficulty.
func (s *State) MineBlock(ctx context.Context, index uint64) (database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.MineBlock(ctx, index)
}

// EditBlockData rewrites the data of a block without mining it so the
// broken link can be observed.
func (s *State) EditBlockData(index uint64, data string) (database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.EditBlockData(index, data)
}

// ReplaceChain swaps the canonical chain for a longer valid chain. Any fork
// in progress is abandoned.
func (s *State) ReplaceChain(blocks []database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.ReplaceChain(blocks); err != nil {
		return err
	}

	s.fork.Reset()

	return nil
}

// SetDifficulty changes the difficulty used for future blocks.
func (s *State) SetDifficulty(difficulty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.SetDifficulty(difficulty)
}

// =============================================================================

// Blocks returns a copy of the canonical chain.
func (s *State) Blocks() []database.Block {
	return s.db.Blocks()
}

// Block returns the block at the index.
func (s *State) Block(index uint64) (database.Block, error) {
	return s.db.Block(index)
}

// LatestBlock returns the tip of the canonical chain.
func (s *State) LatestBlock() database.Block {
	return s.db.LatestBlock()
}

// Difficulty returns the difficulty used for future blocks.
func (s *State) Difficulty() int {
	return s.db.Difficulty()
}

// ValidateChain reports the first block that breaks the chain.
func (s *State) ValidateChain() error {
	return s.db.IsValid()
}
