package database

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ardanlabs/blocksim/foundation/blockchain/signature"
)

// GenesisData is the payload of the genesis block.
const GenesisData = "Genesis Block"

// genesisTimestamp is the fixed creation time of the genesis block so every
// ledger starts from the same hash.
const genesisTimestamp = 1_700_000_000_000

// MaxDifficulty bounds the configurable difficulty to keep mining
// tractable inside a single callback.
const MaxDifficulty = 8

// =============================================================================

// Block represents a group of data hash linked to its predecessor.
// Difficulty records the difficulty the block was mined at and is not part
// of the hash.
type Block struct {
	Index        uint64 `json:"index"`
	Timestamp    int64  `json:"timestamp"`
	Data         string `json:"data"`
	PreviousHash string `json:"previousHash"`
	Nonce        uint64 `json:"nonce"`
	Hash         string `json:"hash"`
	Difficulty   int    `json:"difficulty"`
}

// NewBlock constructs a pending block with a zero nonce and the hash for
// that nonce set.
func NewBlock(index uint64, timestamp int64, data string, previousHash string) Block {
	b := Block{
		Index:        index,
		Timestamp:    timestamp,
		Data:         data,
		PreviousHash: previousHash,
	}
	b.Hash = ComputeHash(b)

	return b
}

// Genesis returns the well known first block of every chain. It is exempt
// from proof of work.
func Genesis() Block {
	return NewBlock(0, genesisTimestamp, GenesisData, signature.ZeroHash)
}

// ComputeHash returns the hash of the block's fields excluding the hash
// itself.
func ComputeHash(b Block) string {
	s := strconv.FormatUint(b.Index, 10) +
		b.PreviousHash +
		strconv.FormatInt(b.Timestamp, 10) +
		b.Data +
		strconv.FormatUint(b.Nonce, 10)

	return signature.Hash(s)
}

// IsSolved reports whether the block's hash satisfies the difficulty.
func (b Block) IsSolved(difficulty int) bool {
	return isHashSolved(difficulty, b.Hash)
}

// =============================================================================

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	Parent      Block
	Timestamp   int64
	Data        string
	Difficulty  int
	MaxAttempts uint64
	EvHandler   func(v string, args ...any)
}

// POW constructs a new Block on top of the parent and performs the work to
// find a nonce that solves the proof of work puzzle.
func POW(ctx context.Context, args POWArgs) (Block, error) {
	nb := NewBlock(args.Parent.Index+1, args.Timestamp, args.Data, args.Parent.Hash)

	if err := nb.performPOW(ctx, args.Difficulty, args.MaxAttempts, args.EvHandler); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// Mine restarts the nonce search for an existing block at the difficulty.
func Mine(ctx context.Context, b Block, difficulty int, maxAttempts uint64, ev func(v string, args ...any)) (Block, error) {
	b.Nonce = 0
	b.Hash = ComputeHash(b)

	if err := b.performPOW(ctx, difficulty, maxAttempts, ev); err != nil {
		return Block{}, err
	}

	return b, nil
}

// performPOW does the work of mining to find a valid hash for a specified
// block. Pointer semantics are being used since a nonce is being discovered.
// The nonce is incremented from its current value until the hash carries
// difficulty leading zeros. A maxAttempts of zero means no bound.
func (b *Block) performPOW(ctx context.Context, difficulty int, maxAttempts uint64, ev func(v string, args ...any)) error {
	if ev == nil {
		ev = func(string, ...any) {}
	}

	if difficulty < 0 || difficulty > MaxDifficulty {
		return fmt.Errorf("%w: %d", ErrInvalidDifficulty, difficulty)
	}

	ev("database: PerformPOW: MINING: started: blk[%d] difficulty[%d]", b.Index, difficulty)

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: PerformPOW: MINING: attempts[%d]", attempts)

			// Did we timeout trying to solve the problem.
			if ctx.Err() != nil {
				ev("database: PerformPOW: MINING: CANCELLED")
				return ctx.Err()
			}
		}

		b.Hash = ComputeHash(*b)
		if isHashSolved(difficulty, b.Hash) {
			break
		}

		if maxAttempts > 0 && attempts >= maxAttempts {
			ev("database: PerformPOW: MINING: EXHAUSTED: attempts[%d]", attempts)
			return fmt.Errorf("%w: %d", ErrMiningExhausted, attempts)
		}

		b.Nonce++
	}

	b.Difficulty = difficulty

	ev("database: PerformPOW: MINING: SOLVED: blk[%d] hash[%s] attempts[%d]", b.Index, b.Hash, attempts)

	return nil
}

// isHashSolved checks the hash to make sure it complies with
// the POW rules. We need to match a difficulty number of 0's.
func isHashSolved(difficulty int, hash string) bool {
	const match = "0000000000000000"

	if difficulty <= 0 {
		return true
	}

	if len(hash) != 64 || difficulty > len(match) {
		return false
	}

	return hash[:difficulty] == match[:difficulty]
}

// =============================================================================

// ValidateChain checks the invariants of an ordered block list. The genesis
// block must be index zero, point at the zero hash and carry its own hash.
// Every later block must be contiguous, hash correctly, link to its
// predecessor and satisfy the difficulty it was mined at.
func ValidateChain(blocks []Block) error {
	if len(blocks) == 0 {
		return &ChainError{Reason: "empty chain"}
	}

	genesis := blocks[0]
	switch {
	case genesis.Index != 0:
		return &ChainError{Index: genesis.Index, Reason: "genesis index is not zero"}
	case genesis.PreviousHash != signature.ZeroHash:
		return &ChainError{Reason: "genesis previous hash is not the zero hash"}
	case genesis.Hash != ComputeHash(genesis):
		return &ChainError{Reason: "genesis hash does not match its content"}
	}

	for i := 1; i < len(blocks); i++ {
		if err := ValidateBlock(blocks[i], blocks[i-1]); err != nil {
			return err
		}
	}

	return nil
}

// ValidateBlock checks a block against its predecessor.
func ValidateBlock(b Block, previous Block) error {
	if b.Index != previous.Index+1 {
		return &ChainError{Index: b.Index, Reason: fmt.Sprintf("index is not the next number, exp %d", previous.Index+1)}
	}

	if b.Hash != ComputeHash(b) {
		return &ChainError{Index: b.Index, Reason: "hash does not match block content"}
	}

	if b.PreviousHash != previous.Hash {
		return &ChainError{Index: b.Index, Reason: "previous hash does not match parent block"}
	}

	if b.Difficulty < 0 || !isHashSolved(b.Difficulty, b.Hash) {
		return &ChainError{Index: b.Index, Reason: fmt.Sprintf("hash does not satisfy difficulty %d", b.Difficulty)}
	}

	return nil
}
