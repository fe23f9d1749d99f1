// Package fork manages temporary competing chain tips and resolves them with
// the longest chain rule.
package fork

import (
	"context"
	"errors"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
)

// Set of error variables for fork operations.
var (
	ErrForkInProgress     = errors.New("a fork is already in progress")
	ErrInvalidProbability = errors.New("fork probability must be between 0 and 1")
	ErrInvalidBranch      = errors.New("branch must be A or B")
)

// Branch identifies one of the two competing tips.
type Branch string

// Set of branches. Branch A is always the canonical ledger chain.
const (
	BranchA Branch = "A"
	BranchB Branch = "B"
)

// ParseBranch converts a string into a branch.
func ParseBranch(s string) (Branch, error) {
	switch Branch(s) {
	case BranchA, BranchB:
		return Branch(s), nil
	}
	return "", ErrInvalidBranch
}

// Status represents where the manager is in the life of a fork.
type Status string

// Set of fork statuses.
const (
	StatusStable   Status = "stable"
	StatusForking  Status = "forking"
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
)

// =============================================================================

// Ledger represents the behavior required from the canonical chain.
type Ledger interface {
	Blocks() []database.Block
	Length() int
	LatestBlock() database.Block
	AddBlock(ctx context.Context, data string) (database.Block, error)
	BuildOn(ctx context.Context, parent database.Block, data string) (database.Block, error)
	Reorganize(forkPoint uint64, branch []database.Block) error
}

// ForkData is the snapshot of a fork. ChainA holds the canonical blocks
// mined after the fork point and ChainB the competing blocks.
type ForkData struct {
	ForkPoint      uint64           `json:"forkPoint"`
	ChainA         []database.Block `json:"chainA"`
	ChainB         []database.Block `json:"chainB"`
	Status         Status           `json:"status"`
	Winner         Branch           `json:"winner,omitempty"`
	OrphanedBlocks []database.Block `json:"orphanedBlocks"`
}

func (fd *ForkData) clone() *ForkData {
	if fd == nil {
		return nil
	}

	c := *fd
	c.ChainA = cloneBlocks(fd.ChainA)
	c.ChainB = cloneBlocks(fd.ChainB)
	c.OrphanedBlocks = cloneBlocks(fd.OrphanedBlocks)

	return &c
}

// Reorg reports a canonical chain replacement in favor of branch B.
type Reorg struct {
	BlocksReplaced int              `json:"blocksReplaced"`
	TxsReturned    int              `json:"txsReturned"`
	OldChain       []database.Block `json:"oldChain"`
	NewChain       []database.Block `json:"newChain"`
	OrphanedTxs    []database.Tx    `json:"orphanedTxs"`
}

// Resolution describes how a fork ended. OrphanedTxs are carried only by
// the losing branch and AdoptedTxs only by a winning branch B. Orphaned
// transactions are not returned to the mempool.
type Resolution struct {
	Winner      Branch
	Orphaned    []database.Block
	OrphanedTxs []database.Tx
	AdoptedTxs  []database.Tx
	Reorg       *Reorg
}

// Outcome reports what happened to a mined block. Branch is empty when no
// fork was involved.
type Outcome struct {
	Block       database.Block
	Branch      Branch
	ForkStarted bool
	Resolution  *Resolution
}

// Canonical reports whether the block landed on the ledger chain.
func (o Outcome) Canonical() bool {
	return o.Branch != BranchB
}

// =============================================================================

func cloneBlocks(blocks []database.Block) []database.Block {
	if blocks == nil {
		return nil
	}

	out := make([]database.Block, len(blocks))
	copy(out, blocks)
	return out
}

// countTxs returns the number of transactions carried by payload blocks.
func countTxs(blocks []database.Block) int {
	var n int
	for _, b := range blocks {
		if p, ok := database.DecodePayload(b.Data); ok {
			n += len(p.Txs)
		}
	}
	return n
}

// txsOnlyIn returns the transactions in blocks that other does not carry.
func txsOnlyIn(blocks []database.Block, other []database.Block) []database.Tx {
	seen := make(map[string]struct{})
	for _, b := range other {
		if p, ok := database.DecodePayload(b.Data); ok {
			for _, tx := range p.Txs {
				seen[tx.Signature] = struct{}{}
			}
		}
	}

	var out []database.Tx
	for _, b := range blocks {
		p, ok := database.DecodePayload(b.Data)
		if !ok {
			continue
		}
		for _, tx := range p.Txs {
			if _, exists := seen[tx.Signature]; !exists {
				out = append(out, tx)
			}
		}
	}

	return out
}
