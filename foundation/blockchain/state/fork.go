package state

import (
	"github.com/ardanlabs/blocksim/foundation/blockchain/fork"
)

// ActiveFork returns a snapshot of the current fork or nil.
func (s *State) ActiveFork() *fork.ForkData {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fork.Snapshot()
}

// ForkStatus returns where the fork manager is.
func (s *State) ForkStatus() fork.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fork.Status()
}

// LastReorg returns the most recent reorg report or nil.
func (s *State) LastReorg() *fork.Reorg {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fork.LastReorg()
}

// DismissReorg forgets the last reorg report.
func (s *State) DismissReorg() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fork.DismissReorg()
}

// ForkProbability returns the chance a mined block starts a fork.
func (s *State) ForkProbability() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fork.Probability()
}

// SetForkProbability changes the chance a mined block starts a fork.
func (s *State) SetForkProbability(p float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fork.SetForkProbability(p)
}

// AssignMinerToChain routes the miner's blocks to a branch during forks.
func (s *State) AssignMinerToChain(minerID string, branch fork.Branch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fork.AssignMinerToChain(minerID, branch)
}

// ClearMinerAssignments returns every miner to the 50/50 choice.
func (s *State) ClearMinerAssignments() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fork.ClearMinerAssignments()
}

// MinerAssignments returns the current miner to branch assignments.
func (s *State) MinerAssignments() map[string]fork.Branch {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fork.Assignments()
}
