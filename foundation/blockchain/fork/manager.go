package fork

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/scheduler"
	"github.com/ardanlabs/blocksim/foundation/events"
)

// Default settings for fork behavior.
const (
	DefaultProbability = 0.15
	DefaultDelayMin    = 2 * time.Second
	DefaultDelayMax    = 5 * time.Second
	DefaultClearAfter  = 10 * time.Second
)

// Config represents the configuration required to construct a manager. The
// scheduler's callbacks must be serialized with calls into the manager.
type Config struct {
	Ledger      Ledger
	Scheduler   scheduler.Scheduler
	Rand        *rand.Rand
	Probability float64
	DelayMin    time.Duration
	DelayMax    time.Duration
	ClearAfter  time.Duration
	Emit        func(ev events.Event)
	OnResolve   func(res Resolution)
	EvHandler   func(v string, args ...any)
}

// Manager routes mined blocks between the canonical chain and a competing
// branch. It is not safe for concurrent use, the owner serializes access.
type Manager struct {
	ledger      Ledger
	sched       scheduler.Scheduler
	rnd         *rand.Rand
	probability float64
	delayMin    time.Duration
	delayMax    time.Duration
	clearAfter  time.Duration
	emit        func(ev events.Event)
	onResolve   func(res Resolution)
	evHandler   func(v string, args ...any)

	status      Status
	fork        *ForkData
	lastReorg   *Reorg
	assignments map[string]Branch
	activate    scheduler.Timer
	clear       scheduler.Timer
}

// New constructs a fork manager in the stable state.
func New(cfg Config) (*Manager, error) {
	if cfg.Ledger == nil || cfg.Scheduler == nil {
		return nil, fmt.Errorf("ledger and scheduler are required")
	}

	if cfg.Probability < 0 || cfg.Probability > 1 {
		return nil, ErrInvalidProbability
	}

	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	if cfg.DelayMin <= 0 {
		cfg.DelayMin = DefaultDelayMin
	}
	if cfg.DelayMax < cfg.DelayMin {
		cfg.DelayMax = max(cfg.DelayMin, DefaultDelayMax)
	}
	if cfg.ClearAfter <= 0 {
		cfg.ClearAfter = DefaultClearAfter
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	emit := cfg.Emit
	if emit == nil {
		emit = func(events.Event) {}
	}

	onResolve := cfg.OnResolve
	if onResolve == nil {
		onResolve = func(Resolution) {}
	}

	m := Manager{
		ledger:      cfg.Ledger,
		sched:       cfg.Scheduler,
		rnd:         cfg.Rand,
		probability: cfg.Probability,
		delayMin:    cfg.DelayMin,
		delayMax:    cfg.DelayMax,
		clearAfter:  cfg.ClearAfter,
		emit:        emit,
		onResolve:   onResolve,
		evHandler:   ev,
		status:      StatusStable,
		assignments: make(map[string]Branch),
	}

	return &m, nil
}

// =============================================================================

// OnBlockMined is the entry point for every simulated mining success.
func (m *Manager) OnBlockMined(ctx context.Context, data string, minerID string) (Outcome, error) {
	switch m.status {
	case StatusActive:
		return m.extend(ctx, data, minerID)

	case StatusForking:
		return m.appendCanonical(ctx, data)
	}

	if m.ledger.Length() > 2 && m.rnd.Float64() < m.probability {
		return m.initiate(ctx, data, minerID, "")
	}

	b, err := m.ledger.AddBlock(ctx, data)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{Block: b}, nil
}

// ForceFork initiates a fork with the block regardless of probability. An
// empty competing miner gets a generated identity.
func (m *Manager) ForceFork(ctx context.Context, data string, minerID string, competingMinerID string) (Outcome, error) {
	if m.status == StatusForking || m.status == StatusActive {
		return Outcome{}, ErrForkInProgress
	}

	return m.initiate(ctx, data, minerID, competingMinerID)
}

// AddCanonical appends a block to the ledger chain outside of mining. While
// a fork exists the block extends branch A.
func (m *Manager) AddCanonical(ctx context.Context, data string) (Outcome, error) {
	switch m.status {
	case StatusActive:
		return m.extendBranch(ctx, BranchA, data)

	case StatusForking:
		return m.appendCanonical(ctx, data)
	}

	b, err := m.ledger.AddBlock(ctx, data)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{Block: b}, nil
}

// =============================================================================

// SetForkProbability changes the chance a mined block starts a fork.
func (m *Manager) SetForkProbability(p float64) error {
	if p < 0 || p > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidProbability, p)
	}

	m.probability = p
	m.evHandler("fork: SetForkProbability: probability[%v]", p)

	return nil
}

// Probability returns the chance a mined block starts a fork.
func (m *Manager) Probability() float64 {
	return m.probability
}

// AssignMinerToChain routes every block the miner finds during a fork to
// the branch. It never changes how the fork is resolved.
func (m *Manager) AssignMinerToChain(minerID string, branch Branch) error {
	if _, err := ParseBranch(string(branch)); err != nil {
		return err
	}

	m.assignments[minerID] = branch
	return nil
}

// ClearMinerAssignments returns every miner to the 50/50 choice.
func (m *Manager) ClearMinerAssignments() {
	m.assignments = make(map[string]Branch)
}

// Assignments returns a copy of the miner to branch assignments.
func (m *Manager) Assignments() map[string]Branch {
	out := make(map[string]Branch, len(m.assignments))
	for k, v := range m.assignments {
		out[k] = v
	}
	return out
}

// Status returns the current fork status.
func (m *Manager) Status() Status {
	return m.status
}

// Snapshot returns a copy of the current fork or nil when stable.
func (m *Manager) Snapshot() *ForkData {
	return m.fork.clone()
}

// LastReorg returns the most recent reorg report or nil.
func (m *Manager) LastReorg() *Reorg {
	if m.lastReorg == nil {
		return nil
	}

	r := *m.lastReorg
	r.OldChain = cloneBlocks(r.OldChain)
	r.NewChain = cloneBlocks(r.NewChain)
	return &r
}

// DismissReorg forgets the last reorg report.
func (m *Manager) DismissReorg() {
	m.lastReorg = nil
}

// Reset cancels any fork in progress and returns to the stable state.
// Miner assignments are kept.
func (m *Manager) Reset() {
	m.stopTimers()
	m.status = StatusStable
	m.fork = nil
	m.lastReorg = nil
}

// =============================================================================

// initiate appends the block as branch A and schedules the competing block
// at the same parent and height.
func (m *Manager) initiate(ctx context.Context, data string, minerID string, competingMinerID string) (Outcome, error) {
	parent := m.ledger.LatestBlock()

	blockA, err := m.ledger.AddBlock(ctx, data)
	if err != nil {
		return Outcome{}, err
	}

	m.stopTimers()

	fd := ForkData{
		ForkPoint: parent.Index,
		ChainA:    []database.Block{blockA},
		Status:    StatusForking,
	}
	m.fork = &fd
	m.status = StatusForking

	delay := m.delayMin
	if span := m.delayMax - m.delayMin; span > 0 {
		delay += time.Duration(m.rnd.Int64N(int64(span)))
	}

	if competingMinerID == "" || competingMinerID == minerID {
		competingMinerID = m.competingMiner(minerID)
	}

	m.evHandler("fork: initiate: FORKING: point[%d] blk[%d] miner[%s] competing[%s] delay[%v]", parent.Index, blockA.Index, minerID, competingMinerID, delay)

	m.activate = m.sched.AfterFunc(delay, func() {
		m.activateBranch(&fd, parent, data, competingMinerID)
	})

	return Outcome{Block: blockA, Branch: BranchA, ForkStarted: true}, nil
}

// activateBranch mines the competing block and makes the fork active. It
// runs as a scheduler callback.
func (m *Manager) activateBranch(fd *ForkData, parent database.Block, data string, competingMinerID string) {
	if m.fork != fd || m.status != StatusForking {
		return
	}
	m.activate = nil

	blockB, err := m.ledger.BuildOn(context.Background(), parent, rebrand(data, competingMinerID))
	if err != nil {
		m.evHandler("fork: activateBranch: ERROR: abandoning fork: %s", err)
		m.status = StatusStable
		m.fork = nil
		return
	}

	fd.ChainB = []database.Block{blockB}
	fd.Status = StatusActive
	m.status = StatusActive

	m.evHandler("fork: activateBranch: ACTIVE: point[%d] lenA[%d] lenB[%d]", fd.ForkPoint, len(fd.ChainA), len(fd.ChainB))

	ev := m.newEvent(events.TypeForkStarted, fmt.Sprintf("Fork detected at block #%d: %s competes for the same height", blockB.Index, competingMinerID))
	ev.BlockIndex = blockB.Index
	ev.MinerID = competingMinerID
	m.emit(ev)

	if _, err := m.checkResolution(); err != nil {
		m.evHandler("fork: activateBranch: ERROR: %s", err)
	}
}

// extend routes a block to a branch of the active fork.
func (m *Manager) extend(ctx context.Context, data string, minerID string) (Outcome, error) {
	branch, assigned := m.assignments[minerID]
	if !assigned {
		branch = BranchA
		if m.rnd.Float64() < 0.5 {
			branch = BranchB
		}
	}

	return m.extendBranch(ctx, branch, data)
}

// extendBranch mines onto the branch and checks for resolution. If the
// resolution fails the block is taken back off the branch.
func (m *Manager) extendBranch(ctx context.Context, branch Branch, data string) (Outcome, error) {
	fd := m.fork

	var b database.Block
	var err error

	switch branch {
	case BranchA:
		b, err = m.ledger.AddBlock(ctx, data)
		if err != nil {
			return Outcome{}, err
		}
		fd.ChainA = append(fd.ChainA, b)

	default:
		b, err = m.ledger.BuildOn(ctx, fd.ChainB[len(fd.ChainB)-1], data)
		if err != nil {
			return Outcome{}, err
		}
		fd.ChainB = append(fd.ChainB, b)
	}

	m.evHandler("fork: extendBranch: branch[%s] blk[%d] lenA[%d] lenB[%d]", branch, b.Index, len(fd.ChainA), len(fd.ChainB))

	res, err := m.checkResolution()
	if err != nil {
		if branch == BranchB {
			fd.ChainB = fd.ChainB[:len(fd.ChainB)-1]
		}
		return Outcome{}, err
	}

	return Outcome{Block: b, Branch: branch, Resolution: res}, nil
}

// appendCanonical extends branch A before the competing block exists.
func (m *Manager) appendCanonical(ctx context.Context, data string) (Outcome, error) {
	b, err := m.ledger.AddBlock(ctx, data)
	if err != nil {
		return Outcome{}, err
	}

	m.fork.ChainA = append(m.fork.ChainA, b)

	return Outcome{Block: b, Branch: BranchA}, nil
}

// checkResolution applies the longest chain rule. Ties keep the fork
// active and report nil.
func (m *Manager) checkResolution() (*Resolution, error) {
	fd := m.fork
	if fd == nil || m.status != StatusActive {
		return nil, nil
	}

	lenA, lenB := len(fd.ChainA), len(fd.ChainB)
	if lenA == lenB {
		return nil, nil
	}

	var res Resolution

	switch {
	case lenA > lenB:
		res = Resolution{
			Winner:      BranchA,
			Orphaned:    cloneBlocks(fd.ChainB),
			OrphanedTxs: txsOnlyIn(fd.ChainB, fd.ChainA),
		}

	default:
		if err := m.ledger.Reorganize(fd.ForkPoint, fd.ChainB); err != nil {
			return nil, fmt.Errorf("reorg to branch B: %w", err)
		}

		reorg := Reorg{
			BlocksReplaced: lenA,
			TxsReturned:    countTxs(fd.ChainA),
			OldChain:       cloneBlocks(fd.ChainA),
			NewChain:       cloneBlocks(fd.ChainB),
			OrphanedTxs:    txsOnlyIn(fd.ChainA, fd.ChainB),
		}
		m.lastReorg = &reorg

		res = Resolution{
			Winner:      BranchB,
			Orphaned:    cloneBlocks(fd.ChainA),
			OrphanedTxs: reorg.OrphanedTxs,
			AdoptedTxs:  txsOnlyIn(fd.ChainB, fd.ChainA),
			Reorg:       &reorg,
		}
	}

	fd.Status = StatusResolved
	fd.Winner = res.Winner
	fd.OrphanedBlocks = res.Orphaned
	m.status = StatusResolved

	m.evHandler("fork: checkResolution: RESOLVED: winner[%s] lenA[%d] lenB[%d] orphaned[%d]", res.Winner, lenA, lenB, len(res.Orphaned))

	if res.Reorg != nil {
		ev := m.newEvent(events.TypeReorg, fmt.Sprintf("Chain reorganization: %d blocks replaced, %d transactions returned", res.Reorg.BlocksReplaced, res.Reorg.TxsReturned))
		ev.Count = res.Reorg.BlocksReplaced
		ev.BlockIndex = fd.ForkPoint
		ev.Winner = string(res.Winner)
		m.emit(ev)
	}

	ev := m.newEvent(events.TypeForkResolved, fmt.Sprintf("Fork resolved: chain %s wins, %d blocks orphaned", res.Winner, len(res.Orphaned)))
	ev.Winner = string(res.Winner)
	ev.Count = len(res.Orphaned)
	ev.BlockIndex = fd.ForkPoint
	m.emit(ev)

	m.onResolve(res)

	m.clear = m.sched.AfterFunc(m.clearAfter, func() {
		if m.fork == fd && m.status == StatusResolved {
			m.status = StatusStable
			m.fork = nil
			m.clear = nil
		}
	})

	return &res, nil
}

// =============================================================================

func (m *Manager) stopTimers() {
	if m.activate != nil {
		m.activate.Stop()
		m.activate = nil
	}
	if m.clear != nil {
		m.clear.Stop()
		m.clear = nil
	}
}

func (m *Manager) newEvent(typ string, message string) events.Event {
	return events.New(typ, m.sched.Now().UnixMilli(), message)
}

// competingMiner generates an identity that differs from the winner.
func (m *Manager) competingMiner(minerID string) string {
	for {
		id := fmt.Sprintf("Miner_%04X", m.rnd.IntN(0x10000))
		if id != minerID {
			return id
		}
	}
}

// rebrand credits the block data to a different miner.
func rebrand(data string, minerID string) string {
	if p, ok := database.DecodePayload(data); ok {
		if s, err := p.WithMiner(minerID).Encode(); err == nil {
			return s
		}
	}

	const prefix = "Mined by "
	if strings.HasPrefix(data, prefix) {
		if i := strings.Index(data, "\n"); i >= 0 {
			return prefix + minerID + data[i:]
		}
		return prefix + minerID
	}

	return prefix + minerID + "\n" + data
}
