package fork_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/fork"
	"github.com/ardanlabs/blocksim/foundation/blockchain/scheduler"
	"github.com/ardanlabs/blocksim/foundation/events"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

type harness struct {
	clock   *scheduler.Virtual
	ledger  *database.Database
	manager *fork.Manager
	events  []events.Event
	res     []fork.Resolution
}

func newHarness(t *testing.T, probability float64, blocks int) *harness {
	h := harness{
		clock: scheduler.NewVirtual(time.UnixMilli(1_700_000_100_000)),
	}

	ledger, err := database.New(database.Config{Difficulty: 1, Now: h.clock.Now})
	if err != nil {
		t.Fatalf("Should be able to construct a ledger: %s", err)
	}
	h.ledger = ledger

	for range blocks {
		if _, err := ledger.AddBlock(context.Background(), "block"); err != nil {
			t.Fatalf("Should be able to add a block: %s", err)
		}
	}

	mgr, err := fork.New(fork.Config{
		Ledger:      ledger,
		Scheduler:   h.clock,
		Rand:        rand.New(rand.NewPCG(1, 2)),
		Probability: probability,
		Emit:        func(ev events.Event) { h.events = append(h.events, ev) },
		OnResolve:   func(res fork.Resolution) { h.res = append(h.res, res) },
	})
	if err != nil {
		t.Fatalf("Should be able to construct a fork manager: %s", err)
	}
	h.manager = mgr

	return &h
}

func (h *harness) eventTypes() []string {
	out := make([]string, len(h.events))
	for i, ev := range h.events {
		out[i] = ev.Type
	}
	return out
}

// =============================================================================

func TestForkLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Log("Given the need to resolve forks with the longest chain rule.")
	{
		t.Logf("\tTest 0:\tWhen branch A pulls ahead.")
		{
			h := newHarness(t, 0, 2)

			out, err := h.manager.ForceFork(ctx, "alpha block", "alpha", "beta")
			if err != nil || !out.ForkStarted || out.Branch != fork.BranchA {
				t.Fatalf("\t%s\tTest 0:\tShould start a fork : %+v %v", failed, out, err)
			}
			if h.manager.Status() != fork.StatusForking || h.ledger.Length() != 4 {
				t.Fatalf("\t%s\tTest 0:\tShould append branch A at once : %s %d", failed, h.manager.Status(), h.ledger.Length())
			}
			t.Logf("\t%s\tTest 0:\tShould append branch A at once.", success)

			if _, err := h.manager.ForceFork(ctx, "again", "alpha", ""); !errors.Is(err, fork.ErrForkInProgress) {
				t.Fatalf("\t%s\tTest 0:\tShould refuse a second fork : %v", failed, err)
			}

			h.clock.Advance(fork.DefaultDelayMax)

			fd := h.manager.Snapshot()
			if h.manager.Status() != fork.StatusActive || len(fd.ChainA) != 1 || len(fd.ChainB) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould activate the competing branch : %+v", failed, fd)
			}
			if fd.ChainA[0].Index != fd.ChainB[0].Index || fd.ChainB[0].PreviousHash != fd.ChainA[0].PreviousHash {
				t.Fatalf("\t%s\tTest 0:\tShould compete at the same parent and height.", failed)
			}
			if fd.ChainB[0].Data != "Mined by beta\nalpha block" {
				t.Fatalf("\t%s\tTest 0:\tShould credit the competing miner : %q", failed, fd.ChainB[0].Data)
			}
			t.Logf("\t%s\tTest 0:\tShould activate the competing branch.", success)

			h.manager.AssignMinerToChain("alpha", fork.BranchA)
			out, err = h.manager.OnBlockMined(ctx, "alpha again", "alpha")
			if err != nil || out.Resolution == nil || out.Resolution.Winner != fork.BranchA || out.Resolution.Reorg != nil {
				t.Fatalf("\t%s\tTest 0:\tShould resolve for A without a reorg : %+v %v", failed, out, err)
			}
			if len(h.res) != 1 || len(out.Resolution.Orphaned) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould orphan branch B once.", failed)
			}
			if h.ledger.Length() != 5 || h.manager.LastReorg() != nil {
				t.Fatalf("\t%s\tTest 0:\tShould keep the canonical chain.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould resolve for A without a reorg.", success)

			h.clock.Advance(fork.DefaultClearAfter)
			if h.manager.Status() != fork.StatusStable || h.manager.Snapshot() != nil {
				t.Fatalf("\t%s\tTest 0:\tShould return to stable after the resolved fork clears.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould return to stable after the resolved fork clears.", success)

			exp := []string{events.TypeForkStarted, events.TypeForkResolved}
			got := h.eventTypes()
			if len(got) != len(exp) || got[0] != exp[0] || got[1] != exp[1] {
				t.Fatalf("\t%s\tTest 0:\tShould emit fork events : %v", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould emit fork events.", success)
		}

		t.Logf("\tTest 1:\tWhen branch B pulls ahead.")
		{
			h := newHarness(t, 0, 2)

			h.manager.ForceFork(ctx, "alpha block", "alpha", "beta")
			h.clock.Advance(fork.DefaultDelayMax)

			h.manager.AssignMinerToChain("beta", fork.BranchB)
			out, err := h.manager.OnBlockMined(ctx, "beta block", "beta")
			if err != nil || out.Branch != fork.BranchB || out.Canonical() {
				t.Fatalf("\t%s\tTest 1:\tShould extend branch B : %+v %v", failed, out, err)
			}

			reorg := h.manager.LastReorg()
			if reorg == nil || reorg.BlocksReplaced != 1 || len(reorg.NewChain) != 2 {
				t.Fatalf("\t%s\tTest 1:\tShould report the reorg : %+v", failed, reorg)
			}
			t.Logf("\t%s\tTest 1:\tShould report the reorg.", success)

			blocks := h.ledger.Blocks()
			if len(blocks) != 5 || blocks[4].Hash != out.Block.Hash || h.ledger.IsValid() != nil {
				t.Fatalf("\t%s\tTest 1:\tShould replace the canonical chain with branch B.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould replace the canonical chain with branch B.", success)

			got := h.eventTypes()
			if len(got) != 3 || got[1] != events.TypeReorg || got[2] != events.TypeForkResolved {
				t.Fatalf("\t%s\tTest 1:\tShould emit reorg events : %v", failed, got)
			}
			t.Logf("\t%s\tTest 1:\tShould emit reorg events.", success)
		}

		t.Logf("\tTest 2:\tWhen branch A grows before the competing block arrives.")
		{
			h := newHarness(t, 0, 2)

			h.manager.ForceFork(ctx, "alpha block", "alpha", "beta")
			out, err := h.manager.OnBlockMined(ctx, "during", "gamma")
			if err != nil || out.Branch != fork.BranchA {
				t.Fatalf("\t%s\tTest 2:\tShould extend branch A : %+v %v", failed, out, err)
			}

			h.clock.Advance(fork.DefaultDelayMax)
			if h.manager.Status() != fork.StatusResolved || len(h.res) != 1 || h.res[0].Winner != fork.BranchA {
				t.Fatalf("\t%s\tTest 2:\tShould resolve as soon as the competing block arrives : %s", failed, h.manager.Status())
			}
			t.Logf("\t%s\tTest 2:\tShould resolve as soon as the competing block arrives.", success)
		}
	}
}

func TestForkProbability(t *testing.T) {
	ctx := context.Background()

	t.Log("Given the need to start forks only with enough depth.")
	{
		t.Logf("\tTest 0:\tWhen the probability is one.")
		{
			h := newHarness(t, 1, 0)

			for i := range 2 {
				out, err := h.manager.OnBlockMined(ctx, "shallow", "alpha")
				if err != nil || out.ForkStarted {
					t.Fatalf("\t%s\tTest 0:\tShould not fork a shallow chain at block %d : %+v", failed, i, out)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould not fork a shallow chain.", success)

			out, err := h.manager.OnBlockMined(ctx, "deep", "alpha")
			if err != nil || !out.ForkStarted {
				t.Fatalf("\t%s\tTest 0:\tShould fork once the chain is deep enough : %+v", failed, out)
			}
			t.Logf("\t%s\tTest 0:\tShould fork once the chain is deep enough.", success)
		}

		t.Logf("\tTest 1:\tWhen the configuration is bad.")
		{
			h := newHarness(t, 0, 0)

			if err := h.manager.SetForkProbability(1.5); !errors.Is(err, fork.ErrInvalidProbability) {
				t.Fatalf("\t%s\tTest 1:\tShould refuse a probability above one : %v", failed, err)
			}
			if err := h.manager.AssignMinerToChain("alpha", "C"); !errors.Is(err, fork.ErrInvalidBranch) {
				t.Fatalf("\t%s\tTest 1:\tShould refuse an unknown branch : %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould refuse bad configuration.", success)
		}
	}
}

func TestReset(t *testing.T) {
	h := newHarness(t, 0, 2)

	h.manager.ForceFork(context.Background(), "alpha block", "alpha", "")
	h.manager.Reset()

	h.clock.Advance(fork.DefaultDelayMax)
	if h.manager.Status() != fork.StatusStable || h.manager.Snapshot() != nil || len(h.events) != 0 {
		t.Fatalf("Should cancel the scheduled competing block on reset.")
	}
}
