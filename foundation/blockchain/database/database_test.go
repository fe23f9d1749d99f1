package database_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func newLedger(t *testing.T, difficulty int) *database.Database {
	now := time.UnixMilli(1_700_000_100_000)

	db, err := database.New(database.Config{
		Difficulty: difficulty,
		Now: func() time.Time {
			now = now.Add(time.Second)
			return now
		},
	})
	if err != nil {
		t.Fatalf("Should be able to construct a ledger: %s", err)
	}

	return db
}

func sameChain(a, b []database.Block) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// =============================================================================

func Test_TamperScenario(t *testing.T) {
	t.Log("Given the need to mine blocks and detect tampering.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen adding three blocks at difficulty 2.", testID)
		{
			db := newLedger(t, 2)

			for _, data := range []string{"alpha", "beta", "gamma"} {
				if _, err := db.AddBlock(context.Background(), data); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to add a block : %s", failed, testID, err)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould be able to add blocks.", success, testID)

			blocks := db.Blocks()
			if len(blocks) != 4 {
				t.Fatalf("\t%s\tTest %d:\tShould have 4 blocks, got %d.", failed, testID, len(blocks))
			}
			t.Logf("\t%s\tTest %d:\tShould have 4 blocks.", success, testID)

			for i := 1; i < len(blocks); i++ {
				if !strings.HasPrefix(blocks[i].Hash, "00") {
					t.Fatalf("\t%s\tTest %d:\tShould have a hash starting with 00 : %s", failed, testID, blocks[i].Hash)
				}
				if blocks[i].PreviousHash != blocks[i-1].Hash {
					t.Fatalf("\t%s\tTest %d:\tShould link block %d to its parent.", failed, testID, i)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould have solved and linked every block.", success, testID)

			if err := db.IsValid(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould have a valid chain : %s", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould have a valid chain.", success, testID)

			before := blocks[1].Hash
			if _, err := db.EditBlockData(1, "tampered"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to edit block data : %s", failed, testID, err)
			}

			blocks = db.Blocks()
			if blocks[1].Hash == before {
				t.Fatalf("\t%s\tTest %d:\tShould change the hash of the edited block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould change the hash of the edited block.", success, testID)

			if blocks[2].PreviousHash == blocks[1].Hash {
				t.Fatalf("\t%s\tTest %d:\tShould leave the next block pointing at the old hash.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould leave the next block pointing at the old hash.", success, testID)

			err := db.IsValid()
			if !errors.Is(err, database.ErrChainInvalid) {
				t.Fatalf("\t%s\tTest %d:\tShould report the chain invalid : %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould report the chain invalid.", success, testID)

			if _, err := db.MineBlock(context.Background(), 1); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to re-mine the block : %s", failed, testID, err)
			}

			blocks = db.Blocks()
			if !strings.HasPrefix(blocks[1].Hash, "00") || blocks[2].PreviousHash == blocks[1].Hash {
				t.Fatalf("\t%s\tTest %d:\tShould re-mine without relinking.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould re-mine without relinking.", success, testID)
		}
	}
}

func Test_ReplaceChain(t *testing.T) {
	ctx := context.Background()

	build := func(n int) *database.Database {
		db := newLedger(t, 1)
		for range n {
			if _, err := db.AddBlock(ctx, "block"); err != nil {
				t.Fatalf("Should be able to add a block: %s", err)
			}
		}
		return db
	}

	longer := build(4).Blocks()

	brokenLink := build(4).Blocks()
	brokenLink[2].Data = "changed"
	brokenLink[2].Hash = database.ComputeHash(brokenLink[2])

	weak := build(4).Blocks()
	weak[3].Difficulty = 3
	for weak[3].IsSolved(3) {
		weak[3].Nonce++
		weak[3].Hash = database.ComputeHash(weak[3])
	}

	forged := []database.Block{database.Genesis()}
	for i := 1; i <= 5; i++ {
		b := database.NewBlock(uint64(i), int64(1_700_000_200_000+i), "forged", forged[i-1].Hash)
		for b.IsSolved(1) {
			b.Nonce++
			b.Hash = database.ComputeHash(b)
		}
		forged = append(forged, b)
	}

	gap := build(4).Blocks()
	gap = append(gap[:2], gap[3:]...)
	gap = append(gap, gap[len(gap)-1], gap[len(gap)-1])

	type table struct {
		name  string
		chain []database.Block
		err   error
	}

	tt := []table{
		{name: "shorter", chain: build(1).Blocks(), err: database.ErrChainTooShort},
		{name: "equal", chain: build(2).Blocks(), err: database.ErrChainTooShort},
		{name: "brokenlink", chain: brokenLink, err: database.ErrChainInvalid},
		{name: "weakpow", chain: weak, err: database.ErrChainInvalid},
		{name: "gap", chain: gap, err: database.ErrChainInvalid},
		{name: "zerowork", chain: forged, err: database.ErrChainInvalid},
		{name: "longer", chain: longer},
	}

	t.Log("Given the need to only accept longer valid chains.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen replacing with a %s chain.", testID, tst.name)
				{
					db := build(2)
					before := db.Blocks()

					err := db.ReplaceChain(tst.chain)

					if tst.err == nil {
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould accept the chain : %s", failed, testID, err)
						}
						if !sameChain(db.Blocks(), tst.chain) {
							t.Fatalf("\t%s\tTest %d:\tShould hold the new chain.", failed, testID)
						}
						t.Logf("\t%s\tTest %d:\tShould accept the chain.", success, testID)
						return
					}

					if !errors.Is(err, tst.err) {
						t.Fatalf("\t%s\tTest %d:\tShould reject with %v, got %v.", failed, testID, tst.err, err)
					}
					t.Logf("\t%s\tTest %d:\tShould reject the chain.", success, testID)

					if !sameChain(db.Blocks(), before) {
						t.Fatalf("\t%s\tTest %d:\tShould leave the chain untouched.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould leave the chain untouched.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Reorganize(t *testing.T) {
	ctx := context.Background()

	t.Log("Given the need to swap the blocks after a fork point for a branch.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the branch was mined before the difficulty was raised.", testID)
		{
			db := newLedger(t, 1)
			for range 2 {
				if _, err := db.AddBlock(ctx, "canonical"); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to add a block : %s", failed, testID, err)
				}
			}

			parent, _ := db.Block(0)
			var branch []database.Block
			for range 3 {
				b, err := db.BuildOn(ctx, parent, "branch")
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to build a branch block : %s", failed, testID, err)
				}
				branch = append(branch, b)
				parent = b
			}

			if err := db.Reorganize(0, branch[:2]); !errors.Is(err, database.ErrChainTooShort) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse a branch that is not longer : %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse a branch that is not longer.", success, testID)

			if err := db.SetDifficulty(3); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to raise the difficulty : %s", failed, testID, err)
			}

			if err := db.Reorganize(0, branch); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould adopt the branch : %s", failed, testID, err)
			}

			blocks := db.Blocks()
			if len(blocks) != 4 || blocks[3] != branch[2] {
				t.Fatalf("\t%s\tTest %d:\tShould hold the branch after the fork point.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould adopt the branch.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen a replacement chain claims a lower difficulty than the ledger.", testID)
		{
			db := newLedger(t, 1)
			if _, err := db.AddBlock(ctx, "canonical"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to add a block : %s", failed, testID, err)
			}

			other := newLedger(t, 1)
			for range 3 {
				if _, err := other.AddBlock(ctx, "other"); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to add a block : %s", failed, testID, err)
				}
			}

			if err := db.SetDifficulty(database.MaxDifficulty); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to raise the difficulty : %s", failed, testID, err)
			}

			if err := db.ReplaceChain(other.Blocks()); !errors.Is(err, database.ErrChainInvalid) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse blocks below the ledger difficulty : %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse blocks below the ledger difficulty.", success, testID)
		}
	}
}

func Test_DifficultyNotRetroactive(t *testing.T) {
	ctx := context.Background()
	db := newLedger(t, 1)

	if _, err := db.AddBlock(ctx, "easy"); err != nil {
		t.Fatalf("Should be able to add a block: %s", err)
	}

	if err := db.SetDifficulty(2); err != nil {
		t.Fatalf("Should be able to set the difficulty: %s", err)
	}

	b, err := db.AddBlock(ctx, "harder")
	if err != nil {
		t.Fatalf("Should be able to add a block: %s", err)
	}

	if b.Difficulty != 2 || !strings.HasPrefix(b.Hash, "00") {
		t.Fatalf("Should mine at the new difficulty: %+v", b)
	}

	if err := db.IsValid(); err != nil {
		t.Fatalf("Should keep older blocks valid: %s", err)
	}

	if err := db.SetDifficulty(database.MaxDifficulty + 1); !errors.Is(err, database.ErrInvalidDifficulty) {
		t.Fatalf("Should reject an out of range difficulty.")
	}

	if got := db.Confirmations(1); got != 2 {
		t.Fatalf("Should have 2 confirmations for block 1, got %d", got)
	}

	if got := db.Confirmations(2); got != 1 {
		t.Fatalf("Should have 1 confirmation for the tip, got %d", got)
	}

	if got := db.Confirmations(5); got != 0 {
		t.Fatalf("Should never report negative confirmations, got %d", got)
	}
}

func Test_MiningBound(t *testing.T) {
	db, err := database.New(database.Config{Difficulty: 8, MaxAttempts: 10})
	if err != nil {
		t.Fatalf("Should be able to construct a ledger: %s", err)
	}

	if _, err := db.AddBlock(context.Background(), "bounded"); !errors.Is(err, database.ErrMiningExhausted) {
		t.Fatalf("Should stop after the attempt bound: %v", err)
	}

	if db.Length() != 1 {
		t.Fatalf("Should not append a block that was not solved.")
	}
}

func Test_Genesis(t *testing.T) {
	g1 := database.Genesis()
	g2 := database.Genesis()

	if g1 != g2 {
		t.Fatalf("Should get the same genesis block twice.")
	}

	if g1.Index != 0 || g1.Data != database.GenesisData || g1.Hash != database.ComputeHash(g1) {
		t.Fatalf("Should get a well formed genesis block: %+v", g1)
	}

	if err := database.ValidateChain([]database.Block{g1}); err != nil {
		t.Fatalf("Should accept a genesis only chain: %s", err)
	}
}
