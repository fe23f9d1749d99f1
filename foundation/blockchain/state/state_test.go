package state_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/fork"
	"github.com/ardanlabs/blocksim/foundation/blockchain/genesis"
	"github.com/ardanlabs/blocksim/foundation/blockchain/scheduler"
	"github.com/ardanlabs/blocksim/foundation/blockchain/snapshot"
	"github.com/ardanlabs/blocksim/foundation/blockchain/state"
	"github.com/ardanlabs/blocksim/foundation/events"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

var unit = database.AmountScale

func newState(t *testing.T, rate int) (*state.State, *scheduler.Virtual) {
	gen := genesis.Default()
	gen.Difficulty = 1
	gen.ForkProbability = 0
	gen.PeerWallets = nil

	clock := scheduler.NewVirtual(time.UnixMilli(1_700_000_100_000))

	st, err := state.New(state.Config{
		Genesis:    gen,
		Scheduler:  clock,
		Events:     events.NewEvents(),
		RatePerMin: rate,
		RateBurst:  rate,
		EvHandler:  func(v string, args ...any) { t.Logf(v, args...) },
	})
	if err != nil {
		t.Fatalf("Should be able to construct the state: %s", err)
	}

	return st, clock
}

func balance(t *testing.T, st *state.State, name string) database.Amount {
	w, err := st.Wallet(name)
	if err != nil {
		t.Fatalf("Should be able to find wallet %s: %s", name, err)
	}
	return w.Balance
}

// =============================================================================

func TestSendAndMine(t *testing.T) {
	ctx := context.Background()

	t.Log("Given the need to move funds through the mempool into a block.")
	{
		t.Logf("\tTest 0:\tWhen Alice pays Bob.")
		{
			st, _ := newState(t, 0)

			tx, err := st.SendTransaction("Alice", "Bob", 10*unit, database.FeeHigh)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to send : %s", failed, err)
			}
			if err := tx.Validate(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould produce a verifiable transaction : %s", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to send.", success)

			info, err := st.TransactionStatus(tx.Signature)
			if err != nil || info.Position != 1 || info.BlocksUntilMined != 1 || info.EstimatedBlocks != 1 || info.ETA != 45*time.Second {
				t.Fatalf("\t%s\tTest 0:\tShould rank the pending transaction : %+v %v", failed, info, err)
			}
			t.Logf("\t%s\tTest 0:\tShould rank the pending transaction.", success)

			out, err := st.MineNext(ctx, "Miner_Alpha")
			if err != nil || out.Block.Index != 1 || !out.Canonical() {
				t.Fatalf("\t%s\tTest 0:\tShould mine the block : %+v %v", failed, out, err)
			}

			p, ok := database.DecodePayload(out.Block.Data)
			if !ok || p.MinerID != "Miner_Alpha" || len(p.Txs) != 1 || p.Validate() != nil {
				t.Fatalf("\t%s\tTest 0:\tShould carry a structured payload : %q", failed, out.Block.Data)
			}
			t.Logf("\t%s\tTest 0:\tShould mine a block with a structured payload.", success)

			if got := balance(t, st, "Alice"); got != 90*unit-database.FeeHigh {
				t.Fatalf("\t%s\tTest 0:\tShould debit Alice : %s", failed, got)
			}
			if got := balance(t, st, "Bob"); got != 60*unit {
				t.Fatalf("\t%s\tTest 0:\tShould credit Bob : %s", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould move the balances.", success)

			info, err = st.TransactionStatus(tx.Signature)
			if err != nil || info.Tx.Status != database.TxConfirmed || info.BlockIndex != 1 || info.Confirmations != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould report the confirmation : %+v %v", failed, info, err)
			}
			if len(st.Mempool()) != 0 || len(st.Confirmed()) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould move the transaction out of the mempool.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould report the confirmation.", success)

			recent := st.Events().Recent(2)
			if len(recent) != 2 || recent[0].Type != events.TypeTxConfirmed || recent[1].Type != events.TypeBlockMined || recent[1].MinerID != "Miner_Alpha" {
				t.Fatalf("\t%s\tTest 0:\tShould emit block and confirmation events : %+v", failed, recent)
			}
			t.Logf("\t%s\tTest 0:\tShould emit block and confirmation events.", success)

			if _, err := st.AddBlock(ctx, "on top"); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to add a block : %s", failed, err)
			}
			if info, _ := st.TransactionStatus(tx.Signature); info.Confirmations != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould deepen the confirmation : %+v", failed, info)
			}
			t.Logf("\t%s\tTest 0:\tShould deepen the confirmation.", success)
		}
	}
}

func TestSendRejections(t *testing.T) {
	type table struct {
		name   string
		from   string
		to     string
		amount database.Amount
		fee    database.Amount
		err    error
		valid  bool
	}

	tt := []table{
		{name: "zeroamount", from: "Alice", to: "Bob", amount: 0, fee: database.FeeHigh, err: database.ErrInvalidAmount, valid: true},
		{name: "zerofee", from: "Alice", to: "Bob", amount: unit, fee: 0, err: database.ErrInvalidFee, valid: true},
		{name: "unknownrecipient", from: "Alice", to: "Nobody", amount: unit, fee: database.FeeHigh, err: state.ErrWalletNotFound},
		{name: "unknownsender", from: "Mallory", to: "Bob", amount: unit, fee: database.FeeHigh, err: state.ErrWalletNotFound},
		{name: "overspend", from: "Bob", to: "Alice", amount: 50 * unit, fee: database.FeeHigh, err: state.ErrInsufficientFunds},
	}

	t.Log("Given the need to reject bad transactions without side effects.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen sending a %s transaction.", testID, tst.name)
				{
					st, _ := newState(t, 0)

					_, err := st.SendTransaction(tst.from, tst.to, tst.amount, tst.fee)
					if !errors.Is(err, tst.err) {
						t.Fatalf("\t%s\tTest %d:\tShould fail with %v, got %v.", failed, testID, tst.err, err)
					}
					if database.IsValidationError(err) != tst.valid {
						t.Fatalf("\t%s\tTest %d:\tShould classify the failure, validation[%t].", failed, testID, tst.valid)
					}
					if len(st.Mempool()) != 0 {
						t.Fatalf("\t%s\tTest %d:\tShould leave the mempool empty.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould reject the transaction.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func TestRateBudgetAfterRejection(t *testing.T) {
	t.Log("Given the need to keep the rate budget of refused transactions.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen Alice sends more than she holds twice at a rate of 2.", testID)
		{
			st, _ := newState(t, 2)

			for range 2 {
				if _, err := st.SendTransaction("Alice", "Bob", 500*unit, database.FeeHigh); !errors.Is(err, state.ErrInsufficientFunds) {
					t.Fatalf("\t%s\tTest %d:\tShould refuse the overspend : %v", failed, testID, err)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould refuse the overspend.", success, testID)

			for i := range 2 {
				if _, err := st.SendTransaction("Alice", "Bob", unit, database.FeeHigh); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould allow affordable transaction %d : %v", failed, testID, i, err)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould allow the full budget afterwards.", success, testID)

			if _, err := st.SendTransaction("Alice", "Bob", unit, database.FeeHigh); !errors.Is(err, state.ErrRateLimited) {
				t.Fatalf("\t%s\tTest %d:\tShould throttle once the budget is spent : %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould throttle once the budget is spent.", success, testID)
		}
	}
}

func TestPendingFunds(t *testing.T) {
	st, _ := newState(t, 0)

	if _, err := st.SendTransaction("Bob", "Alice", 30*unit, database.FeeHigh); err != nil {
		t.Fatalf("Should be able to send: %s", err)
	}

	if _, err := st.SendTransaction("Bob", "Alice", 30*unit, database.FeeHigh); !errors.Is(err, state.ErrInsufficientFunds) {
		t.Fatalf("Should count pending transactions against the balance: %v", err)
	}

	if got := st.PendingOutgoing(mustAddress(t, st, "Bob")); got != 30*unit+database.FeeHigh {
		t.Fatalf("Should report the pending outgoing total: %s", got)
	}
}

func TestRateLimit(t *testing.T) {
	st, clock := newState(t, 10)

	for i := range 10 {
		if _, err := st.SendTransaction("Alice", "Bob", unit/100, database.FeeEconomy); err != nil {
			t.Fatalf("Should allow transaction %d: %s", i, err)
		}
		clock.Advance(time.Millisecond)
	}

	_, err := st.SendTransaction("Alice", "Bob", unit/100, database.FeeEconomy)
	if !errors.Is(err, state.ErrRateLimited) || !database.IsValidationError(err) {
		t.Fatalf("Should throttle the eleventh transaction as a validation failure: %v", err)
	}

	if _, err := st.SendTransaction("Bob", "Alice", unit/100, database.FeeEconomy); err != nil {
		t.Fatalf("Should throttle per sender: %s", err)
	}

	clock.Advance(7 * time.Second)
	if _, err := st.SendTransaction("Alice", "Bob", unit/100, database.FeeEconomy); err != nil {
		t.Fatalf("Should allow again after the bucket refills: %s", err)
	}
}

func TestReplaceByFee(t *testing.T) {
	ctx := context.Background()
	st, _ := newState(t, 0)

	tx, err := st.SendTransaction("Alice", "Bob", 10*unit, database.FeeEconomy)
	if err != nil {
		t.Fatalf("Should be able to send: %s", err)
	}

	t.Log("Given the need to speed up and cancel pending transactions.")
	{
		t.Logf("\tTest 0:\tWhen raising the fee.")
		{
			if _, err := st.SpeedUpTransaction(tx.Signature, database.FeeEconomy); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould refuse an equal fee.", failed)
			}

			sped, err := st.SpeedUpTransaction(tx.Signature, database.FeeStandard)
			if err != nil || sped.Fee != database.FeeStandard || sped.Signature != tx.Signature {
				t.Fatalf("\t%s\tTest 0:\tShould raise the fee and keep the identity : %+v %v", failed, sped, err)
			}
			t.Logf("\t%s\tTest 0:\tShould raise the fee and keep the identity.", success)
		}

		t.Logf("\tTest 1:\tWhen cancelling.")
		{
			if _, err := st.CancelTransaction("0xmissing", database.FeeHigh); !errors.Is(err, state.ErrTxNotFound) {
				t.Fatalf("\t%s\tTest 1:\tShould report a missing transaction : %v", failed, err)
			}

			if _, err := st.CancelTransaction(tx.Signature, database.FeeHigh); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould cancel : %s", failed, err)
			}

			if _, err := st.MineNext(ctx, "Miner_Beta"); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould mine : %s", failed, err)
			}

			if got := balance(t, st, "Alice"); got != 100*unit-database.FeeHigh {
				t.Fatalf("\t%s\tTest 1:\tShould only charge the fee : %s", failed, got)
			}
			if got := balance(t, st, "Bob"); got != 50*unit {
				t.Fatalf("\t%s\tTest 1:\tShould not pay Bob : %s", failed, got)
			}
			t.Logf("\t%s\tTest 1:\tShould confirm the cancellation charging only the fee.", success)
		}
	}
}

func TestReorg(t *testing.T) {
	ctx := context.Background()
	st, clock := newState(t, 0)

	for range 2 {
		if _, err := st.MineNext(ctx, "Miner_Gamma"); err != nil {
			t.Fatalf("Should be able to mine: %s", err)
		}
	}

	tx1, _ := st.SendTransaction("Alice", "Bob", 10*unit, database.FeeHigh)

	t.Log("Given the need to settle transactions when branch B wins.")
	{
		t.Logf("\tTest 0:\tWhen a fork is forced and B pulls ahead.")
		{
			out, err := st.ForceFork(ctx, "Miner_Alpha", "Miner_Beta")
			if err != nil || !out.ForkStarted {
				t.Fatalf("\t%s\tTest 0:\tShould start a fork : %+v %v", failed, out, err)
			}

			clock.Advance(fork.DefaultDelayMax)
			if st.ForkStatus() != fork.StatusActive {
				t.Fatalf("\t%s\tTest 0:\tShould activate the fork : %s", failed, st.ForkStatus())
			}
			t.Logf("\t%s\tTest 0:\tShould activate the fork.", success)

			tx2, _ := st.SendTransaction("Alice", "Bob", 5*unit, database.FeeHigh)

			st.AssignMinerToChain("Miner_Beta", fork.BranchB)
			out, err = st.MineNext(ctx, "Miner_Beta")
			if err != nil || out.Resolution == nil || out.Resolution.Winner != fork.BranchB {
				t.Fatalf("\t%s\tTest 0:\tShould resolve for B : %+v %v", failed, out, err)
			}

			reorg := st.LastReorg()
			if reorg == nil || reorg.BlocksReplaced != 1 || reorg.TxsReturned != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould report the reorg : %+v", failed, reorg)
			}
			if len(st.Blocks()) != 5 || st.ValidateChain() != nil {
				t.Fatalf("\t%s\tTest 0:\tShould hold the shared prefix and B : %d", failed, len(st.Blocks()))
			}
			t.Logf("\t%s\tTest 0:\tShould replace the chain with B.", success)

			for _, sig := range []string{tx1.Signature, tx2.Signature} {
				info, err := st.TransactionStatus(sig)
				if err != nil || info.Tx.Status != database.TxConfirmed {
					t.Fatalf("\t%s\tTest 0:\tShould confirm %s : %+v %v", failed, sig, info, err)
				}
			}
			if got := balance(t, st, "Alice"); got != 85*unit-2*database.FeeHigh {
				t.Fatalf("\t%s\tTest 0:\tShould settle each transaction once : %s", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould settle each transaction once.", success)

			clock.Advance(fork.DefaultClearAfter)
			if st.ActiveFork() != nil {
				t.Fatalf("\t%s\tTest 0:\tShould clear the resolved fork.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould clear the resolved fork.", success)
		}
	}
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	st, _ := newState(t, 0)

	st.SendTransaction("Alice", "Bob", 10*unit, database.FeeHigh)
	st.MineNext(ctx, "Miner_Alpha")
	pending, _ := st.SendTransaction("Bob", "Alice", unit, database.FeeStandard)
	carol, _ := st.CreateWallet("Carol", 7*unit)
	st.EditBlockData(1, "tampered")

	data, err := snapshot.Encode(st.Snapshot(&snapshot.SchedulerConfig{BlockDelayMultiplier: 2}))
	if err != nil {
		t.Fatalf("Should be able to encode the snapshot: %s", err)
	}

	t.Log("Given the need to rebuild the simulation from a snapshot.")
	{
		t.Logf("\tTest 0:\tWhen restoring a good bundle.")
		{
			restored, _ := newState(t, 0)
			report := restored.Restore(snapshot.Decode(data))

			if !report.ChainRestored || report.WalletsSkipped != 0 || report.TxsSkipped != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould use every part of the bundle : %+v", failed, report)
			}
			if len(restored.Blocks()) != 2 || !errors.Is(restored.ValidateChain(), database.ErrChainInvalid) {
				t.Fatalf("\t%s\tTest 0:\tShould keep the tampered chain as it was.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the tampered chain as it was.", success)

			w, err := restored.Wallet("Carol")
			if err != nil || w.Address != carol.Address || w.Balance != 7*unit {
				t.Fatalf("\t%s\tTest 0:\tShould restore the wallets : %+v %v", failed, w, err)
			}
			if got := balance(t, restored, "Bob"); got != 60*unit {
				t.Fatalf("\t%s\tTest 0:\tShould restore balances : %s", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould restore the wallets.", success)

			mp := restored.Mempool()
			if len(mp) != 1 || mp[0].Signature != pending.Signature {
				t.Fatalf("\t%s\tTest 0:\tShould restore the mempool : %+v", failed, mp)
			}
			t.Logf("\t%s\tTest 0:\tShould restore the mempool.", success)

			if len(restored.Events().Recent(-1)) == 0 {
				t.Fatalf("\t%s\tTest 0:\tShould restore recent events.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould restore recent events.", success)
		}

		t.Logf("\tTest 1:\tWhen restoring a damaged bundle.")
		{
			bundle := snapshot.Decode(data)
			bundle.Blocks[1].Index = 9
			bundle.Wallets[0].PrivateKey = "nope"
			bundle.Mempool[0].Signature = ""

			restored, _ := newState(t, 0)
			report := restored.Restore(bundle)

			if report.ChainRestored || len(restored.Blocks()) != 1 || restored.ValidateChain() != nil {
				t.Fatalf("\t%s\tTest 1:\tShould fall back to a fresh chain : %+v", failed, report)
			}
			if report.WalletsSkipped != 1 || report.TxsSkipped != 1 || len(restored.Mempool()) != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould skip what does not check out : %+v", failed, report)
			}
			t.Logf("\t%s\tTest 1:\tShould skip what does not check out.", success)
		}
	}
}

func mustAddress(t *testing.T, st *state.State, name string) string {
	w, err := st.Wallet(name)
	if err != nil {
		t.Fatalf("Should be able to find wallet %s: %s", name, err)
	}
	return w.Address
}
