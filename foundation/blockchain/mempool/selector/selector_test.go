package selector_test

import (
	"testing"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/mempool/selector"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func tran(sig string, fee database.Amount, ts int64) database.Tx {
	return database.Tx{Signature: sig, Fee: fee, Timestamp: ts}
}

func TestSelect(t *testing.T) {
	type test struct {
		name     string
		strategy string
		txs      []database.Tx
		howMany  int
		best     []string
	}

	tt := []test{
		{
			name:     "fee ordering",
			strategy: selector.StrategyFee,
			txs: []database.Tx{
				tran("a", 100, 1),
				tran("b", 500, 2),
				tran("c", 1000, 3),
				tran("d", 500, 1),
			},
			howMany: -1,
			best:    []string{"c", "d", "b", "a"},
		},
		{
			name:     "fee ties keep arrival",
			strategy: selector.StrategyFee,
			txs: []database.Tx{
				tran("a", 500, 5),
				tran("b", 500, 5),
				tran("c", 500, 5),
			},
			howMany: 2,
			best:    []string{"a", "b"},
		},
		{
			name:     "arrival ordering",
			strategy: selector.StrategyArrival,
			txs: []database.Tx{
				tran("a", 100, 1),
				tran("b", 500, 2),
				tran("c", 1000, 3),
			},
			howMany: 2,
			best:    []string{"a", "b"},
		},
	}

	t.Log("Given the need to select transactions for a block.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen selecting with the %s strategy.", testID, tst.strategy)
				{
					fn, err := selector.Retrieve(tst.strategy)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to retrieve the strategy : %s", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to retrieve the strategy.", success, testID)

					got := fn(tst.txs, tst.howMany)
					if len(got) != len(tst.best) {
						t.Fatalf("\t%s\tTest %d:\tShould get %d transactions, got %d.", failed, testID, len(tst.best), len(got))
					}

					for i := range got {
						if got[i].Signature != tst.best[i] {
							t.Logf("\t%s\tTest %d:\tgot: %s", failed, testID, got[i].Signature)
							t.Logf("\t%s\tTest %d:\texp: %s", failed, testID, tst.best[i])
							t.Fatalf("\t%s\tTest %d:\tShould get back the right order.", failed, testID)
						}
					}
					t.Logf("\t%s\tTest %d:\tShould get back the right order.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}

	if _, err := selector.Retrieve("random"); err == nil {
		t.Fatalf("Should not retrieve an unknown strategy.")
	}
}
