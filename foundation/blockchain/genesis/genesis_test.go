package genesis_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/genesis"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func TestLoad(t *testing.T) {
	type table struct {
		name    string
		content string
		check   func(g genesis.Genesis) bool
		fail    bool
	}

	tt := []table{
		{
			name:    "partial",
			content: `{"difficulty": 3, "wallets": [{"name": "Carol", "balance": "12.5"}]}`,
			check: func(g genesis.Genesis) bool {
				return g.Difficulty == 3 &&
					len(g.Wallets) == 1 && g.Wallets[0].Balance == database.MustParseAmount("12.5") &&
					len(g.Miners) == 4 && g.TransPerBlock == 5
			},
		},
		{
			name:    "durations",
			content: `{"block_interval": "1m", "tx_interval_min": "1s", "tx_interval_max": "2s"}`,
			check: func(g genesis.Genesis) bool {
				return g.BlockInterval.Std() == time.Minute && g.TxIntervalMax.Std() == 2*time.Second
			},
		},
		{name: "baddifficulty", content: `{"difficulty": 99}`, fail: true},
		{name: "badminer", content: `{"miners": [{"name": "x", "hash_rate": 0}]}`, fail: true},
		{name: "badjson", content: `{`, fail: true},
	}

	t.Log("Given the need to load a genesis file.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen loading a %s file.", testID, tst.name)
				{
					path := filepath.Join(t.TempDir(), "genesis.json")
					if err := os.WriteFile(path, []byte(tst.content), 0600); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to write the file : %s", failed, testID, err)
					}

					g, err := genesis.Load(path)
					if tst.fail {
						if err == nil {
							t.Fatalf("\t%s\tTest %d:\tShould reject the file.", failed, testID)
						}
						t.Logf("\t%s\tTest %d:\tShould reject the file.", success, testID)
						return
					}

					if err != nil || !tst.check(g) {
						t.Fatalf("\t%s\tTest %d:\tShould load the file over the defaults : %+v %v", failed, testID, g, err)
					}
					t.Logf("\t%s\tTest %d:\tShould load the file over the defaults.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func TestDefault(t *testing.T) {
	if err := genesis.Default().Validate(); err != nil {
		t.Fatalf("Should have a valid default genesis: %s", err)
	}
}
