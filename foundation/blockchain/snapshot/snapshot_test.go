package snapshot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/genesis"
	"github.com/ardanlabs/blocksim/foundation/blockchain/snapshot"
	"github.com/ardanlabs/blocksim/foundation/blockchain/snapshot/disk"
	"github.com/ardanlabs/blocksim/foundation/blockchain/snapshot/memory"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func TestDecode(t *testing.T) {
	type table struct {
		name  string
		data  string
		check func(b snapshot.Bundle) bool
	}

	tt := []table{
		{
			name:  "garbage",
			data:  `not json`,
			check: func(b snapshot.Bundle) bool { return b.Blocks == nil && b.SchedulerConfig == nil },
		},
		{
			name: "badblocks",
			data: `{"blocks": "nope", "lastActiveTimestamp": 42, "mempool": [{"from": "0x1", "amount": 1}]}`,
			check: func(b snapshot.Bundle) bool {
				return b.Blocks == nil && b.LastActiveTimestamp == 42 && len(b.Mempool) == 1
			},
		},
		{
			name: "badscheduler",
			data: `{"schedulerConfig": [1, 2], "wallets": [{"name": "Alice"}]}`,
			check: func(b snapshot.Bundle) bool {
				return b.SchedulerConfig == nil && len(b.Wallets) == 1 && b.Wallets[0].Name == "Alice"
			},
		},
		{
			name: "nullscheduler",
			data: `{"schedulerConfig": null}`,
			check: func(b snapshot.Bundle) bool {
				return b.SchedulerConfig == nil
			},
		},
	}

	t.Log("Given the need to decode damaged snapshots without failing.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen decoding a %s snapshot.", testID, tst.name)
				{
					if b := snapshot.Decode([]byte(tst.data)); !tst.check(b) {
						t.Fatalf("\t%s\tTest %d:\tShould keep only the good fields : %+v", failed, testID, b)
					}
					t.Logf("\t%s\tTest %d:\tShould keep only the good fields.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func TestStorers(t *testing.T) {
	bundle := snapshot.Bundle{
		Blocks: []database.Block{database.Genesis()},
		SchedulerConfig: &snapshot.SchedulerConfig{
			Miners:               []genesis.Miner{{Name: "Miner_Alpha", HashRate: 50}},
			PeerWallets:          []string{"Wallet_Alice_Bg"},
			BlockDelayMultiplier: 1.5,
		},
		LastActiveTimestamp: 1_700_000_000_000,
	}

	d, err := disk.New(filepath.Join(t.TempDir(), "zblock", "snapshot.json"))
	if err != nil {
		t.Fatalf("Should be able to construct a disk store: %s", err)
	}

	storers := map[string]snapshot.Storer{
		"disk":   d,
		"memory": memory.New(),
	}

	t.Log("Given the need to save and load snapshots.")
	{
		testID := 0
		for name, s := range storers {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen using the %s store.", testID, name)
				{
					if _, found, err := snapshot.Load(s); err != nil || found {
						t.Fatalf("\t%s\tTest %d:\tShould report no snapshot yet : %v", failed, testID, err)
					}

					if err := snapshot.Save(s, bundle); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould save the snapshot : %s", failed, testID, err)
					}

					got, found, err := snapshot.Load(s)
					if err != nil || !found {
						t.Fatalf("\t%s\tTest %d:\tShould load the snapshot : %v", failed, testID, err)
					}

					if len(got.Blocks) != 1 || got.Blocks[0] != database.Genesis() || got.SchedulerConfig.BlockDelayMultiplier != 1.5 {
						t.Fatalf("\t%s\tTest %d:\tShould get back what was saved : %+v", failed, testID, got)
					}
					t.Logf("\t%s\tTest %d:\tShould get back what was saved.", success, testID)
				}
			}

			t.Run(name, f)
			testID++
		}
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(d.Path()), "*.tmp"))
	if len(matches) != 0 {
		t.Fatalf("Should not leave temporary files behind: %v", matches)
	}

	if _, err := os.Stat(d.Path()); err != nil {
		t.Fatalf("Should have written the snapshot file: %s", err)
	}
}
