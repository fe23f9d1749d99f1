package worker

import (
	"math/rand/v2"
	"testing"

	"github.com/ardanlabs/blocksim/foundation/blockchain/genesis"
)

func TestPickMiner(t *testing.T) {
	w := Worker{
		rand: rand.New(rand.NewPCG(7, 8)),
		miners: []genesis.Miner{
			{Name: "Miner_Alpha", HashRate: 50},
			{Name: "Miner_Beta", HashRate: 30},
			{Name: "Miner_Gamma", HashRate: 20},
			{Name: "Miner_Delta", HashRate: 10},
		},
	}

	const draws = 20_000

	wins := make(map[string]int)
	for range draws {
		wins[w.pickMiner()]++
	}

	exp := map[string]float64{"Miner_Alpha": 50.0 / 110, "Miner_Beta": 30.0 / 110, "Miner_Gamma": 20.0 / 110, "Miner_Delta": 10.0 / 110}
	for name, share := range exp {
		got := float64(wins[name]) / draws
		if got < share-0.02 || got > share+0.02 {
			t.Fatalf("Should win about %.3f of blocks for %s, got %.3f", share, name, got)
		}
	}

	w.miners = nil
	if got := w.pickMiner(); got != "" {
		t.Fatalf("Should pick nobody without miners, got %q", got)
	}
}
