// Package snapshot defines the persisted bundle the simulation is saved to
// and rebuilt from.
package snapshot

import (
	"encoding/json"
	"errors"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/genesis"
	"github.com/ardanlabs/blocksim/foundation/blockchain/wallet"
	"github.com/ardanlabs/blocksim/foundation/events"
)

// ErrNotFound is returned by a Storer that holds no snapshot yet.
var ErrNotFound = errors.New("snapshot not found")

// Storer interface represents the behavior required to be implemented by any
// package providing support for saving and loading a snapshot.
type Storer interface {
	Save(data []byte) error
	Load() ([]byte, error)
}

// =============================================================================

// SchedulerConfig is the part of the background scheduler that survives a
// restart.
type SchedulerConfig struct {
	Miners               []genesis.Miner `json:"miners"`
	PeerWallets          []string        `json:"peerWallets"`
	BlockDelayMultiplier float64         `json:"blockDelayMultiplier"`
}

// Bundle is everything required to rebuild the simulation. A nil
// SchedulerConfig means none was saved.
type Bundle struct {
	Blocks              []database.Block `json:"blocks"`
	Wallets             []wallet.Wallet  `json:"wallets"`
	Mempool             []database.Tx    `json:"mempool"`
	SchedulerConfig     *SchedulerConfig `json:"schedulerConfig"`
	RecentEvents        []events.Event   `json:"recentEvents"`
	LastActiveTimestamp int64            `json:"lastActiveTimestamp"`
}

// Encode returns the JSON form of the bundle.
func Encode(b Bundle) ([]byte, error) {
	return json.MarshalIndent(b, "", "  ")
}

// Decode rebuilds a bundle field by field. A field that is missing or does
// not decode is left at its zero value so a damaged snapshot means "no
// prior state" for that part only.
func Decode(data []byte) Bundle {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Bundle{}
	}

	var b Bundle
	decode(fields, "blocks", &b.Blocks)
	decode(fields, "wallets", &b.Wallets)
	decode(fields, "mempool", &b.Mempool)
	decode(fields, "recentEvents", &b.RecentEvents)
	decode(fields, "lastActiveTimestamp", &b.LastActiveTimestamp)

	var sc SchedulerConfig
	if decode(fields, "schedulerConfig", &sc) {
		b.SchedulerConfig = &sc
	}

	return b
}

// Load reads and decodes the snapshot held by the storer. The bool reports
// whether a snapshot existed.
func Load(s Storer) (Bundle, bool, error) {
	data, err := s.Load()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Bundle{}, false, nil
		}
		return Bundle{}, false, err
	}

	return Decode(data), true, nil
}

// Save encodes and writes the bundle to the storer.
func Save(s Storer, b Bundle) error {
	data, err := Encode(b)
	if err != nil {
		return err
	}

	return s.Save(data)
}

// =============================================================================

// decode unmarshals a single field into v, leaving v untouched on failure.
func decode[T any](fields map[string]json.RawMessage, key string, v *T) bool {
	raw, exists := fields[key]
	if !exists || string(raw) == "null" {
		return false
	}

	var t T
	if err := json.Unmarshal(raw, &t); err != nil {
		return false
	}

	*v = t
	return true
}
