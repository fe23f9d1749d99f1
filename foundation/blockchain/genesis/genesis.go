// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
)

// Account is a wallet created when the simulation starts.
type Account struct {
	Name    string          `json:"name"`
	Balance database.Amount `json:"balance"`
}

// Miner is a simulated miner and its relative hash rate.
type Miner struct {
	Name     string `json:"name"`
	HashRate int    `json:"hash_rate"`
}

// Genesis represents the genesis file.
type Genesis struct {
	Date              time.Time       `json:"date"`
	Difficulty        int             `json:"difficulty"`          // How many leading zero digits a block hash needs.
	TransPerBlock     int             `json:"trans_per_block"`     // The maximum number of transactions that can be in a block.
	ForkProbability   float64         `json:"fork_probability"`    // Chance a mined block starts a fork.
	BlockInterval     Duration        `json:"block_interval"`      // Mean time between mined blocks.
	TxIntervalMin     Duration        `json:"tx_interval_min"`     // Shortest wait between background transactions.
	TxIntervalMax     Duration        `json:"tx_interval_max"`     // Longest wait between background transactions.
	Wallets           []Account       `json:"wallets"`             // Wallets the user drives.
	PeerWallets       []string        `json:"peer_wallets"`        // Wallets the background traffic moves funds between.
	PeerWalletBalance database.Amount `json:"peer_wallet_balance"` // Starting balance for every peer wallet.
	Miners            []Miner         `json:"miners"`
}

// Default returns the genesis used when no file is provided.
func Default() Genesis {
	return Genesis{
		Date:            time.Date(2023, time.November, 14, 22, 13, 20, 0, time.UTC),
		Difficulty:      2,
		TransPerBlock:   5,
		ForkProbability: 0.15,
		BlockInterval:   Duration(45 * time.Second),
		TxIntervalMin:   Duration(10 * time.Second),
		TxIntervalMax:   Duration(30 * time.Second),
		Wallets: []Account{
			{Name: "Alice", Balance: 100 * database.AmountScale},
			{Name: "Bob", Balance: 50 * database.AmountScale},
		},
		PeerWallets: []string{
			"Wallet_Alice_Bg", "Wallet_Bob_Bg", "Wallet_Charlie_Bg", "Wallet_Dave_Bg",
			"Wallet_Eve_Bg", "Wallet_Frank_Bg", "Wallet_Grace_Bg", "Wallet_Heidi_Bg",
			"Wallet_Ivan_Bg", "Wallet_Judy_Bg",
		},
		PeerWalletBalance: 100 * database.AmountScale,
		Miners: []Miner{
			{Name: "Miner_Alpha", HashRate: 50},
			{Name: "Miner_Beta", HashRate: 30},
			{Name: "Miner_Gamma", HashRate: 20},
			{Name: "Miner_Delta", HashRate: 10},
		},
	}
}

// =============================================================================

// Load opens and consumes the genesis file. Fields the file leaves out keep
// their default values.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	genesis := Default()
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decoding genesis: %w", err)
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks the genesis values are usable.
func (g Genesis) Validate() error {
	switch {
	case g.Difficulty < 0 || g.Difficulty > database.MaxDifficulty:
		return fmt.Errorf("difficulty %d out of range [0, %d]", g.Difficulty, database.MaxDifficulty)
	case g.TransPerBlock <= 0:
		return errors.New("trans_per_block must be positive")
	case g.ForkProbability < 0 || g.ForkProbability > 1:
		return fmt.Errorf("fork_probability %v out of range [0, 1]", g.ForkProbability)
	case g.BlockInterval <= 0:
		return errors.New("block_interval must be positive")
	case g.TxIntervalMin <= 0 || g.TxIntervalMax < g.TxIntervalMin:
		return errors.New("tx interval must be positive with min <= max")
	case len(g.Miners) == 0:
		return errors.New("at least one miner is required")
	}

	for _, m := range g.Miners {
		if m.Name == "" || m.HashRate <= 0 {
			return fmt.Errorf("miner %q needs a name and a positive hash rate", m.Name)
		}
	}

	for _, a := range g.Wallets {
		if a.Name == "" || a.Balance < 0 {
			return fmt.Errorf("wallet %q needs a name and a non negative balance", a.Name)
		}
	}

	return nil
}

// =============================================================================

// Duration is a time.Duration written as a Go duration string in JSON.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON writes the duration as a string like "45s".
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON reads a duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(v)
	return nil
}
