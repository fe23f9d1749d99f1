package database

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ardanlabs/blocksim/foundation/blockchain/merkle"
)

// Payload is the structured body of a block produced by the simulator. It
// is stored as JSON in the block's data field.
type Payload struct {
	MinerID string `json:"minerId"`
	Txs     []Tx   `json:"txs"`
	TxRoot  string `json:"txRoot,omitempty"`
}

// NewPayload constructs a payload committing to the transactions through a
// merkle root of their signatures.
func NewPayload(minerID string, txs []Tx) (Payload, error) {
	p := Payload{
		MinerID: minerID,
		Txs:     txs,
	}

	if len(txs) > 0 {
		root, err := merkle.Root(signatures(txs))
		if err != nil {
			return Payload{}, err
		}
		p.TxRoot = root
	}

	return p, nil
}

// DecodePayload extracts a payload from block data. Free text data written
// by hand reports false.
func DecodePayload(data string) (Payload, bool) {
	if !strings.HasPrefix(strings.TrimSpace(data), "{") {
		return Payload{}, false
	}

	var p Payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return Payload{}, false
	}

	if p.MinerID == "" {
		return Payload{}, false
	}

	return p, true
}

// Encode returns the JSON form stored in a block.
func (p Payload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}

	return string(data), nil
}

// WithMiner returns a copy of the payload credited to a different miner.
func (p Payload) WithMiner(minerID string) Payload {
	p.MinerID = minerID
	return p
}

// Validate checks the merkle root matches the transactions.
func (p Payload) Validate() error {
	if len(p.Txs) == 0 {
		if p.TxRoot != "" {
			return fmt.Errorf("merkle root set with no transactions")
		}
		return nil
	}

	root, err := merkle.Root(signatures(p.Txs))
	if err != nil {
		return err
	}

	if root != p.TxRoot {
		return fmt.Errorf("merkle root does not match transactions, got %s, exp %s", root, p.TxRoot)
	}

	return nil
}

// =============================================================================

func signatures(txs []Tx) []string {
	sigs := make([]string, len(txs))
	for i, tx := range txs {
		sigs[i] = tx.Signature
	}
	return sigs
}
