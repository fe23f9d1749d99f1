package public

import (
	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/fork"
	"github.com/ardanlabs/blocksim/foundation/blockchain/genesis"
	"github.com/ardanlabs/blocksim/foundation/blockchain/state"
	"github.com/ardanlabs/blocksim/foundation/blockchain/wallet"
)

type walletView struct {
	Name            string          `json:"name"`
	Address         string          `json:"address"`
	PublicKey       string          `json:"publicKey"`
	Balance         database.Amount `json:"balance"`
	PendingOutgoing database.Amount `json:"pendingOutgoing"`
}

type tx struct {
	From      string            `json:"from"`
	FromName  string            `json:"fromName"`
	To        string            `json:"to"`
	ToName    string            `json:"toName"`
	Amount    database.Amount   `json:"amount"`
	Fee       database.Amount   `json:"fee"`
	Signature string            `json:"signature"`
	Timestamp int64             `json:"timestamp"`
	Status    database.TxStatus `json:"status"`
	Cancelled bool              `json:"cancelled,omitempty"`
}

type txStatus struct {
	Tx               tx     `json:"tx"`
	Position         int    `json:"position"`
	BlocksUntilMined int    `json:"blocksUntilMined"`
	EstimatedBlocks  int    `json:"estimatedBlocks"`
	ETAMillis        int64  `json:"etaMs"`
	BlockIndex       uint64 `json:"blockIndex,omitempty"`
	Confirmations    int    `json:"confirmations"`
}

type block struct {
	database.Block
	MinerID string `json:"minerId,omitempty"`
	Txs     []tx   `json:"txs,omitempty"`
	Solved  bool   `json:"solved"`
}

type chain struct {
	Length     int     `json:"length"`
	Difficulty int     `json:"difficulty"`
	Blocks     []block `json:"blocks"`
}

type validation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

type forkView struct {
	Status      fork.Status            `json:"status"`
	Probability float64                `json:"probability"`
	Assignments map[string]fork.Branch `json:"assignments"`
	Active      *fork.ForkData         `json:"active"`
	LastReorg   *fork.Reorg            `json:"lastReorg"`
}

type outcome struct {
	Block       block  `json:"block"`
	Branch      string `json:"branch,omitempty"`
	ForkStarted bool   `json:"forkStarted"`
	Winner      string `json:"winner,omitempty"`
}

type schedulerView struct {
	Running    bool            `json:"running"`
	Multiplier float64         `json:"multiplier"`
	Miners     []genesis.Miner `json:"miners"`
	Peers      []string        `json:"peers"`
	Now        int64           `json:"now"`
}

// =============================================================================

type newBlock struct {
	Data string `json:"data" validate:"required"`
}

type editBlock struct {
	Data string `json:"data"`
}

type replaceChain struct {
	Blocks []database.Block `json:"blocks" validate:"required,min=1"`
}

type setDifficulty struct {
	Difficulty int `json:"difficulty" validate:"gte=0,lte=8"`
}

type setProbability struct {
	Probability float64 `json:"probability" validate:"gte=0,lte=1"`
}

type assignMiner struct {
	MinerID string `json:"minerId" validate:"required"`
	Branch  string `json:"branch" validate:"required,oneof=A B"`
}

type forceFork struct {
	MinerID          string `json:"minerId" validate:"required"`
	CompetingMinerID string `json:"competingMinerId" validate:"required,nefield=MinerID"`
}

type sendTx struct {
	From   string          `json:"from" validate:"required"`
	To     string          `json:"to" validate:"required"`
	Amount database.Amount `json:"amount" validate:"required"`
	Fee    database.Amount `json:"fee" validate:"required"`
}

type replaceFee struct {
	Fee database.Amount `json:"fee" validate:"required"`
}

type newWallet struct {
	Name       string          `json:"name" validate:"required"`
	Balance    database.Amount `json:"balance" validate:"gte=0"`
	PrivateKey string          `json:"privateKey"`
}

type setMultiplier struct {
	Multiplier float64 `json:"multiplier" validate:"gt=0"`
}

type spike struct {
	Count int `json:"count" validate:"gte=0,lte=500"`
}

type networkEvent struct {
	Type string `json:"type"`
}

type fastForward struct {
	Seconds int64 `json:"seconds" validate:"gt=0"`
}

// =============================================================================

func toWalletView(w wallet.Wallet, pending database.Amount) walletView {
	return walletView{
		Name:            w.Name,
		Address:         w.Address,
		PublicKey:       w.PublicKey,
		Balance:         w.Balance,
		PendingOutgoing: pending,
	}
}

func toTx(st *state.State, t database.Tx) tx {
	return tx{
		From:      t.From,
		FromName:  st.WalletName(t.From),
		To:        t.To,
		ToName:    st.WalletName(t.To),
		Amount:    t.Amount,
		Fee:       t.Fee,
		Signature: t.Signature,
		Timestamp: t.Timestamp,
		Status:    t.Status,
		Cancelled: t.IsCancellation(),
	}
}

func toTxs(st *state.State, txs []database.Tx) []tx {
	out := make([]tx, len(txs))
	for i, t := range txs {
		out[i] = toTx(st, t)
	}
	return out
}

func toBlock(st *state.State, b database.Block) block {
	blk := block{
		Block:  b,
		Solved: b.Index == 0 || b.IsSolved(b.Difficulty),
	}

	if p, ok := database.DecodePayload(b.Data); ok {
		blk.MinerID = p.MinerID
		blk.Txs = toTxs(st, p.Txs)
	}

	return blk
}

func toOutcome(st *state.State, o fork.Outcome) outcome {
	out := outcome{
		Block:       toBlock(st, o.Block),
		Branch:      string(o.Branch),
		ForkStarted: o.ForkStarted,
	}
	if o.Resolution != nil {
		out.Winner = string(o.Resolution.Winner)
	}
	return out
}
