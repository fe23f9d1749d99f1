// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/blocksim/business/web/errs"
	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/fork"
	"github.com/ardanlabs/blocksim/foundation/blockchain/state"
	"github.com/ardanlabs/blocksim/foundation/blockchain/worker"
	"github.com/ardanlabs/blocksim/foundation/events"
	"github.com/ardanlabs/blocksim/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// maxFastForward bounds how much simulated time one request can replay.
const maxFastForward = 24 * time.Hour

// Handlers manages the set of simulation endpoints.
type Handlers struct {
	Log    *zap.SugaredLogger
	State  *state.State
	Worker *worker.Worker
	WS     websocket.Upgrader
	Evts   *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteJSON(ev); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// RecentEvents returns the most recent events, newest first.
func (h Handlers) RecentEvents(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n := events.MaxRecent
	if s := r.URL.Query().Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			return errs.NewTrusted(fmt.Errorf("invalid n %q", s), http.StatusBadRequest)
		}
		n = v
	}

	return web.Respond(ctx, w, h.Evts.Recent(n), http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Genesis(), http.StatusOK)
}

// =============================================================================

// Chain returns every block on the canonical chain.
func (h Handlers) Chain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blocks := h.State.Blocks()

	resp := chain{
		Length:     len(blocks),
		Difficulty: h.State.Difficulty(),
		Blocks:     make([]block, len(blocks)),
	}
	for i, b := range blocks {
		resp.Blocks[i] = toBlock(h.State, b)
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ValidateChain reports whether the canonical chain holds together.
func (h Handlers) ValidateChain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := validation{Valid: true}
	if err := h.State.ValidateChain(); err != nil {
		resp = validation{Reason: err.Error()}
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Block returns the block at the index.
func (h Handlers) Block(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	index, err := blockIndex(r)
	if err != nil {
		return err
	}

	b, err := h.State.Block(index)
	if err != nil {
		return trusted(err)
	}

	return web.Respond(ctx, w, toBlock(h.State, b), http.StatusOK)
}

// AddBlock mines a block carrying free text data onto the chain.
func (h Handlers) AddBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var nb newBlock
	if err := decode(r, &nb); err != nil {
		return err
	}

	b, err := h.State.AddBlock(ctx, nb.Data)
	if err != nil {
		return trusted(err)
	}

	return web.Respond(ctx, w, toBlock(h.State, b), http.StatusCreated)
}

// MineBlock searches for a nonce that solves the block at the index.
func (h Handlers) MineBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	index, err := blockIndex(r)
	if err != nil {
		return err
	}

	b, err := h.State.MineBlock(ctx, index)
	if err != nil {
		return trusted(err)
	}

	return web.Respond(ctx, w, toBlock(h.State, b), http.StatusOK)
}

// EditBlockData replaces the data of a block without mining it again.
func (h Handlers) EditBlockData(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	index, err := blockIndex(r)
	if err != nil {
		return err
	}

	var eb editBlock
	if err := decode(r, &eb); err != nil {
		return err
	}

	b, err := h.State.EditBlockData(index, eb.Data)
	if err != nil {
		return trusted(err)
	}

	return web.Respond(ctx, w, toBlock(h.State, b), http.StatusOK)
}

// ReplaceChain swaps the canonical chain for a longer valid one.
func (h Handlers) ReplaceChain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var rc replaceChain
	if err := decode(r, &rc); err != nil {
		return err
	}

	if err := h.State.ReplaceChain(rc.Blocks); err != nil {
		return trusted(err)
	}

	h.Log.Infow("replace chain", "traceid", web.GetTraceID(ctx), "length", len(rc.Blocks))

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// Difficulty returns the difficulty new blocks are mined at.
func (h Handlers) Difficulty(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, setDifficulty{Difficulty: h.State.Difficulty()}, http.StatusOK)
}

// SetDifficulty changes the difficulty for blocks mined from now on.
func (h Handlers) SetDifficulty(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var sd setDifficulty
	if err := decode(r, &sd); err != nil {
		return err
	}

	if err := h.State.SetDifficulty(sd.Difficulty); err != nil {
		return trusted(err)
	}

	return web.Respond(ctx, w, sd, http.StatusOK)
}

// Reset puts the simulation back to its genesis state.
func (h Handlers) Reset(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := h.State.Reset(); err != nil {
		return err
	}

	h.Log.Infow("reset", "traceid", web.GetTraceID(ctx))

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// =============================================================================

// Fork returns the fork settings and the active fork if there is one.
func (h Handlers) Fork(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := forkView{
		Status:      h.State.ForkStatus(),
		Probability: h.State.ForkProbability(),
		Assignments: h.State.MinerAssignments(),
		Active:      h.State.ActiveFork(),
		LastReorg:   h.State.LastReorg(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SetForkProbability changes the chance a mined block starts a fork.
func (h Handlers) SetForkProbability(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var sp setProbability
	if err := decode(r, &sp); err != nil {
		return err
	}

	if err := h.State.SetForkProbability(sp.Probability); err != nil {
		return trusted(err)
	}

	return web.Respond(ctx, w, sp, http.StatusOK)
}

// AssignMiner pins a miner to one branch of future forks.
func (h Handlers) AssignMiner(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var am assignMiner
	if err := decode(r, &am); err != nil {
		return err
	}

	if err := h.State.AssignMinerToChain(am.MinerID, fork.Branch(am.Branch)); err != nil {
		return trusted(err)
	}

	return web.Respond(ctx, w, h.State.MinerAssignments(), http.StatusOK)
}

// ClearAssignments removes every miner assignment.
func (h Handlers) ClearAssignments(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.ClearMinerAssignments()
	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// ForceFork mines the next block as the start of a fork between two miners.
func (h Handlers) ForceFork(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var ff forceFork
	if err := decode(r, &ff); err != nil {
		return err
	}

	out, err := h.State.ForceFork(ctx, ff.MinerID, ff.CompetingMinerID)
	if err != nil {
		return trusted(err)
	}

	h.Log.Infow("force fork", "traceid", web.GetTraceID(ctx), "miner", ff.MinerID, "competing", ff.CompetingMinerID)

	return web.Respond(ctx, w, toOutcome(h.State, out), http.StatusCreated)
}

// DismissReorg clears the last reorg report.
func (h Handlers) DismissReorg(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.DismissReorg()
	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// =============================================================================

// Mempool returns the pending transactions in selection order. A wallet
// query parameter keeps only transactions to or from that wallet.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs := h.State.Mempool()

	if name := r.URL.Query().Get("wallet"); name != "" {
		wlt, err := h.State.Wallet(name)
		if err != nil {
			return trusted(err)
		}

		filtered := txs[:0]
		for _, t := range txs {
			if t.From == wlt.Address || t.To == wlt.Address {
				filtered = append(filtered, t)
			}
		}
		txs = filtered
	}

	return web.Respond(ctx, w, toTxs(h.State, txs), http.StatusOK)
}

// TxStatus reports where a transaction is in its lifetime.
func (h Handlers) TxStatus(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	info, err := h.State.TransactionStatus(web.Param(r, "sig"))
	if err != nil {
		return trusted(err)
	}

	resp := txStatus{
		Tx:               toTx(h.State, info.Tx),
		Position:         info.Position,
		BlocksUntilMined: info.BlocksUntilMined,
		EstimatedBlocks:  info.EstimatedBlocks,
		ETAMillis:        info.ETA.Milliseconds(),
		BlockIndex:       info.BlockIndex,
		Confirmations:    info.Confirmations,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Confirmed returns the transactions that were mined.
func (h Handlers) Confirmed(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, toTxs(h.State, h.State.Confirmed()), http.StatusOK)
}

// Failed returns the transactions dropped by a reorg or by the sender
// running out of funds.
func (h Handlers) Failed(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, toTxs(h.State, h.State.Failed()), http.StatusOK)
}

// SendTransaction signs a transaction with a simulation wallet and adds it
// to the mempool.
func (h Handlers) SendTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var st sendTx
	if err := decode(r, &st); err != nil {
		return err
	}

	tran, err := h.State.SendTransaction(st.From, st.To, st.Amount, st.Fee)
	if err != nil {
		return trusted(err)
	}

	h.Log.Infow("send tran", "traceid", web.GetTraceID(ctx), "from", st.From, "to", st.To, "amount", st.Amount, "fee", st.Fee)

	return web.Respond(ctx, w, toTx(h.State, tran), http.StatusCreated)
}

// SubmitTransaction adds a transaction signed outside the simulation.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var signed database.Tx
	if err := decode(r, &signed); err != nil {
		return err
	}

	tran, err := h.State.SubmitTransaction(signed)
	if err != nil {
		return trusted(err)
	}

	h.Log.Infow("submit tran", "traceid", web.GetTraceID(ctx), "sig", tran.Signature)

	return web.Respond(ctx, w, toTx(h.State, tran), http.StatusCreated)
}

// CancelTransaction replaces a pending transaction with a zero amount
// transfer back to the sender.
func (h Handlers) CancelTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var rf replaceFee
	if err := decode(r, &rf); err != nil {
		return err
	}

	tran, err := h.State.CancelTransaction(web.Param(r, "sig"), rf.Fee)
	if err != nil {
		return trusted(err)
	}

	return web.Respond(ctx, w, toTx(h.State, tran), http.StatusOK)
}

// SpeedUpTransaction raises the fee of a pending transaction.
func (h Handlers) SpeedUpTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var rf replaceFee
	if err := decode(r, &rf); err != nil {
		return err
	}

	tran, err := h.State.SpeedUpTransaction(web.Param(r, "sig"), rf.Fee)
	if err != nil {
		return trusted(err)
	}

	return web.Respond(ctx, w, toTx(h.State, tran), http.StatusOK)
}

// =============================================================================

// Wallets returns every wallet without its private key.
func (h Handlers) Wallets(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	wallets := h.State.Wallets()

	resp := make([]walletView, len(wallets))
	for i, wlt := range wallets {
		resp[i] = toWalletView(wlt, h.State.PendingOutgoing(wlt.Address))
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Wallet returns the wallet by name or address.
func (h Handlers) Wallet(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	wlt, err := h.State.Wallet(web.Param(r, "name"))
	if err != nil {
		return trusted(err)
	}

	return web.Respond(ctx, w, toWalletView(wlt, h.State.PendingOutgoing(wlt.Address)), http.StatusOK)
}

// CreateWallet creates a wallet with a new key pair, or imports one when a
// private key is provided.
func (h Handlers) CreateWallet(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var nw newWallet
	if err := decode(r, &nw); err != nil {
		return err
	}

	create := func() (walletView, error) {
		if nw.PrivateKey != "" {
			wlt, err := h.State.ImportWallet(nw.Name, nw.PrivateKey, nw.Balance)
			return toWalletView(wlt, 0), err
		}
		wlt, err := h.State.CreateWallet(nw.Name, nw.Balance)
		return toWalletView(wlt, 0), err
	}

	resp, err := create()
	if err != nil {
		return trusted(err)
	}

	h.Log.Infow("create wallet", "traceid", web.GetTraceID(ctx), "name", resp.Name, "address", resp.Address)

	return web.Respond(ctx, w, resp, http.StatusCreated)
}

// =============================================================================

// Scheduler reports the state of the background loops.
func (h Handlers) Scheduler(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.scheduler(), http.StatusOK)
}

// StartScheduler begins mining and background traffic.
func (h Handlers) StartScheduler(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.Worker.Start()
	return web.Respond(ctx, w, h.scheduler(), http.StatusOK)
}

// StopScheduler halts mining and background traffic.
func (h Handlers) StopScheduler(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.Worker.Stop()
	return web.Respond(ctx, w, h.scheduler(), http.StatusOK)
}

// SetMultiplier scales the mean time between mined blocks.
func (h Handlers) SetMultiplier(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var sm setMultiplier
	if err := decode(r, &sm); err != nil {
		return err
	}

	if err := h.Worker.SetBlockDelayMultiplier(sm.Multiplier); err != nil {
		return trusted(err)
	}

	return web.Respond(ctx, w, h.scheduler(), http.StatusOK)
}

// MempoolSpike floods the mempool with background transactions.
func (h Handlers) MempoolSpike(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	sp := spike{Count: worker.DefaultSpike}
	if r.ContentLength != 0 {
		if err := decode(r, &sp); err != nil {
			return err
		}
	}

	added := h.Worker.TriggerMempoolSpike(sp.Count)

	return web.Respond(ctx, w, spike{Count: added}, http.StatusOK)
}

// NetworkEvent applies a network event. An empty type picks one at random.
func (h Handlers) NetworkEvent(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var ne networkEvent
	if r.ContentLength != 0 {
		if err := decode(r, &ne); err != nil {
			return err
		}
	}

	ev, err := h.Worker.TriggerNetworkEvent(ne.Type)
	if err != nil {
		return trusted(err)
	}

	return web.Respond(ctx, w, ev, http.StatusOK)
}

// FastForward mines the blocks that would have been produced over the
// elapsed time.
func (h Handlers) FastForward(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var ff fastForward
	if err := decode(r, &ff); err != nil {
		return err
	}

	elapsed := min(time.Duration(ff.Seconds)*time.Second, maxFastForward)

	mined, err := h.Worker.FastForward(ctx, elapsed)
	if err != nil {
		return trusted(err)
	}

	resp := struct {
		Mined int `json:"mined"`
	}{
		Mined: mined,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

func (h Handlers) scheduler() schedulerView {
	return schedulerView{
		Running:    h.Worker.IsRunning(),
		Multiplier: h.Worker.BlockDelayMultiplier(),
		Miners:     h.Worker.Miners(),
		Peers:      h.Worker.Peers(),
		Now:        h.State.Now().UnixMilli(),
	}
}

// =============================================================================

// decode reads the request body into val. A body that is not valid JSON
// is the client's fault, as are failed validation tags.
func decode(r *http.Request, val any) error {
	err := web.Decode(r, val)
	if err == nil {
		return nil
	}

	if web.IsFieldErrors(err) {
		return err
	}

	var ve *database.ValidationError
	if errors.As(err, &ve) {
		return trusted(err)
	}

	return errs.NewTrusted(err, http.StatusBadRequest)
}

func blockIndex(r *http.Request) (uint64, error) {
	s := web.Param(r, "index")

	index, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errs.NewTrusted(fmt.Errorf("invalid block index %q", s), http.StatusBadRequest)
	}

	return index, nil
}
