package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/mempool"
	"github.com/ardanlabs/blocksim/foundation/blockchain/wallet"
)

// TxInfo describes where a transaction is in its lifetime.
type TxInfo struct {
	Tx               database.Tx
	Position         int
	BlocksUntilMined int
	EstimatedBlocks  int
	ETA              time.Duration
	BlockIndex       uint64
	Confirmations    int
}

// =============================================================================

// SendTransaction creates, signs and submits a transaction from the named
// wallet. The recipient can be a wallet name or an address. Nothing is
// changed when any check fails.
func (s *State) SendTransaction(fromName string, to string, amount database.Amount, fee database.Amount) (database.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, err := s.wallets.ByName(fromName)
	if err != nil {
		return database.Tx{}, err
	}

	toAddr := to
	if !database.IsAddress(to) {
		w, err := s.wallets.ByName(to)
		if err != nil {
			return database.Tx{}, err
		}
		toAddr = w.Address
	}

	now := s.sched.Now()

	tx, err := database.NewTx(from.Address, toAddr, amount, fee, now.UnixMilli())
	if err != nil {
		return database.Tx{}, err
	}

	release, err := s.checkSender(from, tx, now)
	if err != nil {
		return database.Tx{}, err
	}

	signed, err := from.Sign(tx)
	if err != nil {
		release()
		return database.Tx{}, err
	}

	if _, err := s.mempool.Add(signed); err != nil {
		release()
		return database.Tx{}, err
	}

	s.evHandler("state: SendTransaction: tx[%s] from[%s] to[%s]", signed, from.Name, s.wallets.Lookup(toAddr))

	return signed, nil
}

// SubmitTransaction accepts a transaction signed outside the simulation.
// The sender must be a known wallet so its balance can be checked.
func (s *State) SubmitTransaction(tx database.Tx) (database.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := tx.Validate(); err != nil {
		return database.Tx{}, err
	}

	from, err := s.wallets.ByAddress(tx.From)
	if err != nil {
		return database.Tx{}, err
	}

	if _, exists := s.mempool.Lookup(tx.Signature); exists {
		return database.Tx{}, fmt.Errorf("transaction %s already pending", tx.Signature)
	}

	release, err := s.checkSender(from, tx, s.sched.Now())
	if err != nil {
		return database.Tx{}, err
	}

	tx.Status = database.TxPending
	if _, err := s.mempool.Add(tx); err != nil {
		release()
		return database.Tx{}, err
	}

	s.evHandler("state: SubmitTransaction: tx[%s]", tx)

	return tx, nil
}

// CancelTransaction replaces a pending transaction with a zero amount
// transfer back to the sender at a higher fee.
func (s *State) CancelTransaction(signature string, newFee database.Amount) (database.Tx, error) {
	return s.replaceFee(signature, newFee, true)
}

// SpeedUpTransaction raises the fee of a pending transaction.
func (s *State) SpeedUpTransaction(signature string, newFee database.Amount) (database.Tx, error) {
	return s.replaceFee(signature, newFee, false)
}

// TransactionStatus reports the rank and expected wait of a pending
// transaction or the block that took it.
func (s *State) TransactionStatus(signature string) (TxInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx, exists := s.mempool.Lookup(signature); exists {
		pos := s.mempool.PositionOf(signature)
		blocks := (pos + s.genesis.TransPerBlock - 1) / s.genesis.TransPerBlock

		info := TxInfo{
			Tx:               tx,
			Position:         pos,
			BlocksUntilMined: blocks,
			EstimatedBlocks:  mempool.EstimateBlocks(tx.Fee),
			ETA:              time.Duration(blocks) * s.blockInterval(),
		}
		return info, nil
	}

	if r, exists := s.history.get(signature); exists {
		info := TxInfo{
			Tx:         r.tx,
			Position:   -1,
			BlockIndex: r.blockIndex,
		}
		if r.tx.Status == database.TxConfirmed {
			info.Confirmations = s.db.Confirmations(r.blockIndex)
		}
		return info, nil
	}

	return TxInfo{}, fmt.Errorf("%w: %s", ErrTxNotFound, signature)
}

// Mempool returns the pending transactions in selection order.
func (s *State) Mempool() []database.Tx {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mempool.Pending()
}

// Confirmed returns the recently confirmed transactions newest first.
func (s *State) Confirmed() []database.Tx {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.history.byStatus(database.TxConfirmed)
}

// Failed returns the recently failed or orphaned transactions newest first.
func (s *State) Failed() []database.Tx {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.history.byStatus(database.TxFailed)
}

// =============================================================================

// checkSender applies the funds check and then the rate limit. Funds
// already promised to pending transactions are not available. A sender
// refused for funds keeps its rate budget. The returned func gives the
// rate token back if the transaction is refused afterwards. It must be
// called with the lock held.
func (s *State) checkSender(from wallet.Wallet, tx database.Tx, now time.Time) (func(), error) {
	available := from.Balance - s.pendingOutgoing(from.Address, "")
	if available < tx.Cost() {
		return nil, fmt.Errorf("%w: %s has %s available, needs %s", ErrInsufficientFunds, from.Name, available, tx.Cost())
	}

	release, ok := s.limiter.Reserve(from.Address, now)
	if !ok {
		return nil, database.NewValidationError("from", ErrRateLimited)
	}

	return release, nil
}

// replaceFee applies a cancel or speed up after checking the sender can
// still cover every pending transaction at the new fee.
func (s *State) replaceFee(signature string, newFee database.Amount, cancel bool) (database.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.mempool.Lookup(signature)
	if !exists {
		return database.Tx{}, fmt.Errorf("%w: %s", ErrTxNotFound, signature)
	}

	if from, err := s.wallets.ByAddress(current.From); err == nil {
		cost := current.Amount + newFee
		if cancel {
			cost = newFee
		}

		available := from.Balance - s.pendingOutgoing(current.From, signature)
		if newFee > current.Fee && available < cost {
			return database.Tx{}, fmt.Errorf("%w: %s has %s available, needs %s", ErrInsufficientFunds, from.Name, available, cost)
		}
	}

	replace := s.mempool.ReplaceFee
	if cancel {
		replace = s.mempool.Cancel
	}

	tx, err := replace(signature, newFee)
	if err != nil {
		return database.Tx{}, err
	}

	s.evHandler("state: replaceFee: tx[%s] fee[%s] cancel[%t]", tx, newFee, cancel)

	return tx, nil
}

// pendingOutgoing totals what the address owes to pending transactions,
// leaving out the excluded signature.
func (s *State) pendingOutgoing(address string, exclude string) database.Amount {
	var total database.Amount
	for _, tx := range s.mempool.Pending() {
		if tx.From == address && tx.Signature != exclude {
			total += tx.Cost()
		}
	}
	return total
}

// blockInterval returns the mean simulated time between blocks.
func (s *State) blockInterval() time.Duration {
	if d := s.genesis.BlockInterval.Std(); d > 0 {
		return d
	}
	return 45 * time.Second
}

// IsRateLimited reports whether the error is a rate limit rejection.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
