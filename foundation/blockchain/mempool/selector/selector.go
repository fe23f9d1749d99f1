// Package selector provides different transaction selecting algorithms.
package selector

import (
	"fmt"
	"sort"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
)

// List of different select strategies.
const (
	StrategyFee     = "fee"
	StrategyArrival = "arrival"
)

// Map of different select strategies with functions.
var strategies = map[string]Func{
	StrategyFee:     feeSelect,
	StrategyArrival: arrivalSelect,
}

// Func defines a function that takes the pending transactions in arrival
// order and selects howMany of them in an order based on the functions
// strategy. The input slice must not be modified. Receiving -1 for howMany
// must return all the transactions in the strategy's ordering.
type Func func(transactions []database.Tx, howMany int) []database.Tx

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// byFee provides sorting support by the transaction fee value.
type byFee []database.Tx

// Len returns the number of transactions in the list.
func (bf byFee) Len() int {
	return len(bf)
}

// Less helps to sort the list by fee in descending order to pick the
// transactions that provide the best reward. Equal fees fall back to the
// earlier timestamp.
func (bf byFee) Less(i, j int) bool {
	if bf[i].Fee != bf[j].Fee {
		return bf[i].Fee > bf[j].Fee
	}
	return bf[i].Timestamp < bf[j].Timestamp
}

// Swap moves transactions in the order of the fee value.
func (bf byFee) Swap(i, j int) {
	bf[i], bf[j] = bf[j], bf[i]
}

// =============================================================================

// take copies the first howMany transactions.
func take(txs []database.Tx, howMany int) []database.Tx {
	if howMany < 0 || howMany > len(txs) {
		howMany = len(txs)
	}

	final := make([]database.Tx, howMany)
	copy(final, txs[:howMany])

	return final
}

// feeSelect returns the transactions with the best fee first. The sort is
// stable so transactions with equal fee and timestamp keep arrival order.
var feeSelect = func(txs []database.Tx, howMany int) []database.Tx {
	sorted := make([]database.Tx, len(txs))
	copy(sorted, txs)
	sort.Stable(byFee(sorted))

	return take(sorted, howMany)
}

// arrivalSelect returns the transactions first come first served. It exists
// to compare against fee ordering.
var arrivalSelect = func(txs []database.Tx, howMany int) []database.Tx {
	return take(txs, howMany)
}
