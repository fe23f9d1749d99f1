package public

import (
	"errors"
	"net/http"

	"github.com/ardanlabs/blocksim/business/web/errs"
	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/fork"
	"github.com/ardanlabs/blocksim/foundation/blockchain/mempool"
	"github.com/ardanlabs/blocksim/foundation/blockchain/state"
	"github.com/ardanlabs/blocksim/foundation/blockchain/wallet"
	"github.com/ardanlabs/blocksim/foundation/blockchain/worker"
)

// statusByErr maps the engine's expected failures to an HTTP status.
// Errors not listed here are reported to the client as a 500.
var statusByErr = []struct {
	err    error
	status int
}{
	{state.ErrRateLimited, http.StatusTooManyRequests},
	{wallet.ErrWalletNotFound, http.StatusNotFound},
	{mempool.ErrTxNotFound, http.StatusNotFound},
	{database.ErrBlockNotFound, http.StatusNotFound},
	{wallet.ErrWalletExists, http.StatusConflict},
	{fork.ErrForkInProgress, http.StatusConflict},
	{mempool.ErrFeeNotHigher, http.StatusBadRequest},
	{wallet.ErrInsufficientFunds, http.StatusBadRequest},
	{database.ErrChainTooShort, http.StatusBadRequest},
	{database.ErrChainInvalid, http.StatusBadRequest},
	{database.ErrInvalidDifficulty, http.StatusBadRequest},
	{database.ErrMalformedAmount, http.StatusBadRequest},
	{fork.ErrInvalidProbability, http.StatusBadRequest},
	{fork.ErrInvalidBranch, http.StatusBadRequest},
	{worker.ErrInvalidMultiplier, http.StatusBadRequest},
	{worker.ErrInvalidFactor, http.StatusBadRequest},
	{worker.ErrUnknownEvent, http.StatusBadRequest},
}

// trusted converts an engine error into a trusted error carrying the
// status the client should see.
func trusted(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, state.ErrRateLimited) {
		return errs.NewTrusted(err, http.StatusTooManyRequests)
	}

	var ve *database.ValidationError
	if errors.As(err, &ve) {
		return errs.NewTrustedFields(err, http.StatusBadRequest, map[string]string{ve.Field: ve.Err.Error()})
	}

	for _, se := range statusByErr {
		if errors.Is(err, se.err) {
			return errs.NewTrusted(err, se.status)
		}
	}

	return err
}
