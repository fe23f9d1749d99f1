package database

import (
	"fmt"
	"strconv"

	"github.com/ardanlabs/blocksim/foundation/blockchain/signature"
)

// TxStatus represents where a transaction is in its lifetime.
type TxStatus string

// Set of transaction statuses.
const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// =============================================================================

// Tx is the transactional information between two parties. The signature
// is the transaction's identity and does not change on fee replacement.
type Tx struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Amount    Amount   `json:"amount"`
	Fee       Amount   `json:"fee"`
	Signature string   `json:"signature"`
	Timestamp int64    `json:"timestamp"`
	Status    TxStatus `json:"status"`
}

// NewTx constructs a new unsigned pending transaction and validates its
// fields.
func NewTx(from string, to string, amount Amount, fee Amount, timestamp int64) (Tx, error) {
	tx := Tx{
		From:      from,
		To:        to,
		Amount:    amount,
		Fee:       fee,
		Timestamp: timestamp,
		Status:    TxPending,
	}

	if err := tx.ValidateFields(); err != nil {
		return Tx{}, err
	}

	return tx, nil
}

// Message returns the canonical concatenation of the fields covered by the
// signature.
func (tx Tx) Message() string {
	return tx.From + tx.To + tx.Amount.String() + tx.Fee.String() + strconv.FormatInt(tx.Timestamp, 10)
}

// Sign uses the specified private key to sign the transaction.
func (tx Tx) Sign(privateKey string) (Tx, error) {
	if err := tx.ValidateFields(); err != nil {
		return Tx{}, err
	}

	sig, err := signature.Sign(privateKey, tx.Message())
	if err != nil {
		return Tx{}, NewValidationError("signature", fmt.Errorf("%w: %s", ErrInvalidSignature, err))
	}

	tx.Signature = sig
	return tx, nil
}

// ValidateFields checks the address, amount and fee rules for a newly
// created transaction.
func (tx Tx) ValidateFields() error {
	if !IsAddress(tx.From) {
		return NewValidationError("from", ErrInvalidAddress)
	}

	if !IsAddress(tx.To) {
		return NewValidationError("to", ErrInvalidAddress)
	}

	if tx.Amount <= 0 || tx.Amount > MaxAmount {
		return NewValidationError("amount", fmt.Errorf("%w: must be in (0, %s]", ErrInvalidAmount, MaxAmount))
	}

	if err := validateFee(tx.Fee); err != nil {
		return err
	}

	if tx.Timestamp <= 0 {
		return NewValidationError("timestamp", ErrInvalidTimestamp)
	}

	return nil
}

// Validate verifies the fields and that the signature was produced by the
// key behind the from address.
func (tx Tx) Validate() error {
	if err := tx.ValidateFields(); err != nil {
		return err
	}

	pub, err := signature.RecoverPublicKey(tx.Message(), tx.Signature)
	if err != nil {
		return NewValidationError("signature", ErrInvalidSignature)
	}

	if !signature.Verify(pub, tx.Message(), tx.Signature) {
		return NewValidationError("signature", ErrInvalidSignature)
	}

	addr, err := signature.DeriveAddress(pub)
	if err != nil || addr != tx.From {
		return NewValidationError("signature", fmt.Errorf("%w: signer does not match from", ErrInvalidSignature))
	}

	return nil
}

// ValidatePending checks a transaction held by a mempool. A fee replaced
// transaction keeps its original signature and a cancellation has a zero
// amount, so only the structural rules are applied.
func (tx Tx) ValidatePending() error {
	if !IsAddress(tx.From) {
		return NewValidationError("from", ErrInvalidAddress)
	}

	if !IsAddress(tx.To) {
		return NewValidationError("to", ErrInvalidAddress)
	}

	switch {
	case tx.IsCancellation():
	case tx.Amount <= 0 || tx.Amount > MaxAmount:
		return NewValidationError("amount", ErrInvalidAmount)
	}

	if err := validateFee(tx.Fee); err != nil {
		return err
	}

	if tx.Signature == "" {
		return NewValidationError("signature", ErrInvalidSignature)
	}

	return nil
}

// IsCancellation reports whether the transaction is a zero amount self
// transfer produced by a cancel.
func (tx Tx) IsCancellation() bool {
	return tx.Amount == 0 && tx.To == tx.From
}

// Cost returns the total debited from the sender when confirmed.
func (tx Tx) Cost() Amount {
	return tx.Amount + tx.Fee
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	sig := tx.Signature
	if len(sig) > 16 {
		sig = sig[:16]
	}

	return fmt.Sprintf("%s:%s->%s:%s", sig, tx.From, tx.To, tx.Amount)
}

// =============================================================================

func validateFee(fee Amount) error {
	if fee <= 0 || fee > MaxFee {
		return NewValidationError("fee", fmt.Errorf("%w: must be in (0, %s]", ErrInvalidFee, MaxFee))
	}

	return nil
}
