package database

import (
	"errors"
	"fmt"
)

// Set of error variables for validating transactions.
var (
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidFee       = errors.New("invalid fee")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// Set of error variables for chain operations.
var (
	ErrChainTooShort     = errors.New("replacement chain is not longer than the current chain")
	ErrChainInvalid      = errors.New("chain is invalid")
	ErrBlockNotFound     = errors.New("block not found")
	ErrMiningExhausted   = errors.New("mining attempts exhausted")
	ErrInvalidDifficulty = errors.New("invalid difficulty")
)

// =============================================================================

// ValidationError is returned when a transaction field fails validation.
// The wrapped error is one of the ErrInvalid values.
type ValidationError struct {
	Field string
	Err   error
}

// NewValidationError constructs a validation error for the field.
func NewValidationError(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ve.Field, ve.Err)
}

// Unwrap provides access to the underlying error.
func (ve *ValidationError) Unwrap() error {
	return ve.Err
}

// IsValidationError checks if an error of type ValidationError exists.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// =============================================================================

// ChainError identifies the first block that breaks a chain invariant.
type ChainError struct {
	Index  uint64
	Reason string
}

// Error implements the error interface.
func (ce *ChainError) Error() string {
	return fmt.Sprintf("%s: block %d: %s", ErrChainInvalid, ce.Index, ce.Reason)
}

// Is lets errors.Is match a ChainError against ErrChainInvalid.
func (ce *ChainError) Is(target error) bool {
	return target == ErrChainInvalid
}
