package wallet

import "errors"

var (
	// ErrInsufficientFunds is returned when a debit would take a balance below zero
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound is returned when the referenced account does not exist
	ErrNotFound = errors.New("account not found")

	// ErrInvalidAmount is returned for zero or negative amounts
	ErrInvalidAmount = errors.New("amount must be positive")
)
