package domain

import "errors"

// Error classes. Everything except ErrConfig is non-fatal: the engine
// reports it and the next tick or event retries naturally.
var (
	// ErrProvider marks read failures from the round data adapter.
	ErrProvider = errors.New("provider error")

	// ErrInsufficientBalance marks a placement skipped for lack of funds.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrSubmission marks a bet transaction that was rejected, reverted,
	// or timed out before confirmation. No ledger entry exists for it.
	ErrSubmission = errors.New("bet submission failed")

	// ErrClaim marks a failed claim transaction; the included stakes stay
	// unclaimed and are retried on the next claim trigger.
	ErrClaim = errors.New("claim failed")

	// ErrConfig marks invalid startup configuration. Fatal.
	ErrConfig = errors.New("invalid configuration")
)
