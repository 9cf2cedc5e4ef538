package ports

import (
	"context"
	"math/big"
)

// RoundEventType discriminates the inbound round-lifecycle events.
type RoundEventType int

const (
	// RoundLocked fires when betting closes and the lock price is fixed.
	RoundLocked RoundEventType = iota
	// RoundEnded fires when the close price is finalized by the oracle.
	RoundEnded
	// ProviderFailure carries a subscription-level error; the stream
	// stays alive and the adapter reconnects on its own.
	ProviderFailure
)

// RoundEvent is one round-lifecycle notification.
type RoundEvent struct {
	Type      RoundEventType
	Epoch     int64
	LockPrice *big.Int // set for RoundLocked
	Err       error    // set for ProviderFailure
}

// RoundEvents delivers round-lifecycle notifications from the contract.
type RoundEvents interface {
	// Subscribe starts the event stream. The channel closes when ctx is
	// cancelled; transient transport failures surface as ProviderFailure
	// events, not as channel closure.
	Subscribe(ctx context.Context) (<-chan RoundEvent, error)
}
