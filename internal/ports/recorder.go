package ports

import (
	"context"

	"github.com/stakebot/engine/internal/domain"
)

// Recorder persists a write-only history of what the engine did.
// It is never read back: engine state lives in memory for the process
// lifetime and is not restored across restarts.
type Recorder interface {
	// RecordSession logs one row when the process starts.
	RecordSession(ctx context.Context, strategy domain.Strategy) error

	// RecordStake logs a placed stake.
	RecordStake(ctx context.Context, stake *domain.Stake) error

	// RecordSettlement updates a stake's row with its settled outcome.
	RecordSettlement(ctx context.Context, stake *domain.Stake) error

	// RecordClaim marks the stakes' rows claimed.
	RecordClaim(ctx context.Context, stakeIDs []string, txHash string) error

	// Close releases the underlying store.
	Close() error
}
