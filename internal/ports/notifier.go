package ports

import (
	"context"

	"github.com/stakebot/engine/internal/domain"
)

// Notifier delivers human-readable status messages. Best-effort:
// failures are logged by the caller and never affect engine state.
type Notifier interface {
	// Notify sends one plain status line.
	Notify(ctx context.Context, message string) error

	// RoundSummary reports the outcome of one settled round: the resolved
	// stakes plus the state of every stream after the pass.
	RoundSummary(ctx context.Context, epoch int64, stakes []*domain.Stake, streams []*domain.Stream) error
}
