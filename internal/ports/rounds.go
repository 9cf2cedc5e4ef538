package ports

import (
	"context"

	"github.com/stakebot/engine/internal/domain"
)

// RoundProvider is the read-only accessor for round data.
type RoundProvider interface {
	// Round returns the current snapshot of the round at the given epoch.
	Round(ctx context.Context, epoch int64) (domain.Round, error)

	// CurrentEpoch returns the latest epoch number known to the contract.
	CurrentEpoch(ctx context.Context) (int64, error)
}
