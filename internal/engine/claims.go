package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stakebot/engine/internal/domain"
)

// processClaims batch-claims each stream whose run of unclaimed wins
// reached the configured streak. One claim transaction covers the whole
// batch; success marks every included stake claimed, failure leaves all
// of them unclaimed so the next settled win retries. Already-claimed
// stakes never reach a second submission.
func (e *Engine) processClaims(ctx context.Context) {
	streak := e.cfg.Strategy.ClaimStreak
	if streak <= 0 {
		streak = 1
	}

	for _, stream := range e.registry.Streams() {
		if stream.UnclaimedStreak < streak {
			continue
		}

		stakes := e.ledger.UnclaimedWins(stream.ID)
		if len(stakes) == 0 {
			// Streak counter out of sync with the ledger; nothing to do.
			stream.UnclaimedStreak = 0
			continue
		}

		epochs := make([]int64, len(stakes))
		ids := make([]string, len(stakes))
		for i, s := range stakes {
			epochs[i] = s.Epoch
			ids[i] = s.ID
		}

		txHash, err := e.executor.Claim(ctx, epochs)
		if err != nil {
			slog.Warn("claim: batch failed", "stream", stream.ID, "epochs", len(epochs), "err", err)
			e.notify(ctx, fmt.Sprintf("%v: stream %d, %d epochs: %v", domain.ErrClaim, stream.ID, len(epochs), err))
			continue
		}

		for _, s := range stakes {
			s.Claimed = true
		}
		stream.UnclaimedStreak = 0

		if err := e.recorder.RecordClaim(ctx, ids, txHash); err != nil {
			slog.Warn("claim: record", "err", err)
		}

		slog.Info("claim: batch confirmed", "stream", stream.ID, "epochs", len(epochs), "tx", txHash)
		e.notify(ctx, fmt.Sprintf("stream %d claimed %d wins (tx %s)", stream.ID, len(epochs), txHash))

		if err := e.risk.Refresh(ctx); err != nil {
			slog.Warn("claim: bankroll refresh failed", "err", err)
		}
	}
}
