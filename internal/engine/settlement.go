package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/stakebot/engine/internal/domain"
)

// handleRoundEnded settles every pending stake at the epoch in one
// atomic pass: outcomes resolved, stream transitions applied,
// deactivations armed, claims triggered, and one aggregate summary
// emitted. A per-bet payout failure degrades that bet's report only and
// never blocks sibling settlements.
func (e *Engine) handleRoundEnded(ctx context.Context, epoch int64) {
	round, err := e.rounds.Round(ctx, epoch)
	if err != nil {
		e.reportProviderError(ctx, fmt.Errorf("%w: settle round %d: %v", domain.ErrProvider, epoch, err))
		return
	}
	if !round.OracleCalled {
		slog.Warn("settle: round ended but oracle not called yet", "epoch", epoch)
		return
	}

	pending := e.ledger.PendingByEpoch(epoch)
	if len(pending) == 0 {
		slog.Debug("settle: no pending stakes", "epoch", epoch)
		return
	}

	settledAt := e.now().UTC()
	wins := 0
	for _, stake := range pending {
		won := round.Wins(stake.Position)
		stake.Settled = true
		stake.Won = won
		stake.SettledAt = &settledAt
		if won {
			wins++
		}
	}

	// Refresh before the stream transitions: the reset/escalation sizes
	// derive from the bankroll, and wins change the wallet balance even
	// before claiming on some venues.
	if wins > 0 {
		if err := e.risk.Refresh(ctx); err != nil {
			slog.Warn("settle: bankroll refresh failed", "err", err)
		}
	}

	for _, stake := range pending {
		e.applyOutcome(ctx, round, stake, stake.Won)

		if err := e.recorder.RecordSettlement(ctx, stake); err != nil {
			slog.Warn("settle: record settlement", "err", err)
		}
	}

	e.processClaims(ctx)

	if err := e.notifier.RoundSummary(ctx, epoch, pending, e.registry.Streams()); err != nil {
		slog.Warn("settle: notifier error", "err", err)
	}

	slog.Info("round settled",
		"epoch", epoch,
		"stakes", len(pending),
		"wins", wins,
		"losses", len(pending)-wins,
	)
}

// applyOutcome runs the staking-policy transition for one resolved
// stake and emits its per-bet notification.
func (e *Engine) applyOutcome(ctx context.Context, round domain.Round, stake *domain.Stake, won bool) {
	stream := e.registry.Get(stake.StreamID)
	if stream == nil {
		slog.Error("settle: stake references unknown stream", "stream", stake.StreamID)
		return
	}

	risk := e.risk.Snapshot()
	st := e.cfg.Strategy

	if won {
		if domain.ApplyWin(stream, st, risk) {
			e.notify(ctx, fmt.Sprintf("stream %d reset stake clamped to %s wei by risk ceiling",
				stream.ID, stream.CurrentAmount.String()))
		}

		payout, err := payoutEstimate(round, stake)
		if err != nil {
			// Degraded report only; the win itself is already applied.
			slog.Warn("settle: payout estimate failed", "epoch", stake.Epoch, "err", err)
			e.notify(ctx, fmt.Sprintf("epoch %d: stream %d WON %s wei (payout unavailable)",
				stake.Epoch, stream.ID, stake.Amount.String()))
			return
		}
		e.notify(ctx, fmt.Sprintf("epoch %d: stream %d WON %s wei → ~%s wei",
			stake.Epoch, stream.ID, stake.Amount.String(), payout.String()))
		return
	}

	clamped := domain.ApplyLoss(stream, st, risk)
	if clamped {
		e.notify(ctx, fmt.Sprintf("stream %d next stake clamped to %s wei by risk ceiling",
			stream.ID, stream.CurrentAmount.String()))
	}

	if stream.Active && stream.ConsecutiveLosses >= st.MaxConsecutiveLosses {
		stream.Deactivate(st.CooldownRounds)
		slog.Warn("settle: stream deactivated",
			"stream", stream.ID,
			"consecutive_losses", stream.ConsecutiveLosses,
			"cooldown_rounds", st.CooldownRounds,
		)
		e.notify(ctx, fmt.Sprintf("stream %d deactivated after %d consecutive losses, cooling down %d rounds",
			stream.ID, stream.ConsecutiveLosses, st.CooldownRounds))
	}

	e.notify(ctx, fmt.Sprintf("epoch %d: stream %d lost %s wei (streak %d, next %s wei)",
		stake.Epoch, stream.ID, stake.Amount.String(), stream.ConsecutiveLosses, stream.CurrentAmount.String()))
}

// payoutEstimate approximates the claimable reward for a winning stake:
// stake × totalPool / winnerPool. The contract's fee makes the real
// number slightly lower; this is for reporting only.
func payoutEstimate(round domain.Round, stake *domain.Stake) (*big.Int, error) {
	winnerPool := round.BullAmount
	if stake.Position == domain.PositionBear {
		winnerPool = round.BearAmount
	}
	if winnerPool == nil || winnerPool.Sign() <= 0 || round.TotalAmount == nil {
		return nil, fmt.Errorf("payoutEstimate: empty winner pool for epoch %d", round.Epoch)
	}

	out := new(big.Int).Mul(stake.Amount, round.TotalAmount)
	return out.Quo(out, winnerPool), nil
}

// currentUTCDay is used to detect day rollover for the daily maxima.
func currentUTCDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
