package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stakebot/engine/internal/domain"
)

// handleTick runs one pass of the decision loop: find the betting
// target round, check the window, pick a stream, place at most one bet.
// Every failure path reports and returns — the next tick resamples, so
// no retry state is carried.
func (e *Engine) handleTick(ctx context.Context) {
	now := e.now().Unix()

	current, err := e.rounds.CurrentEpoch(ctx)
	if err != nil {
		e.reportProviderError(ctx, fmt.Errorf("%w: current epoch: %v", domain.ErrProvider, err))
		return
	}

	target, ok := e.bettableRound(ctx, current, now)
	if !ok {
		return
	}

	stream := e.registry.SelectForBet(target.Epoch, e.ledger.Has)
	if stream == nil {
		slog.Debug("tick: no eligible stream", "epoch", target.Epoch)
		return
	}

	e.placeBet(ctx, target, stream)
}

// bettableRound resolves the betting target: the next round when it is
// already in its open phase, otherwise the current one. Returns false
// when neither is inside the bet window.
func (e *Engine) bettableRound(ctx context.Context, current, now int64) (domain.Round, bool) {
	target, err := e.rounds.Round(ctx, current+1)
	if err != nil || !target.Open(now) {
		target, err = e.rounds.Round(ctx, current)
		if err != nil {
			e.reportProviderError(ctx, fmt.Errorf("%w: round %d: %v", domain.ErrProvider, current, err))
			return domain.Round{}, false
		}
	}

	if !target.BettableAt(now, e.cfg.Strategy.BetWindowSeconds) {
		return domain.Round{}, false
	}
	return target, true
}

// placeBet sizes, submits, and records one stake for the stream. The
// ledger write happens only after the submission confirms, so a failed
// transaction leaves the stream eligible on the next tick.
func (e *Engine) placeBet(ctx context.Context, round domain.Round, stream *domain.Stream) {
	risk := e.risk.Snapshot()

	amount, clamped := domain.ClampStake(stream.CurrentAmount, risk)
	if clamped {
		e.notify(ctx, fmt.Sprintf("stream %d stake clamped to %s wei by risk ceiling", stream.ID, amount.String()))
	}
	if amount.Sign() <= 0 {
		slog.Debug("tick: zero stake after clamp", "stream", stream.ID)
		return
	}
	if risk.Bankroll == nil || risk.Bankroll.Cmp(amount) < 0 {
		slog.Warn("tick: insufficient balance", "stream", stream.ID, "amount_wei", amount.String())
		e.notify(ctx, fmt.Sprintf("%v: stream %d needs %s wei", domain.ErrInsufficientBalance, stream.ID, amount.String()))
		return
	}

	pos := e.pick(round, e.cfg.Strategy.MinLiquidity, e.rng)

	// Reserve the epoch before the submission suspends: a second tick
	// for the same epoch must not double-place while this one is in
	// flight.
	stream.LastEpoch = round.Epoch

	txHash, err := e.executor.SubmitBet(ctx, round.Epoch, pos, amount)
	if err != nil {
		// No ledger entry: the stream stays eligible next tick.
		stream.LastEpoch = 0
		slog.Warn("tick: bet submission failed", "epoch", round.Epoch, "stream", stream.ID, "err", err)
		e.notify(ctx, fmt.Sprintf("%v: epoch %d stream %d: %v", domain.ErrSubmission, round.Epoch, stream.ID, err))
		return
	}

	stake := domain.NewStake(round.Epoch, stream.ID, pos, amount, txHash)
	if err := e.ledger.Add(stake); err != nil {
		slog.Error("tick: ledger rejected confirmed stake", "err", err)
		return
	}

	stream.TotalBets++
	stream.RecordPosition(pos)

	if err := e.recorder.RecordStake(ctx, stake); err != nil {
		slog.Warn("tick: record stake", "err", err)
	}

	slog.Info("bet placed",
		"epoch", round.Epoch,
		"stream", stream.ID,
		"position", string(pos),
		"amount_wei", amount.String(),
		"tx", txHash,
	)
	e.notify(ctx, fmt.Sprintf("epoch %d: stream %d bet %s %s wei (tx %s)",
		round.Epoch, stream.ID, pos, amount.String(), txHash))
}
