package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stakebot/engine/internal/domain"
)

// handleRoundLocked advances per-stream cooldowns by one round and
// reactivates the ones that reach zero. Runs once per round-lock event,
// independent of the decision tick cadence. The UTC day rollover for
// the daily loss maxima rides on the same event.
func (e *Engine) handleRoundLocked(ctx context.Context, epoch int64) {
	day := currentUTCDay(e.now())
	if e.lastDay != "" && e.lastDay != day {
		e.registry.ResetDailyMaxima()
		slog.Info("cooldown: daily loss maxima reset", "day", day)
	}
	e.lastDay = day

	risk := e.risk.Snapshot()
	base, _ := domain.ClampStake(domain.BaseAmount(e.cfg.Strategy, risk), risk)
	reactivated := e.registry.AdvanceCooldowns(base)
	for _, s := range reactivated {
		slog.Info("cooldown: stream reactivated", "stream", s.ID, "epoch", epoch)
		e.notify(ctx, fmt.Sprintf("stream %d reactivated at epoch %d with base stake", s.ID, epoch))
	}

	slog.Debug("round locked", "epoch", epoch)
}
