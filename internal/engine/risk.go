package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stakebot/engine/internal/domain"
	"github.com/stakebot/engine/internal/ports"
)

// RiskGovernor tracks the bankroll and derives the base stake and hard
// per-bet ceiling from it. Refreshed on a cron schedule and immediately
// after settled wins and claims; policy consumers always read the live
// snapshot through Snapshot, never a cached copy.
type RiskGovernor struct {
	executor ports.BetExecutor
	strategy domain.Strategy

	mu    sync.RWMutex
	state domain.RiskState

	cron *cron.Cron
}

// NewRiskGovernor creates a governor with an empty snapshot; the first
// Refresh populates it.
func NewRiskGovernor(executor ports.BetExecutor, strategy domain.Strategy) *RiskGovernor {
	return &RiskGovernor{executor: executor, strategy: strategy}
}

// Refresh reads the wallet balance and recomputes the stake ceilings.
func (g *RiskGovernor) Refresh(ctx context.Context) error {
	balance, err := g.executor.Balance(ctx)
	if err != nil {
		return fmt.Errorf("risk.Refresh: %w: %v", domain.ErrProvider, err)
	}

	state := domain.RiskState{
		Bankroll:     balance,
		MaxBetAmount: domain.MulFraction(balance, g.strategy.MaxRiskFraction),
		RefreshedAt:  time.Now().UTC(),
	}
	state.BaseBetAmount = domain.BaseAmount(g.strategy, state)

	g.mu.Lock()
	g.state = state
	g.mu.Unlock()

	slog.Debug("risk: bankroll refreshed",
		"bankroll_wei", balance.String(),
		"max_bet_wei", state.MaxBetAmount.String(),
	)
	return nil
}

// Snapshot returns the latest risk state.
func (g *RiskGovernor) Snapshot() domain.RiskState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// StartSchedule refreshes the bankroll on the given cron spec
// (e.g. "@every 5m") until StopSchedule is called.
func (g *RiskGovernor) StartSchedule(ctx context.Context, spec string) error {
	g.cron = cron.New()
	_, err := g.cron.AddFunc(spec, func() {
		if err := g.Refresh(ctx); err != nil {
			slog.Warn("risk: scheduled refresh failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("risk.StartSchedule: %q: %w", spec, err)
	}
	g.cron.Start()
	return nil
}

// StopSchedule stops the refresh schedule, waiting for a running
// refresh to finish.
func (g *RiskGovernor) StopSchedule() {
	if g.cron != nil {
		<-g.cron.Stop().Done()
	}
}
