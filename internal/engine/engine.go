package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/stakebot/engine/internal/domain"
	"github.com/stakebot/engine/internal/ports"
)

const defaultTickInterval = time.Second

// Config holds the engine's runtime configuration.
type Config struct {
	TickInterval        time.Duration
	RiskRefreshSchedule string // cron spec, e.g. "@every 5m"
	Strategy            domain.Strategy
	RandSeed            int64 // 0 = time-seeded
}

// Engine is the staking decision core: a single goroutine consumes the
// decision-loop ticker and the round-lifecycle events, so all Stream
// and Stake mutation is serialized by construction.
type Engine struct {
	cfg      Config
	rounds   ports.RoundProvider
	executor ports.BetExecutor
	events   ports.RoundEvents
	notifier ports.Notifier
	recorder ports.Recorder

	registry *Registry
	ledger   *Ledger
	risk     *RiskGovernor

	pick domain.PositionPicker
	rng  *rand.Rand
	now  func() time.Time

	lastDay         string    // UTC day of the last lock event, for daily maxima reset
	lastErrReported time.Time // throttles provider-error notifications
}

// New wires an engine from its collaborators. The stream pool and
// ledger are created here and never escape except as read-only views
// in notifications.
func New(
	cfg Config,
	rounds ports.RoundProvider,
	executor ports.BetExecutor,
	events ports.RoundEvents,
	notifier ports.Notifier,
	recorder ports.Recorder,
) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	seed := cfg.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Engine{
		cfg:      cfg,
		rounds:   rounds,
		executor: executor,
		events:   events,
		notifier: notifier,
		recorder: recorder,
		registry: NewRegistry(cfg.Strategy.MaxStreams, cfg.Strategy.BaseBetAmount),
		ledger:   NewLedger(),
		risk:     NewRiskGovernor(executor, cfg.Strategy),
		pick:     domain.PickPosition,
		rng:      rand.New(rand.NewSource(seed)),
		now:      time.Now,
	}
}

// Run executes the engine until the context is cancelled. Event
// subscription failure at startup is fatal; everything after that is
// reported and survived.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting",
		"streams", e.cfg.Strategy.MaxStreams,
		"strategy", string(e.cfg.Strategy.Kind),
		"tick", e.cfg.TickInterval,
		"bet_window_s", e.cfg.Strategy.BetWindowSeconds,
	)

	if err := e.recorder.RecordSession(ctx, e.cfg.Strategy); err != nil {
		slog.Warn("engine: record session", "err", err)
	}

	if err := e.risk.Refresh(ctx); err != nil {
		// Not fatal: no bets go out until a refresh succeeds.
		slog.Warn("engine: initial bankroll refresh failed", "err", err)
	}

	if e.cfg.RiskRefreshSchedule != "" {
		if err := e.risk.StartSchedule(ctx, e.cfg.RiskRefreshSchedule); err != nil {
			return fmt.Errorf("engine.Run: %w", err)
		}
		defer e.risk.StopSchedule()
	}

	eventCh, err := e.events.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("engine.Run: subscribe round events: %w", err)
	}

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopped")
			return nil

		case <-ticker.C:
			e.handleTick(ctx)

		case ev, ok := <-eventCh:
			if !ok {
				slog.Info("engine: event stream closed")
				return nil
			}
			e.handleEvent(ctx, ev)
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev ports.RoundEvent) {
	switch ev.Type {
	case ports.RoundLocked:
		e.handleRoundLocked(ctx, ev.Epoch)
	case ports.RoundEnded:
		e.handleRoundEnded(ctx, ev.Epoch)
	case ports.ProviderFailure:
		e.reportProviderError(ctx, ev.Err)
	}
}

// notify sends a best-effort status message; delivery failures are
// logged only.
func (e *Engine) notify(ctx context.Context, message string) {
	if err := e.notifier.Notify(ctx, message); err != nil {
		slog.Warn("engine: notifier error", "err", err)
	}
}

// reportProviderError logs every provider failure but notifies at most
// once per minute — the 1s tick would otherwise flood the sink while an
// endpoint is down.
func (e *Engine) reportProviderError(ctx context.Context, err error) {
	slog.Warn("engine: provider error", "err", err)
	if time.Since(e.lastErrReported) < time.Minute {
		return
	}
	e.lastErrReported = time.Now()
	e.notify(ctx, fmt.Sprintf("provider error: %v", err))
}

// Streams exposes the stream pool for status reporting.
func (e *Engine) Streams() []*domain.Stream {
	return e.registry.Streams()
}
