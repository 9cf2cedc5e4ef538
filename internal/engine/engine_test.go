package engine

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakebot/engine/internal/domain"
)

// --- fakes ---

type fakeRounds struct {
	current int64
	rounds  map[int64]domain.Round
	err     error
}

func (f *fakeRounds) Round(_ context.Context, epoch int64) (domain.Round, error) {
	if f.err != nil {
		return domain.Round{}, f.err
	}
	r, ok := f.rounds[epoch]
	if !ok {
		return domain.Round{}, fmt.Errorf("no round %d", epoch)
	}
	return r, nil
}

func (f *fakeRounds) CurrentEpoch(_ context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.current, nil
}

type betCall struct {
	epoch  int64
	pos    domain.Position
	amount *big.Int
}

type fakeExecutor struct {
	balance  *big.Int
	bets     []betCall
	betErr   error
	claims   [][]int64
	claimErr error
}

func (f *fakeExecutor) Balance(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeExecutor) SubmitBet(_ context.Context, epoch int64, pos domain.Position, amount *big.Int) (string, error) {
	if f.betErr != nil {
		return "", f.betErr
	}
	f.bets = append(f.bets, betCall{epoch: epoch, pos: pos, amount: new(big.Int).Set(amount)})
	return fmt.Sprintf("0xbet%d", len(f.bets)), nil
}

func (f *fakeExecutor) Claim(_ context.Context, epochs []int64) (string, error) {
	if f.claimErr != nil {
		return "", f.claimErr
	}
	f.claims = append(f.claims, append([]int64(nil), epochs...))
	return fmt.Sprintf("0xclaim%d", len(f.claims)), nil
}

type fakeNotifier struct {
	messages  []string
	summaries int
}

func (f *fakeNotifier) Notify(_ context.Context, message string) error {
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeNotifier) RoundSummary(_ context.Context, _ int64, _ []*domain.Stake, _ []*domain.Stream) error {
	f.summaries++
	return nil
}

type fakeRecorder struct {
	stakes, settlements, claims int
}

func (f *fakeRecorder) RecordSession(_ context.Context, _ domain.Strategy) error { return nil }
func (f *fakeRecorder) RecordStake(_ context.Context, _ *domain.Stake) error {
	f.stakes++
	return nil
}
func (f *fakeRecorder) RecordSettlement(_ context.Context, _ *domain.Stake) error {
	f.settlements++
	return nil
}
func (f *fakeRecorder) RecordClaim(_ context.Context, ids []string, _ string) error {
	f.claims += len(ids)
	return nil
}
func (f *fakeRecorder) Close() error { return nil }

// --- harness ---

const lockTS = int64(1_700_000_000)

func testStrategy() domain.Strategy {
	return domain.Strategy{
		Kind:                 domain.StrategyProgressiveMartingale,
		BaseBetAmount:        big.NewInt(10),
		FlatBetCount:         3,
		MartingaleMultiplier: 2.1,
		MaxRiskFraction:      0.25,
		MaxConsecutiveLosses: 10,
		CooldownRounds:       5,
		BetWindowSeconds:     8,
		MinLiquidity:         big.NewInt(100),
		ClaimStreak:          3,
		MaxStreams:           2,
	}
}

func openRound(epoch int64) domain.Round {
	return domain.Round{
		Epoch:          epoch,
		StartTimestamp: lockTS - 300,
		LockTimestamp:  lockTS,
		CloseTimestamp: lockTS + 300,
		TotalAmount:    big.NewInt(10_000),
		BullAmount:     big.NewInt(6000),
		BearAmount:     big.NewInt(4000),
	}
}

func newTestEngine(t *testing.T, st domain.Strategy, fr *fakeRounds, fx *fakeExecutor) (*Engine, *fakeNotifier, *fakeRecorder) {
	t.Helper()
	fn := &fakeNotifier{}
	rec := &fakeRecorder{}
	e := New(Config{Strategy: st, RandSeed: 1}, fr, fx, nil, fn, rec)
	e.now = func() time.Time { return time.Unix(lockTS-5, 0) } // inside the bet window
	require.NoError(t, e.risk.Refresh(context.Background()))
	return e, fn, rec
}

// --- decision loop ---

func TestHandleTick_PlacesOneBet(t *testing.T) {
	fr := &fakeRounds{current: 99, rounds: map[int64]domain.Round{100: openRound(100)}}
	fx := &fakeExecutor{balance: big.NewInt(1_000_000)}
	e, _, rec := newTestEngine(t, testStrategy(), fr, fx)

	e.handleTick(context.Background())

	require.Len(t, fx.bets, 1)
	assert.Equal(t, int64(100), fx.bets[0].epoch)
	assert.Equal(t, domain.PositionBull, fx.bets[0].pos, "larger pool is backed")
	assert.Equal(t, int64(10), fx.bets[0].amount.Int64())
	assert.Equal(t, 1, e.ledger.Size())
	assert.Equal(t, 1, rec.stakes)
}

func TestHandleTick_StreamBookkeeping(t *testing.T) {
	fr := &fakeRounds{current: 99, rounds: map[int64]domain.Round{100: openRound(100)}}
	fx := &fakeExecutor{balance: big.NewInt(1_000_000)}
	e, _, _ := newTestEngine(t, testStrategy(), fr, fx)

	e.handleTick(context.Background())

	placed := e.registry.Get(1)
	assert.Equal(t, int64(100), placed.LastEpoch)
	assert.Equal(t, 1, placed.TotalBets)
	assert.Len(t, placed.PositionHistory, 1)
}

func TestHandleTick_OutsideWindowSkips(t *testing.T) {
	fr := &fakeRounds{current: 99, rounds: map[int64]domain.Round{100: openRound(100)}}
	fx := &fakeExecutor{balance: big.NewInt(1_000_000)}
	e, _, _ := newTestEngine(t, testStrategy(), fr, fx)
	e.now = func() time.Time { return time.Unix(lockTS-9, 0) } // one second early

	e.handleTick(context.Background())
	assert.Empty(t, fx.bets)

	e.now = func() time.Time { return time.Unix(lockTS, 0) } // at lock
	e.handleTick(context.Background())
	assert.Empty(t, fx.bets)
}

func TestHandleTick_UniquenessPerEpochAndStream(t *testing.T) {
	st := testStrategy()
	st.MaxStreams = 2
	fr := &fakeRounds{current: 99, rounds: map[int64]domain.Round{100: openRound(100)}}
	fx := &fakeExecutor{balance: big.NewInt(1_000_000)}
	e, _, _ := newTestEngine(t, st, fr, fx)

	// Tick 1 and 2 use the two streams; tick 3 finds nobody eligible.
	e.handleTick(context.Background())
	e.handleTick(context.Background())
	e.handleTick(context.Background())

	require.Len(t, fx.bets, 2)
	assert.True(t, e.ledger.Has(100, 1))
	assert.True(t, e.ledger.Has(100, 2))
	assert.Equal(t, 2, e.ledger.Size())
}

func TestHandleTick_SubmissionFailureLeavesStreamEligible(t *testing.T) {
	fr := &fakeRounds{current: 99, rounds: map[int64]domain.Round{100: openRound(100)}}
	fx := &fakeExecutor{balance: big.NewInt(1_000_000), betErr: fmt.Errorf("nonce too low")}
	e, fn, _ := newTestEngine(t, testStrategy(), fr, fx)

	e.handleTick(context.Background())
	assert.Equal(t, 0, e.ledger.Size(), "no ledger entry without confirmation")
	assert.NotEmpty(t, fn.messages)

	fx.betErr = nil
	e.handleTick(context.Background())
	require.Len(t, fx.bets, 1, "next tick retries naturally")
	assert.Equal(t, 1, e.ledger.Size())
}

func TestHandleTick_InsufficientBalanceSkips(t *testing.T) {
	fr := &fakeRounds{current: 99, rounds: map[int64]domain.Round{100: openRound(100)}}
	fx := &fakeExecutor{balance: big.NewInt(3)}
	fn := &fakeNotifier{}

	// No bankroll refresh yet: the risk snapshot is empty, so the clamp
	// cannot bind and the balance check is what stops the bet.
	e := New(Config{Strategy: testStrategy(), RandSeed: 1}, fr, fx, nil, fn, &fakeRecorder{})
	e.now = func() time.Time { return time.Unix(lockTS-5, 0) }

	e.handleTick(context.Background())
	assert.Empty(t, fx.bets)
	assert.NotEmpty(t, fn.messages)
}

func TestHandleTick_ClampBindsBeforeBalance(t *testing.T) {
	fr := &fakeRounds{current: 99, rounds: map[int64]domain.Round{100: openRound(100)}}
	fx := &fakeExecutor{balance: big.NewInt(50)} // 10% cap = 5 < base stake of 10
	e, fn, _ := newTestEngine(t, testStrategy(), fr, fx)

	e.handleTick(context.Background())
	require.Len(t, fx.bets, 1)
	assert.Equal(t, int64(5), fx.bets[0].amount.Int64(), "stake reduced to the bankroll cap")
	assert.NotEmpty(t, fn.messages, "clamp is reported, not silent")
}

func TestBettableRound_PrefersOpenNextRound(t *testing.T) {
	next := openRound(101)
	stale := openRound(100)
	stale.LockTimestamp = lockTS - 100 // already locked
	fr := &fakeRounds{current: 100, rounds: map[int64]domain.Round{100: stale, 101: next}}
	fx := &fakeExecutor{balance: big.NewInt(1_000_000)}
	e, _, _ := newTestEngine(t, testStrategy(), fr, fx)

	target, ok := e.bettableRound(context.Background(), 100, lockTS-5)
	require.True(t, ok)
	assert.Equal(t, int64(101), target.Epoch)
}

// --- registry ---

func TestRegistry_RoundRobinRotation(t *testing.T) {
	r := NewRegistry(3, big.NewInt(10))
	none := func(int64, int) bool { return false }

	first := r.SelectForBet(1, none)
	second := r.SelectForBet(2, none)
	third := r.SelectForBet(3, none)
	fourth := r.SelectForBet(4, none)

	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 2, second.ID)
	assert.Equal(t, 3, third.ID)
	assert.Equal(t, 1, fourth.ID, "cursor wraps")
}

func TestRegistry_SkipsInactiveAndUsedStreams(t *testing.T) {
	r := NewRegistry(3, big.NewInt(10))
	r.Get(2).Deactivate(5)
	r.Get(1).LastEpoch = 7

	picked := r.SelectForBet(7, func(int64, int) bool { return false })
	require.NotNil(t, picked)
	assert.Equal(t, 3, picked.ID)
}

// --- settlement ---

func settledRound(epoch int64, lock, close int64) domain.Round {
	return domain.Round{
		Epoch:          epoch,
		StartTimestamp: lockTS - 300,
		LockTimestamp:  lockTS,
		CloseTimestamp: lockTS + 300,
		LockPrice:      big.NewInt(lock),
		ClosePrice:     big.NewInt(close),
		TotalAmount:    big.NewInt(10_000),
		BullAmount:     big.NewInt(6000),
		BearAmount:     big.NewInt(4000),
		OracleCalled:   true,
	}
}

func addStake(t *testing.T, e *Engine, epoch int64, streamID int, pos domain.Position, amount int64) *domain.Stake {
	t.Helper()
	stake := domain.NewStake(epoch, streamID, pos, big.NewInt(amount), "0xtest")
	require.NoError(t, e.ledger.Add(stake))
	return stake
}

func TestSettlement_WinAndLossScenario(t *testing.T) {
	// Two FLAT streams at base 10; epoch 100 is a win for
	// stream 1 (bull) and a loss for stream 2 (bear).
	fr := &fakeRounds{rounds: map[int64]domain.Round{100: settledRound(100, 30_000, 30_500)}}
	fx := &fakeExecutor{balance: big.NewInt(1_000_000)}
	e, fn, rec := newTestEngine(t, testStrategy(), fr, fx)

	s1 := addStake(t, e, 100, 1, domain.PositionBull, 10)
	s2 := addStake(t, e, 100, 2, domain.PositionBear, 10)

	e.handleRoundEnded(context.Background(), 100)

	assert.True(t, s1.Settled)
	assert.True(t, s1.Won)
	assert.True(t, s2.Settled)
	assert.False(t, s2.Won)

	winner := e.registry.Get(1)
	assert.Equal(t, 0, winner.LossCount)
	assert.Equal(t, int64(10), winner.CurrentAmount.Int64())
	assert.Equal(t, 1, winner.TotalWins)

	loser := e.registry.Get(2)
	assert.Equal(t, 1, loser.LossCount)
	assert.Equal(t, 1, loser.ConsecutiveLosses)
	assert.Equal(t, int64(10), loser.CurrentAmount.Int64(), "still below the flat threshold")

	assert.Equal(t, 2, rec.settlements)
	assert.Equal(t, 1, fn.summaries, "one aggregate summary per round")
}

func TestSettlement_PushCountsAsLoss(t *testing.T) {
	fr := &fakeRounds{rounds: map[int64]domain.Round{100: settledRound(100, 30_000, 30_000)}}
	fx := &fakeExecutor{balance: big.NewInt(1_000_000)}
	e, _, _ := newTestEngine(t, testStrategy(), fr, fx)

	stake := addStake(t, e, 100, 1, domain.PositionBull, 10)
	e.handleRoundEnded(context.Background(), 100)

	assert.False(t, stake.Won)
	assert.Equal(t, 1, e.registry.Get(1).ConsecutiveLosses)
}

func TestSettlement_DeactivationAndCooldownRoundTrip(t *testing.T) {
	st := testStrategy()
	st.MaxConsecutiveLosses = 2
	st.CooldownRounds = 5

	fx := &fakeExecutor{balance: big.NewInt(1_000_000)}
	fr := &fakeRounds{rounds: map[int64]domain.Round{}}
	e, _, _ := newTestEngine(t, st, fr, fx)

	// Two losing rounds in a row for stream 1 (bear loses both).
	for epoch := int64(100); epoch <= 101; epoch++ {
		fr.rounds[epoch] = settledRound(epoch, 30_000, 30_500)
		addStake(t, e, epoch, 1, domain.PositionBear, 10)
		e.handleRoundEnded(context.Background(), epoch)
	}

	s := e.registry.Get(1)
	require.False(t, s.Active)
	require.Equal(t, 5, s.CooldownRemaining)

	// Four lock events: still cooling down.
	for i := 0; i < 4; i++ {
		e.handleRoundLocked(context.Background(), 200+int64(i))
		assert.False(t, s.Active)
	}

	// Fifth lock event reactivates with a full reset.
	e.handleRoundLocked(context.Background(), 204)
	assert.True(t, s.Active)
	assert.Equal(t, 0, s.CooldownRemaining)
	assert.Equal(t, 0, s.LossCount)
	assert.Equal(t, 0, s.ConsecutiveLosses)
	assert.Equal(t, int64(10), s.CurrentAmount.Int64())
}

// --- claims ---

func winRounds(fr *fakeRounds, epochs ...int64) {
	for _, ep := range epochs {
		fr.rounds[ep] = settledRound(ep, 30_000, 30_500)
	}
}

func TestClaims_BatchAtStreak(t *testing.T) {
	st := testStrategy()
	st.ClaimStreak = 2

	fr := &fakeRounds{rounds: map[int64]domain.Round{}}
	fx := &fakeExecutor{balance: big.NewInt(1_000_000)}
	e, _, rec := newTestEngine(t, st, fr, fx)

	winRounds(fr, 100, 101)
	addStake(t, e, 100, 1, domain.PositionBull, 10)
	e.handleRoundEnded(context.Background(), 100)
	assert.Empty(t, fx.claims, "streak of 1 does not claim yet")

	addStake(t, e, 101, 1, domain.PositionBull, 10)
	e.handleRoundEnded(context.Background(), 101)

	require.Len(t, fx.claims, 1)
	assert.Equal(t, []int64{100, 101}, fx.claims[0])
	assert.Equal(t, 2, rec.claims)
	assert.Equal(t, 0, e.registry.Get(1).UnclaimedStreak)
}

func TestClaims_IdempotentAfterSuccess(t *testing.T) {
	st := testStrategy()
	st.ClaimStreak = 1

	fr := &fakeRounds{rounds: map[int64]domain.Round{}}
	fx := &fakeExecutor{balance: big.NewInt(1_000_000)}
	e, _, _ := newTestEngine(t, st, fr, fx)

	winRounds(fr, 100)
	addStake(t, e, 100, 1, domain.PositionBull, 10)
	e.handleRoundEnded(context.Background(), 100)
	require.Len(t, fx.claims, 1)

	// Running the claim pass again must not resubmit claimed stakes.
	e.processClaims(context.Background())
	assert.Len(t, fx.claims, 1)
}

func TestClaims_FailureRetriesOnNextTrigger(t *testing.T) {
	st := testStrategy()
	st.ClaimStreak = 2

	fr := &fakeRounds{rounds: map[int64]domain.Round{}}
	fx := &fakeExecutor{balance: big.NewInt(1_000_000)}
	e, _, _ := newTestEngine(t, st, fr, fx)

	winRounds(fr, 100, 101, 102)
	addStake(t, e, 100, 1, domain.PositionBull, 10)
	e.handleRoundEnded(context.Background(), 100)

	fx.claimErr = fmt.Errorf("gas too low")
	addStake(t, e, 101, 1, domain.PositionBull, 10)
	e.handleRoundEnded(context.Background(), 101)
	assert.Empty(t, fx.claims)
	assert.Equal(t, 2, e.registry.Get(1).UnclaimedStreak, "streak survives the failure")

	fx.claimErr = nil
	addStake(t, e, 102, 1, domain.PositionBull, 10)
	e.handleRoundEnded(context.Background(), 102)

	require.Len(t, fx.claims, 1)
	assert.Equal(t, []int64{100, 101, 102}, fx.claims[0], "whole backlog claimed together")
}

func TestClaims_LossBreaksTheStreak(t *testing.T) {
	st := testStrategy()
	st.ClaimStreak = 2

	fr := &fakeRounds{rounds: map[int64]domain.Round{}}
	fx := &fakeExecutor{balance: big.NewInt(1_000_000)}
	e, _, _ := newTestEngine(t, st, fr, fx)

	winRounds(fr, 100, 102, 103) // bull wins; 101 loses for a bear stake
	fr.rounds[101] = settledRound(101, 30_000, 30_500)

	addStake(t, e, 100, 1, domain.PositionBull, 10)
	e.handleRoundEnded(context.Background(), 100)

	addStake(t, e, 101, 1, domain.PositionBear, 10)
	e.handleRoundEnded(context.Background(), 101)
	assert.Equal(t, 0, e.registry.Get(1).UnclaimedStreak)

	// The win after the loss starts a fresh run; two consecutive wins
	// are needed again before the batch fires.
	addStake(t, e, 102, 1, domain.PositionBull, 10)
	e.handleRoundEnded(context.Background(), 102)
	assert.Empty(t, fx.claims, "interrupted run must not trigger a claim")

	addStake(t, e, 103, 1, domain.PositionBull, 10)
	e.handleRoundEnded(context.Background(), 103)

	require.Len(t, fx.claims, 1)
	assert.Equal(t, []int64{100, 102, 103}, fx.claims[0],
		"the batch still sweeps wins from before the broken run")
}

// --- cooldown / daily maxima ---

func TestRoundLocked_DailyMaximaResetAtUTCMidnight(t *testing.T) {
	fr := &fakeRounds{rounds: map[int64]domain.Round{}}
	fx := &fakeExecutor{balance: big.NewInt(1_000_000)}
	e, _, _ := newTestEngine(t, testStrategy(), fr, fx)

	day1 := time.Date(2024, 3, 1, 23, 50, 0, 0, time.UTC)
	e.now = func() time.Time { return day1 }

	s := e.registry.Get(1)
	s.DailyMaxConsecutiveLosses = 4
	s.MaxConsecutiveLosses = 4

	// First lock event bootstraps the day marker without resetting.
	e.handleRoundLocked(context.Background(), 200)
	assert.Equal(t, 4, s.DailyMaxConsecutiveLosses)

	// Another lock event on the same UTC day: no reset.
	e.now = func() time.Time { return day1.Add(5 * time.Minute) }
	e.handleRoundLocked(context.Background(), 201)
	assert.Equal(t, 4, s.DailyMaxConsecutiveLosses)

	// Past midnight the daily maximum resets; the lifetime one stays.
	e.now = func() time.Time { return day1.Add(20 * time.Minute) }
	e.handleRoundLocked(context.Background(), 202)
	assert.Equal(t, 0, s.DailyMaxConsecutiveLosses)
	assert.Equal(t, 4, s.MaxConsecutiveLosses)
}

func TestSettlement_FlatPercentageResetUsesRefreshedBankroll(t *testing.T) {
	st := testStrategy()
	st.Kind = domain.StrategyFlatPercentage
	st.FlatFraction = 0.02

	fr := &fakeRounds{rounds: map[int64]domain.Round{100: settledRound(100, 30_000, 30_500)}}
	fx := &fakeExecutor{balance: big.NewInt(50_000)}
	e, _, _ := newTestEngine(t, st, fr, fx)

	// The win pays out before the settlement pass reads the balance.
	fx.balance = big.NewInt(100_000)

	addStake(t, e, 100, 1, domain.PositionBull, 1000)
	e.handleRoundEnded(context.Background(), 100)

	assert.Equal(t, int64(2000), e.registry.Get(1).CurrentAmount.Int64(),
		"reset stake sized from the post-win bankroll")
}

// --- ledger ---

func TestLedger_RejectsDuplicate(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Add(domain.NewStake(100, 1, domain.PositionBull, big.NewInt(10), "0xa")))
	err := l.Add(domain.NewStake(100, 1, domain.PositionBear, big.NewInt(20), "0xb"))
	assert.Error(t, err)
	assert.Equal(t, 1, l.Size())
}
