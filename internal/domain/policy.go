package domain

// policy.go — pure staking-policy functions.
//
// Stream state transitions happen on settlement only; the decision loop
// merely reads CurrentAmount and re-clamps against the latest risk
// snapshot. Everything here is deterministic given its inputs (the
// position picker takes an injected rand source), so the laws are
// directly testable.

import (
	"math/big"
	"math/rand"
	"time"
)

// StrategyKind selects how the flat stake is sized.
type StrategyKind string

const (
	// StrategyFlatPercentage sizes every flat bet as a fraction of the
	// current bankroll.
	StrategyFlatPercentage StrategyKind = "flat_percentage"
	// StrategyProgressiveMartingale keeps a fixed base and compounds it
	// after losses beyond the flat threshold.
	StrategyProgressiveMartingale StrategyKind = "progressive_martingale"
)

// Strategy is the immutable staking configuration, loaded once.
type Strategy struct {
	Kind                 StrategyKind
	BaseBetAmount        *big.Int // wei
	FlatBetCount         int      // losses absorbed at flat size before escalating
	MartingaleMultiplier float64  // e.g. 2.1
	FlatFraction         float64  // bankroll fraction for flat_percentage
	MaxRiskFraction      float64  // bankroll fraction for the hard per-bet ceiling
	MaxConsecutiveLosses int      // deactivation threshold
	CooldownRounds       int
	BetWindowSeconds     int64
	MinLiquidity         *big.Int // pool size below which position choice is random
	ClaimStreak          int      // unclaimed wins per stream before a batch claim
	MaxStreams           int
}

// RiskState is the latest bankroll snapshot and the stake ceilings
// derived from it.
type RiskState struct {
	Bankroll      *big.Int
	BaseBetAmount *big.Int
	MaxBetAmount  *big.Int // Bankroll × MaxRiskFraction
	RefreshedAt   time.Time
}

// escalationCapFraction is the bankroll share an escalated stake may
// never exceed, independent of MaxBetAmount.
const escalationCapFraction = 0.10

// BaseAmount returns the flat stake for the strategy: the configured
// base, or a bankroll fraction for flat_percentage.
func BaseAmount(st Strategy, r RiskState) *big.Int {
	if st.Kind == StrategyFlatPercentage && r.Bankroll != nil && r.Bankroll.Sign() > 0 {
		return MulFraction(r.Bankroll, st.FlatFraction)
	}
	return new(big.Int).Set(st.BaseBetAmount)
}

// ApplyWin resets the stream after a settled win: flat amount, zeroed
// loss counters, win streak advanced. The reset amount is clamped to
// the risk ceilings like any other stake so the stream never carries
// a size the bankroll no longer backs; returns true when the clamp
// bound.
func ApplyWin(s *Stream, st Strategy, r RiskState) (clamped bool) {
	s.CurrentAmount, clamped = ClampStake(BaseAmount(st, r), r)
	s.LossCount = 0
	s.ConsecutiveLosses = 0
	s.WinCount++
	s.TotalWins++
	s.UnclaimedStreak++
	return clamped
}

// ApplyLoss advances the stream after a settled loss and sizes the next
// stake. Past FlatBetCount losses the amount compounds by the
// martingale multiplier once per loss, floored to wei and clamped to
// min(MaxBetAmount, bankroll×10%). Returns true when the clamp bound,
// so the caller can report it rather than apply it silently.
func ApplyLoss(s *Stream, st Strategy, r RiskState) (clamped bool) {
	s.LossCount++
	s.ConsecutiveLosses++
	s.WinCount = 0
	s.UnclaimedStreak = 0 // a loss breaks the run of consecutive unclaimed wins
	if s.ConsecutiveLosses > s.MaxConsecutiveLosses {
		s.MaxConsecutiveLosses = s.ConsecutiveLosses
	}
	if s.ConsecutiveLosses > s.DailyMaxConsecutiveLosses {
		s.DailyMaxConsecutiveLosses = s.ConsecutiveLosses
	}

	if st.Kind == StrategyProgressiveMartingale && s.LossCount > st.FlatBetCount {
		next := MulFraction(s.CurrentAmount, st.MartingaleMultiplier)
		s.CurrentAmount, clamped = ClampStake(next, r)
		return clamped
	}

	s.CurrentAmount, clamped = ClampStake(BaseAmount(st, r), r)
	return clamped
}

// ClampStake caps a stake at min(MaxBetAmount, bankroll×10%) using the
// given risk snapshot. Returns the (possibly reduced) amount and
// whether a ceiling bound.
func ClampStake(amount *big.Int, r RiskState) (*big.Int, bool) {
	out := new(big.Int).Set(amount)
	clamped := false
	if r.MaxBetAmount != nil && r.MaxBetAmount.Sign() > 0 && out.Cmp(r.MaxBetAmount) > 0 {
		out.Set(r.MaxBetAmount)
		clamped = true
	}
	if r.Bankroll != nil && r.Bankroll.Sign() > 0 {
		cap := MulFraction(r.Bankroll, escalationCapFraction)
		if out.Cmp(cap) > 0 {
			out.Set(cap)
			clamped = true
		}
	}
	return out, clamped
}

// PositionPicker chooses the side to back for a round. It is a policy
// knob: swapping the heuristic must not touch the stream state machine.
type PositionPicker func(r Round, minLiquidity *big.Int, rng *rand.Rand) Position

// PickPosition is the default liquidity heuristic. Below the minimum
// pool size the signal is noise, so the side is uniform random; above
// it the larger pool is backed — late counter-bets are assumed smaller,
// which keeps adverse selection down. Not a profitability guarantee.
func PickPosition(r Round, minLiquidity *big.Int, rng *rand.Rand) Position {
	total := r.Liquidity()
	if minLiquidity != nil && total.Cmp(minLiquidity) < 0 {
		return randomPosition(rng)
	}

	bull, bear := new(big.Int), new(big.Int)
	if r.BullAmount != nil {
		bull = r.BullAmount
	}
	if r.BearAmount != nil {
		bear = r.BearAmount
	}
	switch bull.Cmp(bear) {
	case 1:
		return PositionBull
	case -1:
		return PositionBear
	}
	return randomPosition(rng)
}

func randomPosition(rng *rand.Rand) Position {
	if rng.Intn(2) == 0 {
		return PositionBull
	}
	return PositionBear
}

// MulFraction multiplies a wei amount by a float fraction, flooring
// toward zero. Used for both martingale compounding and bankroll caps.
func MulFraction(x *big.Int, f float64) *big.Int {
	if x == nil || f <= 0 {
		return new(big.Int)
	}
	prod := new(big.Float).Mul(new(big.Float).SetInt(x), big.NewFloat(f))
	out, _ := prod.Int(nil)
	return out
}
