package domain

import "math/big"

// positionHistoryCap bounds the per-stream history to the last five
// observed positions.
const positionHistoryCap = 5

// Stream is one independent progressive-staking lane. Exactly
// MaxStreams streams exist for the process lifetime; only the mutable
// fields below change, and only inside the engine's single processing
// goroutine.
type Stream struct {
	ID            int
	CurrentAmount *big.Int // next stake size in wei

	LossCount                 int // losses since last size escalation reset
	ConsecutiveLosses         int // losses since last win
	MaxConsecutiveLosses      int // running maximum, lifetime
	DailyMaxConsecutiveLosses int // running maximum, resets at UTC midnight

	Active            bool
	CooldownRemaining int // rounds until reactivation

	WinCount        int // current win streak
	TotalBets       int
	TotalWins       int
	UnclaimedStreak int // settled unclaimed wins, drives batch claiming

	LastEpoch       int64
	PositionHistory []Position // most recent last, capped
}

// NewStream creates a stream in its initial ACTIVE(FLAT) state.
func NewStream(id int, baseAmount *big.Int) *Stream {
	return &Stream{
		ID:            id,
		CurrentAmount: new(big.Int).Set(baseAmount),
		Active:        true,
	}
}

// RecordPosition appends a position to the bounded history.
func (s *Stream) RecordPosition(p Position) {
	s.PositionHistory = append(s.PositionHistory, p)
	if len(s.PositionHistory) > positionHistoryCap {
		s.PositionHistory = s.PositionHistory[len(s.PositionHistory)-positionHistoryCap:]
	}
}

// Deactivate takes the stream out of rotation and arms its cooldown.
func (s *Stream) Deactivate(cooldownRounds int) {
	s.Active = false
	s.CooldownRemaining = cooldownRounds
}

// Reactivate returns the stream to ACTIVE(FLAT) with a full reset.
func (s *Stream) Reactivate(baseAmount *big.Int) {
	s.Active = true
	s.CooldownRemaining = 0
	s.CurrentAmount = new(big.Int).Set(baseAmount)
	s.LossCount = 0
	s.ConsecutiveLosses = 0
	s.WinCount = 0
}

// WinRate returns wins over total bets, 0 when no bets were placed.
func (s *Stream) WinRate() float64 {
	if s.TotalBets == 0 {
		return 0
	}
	return float64(s.TotalWins) / float64(s.TotalBets)
}
