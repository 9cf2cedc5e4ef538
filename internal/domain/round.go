package domain

import "math/big"

// Position is the side of a round a stake backs.
type Position string

const (
	PositionBull Position = "BULL" // price closes above the lock price
	PositionBear Position = "BEAR" // price closes below the lock price
)

// Opposite returns the other side.
func (p Position) Opposite() Position {
	if p == PositionBull {
		return PositionBear
	}
	return PositionBull
}

// Round is a value snapshot of one prediction round, keyed by epoch.
// Rounds are created on-chain on a fixed cadence and are read-only to
// the engine; once OracleCalled is true the snapshot is final.
type Round struct {
	Epoch          int64
	StartTimestamp int64 // unix seconds
	LockTimestamp  int64
	CloseTimestamp int64
	LockPrice      *big.Int // oracle fixed-point, nil/zero until locked
	ClosePrice     *big.Int // oracle fixed-point, nil/zero until closed
	TotalAmount    *big.Int // pool sizes in wei
	BullAmount     *big.Int
	BearAmount     *big.Int
	OracleCalled   bool
}

// Open reports whether the round is in its open betting phase at the
// given unix time: started, not yet locked, outcome not finalized.
func (r Round) Open(now int64) bool {
	return r.StartTimestamp <= now && now < r.LockTimestamp && !r.OracleCalled
}

// BettableAt reports whether a bet may be placed at the given unix time.
// Bets are only accepted inside the last windowSeconds before lock:
// now ∈ [lock-window, lock).
func (r Round) BettableAt(now, windowSeconds int64) bool {
	return r.Open(now) && now >= r.LockTimestamp-windowSeconds
}

// Wins reports whether a stake on the given side won this round.
// A push (close == lock) wins for neither side; the contract keeps the
// pool, so the engine counts it as a loss.
func (r Round) Wins(p Position) bool {
	if r.LockPrice == nil || r.ClosePrice == nil {
		return false
	}
	cmp := r.ClosePrice.Cmp(r.LockPrice)
	switch p {
	case PositionBull:
		return cmp > 0
	case PositionBear:
		return cmp < 0
	}
	return false
}

// Liquidity returns the total pool size, never nil.
func (r Round) Liquidity() *big.Int {
	if r.TotalAmount == nil {
		return new(big.Int)
	}
	return r.TotalAmount
}
