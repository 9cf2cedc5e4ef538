package domain

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Stake is one wager placed by a stream on a round. At most one Stake
// exists per (Epoch, StreamID) pair; Claimed transitions false→true
// exactly once and never reverts.
type Stake struct {
	ID       string // UUID (local tracking)
	Epoch    int64
	StreamID int
	Position Position
	Amount   *big.Int // wei
	TxHash   string
	PlacedAt time.Time

	// Filled by the settlement engine.
	Settled   bool
	Won       bool
	SettledAt *time.Time

	Claimed bool
}

// NewStake creates a stake record for a confirmed bet submission.
func NewStake(epoch int64, streamID int, pos Position, amount *big.Int, txHash string) *Stake {
	return &Stake{
		ID:       uuid.New().String(),
		Epoch:    epoch,
		StreamID: streamID,
		Position: pos,
		Amount:   new(big.Int).Set(amount),
		TxHash:   txHash,
		PlacedAt: time.Now().UTC(),
	}
}
