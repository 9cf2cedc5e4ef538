package ports

import (
	"context"
	"math/big"

	"github.com/stakebot/engine/internal/domain"
)

// BetExecutor submits bets and claims on the prediction contract and
// reads the wallet balance backing the bankroll.
type BetExecutor interface {
	// Balance returns the wallet balance in wei.
	Balance(ctx context.Context) (*big.Int, error)

	// SubmitBet signs and submits a bet for the given epoch and waits for
	// confirmation. Returns the transaction hash. No confirmation means
	// no ledger entry: the caller treats any error as "bet not placed".
	SubmitBet(ctx context.Context, epoch int64, pos domain.Position, amount *big.Int) (string, error)

	// Claim collects winnings for the given epochs in one transaction.
	Claim(ctx context.Context, epochs []int64) (string, error)
}
