package paper

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"github.com/stakebot/engine/internal/domain"
	"github.com/stakebot/engine/internal/ports"
)

// Executor implements ports.BetExecutor without touching the chain.
// Bets debit a simulated balance; claims query the real round data and
// credit the parimutuel payout. Useful for validating a strategy
// against live rounds before funding a wallet.
type Executor struct {
	provider ports.RoundProvider

	mu      sync.Mutex
	balance *big.Int
	bets    map[int64][]placedBet // epoch → simulated bets
}

type placedBet struct {
	position domain.Position
	amount   *big.Int
}

// NewExecutor creates a paper executor with the given starting balance.
func NewExecutor(provider ports.RoundProvider, initialBalance *big.Int) *Executor {
	return &Executor{
		provider: provider,
		balance:  new(big.Int).Set(initialBalance),
		bets:     make(map[int64][]placedBet),
	}
}

// Balance returns the simulated wallet balance.
func (e *Executor) Balance(_ context.Context) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(e.balance), nil
}

// SubmitBet debits the balance and records the bet. The returned hash
// is a synthetic identifier, not a chain transaction.
func (e *Executor) SubmitBet(_ context.Context, epoch int64, pos domain.Position, amount *big.Int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.balance.Cmp(amount) < 0 {
		return "", fmt.Errorf("paper.SubmitBet: epoch %d: %w", epoch, domain.ErrInsufficientBalance)
	}
	e.balance.Sub(e.balance, amount)
	e.bets[epoch] = append(e.bets[epoch], placedBet{position: pos, amount: new(big.Int).Set(amount)})
	return "paper-" + uuid.New().String(), nil
}

// Claim credits the parimutuel payout for every winning simulated bet
// in the given epochs, using the real resolved round data.
func (e *Executor) Claim(ctx context.Context, epochs []int64) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, epoch := range epochs {
		bets := e.bets[epoch]
		if len(bets) == 0 {
			continue
		}

		round, err := e.provider.Round(ctx, epoch)
		if err != nil {
			return "", fmt.Errorf("paper.Claim: epoch %d: %w", epoch, err)
		}
		if !round.OracleCalled {
			return "", fmt.Errorf("paper.Claim: epoch %d not resolved", epoch)
		}

		for _, b := range bets {
			if !round.Wins(b.position) {
				continue
			}
			if payout := parimutuelPayout(round, b.position, b.amount); payout != nil {
				e.balance.Add(e.balance, payout)
			}
		}
		delete(e.bets, epoch)
	}
	return "paper-" + uuid.New().String(), nil
}

// parimutuelPayout is amount × totalPool / winnerPool, floored.
func parimutuelPayout(r domain.Round, pos domain.Position, amount *big.Int) *big.Int {
	winnerPool := r.BullAmount
	if pos == domain.PositionBear {
		winnerPool = r.BearAmount
	}
	if winnerPool == nil || winnerPool.Sign() == 0 || r.TotalAmount == nil {
		return nil
	}
	payout := new(big.Int).Mul(amount, r.TotalAmount)
	return payout.Quo(payout, winnerPool)
}
