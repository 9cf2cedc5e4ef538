package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"

	"github.com/stakebot/engine/internal/domain"
)

// call packs a view-call, executes it through the rate limiter, and
// unpacks the outputs.
func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, error) {
	if err := c.readLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	callData, err := predictionABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &c.contract,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	vals, err := predictionABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return vals, nil
}

// CurrentEpoch returns the latest epoch number known to the contract.
func (c *Client) CurrentEpoch(ctx context.Context) (int64, error) {
	vals, err := c.call(ctx, "currentEpoch")
	if err != nil {
		return 0, fmt.Errorf("chain.CurrentEpoch: %w", err)
	}
	epoch, ok := vals[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("chain.CurrentEpoch: unexpected output type %T", vals[0])
	}
	return epoch.Int64(), nil
}

// Round returns the snapshot of the round at the given epoch.
func (c *Client) Round(ctx context.Context, epoch int64) (domain.Round, error) {
	vals, err := c.call(ctx, "rounds", big.NewInt(epoch))
	if err != nil {
		return domain.Round{}, fmt.Errorf("chain.Round(%d): %w", epoch, err)
	}
	round, err := decodeRound(vals)
	if err != nil {
		return domain.Round{}, fmt.Errorf("chain.Round(%d): %w", epoch, err)
	}
	return round, nil
}

// Balance returns the wallet's native-token balance in wei.
func (c *Client) Balance(ctx context.Context) (*big.Int, error) {
	if err := c.readLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	balance, err := c.eth.BalanceAt(ctx, c.address, nil)
	if err != nil {
		return nil, fmt.Errorf("chain.Balance: %w", err)
	}
	return balance, nil
}

// decodeRound maps the 14-field rounds() tuple onto the domain type.
func decodeRound(vals []any) (domain.Round, error) {
	if len(vals) != 14 {
		return domain.Round{}, fmt.Errorf("decodeRound: expected 14 outputs, got %d", len(vals))
	}

	bigAt := func(i int) (*big.Int, error) {
		v, ok := vals[i].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("decodeRound: output %d: expected *big.Int, got %T", i, vals[i])
		}
		return v, nil
	}

	ints := make([]*big.Int, 13)
	for i := 0; i < 13; i++ {
		v, err := bigAt(i)
		if err != nil {
			// Outputs 6-7 are the oracle round IDs, unused but still
			// expected to be integers.
			return domain.Round{}, err
		}
		ints[i] = v
	}

	round := domain.Round{
		Epoch:          ints[0].Int64(),
		StartTimestamp: ints[1].Int64(),
		LockTimestamp:  ints[2].Int64(),
		CloseTimestamp: ints[3].Int64(),
		LockPrice:      ints[4],
		ClosePrice:     ints[5],
		TotalAmount:    ints[8],
		BullAmount:     ints[9],
		BearAmount:     ints[10],
	}

	oracleCalled, ok := vals[13].(bool)
	if !ok {
		return domain.Round{}, fmt.Errorf("decodeRound: output 13: expected bool, got %T", vals[13])
	}
	round.OracleCalled = oracleCalled

	return round, nil
}
