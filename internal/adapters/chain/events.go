package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/stakebot/engine/internal/ports"
)

const (
	subscribeInitialBackoff = 1 * time.Second
	subscribeMaxBackoff     = 60 * time.Second
)

var (
	lockRoundTopic = crypto.Keccak256Hash([]byte("LockRound(uint256,uint256,int256)"))
	endRoundTopic  = crypto.Keccak256Hash([]byte("EndRound(uint256,uint256,int256)"))
)

// Subscribe streams LockRound/EndRound contract logs as round events.
// The websocket connection reconnects with exponential backoff; each
// drop surfaces as one ProviderFailure event so the engine can report
// it while the adapter recovers on its own.
func (c *Client) Subscribe(ctx context.Context) (<-chan ports.RoundEvent, error) {
	ws, err := ethclient.DialContext(ctx, c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("chain.Subscribe: dial ws %s: %w", c.wsURL, err)
	}

	out := make(chan ports.RoundEvent, 16)
	go c.runSubscription(ctx, ws, out)
	return out, nil
}

func (c *Client) runSubscription(ctx context.Context, ws *ethclient.Client, out chan<- ports.RoundEvent) {
	defer close(out)
	defer ws.Close()

	backoff := subscribeInitialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		err := c.streamLogs(ctx, ws, out)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("chain: event subscription dropped", "err", err, "backoff", backoff)
			out <- ports.RoundEvent{Type: ports.ProviderFailure, Err: err}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > subscribeMaxBackoff {
			backoff = subscribeMaxBackoff
		}
	}
}

// streamLogs holds one live subscription and forwards its logs until it
// errors or the context ends.
func (c *Client) streamLogs(ctx context.Context, ws *ethclient.Client, out chan<- ports.RoundEvent) error {
	logs := make(chan types.Log, 16)
	sub, err := ws.SubscribeFilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{lockRoundTopic, endRoundTopic}},
	}, logs)
	if err != nil {
		return fmt.Errorf("subscribe filter logs: %w", err)
	}
	defer sub.Unsubscribe()

	slog.Info("chain: round event subscription live", "contract", c.contract.Hex())

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return fmt.Errorf("subscription error: %w", err)
		case lg := <-logs:
			if ev, ok := decodeRoundLog(lg); ok {
				out <- ev
			}
		}
	}
}

// decodeRoundLog maps one contract log onto a round event. The epoch is
// the first indexed topic; the lock price rides in the data payload.
func decodeRoundLog(lg types.Log) (ports.RoundEvent, bool) {
	if len(lg.Topics) < 2 {
		return ports.RoundEvent{}, false
	}
	epoch := new(big.Int).SetBytes(lg.Topics[1].Bytes()).Int64()

	switch lg.Topics[0] {
	case lockRoundTopic:
		ev := ports.RoundEvent{Type: ports.RoundLocked, Epoch: epoch}
		if len(lg.Data) >= 32 {
			// The price is int256: interpret as two's complement.
			price := new(big.Int).SetBytes(lg.Data[:32])
			if price.Bit(255) == 1 {
				price.Sub(price, new(big.Int).Lsh(big.NewInt(1), 256))
			}
			ev.LockPrice = price
		}
		return ev, true
	case endRoundTopic:
		return ports.RoundEvent{Type: ports.RoundEnded, Epoch: epoch}, true
	}
	return ports.RoundEvent{}, false
}
