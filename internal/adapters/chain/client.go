package chain

// client.go — adapter for a PancakeSwap-Prediction-style contract.
//
// One client covers all three ports the engine consumes on-chain:
//   - RoundProvider: rounds() / currentEpoch() view calls (rounds.go)
//   - BetExecutor:   betBull/betBear/claim transactions (trading.go)
//   - RoundEvents:   LockRound/EndRound log subscription (events.go)
//
// The contract ABI is inlined and trimmed to exactly what we use.

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

const (
	// View calls ride the decision tick (1/s) plus settlement reads;
	// the limiter keeps a misbehaving loop from hammering the RPC.
	readRatePerSec  = 10
	readBurst       = 20

	// Gas limits (conservative upper bounds, used when estimation fails)
	betGasLimit   = uint64(250_000)
	claimGasLimit = uint64(400_000)

	// Gas price cache interval
	gasPriceUpdateInterval = 1 * time.Minute

	receiptTimeout      = 60 * time.Second
	receiptPollInterval = 3 * time.Second
)

var predictionABI abi.ABI

func init() {
	var err error

	predictionABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "currentEpoch",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "rounds",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "", "type": "uint256"}],
			"outputs": [
				{"name": "epoch", "type": "uint256"},
				{"name": "startTimestamp", "type": "uint256"},
				{"name": "lockTimestamp", "type": "uint256"},
				{"name": "closeTimestamp", "type": "uint256"},
				{"name": "lockPrice", "type": "int256"},
				{"name": "closePrice", "type": "int256"},
				{"name": "lockOracleId", "type": "uint256"},
				{"name": "closeOracleId", "type": "uint256"},
				{"name": "totalAmount", "type": "uint256"},
				{"name": "bullAmount", "type": "uint256"},
				{"name": "bearAmount", "type": "uint256"},
				{"name": "rewardBaseCalAmount", "type": "uint256"},
				{"name": "rewardAmount", "type": "uint256"},
				{"name": "oracleCalled", "type": "bool"}
			]
		},
		{
			"name": "betBull",
			"type": "function",
			"stateMutability": "payable",
			"inputs": [{"name": "epoch", "type": "uint256"}],
			"outputs": []
		},
		{
			"name": "betBear",
			"type": "function",
			"stateMutability": "payable",
			"inputs": [{"name": "epoch", "type": "uint256"}],
			"outputs": []
		},
		{
			"name": "claim",
			"type": "function",
			"inputs": [{"name": "epochs", "type": "uint256[]"}],
			"outputs": []
		},
		{
			"name": "LockRound",
			"type": "event",
			"inputs": [
				{"name": "epoch", "type": "uint256", "indexed": true},
				{"name": "roundId", "type": "uint256", "indexed": true},
				{"name": "price", "type": "int256", "indexed": false}
			]
		},
		{
			"name": "EndRound",
			"type": "event",
			"inputs": [
				{"name": "epoch", "type": "uint256", "indexed": true},
				{"name": "roundId", "type": "uint256", "indexed": true},
				{"name": "price", "type": "int256", "indexed": false}
			]
		}
	]`))
	if err != nil {
		panic("prediction abi parse: " + err.Error())
	}
}

// Client talks to the prediction contract over JSON-RPC.
type Client struct {
	eth      *ethclient.Client
	wsURL    string
	contract common.Address
	chainID  *big.Int

	privateKey []byte
	address    common.Address

	readLimiter *rate.Limiter

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// NewClient dials the RPC endpoint and prepares the signer.
// privateKeyHex is with or without 0x prefix; wsURL is the websocket
// endpoint used only for log subscriptions.
func NewClient(rpcURL, wsURL, contractHex, privateKeyHex string, chainID int64) (*Client, error) {
	if !common.IsHexAddress(contractHex) {
		return nil, fmt.Errorf("chain.NewClient: invalid contract address %q", contractHex)
	}

	pkBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain.NewClient: decode private key: %w", err)
	}
	privKey, err := crypto.ToECDSA(pkBytes)
	if err != nil {
		return nil, fmt.Errorf("chain.NewClient: invalid private key: %w", err)
	}

	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain.NewClient: dial rpc %s: %w", rpcURL, err)
	}

	return &Client{
		eth:         eth,
		wsURL:       wsURL,
		contract:    common.HexToAddress(contractHex),
		chainID:     big.NewInt(chainID),
		privateKey:  pkBytes,
		address:     crypto.PubkeyToAddress(privKey.PublicKey),
		readLimiter: rate.NewLimiter(readRatePerSec, readBurst),
	}, nil
}

// NewReadOnlyClient dials without a signing key. Round reads and log
// subscriptions work; SubmitBet and Claim fail. Pairs with the paper
// executor.
func NewReadOnlyClient(rpcURL, wsURL, contractHex string, chainID int64) (*Client, error) {
	if !common.IsHexAddress(contractHex) {
		return nil, fmt.Errorf("chain.NewReadOnlyClient: invalid contract address %q", contractHex)
	}

	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain.NewReadOnlyClient: dial rpc %s: %w", rpcURL, err)
	}

	return &Client{
		eth:         eth,
		wsURL:       wsURL,
		contract:    common.HexToAddress(contractHex),
		chainID:     big.NewInt(chainID),
		readLimiter: rate.NewLimiter(readRatePerSec, readBurst),
	}, nil
}

// Address returns the wallet address derived from the signing key.
func (c *Client) Address() string {
	return c.address.Hex()
}

// getGasPrice returns the current gas price with a 10% inclusion buffer,
// cached to avoid an RPC call per transaction.
func (c *Client) getGasPrice(ctx context.Context) (*big.Int, error) {
	c.mu.RLock()
	cached := c.cachedGasWei
	updatedAt := c.gasUpdatedAt
	c.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached, nil
	}

	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return big.NewInt(3_000_000_000), nil // 3 gwei fallback
	}

	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	c.mu.Lock()
	c.cachedGasWei = buffered
	c.gasUpdatedAt = time.Now()
	c.mu.Unlock()

	return buffered, nil
}
