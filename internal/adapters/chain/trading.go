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

	"github.com/stakebot/engine/internal/domain"
)

// SubmitBet sends a betBull/betBear transaction carrying the stake as
// the transaction value and waits for the receipt. Any failure before a
// successful receipt means "bet not placed" to the caller.
func (c *Client) SubmitBet(ctx context.Context, epoch int64, pos domain.Position, amount *big.Int) (string, error) {
	method := "betBull"
	if pos == domain.PositionBear {
		method = "betBear"
	}

	callData, err := predictionABI.Pack(method, big.NewInt(epoch))
	if err != nil {
		return "", fmt.Errorf("chain.SubmitBet: pack %s: %w", method, err)
	}

	signed, err := c.sendTx(ctx, callData, amount, betGasLimit)
	if err != nil {
		return "", fmt.Errorf("chain.SubmitBet: %w", err)
	}
	txHash := signed.Hash()

	slog.Info("chain: bet sent",
		"epoch", epoch, "method", method, "amount_wei", amount.String(), "tx", txHash.Hex())

	receiptCtx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	receipt, err := c.waitForReceipt(receiptCtx, txHash)
	if err != nil {
		return "", fmt.Errorf("chain.SubmitBet: confirm %s: %w", txHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("chain.SubmitBet: tx reverted: %s", txHash.Hex())
	}
	return txHash.Hex(), nil
}

// Claim collects winnings for the given epochs in a single transaction.
func (c *Client) Claim(ctx context.Context, epochs []int64) (string, error) {
	bigEpochs := make([]*big.Int, len(epochs))
	for i, ep := range epochs {
		bigEpochs[i] = big.NewInt(ep)
	}

	callData, err := predictionABI.Pack("claim", bigEpochs)
	if err != nil {
		return "", fmt.Errorf("chain.Claim: pack: %w", err)
	}

	signed, err := c.sendTx(ctx, callData, big.NewInt(0), claimGasLimit)
	if err != nil {
		return "", fmt.Errorf("chain.Claim: %w", err)
	}
	txHash := signed.Hash()

	slog.Info("chain: claim sent", "epochs", len(epochs), "tx", txHash.Hex())

	receiptCtx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	receipt, err := c.waitForReceipt(receiptCtx, txHash)
	if err != nil {
		return "", fmt.Errorf("chain.Claim: confirm %s: %w", txHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("chain.Claim: tx reverted: %s", txHash.Hex())
	}
	return txHash.Hex(), nil
}

// sendTx builds, signs, and broadcasts a transaction to the prediction
// contract. Gas is estimated on-node with a 20% buffer, falling back to
// the given conservative limit.
func (c *Client) sendTx(ctx context.Context, callData []byte, value *big.Int, fallbackGas uint64) (*types.Transaction, error) {
	if len(c.privateKey) == 0 {
		return nil, fmt.Errorf("no signing key configured")
	}
	privKey, err := crypto.ToECDSA(c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	gasPrice, err := c.getGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}

	gasEstimate, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.address,
		To:       &c.contract,
		GasPrice: gasPrice,
		Value:    value,
		Data:     callData,
	})
	if err != nil {
		gasEstimate = fallbackGas
		slog.Warn("chain: gas estimate failed, using default", "err", err, "limit", fallbackGas)
	}
	gasEstimate = gasEstimate * 12 / 10

	tx := types.NewTransaction(nonce, c.contract, value, gasEstimate, gasPrice, callData)

	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), privKey)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}
	return signed, nil
}

// waitForReceipt polls for a transaction receipt until confirmed or the
// context expires.
func (c *Client) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := c.eth.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue // not yet mined
			}
			return receipt, nil
		}
	}
}
