package evmclient

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/ligun0805/wallet-sweep/internal/sweepcore"
)

// Build EIP-1559 transaction.
func buildDynamicTx(chain *big.Int, nonce uint64, to *common.Address, value *big.Int, gasLimit uint64, tip, feeCap *big.Int, data []byte) *types.Transaction {
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chain,
		Nonce:     nonce,
		Gas:       gasLimit,
		GasTipCap: new(big.Int).Set(tip),
		GasFeeCap: new(big.Int).Set(feeCap),
		To:        to,
		Value:     new(big.Int).Set(value),
		Data:      data,
	})
}

// Sign transaction with latest signer for given chain ID.
func signTx(tx *types.Transaction, chain *big.Int, prv *ecdsa.PrivateKey) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chain), prv)
}

// SendTransfer signs and submits a plain value transfer. The submission
// itself is never retried so a slow node cannot cause a double spend attempt.
func (c *Client) SendTransfer(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, amount *uint256.Int, quote sweepcore.FeeQuote, gasLimit uint64) (sweepcore.PendingTx, error) {
	if key == nil {
		return sweepcore.PendingTx{}, errors.New("nil private key")
	}
	if amount == nil || quote.MaxFeePerGas == nil || quote.MaxPriorityFeePerGas == nil {
		return sweepcore.PendingTx{}, errors.New("incomplete transfer parameters")
	}
	from := gethcrypto.PubkeyToAddress(key.PublicKey)
	nonce, err := withRetry(ctx, c, "eth_getTransactionCount", func(ctx context.Context) (uint64, error) {
		return c.ec.PendingNonceAt(ctx, from)
	})
	if err != nil {
		return sweepcore.PendingTx{}, fmt.Errorf("nonce: %w", err)
	}

	tx := buildDynamicTx(c.chainID, nonce, &to, amount.ToBig(), gasLimit,
		quote.MaxPriorityFeePerGas.ToBig(), quote.MaxFeePerGas.ToBig(), nil)
	signed, err := signTx(tx, c.chainID, key)
	if err != nil {
		return sweepcore.PendingTx{}, fmt.Errorf("sign: %w", err)
	}

	_, err = once(ctx, c, "eth_sendRawTransaction", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.ec.SendTransaction(ctx, signed)
	})
	if err != nil {
		return sweepcore.PendingTx{}, err
	}
	c.log.Debug("transaction submitted",
		zap.String("from", from.Hex()), zap.String("tx", signed.Hash().Hex()), zap.Uint64("nonce", nonce))
	return sweepcore.PendingTx{Hash: signed.Hash(), From: from, Nonce: nonce}, nil
}

// AwaitConfirmation polls for the receipt until it appears or ConfirmTimeout
// elapses. Transient RPC errors keep the poll going.
func (c *Client) AwaitConfirmation(ctx context.Context, tx sweepcore.PendingTx) (sweepcore.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.ConfirmPoll)
	defer ticker.Stop()
	for {
		rc, err := once(ctx, c, "eth_getTransactionReceipt", func(ctx context.Context) (*types.Receipt, error) {
			return c.ec.TransactionReceipt(ctx, tx.Hash)
		})
		switch {
		case err == nil:
			out := sweepcore.Receipt{TxHash: rc.TxHash, Status: rc.Status, GasUsed: rc.GasUsed}
			if rc.BlockNumber != nil {
				out.BlockNumber = rc.BlockNumber.Uint64()
			}
			return out, nil
		case errors.Is(err, ethereum.NotFound), IsTransient(err) && ctx.Err() == nil:
		default:
			return sweepcore.Receipt{}, err
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return sweepcore.Receipt{}, fmt.Errorf("tx %s not confirmed: %w", tx.Hash.Hex(), ctx.Err())
		}
	}
}
