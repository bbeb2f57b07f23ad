package sweepcore

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/ligun0805/wallet-sweep/internal/metrics"
)

// TransferExecutor sweeps the native balance of one wallet to the destination.
type TransferExecutor struct {
	client ChainClient
	fees   *FeeEstimator
	params *Params
}

func NewTransferExecutor(client ChainClient, p *Params) *TransferExecutor {
	return &TransferExecutor{client: client, fees: NewFeeEstimator(client, p), params: p}
}

// Execute always returns exactly one outcome. Errors and panics become Failed.
func (e *TransferExecutor) Execute(ctx context.Context, w FundedWallet) (out TransferOutcome) {
	start := time.Now()
	log := e.params.logger().With(zap.String("address", w.Address.Hex()))
	defer func() {
		if r := recover(); r != nil {
			out = failed(w.Address, fmt.Sprintf("panic: %v", r))
		}
		metrics.TransferLatency.Observe(time.Since(start).Seconds())
		metrics.TransferOutcomes.WithLabelValues(out.Kind.String(), outcomeLabel(out)).Inc()
	}()

	balance, err := e.client.NativeBalance(ctx, w.Address)
	if err != nil {
		log.Warn("balance read failed", zap.Error(err))
		return failed(w.Address, "read balance: "+err.Error())
	}
	if balance == nil || balance.IsZero() {
		log.Info("no balance, skipping")
		return skipped(w.Address, SkipNoBalance)
	}

	quote := e.fees.Estimate(ctx)
	amount, gasCost, ok := e.netAmount(balance, quote.MaxFeePerGas)
	if !ok {
		log.Info("insufficient balance for gas, skipping",
			zap.String("balance", fmtETH(balance)), zap.String("gas_cost", fmtETH(gasCost)))
		return skipped(w.Address, SkipInsufficientForGas)
	}

	key, err := parseKey(w.PrivateKey)
	if err != nil {
		return failed(w.Address, "invalid private key")
	}
	if derived := gethcrypto.PubkeyToAddress(key.PublicKey); derived != w.Address {
		return failed(w.Address, "private key does not match address "+derived.Hex())
	}

	log.Info("transferring",
		zap.String("balance", fmtETH(balance)),
		zap.String("amount", fmtETH(amount)),
		zap.String("max_fee_gwei", quote.DisplayGwei.String()),
		zap.Bool("fallback_fee", quote.Fallback))

	pending, err := e.client.SendTransfer(ctx, key, e.params.Destination, amount, quote, e.params.GasLimit)
	if err != nil {
		log.Warn("submit failed", zap.Error(err))
		return failed(w.Address, "send: "+err.Error())
	}
	log.Info("waiting for confirmation", zap.String("tx", pending.Hash.Hex()))

	rc, err := e.client.AwaitConfirmation(ctx, pending)
	if err != nil {
		log.Warn("confirmation failed", zap.String("tx", pending.Hash.Hex()), zap.Error(err))
		return failed(w.Address, "confirm "+pending.Hash.Hex()+": "+err.Error())
	}
	if rc.Status != ReceiptStatusSuccessful {
		log.Warn("transaction reverted", zap.String("tx", pending.Hash.Hex()))
		return failed(w.Address, "transaction failed: "+pending.Hash.Hex())
	}

	paid := new(uint256.Int).Mul(uint256.NewInt(rc.GasUsed), quote.MaxFeePerGas)
	hash := rc.TxHash
	if hash == (common.Hash{}) {
		hash = pending.Hash
	}
	log.Info("transfer confirmed",
		zap.String("tx", hash.Hex()), zap.String("amount", fmtETH(amount)), zap.String("gas_cost", fmtETH(paid)))
	return succeeded(w.Address, hash, amount, paid)
}

// netAmount computes balance - maxFee*gasLimit - safetyMargin.
// ok is false when that is zero or would underflow.
func (e *TransferExecutor) netAmount(balance, maxFee *uint256.Int) (amount, gasCost *uint256.Int, ok bool) {
	gasCost, overflow := new(uint256.Int).MulOverflow(cloneU256(maxFee), uint256.NewInt(e.params.GasLimit))
	if overflow {
		return nil, gasCost, false
	}
	amount, under := new(uint256.Int).SubOverflow(balance, gasCost)
	if under {
		return nil, gasCost, false
	}
	amount, under = amount.SubOverflow(amount, e.params.safetyMargin())
	if under || amount.IsZero() {
		return nil, gasCost, false
	}
	return amount, gasCost, true
}

func parseKey(s string) (*ecdsa.PrivateKey, error) {
	h := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if h == "" {
		return nil, errors.New("empty private key")
	}
	return gethcrypto.HexToECDSA(h)
}

func outcomeLabel(o TransferOutcome) string {
	switch o.Kind {
	case OutcomeSkipped:
		return string(o.SkipReason)
	case OutcomeFailed:
		return "error"
	}
	return "ok"
}
