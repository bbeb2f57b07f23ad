package sweepcore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ligun0805/wallet-sweep/internal/metrics"
)

var (
	errQuoteMissing  = errors.New("fee quote: missing max fee")
	errQuoteTipAbove = errors.New("fee quote: priority fee above max fee")
)

// FeeEstimator turns the chain client's live estimate into a usable quote.
// It never fails: any problem yields the static fallback quote.
type FeeEstimator struct {
	client ChainClient
	params *Params
}

func NewFeeEstimator(client ChainClient, p *Params) *FeeEstimator {
	return &FeeEstimator{client: client, params: p}
}

// Estimate makes a single attempt at a live quote.
func (f *FeeEstimator) Estimate(ctx context.Context) FeeQuote {
	q, err := f.client.FeeEstimate(ctx)
	if err == nil {
		err = checkQuote(q)
	}
	if err != nil {
		metrics.FeeFallbacks.Inc()
		fb := f.params.fallbackQuote()
		f.params.logger().Warn("fee estimate unavailable, using fallback quote",
			zap.Error(err), zap.String("max_fee_gwei", fb.DisplayGwei.String()))
		return fb
	}
	if q.MaxPriorityFeePerGas == nil {
		q.MaxPriorityFeePerGas = cloneU256(f.params.FallbackTip)
		if q.MaxPriorityFeePerGas.Gt(q.MaxFeePerGas) {
			q.MaxPriorityFeePerGas.Set(q.MaxFeePerGas)
		}
	}
	if q.DisplayGwei.IsZero() {
		q.DisplayGwei = WeiToGwei(q.MaxFeePerGas)
	}
	return q
}

func checkQuote(q FeeQuote) error {
	if q.MaxFeePerGas == nil || q.MaxFeePerGas.IsZero() {
		return errQuoteMissing
	}
	if q.MaxPriorityFeePerGas != nil && q.MaxPriorityFeePerGas.Gt(q.MaxFeePerGas) {
		return errQuoteTipAbove
	}
	return nil
}

func (p *Params) fallbackQuote() FeeQuote {
	maxFee := cloneU256(p.FallbackMaxFee)
	tip := cloneU256(p.FallbackTip)
	if tip.Gt(maxFee) {
		tip.Set(maxFee)
	}
	return FeeQuote{
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: tip,
		DisplayGwei:          WeiToGwei(maxFee),
		Fallback:             true,
	}
}
