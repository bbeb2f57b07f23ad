package sweepcore

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/ligun0805/wallet-sweep/internal/metrics"
)

// BalanceFilter runs the wallet set through BalanceProbe chunk by chunk and
// keeps wallets holding more than dust.
type BalanceFilter struct {
	client ChainClient
	probe  *BalanceProbe
	params *Params
}

func NewBalanceFilter(client ChainClient, p *Params) *BalanceFilter {
	return &BalanceFilter{client: client, probe: NewBalanceProbe(client, p), params: p}
}

// Filter returns funded wallets in input order. The only error it returns is
// ctx's, when the run is cancelled between chunks.
func (f *BalanceFilter) Filter(ctx context.Context, wallets []WalletRecord) ([]FundedWallet, error) {
	log := f.params.logger()
	bounds := chunkBounds(len(wallets), f.params.FilterBatchSize)
	var funded []FundedWallet
	for n, b := range bounds {
		chunk := wallets[b.lo:b.hi]
		addrs := make([]common.Address, len(chunk))
		for i, w := range chunk {
			addrs[i] = w.Address
		}

		results := f.probe.Probe(ctx, addrs)
		found := 0
		for i, r := range results {
			if r.Err != nil {
				log.Info("wallet omitted, balance unknown", zap.String("address", r.Address.Hex()), zap.Error(r.Err))
				continue
			}
			if fw, ok := f.annotate(chunk[i], r); ok {
				funded = append(funded, fw)
				found++
			}
		}
		metrics.BatchesProcessed.WithLabelValues("filter").Inc()
		metrics.FundedWallets.Add(float64(found))
		log.Info("balance batch checked",
			zap.Int("batch", n+1), zap.Int("batches", len(bounds)),
			zap.Int("from", b.lo), zap.Int("to", b.hi-1), zap.Int("funded", found))

		if n < len(bounds)-1 {
			if err := f.params.sleep(ctx, f.params.FilterDelay); err != nil {
				return funded, err
			}
		}
	}
	log.Info("balance scan finished", zap.Int("funded", len(funded)), zap.Int("wallets", len(wallets)))
	return funded, nil
}

func (f *BalanceFilter) annotate(w WalletRecord, r ProbeResult) (FundedWallet, bool) {
	fw := FundedWallet{WalletRecord: w, NativeBalance: cloneU256(r.Native)}
	hasNative := fw.NativeBalance.Gt(f.params.minNative())
	for _, t := range f.params.Tokens {
		v, ok := r.Tokens[t.Address]
		if !ok || v == nil || !v.Gt(f.params.tokenThreshold(t)) {
			continue
		}
		if fw.TokenBalances == nil {
			fw.TokenBalances = make(map[common.Address]*uint256.Int)
		}
		fw.TokenBalances[t.Address] = cloneU256(v)
	}
	return fw, hasNative || len(fw.TokenBalances) > 0
}

// FilterByToken keeps wallets holding more than minBalance of a single token.
// Batches whose aggregator call fails are logged and dropped.
func (f *BalanceFilter) FilterByToken(ctx context.Context, wallets []WalletRecord, token Token, minBalance *uint256.Int) ([]FundedWallet, error) {
	if minBalance == nil {
		minBalance = new(uint256.Int)
	}
	log := f.params.logger().With(zap.String("token", token.Address.Hex()))
	bounds := chunkBounds(len(wallets), f.params.FilterBatchSize)
	var funded []FundedWallet
	for n, b := range bounds {
		chunk := wallets[b.lo:b.hi]
		addrs := make([]common.Address, len(chunk))
		for i, w := range chunk {
			addrs[i] = w.Address
		}

		rows, err := f.client.AggregatorTokenBalances(ctx, []common.Address{token.Address}, addrs)
		switch {
		case err != nil:
			log.Warn("token batch failed", zap.Int("batch", n+1), zap.Error(err))
		case len(rows) != 1 || len(rows[0]) != len(addrs):
			log.Warn("token batch failed", zap.Int("batch", n+1), zap.Error(errProbeShape))
		default:
			for i, v := range rows[0] {
				if v == nil || !v.Gt(minBalance) {
					continue
				}
				funded = append(funded, FundedWallet{
					WalletRecord:  chunk[i],
					TokenBalances: map[common.Address]*uint256.Int{token.Address: cloneU256(v)},
				})
			}
		}
		metrics.BatchesProcessed.WithLabelValues("token_scan").Inc()

		if n < len(bounds)-1 {
			if err := f.params.sleep(ctx, f.params.FilterDelay); err != nil {
				return funded, err
			}
		}
	}
	log.Info("token scan finished", zap.Int("funded", len(funded)), zap.Int("wallets", len(wallets)))
	return funded, nil
}
