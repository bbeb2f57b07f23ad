package sweepcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/ligun0805/wallet-sweep/internal/metrics"
)

var errProbeShape = errors.New("aggregator: unexpected result shape")

// BalanceProbe reads native and token balances for a batch of addresses.
// It prefers the aggregator contract and degrades to one read per address
// (and per address/token pair) when the batched call fails.
type BalanceProbe struct {
	client ChainClient
	params *Params
}

func NewBalanceProbe(client ChainClient, p *Params) *BalanceProbe {
	return &BalanceProbe{client: client, params: p}
}

// Probe returns one result per address, in input order.
func (b *BalanceProbe) Probe(ctx context.Context, addrs []common.Address) []ProbeResult {
	if len(addrs) == 0 {
		return nil
	}
	res, err := b.primary(ctx, addrs)
	if err == nil {
		return res
	}
	metrics.ProbeFallbacks.Inc()
	b.params.logger().Warn("aggregator probe failed, reading balances one by one",
		zap.Int("addresses", len(addrs)), zap.Error(err))
	return b.fallback(ctx, addrs)
}

func (b *BalanceProbe) primary(ctx context.Context, addrs []common.Address) ([]ProbeResult, error) {
	natives, err := b.client.AggregatorNativeBalances(ctx, addrs)
	if err != nil {
		return nil, fmt.Errorf("native balances: %w", err)
	}
	if len(natives) != len(addrs) {
		return nil, fmt.Errorf("native balances: %w: got %d for %d addresses", errProbeShape, len(natives), len(addrs))
	}

	tokens := b.params.tokenAddresses()
	var byToken [][]*uint256.Int
	if len(tokens) > 0 {
		byToken, err = b.client.AggregatorTokenBalances(ctx, tokens, addrs)
		if err != nil {
			return nil, fmt.Errorf("token balances: %w", err)
		}
		if len(byToken) != len(tokens) {
			return nil, fmt.Errorf("token balances: %w: got %d rows for %d tokens", errProbeShape, len(byToken), len(tokens))
		}
		for i, row := range byToken {
			if len(row) != len(addrs) {
				return nil, fmt.Errorf("token balances: %w: token %s has %d entries", errProbeShape, tokens[i].Hex(), len(row))
			}
		}
	}

	out := make([]ProbeResult, len(addrs))
	for i, a := range addrs {
		if natives[i] == nil {
			return nil, fmt.Errorf("native balances: %w: nil entry at %d", errProbeShape, i)
		}
		r := ProbeResult{Address: a, Native: natives[i], Tokens: make(map[common.Address]*uint256.Int, len(tokens))}
		for t, tok := range tokens {
			v := byToken[t][i]
			if v == nil {
				v = new(uint256.Int)
			}
			r.Tokens[tok] = v
		}
		out[i] = r
	}
	return out, nil
}

// fallback is fully serialized to stay gentle on an endpoint that just failed.
func (b *BalanceProbe) fallback(ctx context.Context, addrs []common.Address) []ProbeResult {
	log := b.params.logger()
	tokens := b.params.tokenAddresses()
	out := make([]ProbeResult, len(addrs))
	for i, a := range addrs {
		r := ProbeResult{Address: a, Tokens: make(map[common.Address]*uint256.Int, len(tokens))}
		native, err := b.client.NativeBalance(ctx, a)
		if err != nil {
			metrics.ProbeWalletErrors.Inc()
			log.Warn("native balance read failed", zap.String("address", a.Hex()), zap.Error(err))
			r.Err = err
			out[i] = r
			continue
		}
		r.Native = cloneU256(native)
		for _, tok := range tokens {
			v, err := b.client.TokenBalanceOf(ctx, tok, a)
			if err != nil || v == nil {
				metrics.ProbeTokenErrors.Inc()
				log.Debug("token balance read failed, counting as zero",
					zap.String("address", a.Hex()), zap.String("token", tok.Hex()), zap.Error(err))
				v = new(uint256.Int)
			}
			r.Tokens[tok] = v
		}
		out[i] = r
	}
	return out
}
