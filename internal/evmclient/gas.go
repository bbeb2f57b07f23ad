package evmclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/ligun0805/wallet-sweep/internal/sweepcore"
)

var errNoBaseFee = errors.New("no baseFee (pre-1559?)")

// FeeEstimate quotes maxFee = nextBaseFee*BaseFeeMul + tip. No retries: the
// caller has a static fallback.
func (c *Client) FeeEstimate(ctx context.Context) (sweepcore.FeeQuote, error) {
	hist, histErr := c.feeHistory(ctx)

	baseFee, err := nextBaseFee(hist, histErr)
	if err != nil {
		c.log.Debug("feeHistory unavailable, using latest header", zap.Error(err))
		if baseFee, err = c.latestBaseFee(ctx); err != nil {
			return sweepcore.FeeQuote{}, fmt.Errorf("base fee: %w", err)
		}
	}

	tip, err := once(ctx, c, "eth_maxPriorityFeePerGas", c.ec.SuggestGasTipCap)
	if err != nil || tip == nil {
		if tip = rewardTip(hist); tip == nil {
			if err == nil {
				err = errors.New("empty tip")
			}
			return sweepcore.FeeQuote{}, fmt.Errorf("priority fee: %w", err)
		}
	}

	maxFee := new(big.Int).Mul(baseFee, big.NewInt(c.cfg.BaseFeeMul))
	maxFee.Add(maxFee, tip)

	mf, overflow := uint256.FromBig(maxFee)
	if overflow {
		return sweepcore.FeeQuote{}, fmt.Errorf("max fee %s overflows", maxFee)
	}
	tp, _ := uint256.FromBig(tip)
	return sweepcore.FeeQuote{
		MaxFeePerGas:         mf,
		MaxPriorityFeePerGas: tp,
		DisplayGwei:          sweepcore.WeiToGwei(mf),
	}, nil
}

// feeHistory requests one pending block with the median reward.
func (c *Client) feeHistory(ctx context.Context) (*feeHistoryResult, error) {
	return once(ctx, c, "eth_feeHistory", func(ctx context.Context) (*feeHistoryResult, error) {
		var out feeHistoryResult
		if err := c.rc.CallContext(ctx, &out, "eth_feeHistory", "0x1", "pending", []int{50}); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// nextBaseFee is the last baseFeePerGas entry, which is the next block's.
func nextBaseFee(hist *feeHistoryResult, err error) (*big.Int, error) {
	if err != nil {
		return nil, err
	}
	if hist == nil || len(hist.BaseFee) < 2 {
		return nil, errors.New("feeHistory: short baseFee array")
	}
	last := hist.BaseFee[len(hist.BaseFee)-1]
	if last == nil {
		return nil, errors.New("feeHistory: parse baseFee")
	}
	return new(big.Int).Set(last.ToInt()), nil
}

func rewardTip(hist *feeHistoryResult) *big.Int {
	if hist == nil {
		return nil
	}
	var best *big.Int
	for _, row := range hist.Reward {
		if len(row) == 0 || row[0] == nil {
			continue
		}
		if v := row[0].ToInt(); best == nil || v.Cmp(best) > 0 {
			best = new(big.Int).Set(v)
		}
	}
	return best
}

func (c *Client) latestBaseFee(ctx context.Context) (*big.Int, error) {
	h, err := withRetry(ctx, c, "eth_getBlockByNumber", func(ctx context.Context) (*types.Header, error) {
		return c.ec.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		return nil, err
	}
	if h.BaseFee == nil {
		return nil, errNoBaseFee
	}
	return new(big.Int).Set(h.BaseFee), nil
}
