package sweepcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Token is a watched token contract and the decimals used to scale its threshold.
type Token struct {
	Address  common.Address
	Decimals uint8
}

// Params is the immutable run configuration shared by every pipeline stage.
type Params struct {
	Destination common.Address
	GasLimit    uint64
	// SafetyMargin is subtracted on top of the gas cost before sending.
	SafetyMargin *uint256.Int

	MinNative     *uint256.Int
	Tokens        []Token
	MinTokenUnits *uint256.Int

	FilterBatchSize     int
	FilterDelay         time.Duration
	TransferBatchSize   int
	InterBatchDelay     time.Duration
	TransferConcurrency int // 0 = whole chunk at once

	FallbackMaxFee *uint256.Int
	FallbackTip    *uint256.Int

	Log *zap.Logger

	// Sleep waits between chunks; nil uses a timer honoring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

var (
	ErrNoWallets       = errors.New("no wallets to process")
	ErrNoDestination   = errors.New("destination address is not configured")
	ErrNoChainClient   = errors.New("chain client is not configured")
	ErrInvalidBatch    = errors.New("batch size must be positive")
	ErrInvalidGasLimit = errors.New("gas limit must be positive")

	ErrInvalidFallbackFee = errors.New("fallback max fee must be positive")
)

// DefaultParams mirrors the stock sweep settings. Destination is left empty.
func DefaultParams() Params {
	return Params{
		GasLimit:          21000,
		SafetyMargin:      uint256.NewInt(1_000_000_000),
		MinNative:         uint256.NewInt(100_000_000_000),
		MinTokenUnits:     uint256.NewInt(1),
		FilterBatchSize:   2500,
		FilterDelay:       200 * time.Millisecond,
		TransferBatchSize: 2500,
		InterBatchDelay:   100 * time.Millisecond,
		FallbackMaxFee:    uint256.NewInt(10_000_000),
		FallbackTip:       uint256.NewInt(1_000_000),
	}
}

// Validate reports the first fatal precondition violated by p.
func (p *Params) Validate() error {
	if p.Destination == (common.Address{}) {
		return ErrNoDestination
	}
	if p.GasLimit == 0 {
		return ErrInvalidGasLimit
	}
	if p.FallbackMaxFee == nil || p.FallbackMaxFee.IsZero() {
		return ErrInvalidFallbackFee
	}
	if p.FilterBatchSize <= 0 {
		return fmt.Errorf("filter: %w", ErrInvalidBatch)
	}
	if p.TransferBatchSize <= 0 {
		return fmt.Errorf("transfer: %w", ErrInvalidBatch)
	}
	return nil
}

func (p *Params) logger() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}

func (p *Params) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Params) safetyMargin() *uint256.Int {
	if p.SafetyMargin == nil {
		return new(uint256.Int)
	}
	return p.SafetyMargin
}

func (p *Params) minNative() *uint256.Int {
	if p.MinNative == nil {
		return new(uint256.Int)
	}
	return p.MinNative
}

// tokenThreshold is MinTokenUnits scaled by 10^decimals.
func (p *Params) tokenThreshold(t Token) *uint256.Int {
	units := p.MinTokenUnits
	if units == nil {
		units = uint256.NewInt(1)
	}
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(t.Decimals)))
	out, overflow := new(uint256.Int).MulOverflow(units, scale)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return out
}

func (p *Params) tokenAddresses() []common.Address {
	out := make([]common.Address, len(p.Tokens))
	for i, t := range p.Tokens {
		out[i] = t.Address
	}
	return out
}
