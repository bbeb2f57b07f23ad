package sweepcore

import (
	"context"

	"go.uber.org/zap"
)

// Sweeper wires the filter and the orchestrator around one chain client.
type Sweeper struct {
	params       Params
	filter       *BalanceFilter
	orchestrator *BatchOrchestrator
}

// New validates p and returns a ready Sweeper. p is copied.
func New(client ChainClient, p Params) (*Sweeper, error) {
	if client == nil {
		return nil, ErrNoChainClient
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &Sweeper{params: p}
	s.filter = NewBalanceFilter(client, &s.params)
	s.orchestrator = NewBatchOrchestrator(client, &s.params)
	return s, nil
}

// Scan returns the funded subset of wallets without moving anything.
func (s *Sweeper) Scan(ctx context.Context, wallets []WalletRecord) ([]FundedWallet, error) {
	if len(wallets) == 0 {
		return nil, ErrNoWallets
	}
	return s.filter.Filter(ctx, wallets)
}

// ScanToken returns wallets holding more than MinTokenUnits of one token.
func (s *Sweeper) ScanToken(ctx context.Context, wallets []WalletRecord, token Token) ([]FundedWallet, error) {
	if len(wallets) == 0 {
		return nil, ErrNoWallets
	}
	return s.filter.FilterByToken(ctx, wallets, token, s.params.tokenThreshold(token))
}

// Sweep filters wallets and sweeps the funded ones. The error is non-nil only
// for fatal preconditions or cancellation during the scan.
func (s *Sweeper) Sweep(ctx context.Context, wallets []WalletRecord) (RunResult, []FundedWallet, error) {
	funded, err := s.Scan(ctx, wallets)
	if err != nil {
		return RunResult{}, funded, err
	}
	if len(funded) == 0 {
		s.params.logger().Info("no wallets with balance found")
		return RunResult{}, nil, nil
	}
	s.params.logger().Info("starting transfers", zap.Int("wallets", len(funded)),
		zap.String("destination", s.params.Destination.Hex()))
	return s.orchestrator.Run(ctx, funded), funded, nil
}
