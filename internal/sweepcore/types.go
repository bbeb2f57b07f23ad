package sweepcore

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// WalletRecord is one controlled wallet as read from the wallet source.
type WalletRecord struct {
	Address    common.Address
	PrivateKey string
}

// FundedWallet is a wallet that passed the balance filter.
// TokenBalances only carries tokens above their threshold.
type FundedWallet struct {
	WalletRecord
	NativeBalance *uint256.Int
	TokenBalances map[common.Address]*uint256.Int
}

// FeeQuote is valid for a single submission attempt.
type FeeQuote struct {
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int
	DisplayGwei          decimal.Decimal // logging only
	Fallback             bool
}

// ProbeResult holds the balances observed for one address.
// Err is set when the address could not be read at all.
type ProbeResult struct {
	Address common.Address
	Native  *uint256.Int
	Tokens  map[common.Address]*uint256.Int
	Err     error
}

// PendingTx identifies a submitted transfer.
type PendingTx struct {
	Hash  common.Hash
	From  common.Address
	Nonce uint64
}

// Receipt is the part of a transaction receipt the sweep cares about.
type Receipt struct {
	TxHash      common.Hash
	Status      uint64
	GasUsed     uint64
	BlockNumber uint64
}

// ReceiptStatusSuccessful matches the EVM receipt status for a successful tx.
const ReceiptStatusSuccessful = 1

// ChainClient is everything the pipeline needs from the chain.
// Implementations must be safe for concurrent use.
type ChainClient interface {
	NativeBalance(ctx context.Context, addr common.Address) (*uint256.Int, error)
	FeeEstimate(ctx context.Context) (FeeQuote, error)
	AggregatorNativeBalances(ctx context.Context, addrs []common.Address) ([]*uint256.Int, error)
	// AggregatorTokenBalances is indexed [token][wallet].
	AggregatorTokenBalances(ctx context.Context, tokens, addrs []common.Address) ([][]*uint256.Int, error)
	TokenBalanceOf(ctx context.Context, token, addr common.Address) (*uint256.Int, error)
	SendTransfer(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, amount *uint256.Int, quote FeeQuote, gasLimit uint64) (PendingTx, error)
	AwaitConfirmation(ctx context.Context, tx PendingTx) (Receipt, error)
}
