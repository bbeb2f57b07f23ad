package evmclient

import "github.com/ethereum/go-ethereum/common/hexutil"

// feeHistoryResult is the subset of eth_feeHistory the fee estimate reads.
type feeHistoryResult struct {
	OldestBlock  *hexutil.Big     `json:"oldestBlock"`
	BaseFee      []*hexutil.Big   `json:"baseFeePerGas"`
	GasUsedRatio []float64        `json:"gasUsedRatio"`
	Reward       [][]*hexutil.Big `json:"reward,omitempty"`
}
