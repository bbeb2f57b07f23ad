package sweepcore

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeSkipped
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// SkipReason values are also the reason strings written to reports.
type SkipReason string

const (
	SkipNoBalance          SkipReason = "no_balance"
	SkipInsufficientForGas SkipReason = "insufficient_for_gas"
)

// TransferOutcome is the terminal result for one wallet in one run.
// Which fields are set depends on Kind.
type TransferOutcome struct {
	Kind    OutcomeKind
	Address common.Address

	// success
	TxHash      common.Hash
	Transferred *uint256.Int
	GasCost     *uint256.Int

	// skipped
	SkipReason SkipReason

	// failed
	Reason string
}

func succeeded(addr common.Address, hash common.Hash, transferred, gasCost *uint256.Int) TransferOutcome {
	return TransferOutcome{Kind: OutcomeSuccess, Address: addr, TxHash: hash, Transferred: transferred, GasCost: gasCost}
}

func skipped(addr common.Address, r SkipReason) TransferOutcome {
	return TransferOutcome{Kind: OutcomeSkipped, Address: addr, SkipReason: r}
}

func failed(addr common.Address, reason string) TransferOutcome {
	return TransferOutcome{Kind: OutcomeFailed, Address: addr, Reason: reason}
}

// ReasonText returns the skip or failure reason, empty for successes.
func (o TransferOutcome) ReasonText() string {
	switch o.Kind {
	case OutcomeSkipped:
		return string(o.SkipReason)
	case OutcomeFailed:
		return o.Reason
	}
	return ""
}

// RunResult buckets outcomes in the order they were produced.
type RunResult struct {
	Successful []TransferOutcome
	Skipped    []TransferOutcome
	Failed     []TransferOutcome
}

func (r *RunResult) add(o TransferOutcome) {
	switch o.Kind {
	case OutcomeSuccess:
		r.Successful = append(r.Successful, o)
	case OutcomeSkipped:
		r.Skipped = append(r.Skipped, o)
	default:
		r.Failed = append(r.Failed, o)
	}
}

func (r RunResult) Len() int {
	return len(r.Successful) + len(r.Skipped) + len(r.Failed)
}

// TotalTransferred sums the amounts of all successful transfers.
func (r RunResult) TotalTransferred() *uint256.Int {
	sum := new(uint256.Int)
	for _, o := range r.Successful {
		if o.Transferred != nil {
			sum.Add(sum, o.Transferred)
		}
	}
	return sum
}

// TotalGasCost sums the gas paid by all successful transfers.
func (r RunResult) TotalGasCost() *uint256.Int {
	sum := new(uint256.Int)
	for _, o := range r.Successful {
		if o.GasCost != nil {
			sum.Add(sum, o.GasCost)
		}
	}
	return sum
}
