package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/ligun0805/wallet-sweep/internal/sweepcore"
)

// Entry is one wallet line of the results file. Success entries carry the
// tx fields, the others a reason.
type Entry struct {
	Success     bool   `json:"success"`
	Address     string `json:"address"`
	TxHash      string `json:"txHash,omitempty"`
	Transferred string `json:"transferred,omitempty"`
	GasCost     string `json:"gasCost,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Results is the sweep_results.json document.
type Results struct {
	RunID      string  `json:"runId,omitempty"`
	Successful []Entry `json:"successful"`
	Failed     []Entry `json:"failed"`
	Skipped    []Entry `json:"skipped"`
}

func entry(o sweepcore.TransferOutcome) Entry {
	e := Entry{Address: o.Address.Hex()}
	if o.Kind == sweepcore.OutcomeSuccess {
		e.Success = true
		e.TxHash = o.TxHash.Hex()
		e.Transferred = sweepcore.WeiToEther(o.Transferred).String()
		e.GasCost = sweepcore.WeiToEther(o.GasCost).String()
		return e
	}
	e.Reason = o.ReasonText()
	return e
}

// FromRun converts r keeping bucket order. Buckets are never null in JSON.
func FromRun(runID string, r sweepcore.RunResult) Results {
	conv := func(xs []sweepcore.TransferOutcome) []Entry {
		out := make([]Entry, 0, len(xs))
		for _, o := range xs {
			out = append(out, entry(o))
		}
		return out
	}
	return Results{
		RunID:      runID,
		Successful: conv(r.Successful),
		Failed:     conv(r.Failed),
		Skipped:    conv(r.Skipped),
	}
}

// WriteJSON writes v indented to path.
func WriteJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// PrintSummary renders the end-of-run counters and ETH totals.
func PrintSummary(w io.Writer, r sweepcore.RunResult) {
	line := strings.Repeat("=", 60)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "SUMMARY")
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "Successful transfers: %d\n", len(r.Successful))
	fmt.Fprintf(w, "Skipped (no balance/gas): %d\n", len(r.Skipped))
	fmt.Fprintf(w, "Failed: %d\n", len(r.Failed))
	if len(r.Successful) > 0 {
		fmt.Fprintf(w, "Total transferred: %s ETH\n", sweepcore.WeiToEther(r.TotalTransferred()).StringFixed(6))
		fmt.Fprintf(w, "Total gas cost: %s ETH\n", sweepcore.WeiToEther(r.TotalGasCost()).StringFixed(6))
	}
}

// FundedEntry is one line of a scan report.
type FundedEntry struct {
	Address string            `json:"address"`
	Native  string            `json:"native"`
	Tokens  map[string]string `json:"tokens,omitempty"`
}

// FromFunded converts scan output. Token amounts are scaled by the
// decimals found in tokens, raw units otherwise.
func FromFunded(funded []sweepcore.FundedWallet, tokens []sweepcore.Token) []FundedEntry {
	decimals := make(map[string]uint8, len(tokens))
	for _, t := range tokens {
		decimals[t.Address.Hex()] = t.Decimals
	}
	out := make([]FundedEntry, 0, len(funded))
	for _, w := range funded {
		e := FundedEntry{Address: w.Address.Hex(), Native: sweepcore.WeiToEther(w.NativeBalance).String()}
		if len(w.TokenBalances) > 0 {
			e.Tokens = make(map[string]string, len(w.TokenBalances))
			for addr, bal := range w.TokenBalances {
				e.Tokens[addr.Hex()] = FormatUnits(bal, decimals[addr.Hex()])
			}
		}
		out = append(out, e)
	}
	return out
}

// PrintFunded lists funded wallets, token columns in address order.
func PrintFunded(w io.Writer, entries []FundedEntry) {
	for i, e := range entries {
		fmt.Fprintf(w, "%4d  %s  native=%s", i+1, e.Address, e.Native)
		keys := make([]string, 0, len(e.Tokens))
		for k := range e.Tokens {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s=%s", k, e.Tokens[k])
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Total wallets with balance: %d\n", len(entries))
}

// FormatUnits renders x with the given decimals, trailing zeros trimmed.
func FormatUnits(x *uint256.Int, decimals uint8) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x.ToBig(), -int32(decimals)).String()
}
