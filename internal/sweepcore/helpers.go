package sweepcore

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Human-readable helpers (ETH/gwei). Never fed back into arithmetic.
func WeiToEther(x *uint256.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x.ToBig(), -18)
}

func WeiToGwei(x *uint256.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x.ToBig(), -9)
}

func fmtETH(x *uint256.Int) string {
	return WeiToEther(x).StringFixed(6)
}

func fmtGwei(x *uint256.Int) string {
	return WeiToGwei(x).StringFixed(2)
}

type span struct{ lo, hi int }

// chunkBounds splits [0,n) into contiguous spans of at most size.
func chunkBounds(n, size int) []span {
	if size <= 0 || n == 0 {
		return nil
	}
	out := make([]span, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		out = append(out, span{lo, hi})
	}
	return out
}

func cloneU256(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(x)
}
