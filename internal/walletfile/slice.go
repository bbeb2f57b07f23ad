package walletfile

import (
	"fmt"
	"strconv"
	"strings"
)

// Range selects a sub-range of the wallet list. Negative bounds count from
// the end and out-of-range bounds are clamped, so any Range is valid.
type Range struct {
	Start  int
	End    int
	HasEnd bool
}

// ParseRange reads the optional positional [start [end]] arguments.
func ParseRange(args []string) (Range, error) {
	var r Range
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil {
			return r, fmt.Errorf("start index: %w", err)
		}
		r.Start = n
	}
	if len(args) > 1 && strings.TrimSpace(args[1]) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(args[1]))
		if err != nil {
			return r, fmt.Errorf("end index: %w", err)
		}
		r.End, r.HasEnd = n, true
	}
	return r, nil
}

func (r Range) bounds(n int) (lo, hi int) {
	clamp := func(i int) int {
		if i < 0 {
			i += n
		}
		return min(max(i, 0), n)
	}
	lo, hi = clamp(r.Start), n
	if r.HasEnd {
		hi = clamp(r.End)
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func (r Range) String() string {
	if !r.HasEnd {
		return fmt.Sprintf("[%d:]", r.Start)
	}
	return fmt.Sprintf("[%d:%d]", r.Start, r.End)
}

// Slice applies r to xs. The result shares xs's backing array.
func Slice[T any](xs []T, r Range) []T {
	lo, hi := r.bounds(len(xs))
	return xs[lo:hi]
}
