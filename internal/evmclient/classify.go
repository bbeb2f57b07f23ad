package evmclient

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ClassifyRPCError returns a coarse class for an RPC error, "ok" for nil.
func ClassifyRPCError(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "rpc_timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "rpc_timeout"
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "execution reverted"):
		return "revert"
	case strings.Contains(s, "too many requests") || strings.Contains(s, "-32005") || strings.Contains(s, "429"):
		return "rpc_rate_limited"
	case strings.Contains(s, "timeout") || strings.Contains(s, "deadline exceeded"):
		return "rpc_timeout"
	case strings.Contains(s, "connection reset") || strings.Contains(s, "connection refused") ||
		strings.Contains(s, "broken pipe") || strings.Contains(s, "eof") ||
		strings.Contains(s, "502") || strings.Contains(s, "503") || strings.Contains(s, "504"):
		return "rpc_unavailable"
	}
	return "rpc_error"
}

// IsTransient reports short-lived provider failures worth polling through.
func IsTransient(err error) bool {
	switch ClassifyRPCError(err) {
	case "rpc_timeout", "rpc_unavailable", "rpc_rate_limited":
		return true
	}
	return false
}
