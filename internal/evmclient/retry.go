package evmclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ligun0805/wallet-sweep/internal/metrics"
)

// limiter is a token bucket in front of every RPC call. nil means unlimited.
type limiter struct {
	l *rate.Limiter
}

func newLimiter(rps float64, burst int) *limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &limiter{l: rate.NewLimiter(rate.Limit(rps), burst)}
}

// wait consumes exactly one token, or returns ctx's error.
func (l *limiter) wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	r := l.l.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	metrics.RPCRateLimitWaits.Inc()
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "too many requests") || strings.Contains(s, "-32005") || strings.Contains(s, "429")
}

func isRevert(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

// withRetry runs a read call with small exponential backoff. Reverts are
// final; rate limiting doubles the backoff.
func withRetry[T any](ctx context.Context, c *Client, method string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		if err := c.limiter.wait(ctx); err != nil {
			return zero, err
		}
		v, err := fn(ctx)
		metrics.RPCCallsTotal.WithLabelValues(method, ClassifyRPCError(err)).Inc()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if isRevert(err) || ctx.Err() != nil || attempt == c.cfg.Retries {
			break
		}
		c.log.Debug("rpc call failed, retrying",
			zap.String("method", method), zap.Int("attempt", attempt), zap.Error(err))
		t := time.NewTimer(backoff)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return zero, lastErr
		}
		if isRateLimitError(err) {
			backoff *= 2
		}
	}
	return zero, lastErr
}

// once runs a call that must not be repeated (fee quotes, submissions).
func once[T any](ctx context.Context, c *Client, method string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := c.limiter.wait(ctx); err != nil {
		return zero, err
	}
	v, err := fn(ctx)
	metrics.RPCCallsTotal.WithLabelValues(method, ClassifyRPCError(err)).Inc()
	return v, err
}
