package evmclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const balanceCheckerABI = `[
 {"type":"function","name":"getEthBalances","stateMutability":"view",
  "inputs":[{"name":"wallets","type":"address[]"}],
  "outputs":[{"name":"balances","type":"uint256[]"}]},
 {"type":"function","name":"getMultipleTokenBalances","stateMutability":"view",
  "inputs":[{"name":"tokens","type":"address[]"},{"name":"wallets","type":"address[]"}],
  "outputs":[{"name":"balances","type":"uint256[][]"}]},
 {"type":"function","name":"getTokenBalances","stateMutability":"view",
  "inputs":[{"name":"token","type":"address"},{"name":"wallets","type":"address[]"}],
  "outputs":[{"name":"balances","type":"uint256[]"}]}
]`

const erc20BalanceABI = `[
 {"type":"function","name":"balanceOf","stateMutability":"view",
  "inputs":[{"name":"owner","type":"address"}],
  "outputs":[{"name":"","type":"uint256"}]}
]`

func (c *Client) NativeBalance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	b, err := withRetry(ctx, c, "eth_getBalance", func(ctx context.Context) (*big.Int, error) {
		return c.ec.BalanceAt(ctx, addr, nil)
	})
	if err != nil {
		return nil, err
	}
	return toU256(b)
}

// AggregatorNativeBalances reads native balances of addrs in one eth_call.
func (c *Client) AggregatorNativeBalances(ctx context.Context, addrs []common.Address) ([]*uint256.Int, error) {
	raw, err := c.callChecker(ctx, "getEthBalances", addrs)
	if err != nil {
		return nil, err
	}
	vals, ok := raw.([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getEthBalances: unexpected type %T", raw)
	}
	return toU256s(vals)
}

// AggregatorTokenBalances reads balances indexed [token][wallet]. A single
// token goes through getTokenBalances.
func (c *Client) AggregatorTokenBalances(ctx context.Context, tokens, addrs []common.Address) ([][]*uint256.Int, error) {
	if len(tokens) == 1 {
		raw, err := c.callChecker(ctx, "getTokenBalances", tokens[0], addrs)
		if err != nil {
			return nil, err
		}
		vals, ok := raw.([]*big.Int)
		if !ok {
			return nil, fmt.Errorf("getTokenBalances: unexpected type %T", raw)
		}
		row, err := toU256s(vals)
		if err != nil {
			return nil, err
		}
		return [][]*uint256.Int{row}, nil
	}

	raw, err := c.callChecker(ctx, "getMultipleTokenBalances", tokens, addrs)
	if err != nil {
		return nil, err
	}
	rows, ok := raw.([][]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getMultipleTokenBalances: unexpected type %T", raw)
	}
	out := make([][]*uint256.Int, len(rows))
	for i, r := range rows {
		if out[i], err = toU256s(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Client) TokenBalanceOf(ctx context.Context, token, addr common.Address) (*uint256.Int, error) {
	data, err := c.erc20.Pack("balanceOf", addr)
	if err != nil {
		return nil, err
	}
	ret, err := c.call(ctx, token, data)
	if err != nil {
		return nil, err
	}
	// Some tokens return nothing for unknown holders.
	if len(ret) == 0 {
		return new(uint256.Int), nil
	}
	if len(ret) < 32 {
		return nil, fmt.Errorf("balanceOf: short return (%d bytes)", len(ret))
	}
	v, overflow := uint256.FromBig(new(big.Int).SetBytes(ret[:32]))
	if overflow {
		return nil, fmt.Errorf("balanceOf: value overflows uint256")
	}
	return v, nil
}

// callChecker packs method on the balance checker, calls it and returns
// the single unpacked output.
func (c *Client) callChecker(ctx context.Context, method string, args ...any) (any, error) {
	data, err := c.checker.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: pack: %w", method, err)
	}
	ret, err := c.call(ctx, c.cfg.Aggregator, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	out, err := c.checker.Unpack(method, ret)
	if err != nil {
		return nil, fmt.Errorf("%s: unpack: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s: %d outputs", method, len(out))
	}
	return out[0], nil
}

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}
	return withRetry(ctx, c, "eth_call", func(ctx context.Context) ([]byte, error) {
		return c.ec.CallContract(ctx, msg, nil)
	})
}

func toU256(b *big.Int) (*uint256.Int, error) {
	if b == nil {
		return new(uint256.Int), nil
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("negative balance %s", b)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("balance %s overflows uint256", b)
	}
	return v, nil
}

func toU256s(bs []*big.Int) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(bs))
	for i, b := range bs {
		v, err := toU256(b)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
