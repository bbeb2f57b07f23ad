package evmclient

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/wallet-sweep/internal/sweepcore"
)

var (
	walletA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	walletB = common.HexToAddress("0x2222222222222222222222222222222222222222")
	token1  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	token2  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// contractHandler answers eth_call by decoding calldata against the checker
// ABI (aggregator address) or the ERC-20 ABI (anything else).
func contractHandler(t *testing.T, respond func(to common.Address, method string, args []any) any) handlerFunc {
	t.Helper()
	checker, err := abi.JSON(strings.NewReader(balanceCheckerABI))
	require.NoError(t, err)
	erc20, err := abi.JSON(strings.NewReader(erc20BalanceABI))
	require.NoError(t, err)

	return func(req rpcRequest) (any, *rpcError) {
		var call struct {
			To    common.Address `json:"to"`
			Input hexutil.Bytes  `json:"input"`
			Data  hexutil.Bytes  `json:"data"`
		}
		if err := json.Unmarshal(req.Params[0], &call); err != nil {
			return nil, &rpcError{Code: -32602, Message: err.Error()}
		}
		data := call.Input
		if len(data) == 0 {
			data = call.Data
		}
		target := erc20
		if call.To == DefaultAggregator {
			target = checker
		}
		m, err := target.MethodById(data[:4])
		if err != nil {
			return nil, &rpcError{Code: 3, Message: "execution reverted"}
		}
		args, err := m.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, &rpcError{Code: -32602, Message: err.Error()}
		}
		out := respond(call.To, m.Name, args)
		if raw, ok := out.([]byte); ok {
			return hexutil.Encode(raw), nil
		}
		packed, err := m.Outputs.Pack(out)
		if err != nil {
			return nil, &rpcError{Code: -32603, Message: err.Error()}
		}
		return hexutil.Encode(packed), nil
	}
}

func TestClient_NativeBalance(t *testing.T) {
	t.Parallel()

	node := newFakeNode()
	node.on("eth_getBalance", func(rpcRequest) (any, *rpcError) { return "0xde0b6b3a7640000", nil })
	c := dialFake(t, node)

	v, err := c.NativeBalance(context.Background(), walletA)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", v.Dec())
}

func TestClient_RetriesRateLimitedReads(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	attempts := 0
	node := newFakeNode()
	node.on("eth_getBalance", func(rpcRequest) (any, *rpcError) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return nil, &rpcError{Code: -32005, Message: "Too Many Requests"}
		}
		return "0x2a", nil
	})
	c := dialFake(t, node)

	v, err := c.NativeBalance(context.Background(), walletA)
	require.NoError(t, err)
	assert.Equal(t, "42", v.Dec())
	assert.Equal(t, 2, node.count("eth_getBalance"))
}

func TestClient_AggregatorNativeBalances(t *testing.T) {
	t.Parallel()

	node := newFakeNode()
	node.on("eth_call", contractHandler(t, func(to common.Address, method string, args []any) any {
		assert.Equal(t, DefaultAggregator, to)
		assert.Equal(t, "getEthBalances", method)
		wallets := args[0].([]common.Address)
		out := make([]*big.Int, len(wallets))
		for i := range wallets {
			out[i] = big.NewInt(int64(i+1) * 1000)
		}
		return out
	}))
	c := dialFake(t, node)

	got, err := c.AggregatorNativeBalances(context.Background(), []common.Address{walletA, walletB})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1000", got[0].Dec())
	assert.Equal(t, "2000", got[1].Dec())
}

func TestClient_AggregatorTokenBalances(t *testing.T) {
	t.Parallel()

	node := newFakeNode()
	node.on("eth_call", contractHandler(t, func(_ common.Address, method string, args []any) any {
		switch method {
		case "getMultipleTokenBalances":
			tokens := args[0].([]common.Address)
			wallets := args[1].([]common.Address)
			out := make([][]*big.Int, len(tokens))
			for ti := range tokens {
				out[ti] = make([]*big.Int, len(wallets))
				for wi := range wallets {
					out[ti][wi] = big.NewInt(int64(10*(ti+1) + wi))
				}
			}
			return out
		case "getTokenBalances":
			assert.Equal(t, token1, args[0].(common.Address))
			return []*big.Int{big.NewInt(7), big.NewInt(8)}
		}
		t.Errorf("unexpected method %s", method)
		return nil
	}))
	c := dialFake(t, node)
	ctx := context.Background()
	wallets := []common.Address{walletA, walletB}

	rows, err := c.AggregatorTokenBalances(ctx, []common.Address{token1, token2}, wallets)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "10", rows[0][0].Dec())
	assert.Equal(t, "11", rows[0][1].Dec())
	assert.Equal(t, "20", rows[1][0].Dec())
	assert.Equal(t, "21", rows[1][1].Dec())

	single, err := c.AggregatorTokenBalances(ctx, []common.Address{token1}, wallets)
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "7", single[0][0].Dec())
	assert.Equal(t, "8", single[0][1].Dec())
}

func TestClient_RevertIsNotRetried(t *testing.T) {
	t.Parallel()

	node := newFakeNode()
	node.on("eth_call", func(rpcRequest) (any, *rpcError) {
		return nil, &rpcError{Code: 3, Message: "execution reverted"}
	})
	c := dialFake(t, node, func(cfg *Config) { cfg.Retries = 3 })

	_, err := c.AggregatorNativeBalances(context.Background(), []common.Address{walletA})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "getEthBalances")
	assert.Equal(t, 1, node.count("eth_call"))
}

func TestClient_TokenBalanceOf(t *testing.T) {
	t.Parallel()

	node := newFakeNode()
	node.on("eth_call", contractHandler(t, func(to common.Address, method string, args []any) any {
		assert.Equal(t, "balanceOf", method)
		if to == token2 {
			return []byte{}
		}
		assert.Equal(t, walletA, args[0].(common.Address))
		return big.NewInt(123456)
	}))
	c := dialFake(t, node)

	v, err := c.TokenBalanceOf(context.Background(), token1, walletA)
	require.NoError(t, err)
	assert.Equal(t, "123456", v.Dec())

	v, err = c.TokenBalanceOf(context.Background(), token2, walletA)
	require.NoError(t, err)
	assert.True(t, v.IsZero())
}

func TestClient_FeeEstimateFromFeeHistory(t *testing.T) {
	t.Parallel()

	node := newFakeNode()
	node.on("eth_feeHistory", func(rpcRequest) (any, *rpcError) {
		return map[string]any{
			"oldestBlock":   "0x10",
			"baseFeePerGas": []string{"0x3b9aca00", "0x77359400"}, // 1 gwei, next 2 gwei
			"gasUsedRatio":  []float64{0.5},
			"reward":        [][]string{{"0x5f5e100"}},
		}, nil
	})
	node.on("eth_maxPriorityFeePerGas", func(rpcRequest) (any, *rpcError) { return "0x3b9aca00", nil })
	c := dialFake(t, node)

	q, err := c.FeeEstimate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5000000000", q.MaxFeePerGas.Dec(), "2 gwei * 2 + 1 gwei")
	assert.Equal(t, "1000000000", q.MaxPriorityFeePerGas.Dec())
	assert.Equal(t, "5", q.DisplayGwei.String())
	assert.False(t, q.Fallback)
}

func TestClient_FeeEstimateFallsBackToHeaderAndReward(t *testing.T) {
	t.Parallel()

	header, err := json.Marshal(&types.Header{
		Difficulty: big.NewInt(0),
		Number:     big.NewInt(100),
		BaseFee:    big.NewInt(3_000_000_000),
	})
	require.NoError(t, err)

	node := newFakeNode()
	node.on("eth_feeHistory", func(rpcRequest) (any, *rpcError) {
		return map[string]any{
			"oldestBlock":   "0x10",
			"baseFeePerGas": []string{"0x1"},
			"gasUsedRatio":  []float64{0.5},
			"reward":        [][]string{{"0x5f5e100"}},
		}, nil
	})
	node.on("eth_getBlockByNumber", func(rpcRequest) (any, *rpcError) { return json.RawMessage(header), nil })
	c := dialFake(t, node, func(cfg *Config) { cfg.BaseFeeMul = 1 })

	q, err := c.FeeEstimate(context.Background())
	require.NoError(t, err)
	// 3 gwei header base fee + 0.1 gwei reward tip
	assert.Equal(t, "3100000000", q.MaxFeePerGas.Dec())
	assert.Equal(t, "100000000", q.MaxPriorityFeePerGas.Dec())
	assert.Equal(t, 1, node.count("eth_maxPriorityFeePerGas"))
}

func TestClient_FeeEstimateFailsWithoutAnySource(t *testing.T) {
	t.Parallel()

	c := dialFake(t, newFakeNode())
	_, err := c.FeeEstimate(context.Background())
	assert.Error(t, err)
}

func TestClient_SendTransferAndConfirm(t *testing.T) {
	t.Parallel()

	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	from := gethcrypto.PubkeyToAddress(key.PublicKey)
	dest := common.HexToAddress("0x00000000000000000000000000000000000000d5")

	var (
		mu    sync.Mutex
		sent  *types.Transaction
		polls int
	)
	node := newFakeNode()
	node.on("eth_getTransactionCount", func(req rpcRequest) (any, *rpcError) {
		var addr common.Address
		_ = json.Unmarshal(req.Params[0], &addr)
		assert.Equal(t, from, addr)
		return "0x5", nil
	})
	node.on("eth_sendRawTransaction", func(req rpcRequest) (any, *rpcError) {
		var raw hexutil.Bytes
		if err := json.Unmarshal(req.Params[0], &raw); err != nil {
			return nil, &rpcError{Code: -32602, Message: err.Error()}
		}
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			return nil, &rpcError{Code: -32602, Message: err.Error()}
		}
		mu.Lock()
		sent = tx
		mu.Unlock()
		return tx.Hash().Hex(), nil
	})
	node.on("eth_getTransactionReceipt", func(rpcRequest) (any, *rpcError) {
		mu.Lock()
		defer mu.Unlock()
		polls++
		if polls < 3 {
			return nil, nil
		}
		rc := &types.Receipt{
			Type:              types.DynamicFeeTxType,
			Status:            types.ReceiptStatusSuccessful,
			CumulativeGasUsed: 21000,
			GasUsed:           21000,
			Logs:              []*types.Log{},
			TxHash:            sent.Hash(),
			BlockNumber:       big.NewInt(77),
			EffectiveGasPrice: big.NewInt(1),
		}
		b, _ := json.Marshal(rc)
		return json.RawMessage(b), nil
	})
	c := dialFake(t, node)

	quote := sweepcore.FeeQuote{MaxFeePerGas: uint256.NewInt(5_000_000_000), MaxPriorityFeePerGas: uint256.NewInt(1_000_000_000)}
	pending, err := c.SendTransfer(context.Background(), key, dest, uint256.NewInt(1_000_000), quote, 21000)
	require.NoError(t, err)
	assert.Equal(t, from, pending.From)
	assert.Equal(t, uint64(5), pending.Nonce)

	mu.Lock()
	require.NotNil(t, sent)
	assert.Equal(t, pending.Hash, sent.Hash())
	assert.Equal(t, uint8(types.DynamicFeeTxType), sent.Type())
	assert.Equal(t, dest, *sent.To())
	assert.Equal(t, int64(1_000_000), sent.Value().Int64())
	assert.Equal(t, uint64(21000), sent.Gas())
	assert.Equal(t, int64(5_000_000_000), sent.GasFeeCap().Int64())
	assert.Equal(t, int64(1_000_000_000), sent.GasTipCap().Int64())
	assert.Equal(t, int64(1337), sent.ChainId().Int64())
	signer, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1337)), sent)
	require.NoError(t, err)
	assert.Equal(t, from, signer)
	mu.Unlock()

	rc, err := c.AwaitConfirmation(context.Background(), pending)
	require.NoError(t, err)
	assert.Equal(t, uint64(sweepcore.ReceiptStatusSuccessful), rc.Status)
	assert.Equal(t, uint64(21000), rc.GasUsed)
	assert.Equal(t, uint64(77), rc.BlockNumber)
	assert.Equal(t, pending.Hash, rc.TxHash)
	assert.Equal(t, 1, node.count("eth_sendRawTransaction"))
}

func TestClient_SendTransferRejectedOnce(t *testing.T) {
	t.Parallel()

	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	node := newFakeNode()
	node.on("eth_getTransactionCount", func(rpcRequest) (any, *rpcError) { return "0x0", nil })
	node.on("eth_sendRawTransaction", func(rpcRequest) (any, *rpcError) {
		return nil, &rpcError{Code: -32000, Message: "insufficient funds for gas * price + value"}
	})
	c := dialFake(t, node, func(cfg *Config) { cfg.Retries = 3 })

	quote := sweepcore.FeeQuote{MaxFeePerGas: uint256.NewInt(10), MaxPriorityFeePerGas: uint256.NewInt(1)}
	_, err = c.SendTransfer(context.Background(), key, walletB, uint256.NewInt(1), quote, 21000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient funds")
	assert.Equal(t, 1, node.count("eth_sendRawTransaction"))
}

func TestClient_AwaitConfirmationTimesOut(t *testing.T) {
	t.Parallel()

	node := newFakeNode()
	node.on("eth_getTransactionReceipt", func(rpcRequest) (any, *rpcError) { return nil, nil })
	c := dialFake(t, node, func(cfg *Config) { cfg.ConfirmTimeout = 50 * time.Millisecond })

	_, err := c.AwaitConfirmation(context.Background(), sweepcore.PendingTx{Hash: common.HexToHash("0x01")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), err.Error())
}

func TestDial_ResolvesChainID(t *testing.T) {
	t.Parallel()

	node := newFakeNode()
	node.on("eth_chainId", func(rpcRequest) (any, *rpcError) { return "0x2105", nil })
	c := dialFake(t, node, func(cfg *Config) { cfg.ChainID = nil })
	assert.Equal(t, int64(8453), c.ChainID().Int64())
}
