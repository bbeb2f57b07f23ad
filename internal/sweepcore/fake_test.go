package sweepcore

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	errRPCDown = errors.New("503 service unavailable")
	destAddr   = common.HexToAddress("0x00000000000000000000000000000000000000d5")
	tokenA     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenB     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// fakeChain is an in-memory ChainClient. Zero values mean "empty chain,
// everything succeeds".
type fakeChain struct {
	mu sync.Mutex

	native    map[common.Address]*uint256.Int
	tokens    map[common.Address]map[common.Address]*uint256.Int // token -> wallet -> balance
	nativeErr map[common.Address]error
	tokenErr  map[common.Address]error // by token, fallback path only

	aggErr      error
	aggShort    bool
	quote       FeeQuote
	quoteErr    error
	sendErr     error
	awaitErr    error
	revert      bool
	gasUsed     uint64
	panicOnSend bool

	calls  map[string]int
	events []string
	sent   []sentTransfer
	nonce  uint64
}

type sentTransfer struct {
	From     common.Address
	To       common.Address
	Amount   *uint256.Int
	Quote    FeeQuote
	GasLimit uint64
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		native:    map[common.Address]*uint256.Int{},
		tokens:    map[common.Address]map[common.Address]*uint256.Int{},
		nativeErr: map[common.Address]error{},
		tokenErr:  map[common.Address]error{},
		calls:     map[string]int{},
		gasUsed:   21000,
	}
}

func (f *fakeChain) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeChain) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeChain) event(e string) {
	f.mu.Lock()
	f.events = append(f.events, e)
	f.mu.Unlock()
}

func (f *fakeChain) setToken(token, wallet common.Address, v uint64) {
	if f.tokens[token] == nil {
		f.tokens[token] = map[common.Address]*uint256.Int{}
	}
	f.tokens[token][wallet] = uint256.NewInt(v)
}

func (f *fakeChain) balance(addr common.Address) *uint256.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.native[addr]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

func (f *fakeChain) tokenBalance(token, addr common.Address) *uint256.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.tokens[token][addr]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

func (f *fakeChain) NativeBalance(_ context.Context, addr common.Address) (*uint256.Int, error) {
	f.record("NativeBalance")
	f.mu.Lock()
	err := f.nativeErr[addr]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.balance(addr), nil
}

func (f *fakeChain) FeeEstimate(context.Context) (FeeQuote, error) {
	f.record("FeeEstimate")
	if f.quoteErr != nil {
		return FeeQuote{}, f.quoteErr
	}
	return f.quote, nil
}

func (f *fakeChain) AggregatorNativeBalances(_ context.Context, addrs []common.Address) ([]*uint256.Int, error) {
	f.record("AggregatorNativeBalances")
	if f.aggErr != nil {
		return nil, f.aggErr
	}
	out := make([]*uint256.Int, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, f.balance(a))
	}
	if f.aggShort && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeChain) AggregatorTokenBalances(_ context.Context, tokens, addrs []common.Address) ([][]*uint256.Int, error) {
	f.record("AggregatorTokenBalances")
	if f.aggErr != nil {
		return nil, f.aggErr
	}
	out := make([][]*uint256.Int, len(tokens))
	for t, tok := range tokens {
		out[t] = make([]*uint256.Int, len(addrs))
		for i, a := range addrs {
			out[t][i] = f.tokenBalance(tok, a)
		}
	}
	return out, nil
}

func (f *fakeChain) TokenBalanceOf(_ context.Context, token, addr common.Address) (*uint256.Int, error) {
	f.record("TokenBalanceOf")
	f.mu.Lock()
	err := f.tokenErr[token]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.tokenBalance(token, addr), nil
}

func (f *fakeChain) SendTransfer(_ context.Context, key *ecdsa.PrivateKey, to common.Address, amount *uint256.Int, quote FeeQuote, gasLimit uint64) (PendingTx, error) {
	f.record("SendTransfer")
	if f.panicOnSend {
		panic("boom")
	}
	if f.sendErr != nil {
		return PendingTx{}, f.sendErr
	}
	from := gethcrypto.PubkeyToAddress(key.PublicKey)
	f.event("send:" + from.Hex())
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonce++
	f.sent = append(f.sent, sentTransfer{From: from, To: to, Amount: new(uint256.Int).Set(amount), Quote: quote, GasLimit: gasLimit})
	return PendingTx{Hash: common.BigToHash(new(uint256.Int).SetUint64(f.nonce).ToBig()), From: from, Nonce: f.nonce}, nil
}

func (f *fakeChain) AwaitConfirmation(_ context.Context, tx PendingTx) (Receipt, error) {
	f.record("AwaitConfirmation")
	if f.awaitErr != nil {
		return Receipt{}, f.awaitErr
	}
	status := uint64(ReceiptStatusSuccessful)
	if f.revert {
		status = 0
	}
	return Receipt{TxHash: tx.Hash, Status: status, GasUsed: f.gasUsed, BlockNumber: 1}, nil
}

// sleepRecorder captures pacing delays instead of waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	chain  *fakeChain
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	if s.chain != nil {
		s.chain.event("sleep")
	}
	return nil
}

func (s *sleepRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delays)
}

func testParams(t *testing.T) Params {
	t.Helper()
	p := DefaultParams()
	p.Destination = destAddr
	p.Log = zaptest.NewLogger(t)
	p.FilterDelay = 0
	p.InterBatchDelay = 0
	return p
}

// newWallet returns a wallet record whose key really derives its address.
func newWallet(t *testing.T) WalletRecord {
	t.Helper()
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	return WalletRecord{
		Address:    gethcrypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: hexutil.Encode(gethcrypto.FromECDSA(key)),
	}
}

func newWallets(t *testing.T, n int) []WalletRecord {
	t.Helper()
	out := make([]WalletRecord, n)
	for i := range out {
		out[i] = newWallet(t)
	}
	return out
}

func asFunded(ws ...WalletRecord) []FundedWallet {
	out := make([]FundedWallet, len(ws))
	for i, w := range ws {
		out[i] = FundedWallet{WalletRecord: w}
	}
	return out
}

func gwei(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000))
}

func wei(s string) *uint256.Int {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		panic(fmt.Sprintf("bad wei literal %q: %v", s, err))
	}
	return v
}
