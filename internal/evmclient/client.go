package evmclient

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/ligun0805/wallet-sweep/internal/sweepcore"
)

// DefaultAggregator is the deployed balance checker used when none is configured.
var DefaultAggregator = common.HexToAddress("0x3040c40D66cfac7C03E3aAF57f16E9C40Be4Eab8")

type Config struct {
	RPCURL     string
	ChainID    *big.Int // nil: ask the node
	Aggregator common.Address
	BaseFeeMul int64

	Timeout time.Duration
	RPS     float64 // 0 disables client-side limiting
	Burst   int
	Retries int

	ConfirmTimeout time.Duration
	ConfirmPoll    time.Duration

	Log *zap.Logger
}

// Client is the go-ethereum backed sweepcore.ChainClient.
type Client struct {
	ec      *ethclient.Client
	rc      *rpc.Client
	cfg     Config
	chainID *big.Int
	limiter *limiter
	checker abi.ABI
	erc20   abi.ABI
	log     *zap.Logger
}

var _ sweepcore.ChainClient = (*Client)(nil)

// newHTTPClient keeps connections alive across the many small calls a sweep makes.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Dial connects to cfg.RPCURL and resolves the chain ID.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	rc, err := rpc.DialHTTPWithClient(cfg.RPCURL, newHTTPClient(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	c, err := newClient(rc, cfg)
	if err != nil {
		rc.Close()
		return nil, err
	}
	if c.chainID == nil {
		id, err := withRetry(ctx, c, "eth_chainId", func(ctx context.Context) (*big.Int, error) {
			return c.ec.ChainID(ctx)
		})
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("chain id: %w", err)
		}
		c.chainID = id
	}
	c.log.Info("rpc connected", zap.String("chain_id", c.chainID.String()), zap.String("aggregator", c.cfg.Aggregator.Hex()))
	return c, nil
}

func newClient(rc *rpc.Client, cfg Config) (*Client, error) {
	if cfg.Aggregator == (common.Address{}) {
		cfg.Aggregator = DefaultAggregator
	}
	if cfg.BaseFeeMul <= 0 {
		cfg.BaseFeeMul = 2
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 3 * time.Minute
	}
	if cfg.ConfirmPoll <= 0 {
		cfg.ConfirmPoll = time.Second
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	checker, err := abi.JSON(strings.NewReader(balanceCheckerABI))
	if err != nil {
		return nil, fmt.Errorf("balance checker abi: %w", err)
	}
	erc20, err := abi.JSON(strings.NewReader(erc20BalanceABI))
	if err != nil {
		return nil, fmt.Errorf("erc20 abi: %w", err)
	}
	c := &Client{
		ec:      ethclient.NewClient(rc),
		rc:      rc,
		cfg:     cfg,
		checker: checker,
		erc20:   erc20,
		log:     cfg.Log,
		limiter: newLimiter(cfg.RPS, cfg.Burst),
	}
	if cfg.ChainID != nil {
		c.chainID = new(big.Int).Set(cfg.ChainID)
	}
	return c, nil
}

func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

func (c *Client) Close() { c.ec.Close() }
