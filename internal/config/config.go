package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/ligun0805/wallet-sweep/internal/evmclient"
	"github.com/ligun0805/wallet-sweep/internal/sweepcore"
)

// Settings keeps all configuration options.
// Amounts stay as strings until Params() so a bad value is reported, not defaulted.
type Settings struct {
	RPCURL      string
	Destination string
	WalletsFile string
	ChainID     string
	Aggregator  string

	Tokens           []string
	TokenDecimals    int
	TokenDecimalsMap map[string]int
	MinTokenUnits    string
	MinNative        string // ether units

	GasLimit           int64
	SafetyMarginWei    string
	BasefeeMul         int64
	FallbackMaxFeeGwei string
	FallbackTipGwei    string

	FilterBatchSize     int
	FilterDelayMs       int
	BatchSize           int
	DelayMs             int
	TransferConcurrency int

	RPCTimeoutMs     int
	RPCRPS           float64
	RPCBurst         int
	RPCRetries       int
	ConfirmTimeoutMs int
	ConfirmPollMs    int

	ResultsPath string
	DatabaseURL string
	MetricsAddr string
	LogLevel    string
	LogEnv      string
}

// Load reads settings from environment supporting both UPPER_CASE and lower_case keys.
func Load() Settings {
	get := func(keys []string, def string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				return v
			}
			if v := strings.TrimSpace(os.Getenv(strings.ToLower(k))); v != "" {
				return v
			}
		}
		return def
	}
	getInt := func(keys []string, def int) int {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		return def
	}
	getInt64 := func(keys []string, def int64) int64 {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		return def
	}
	getFloat := func(keys []string, def float64) float64 {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n
		}
		return def
	}

	st := Settings{}
	st.RPCURL = get([]string{"RPC_URL", "RPC"}, "")
	st.Destination = get([]string{"DESTINATION", "WALLET"}, "")
	st.WalletsFile = get([]string{"WALLETS_FILE", "FILE"}, "./wallets.json")
	st.ChainID = get([]string{"CHAIN_ID"}, "")
	st.Aggregator = get([]string{"AGGREGATOR_ADDRESS"}, evmclient.DefaultAggregator.Hex())

	st.Tokens = SplitCSV(get([]string{"TOKENS"}, ""))
	st.TokenDecimals = getInt([]string{"TOKEN_DECIMALS"}, 18)
	st.TokenDecimalsMap = parseDecimalsMap(get([]string{"TOKEN_DECIMALS_MAP"}, ""))
	st.MinTokenUnits = get([]string{"MIN_TOKEN_UNITS"}, "1")
	st.MinNative = get([]string{"MIN_NATIVE"}, "0.0000001")

	st.GasLimit = getInt64([]string{"GAS_LIMIT"}, 21000)
	st.SafetyMarginWei = get([]string{"SAFETY_MARGIN_WEI"}, "1000000000")
	st.BasefeeMul = getInt64([]string{"BASEFEE_MUL", "BASE_MUL"}, 2)
	st.FallbackMaxFeeGwei = get([]string{"FALLBACK_MAX_FEE_GWEI"}, "0.01")
	st.FallbackTipGwei = get([]string{"FALLBACK_TIP_GWEI"}, "0.001")

	st.FilterBatchSize = getInt([]string{"FILTER_BATCH_SIZE", "BALANCE_CHECK_BATCH_SIZE"}, 2500)
	st.FilterDelayMs = getInt([]string{"FILTER_DELAY_MS"}, 200)
	st.BatchSize = getInt([]string{"BATCH_SIZE"}, 2500)
	st.DelayMs = getInt([]string{"DELAY_MS"}, 100)
	st.TransferConcurrency = getInt([]string{"TRANSFER_CONCURRENCY"}, 0)

	st.RPCTimeoutMs = getInt([]string{"RPC_TIMEOUT_MS"}, 30000)
	st.RPCRPS = getFloat([]string{"RPC_RPS"}, 0)
	st.RPCBurst = getInt([]string{"RPC_BURST"}, 1)
	st.RPCRetries = getInt([]string{"RPC_RETRIES"}, 3)
	st.ConfirmTimeoutMs = getInt([]string{"CONFIRM_TIMEOUT_MS"}, 180000)
	st.ConfirmPollMs = getInt([]string{"CONFIRM_POLL_MS"}, 1000)

	st.ResultsPath = get([]string{"RESULTS_PATH"}, "sweep_results.json")
	st.DatabaseURL = get([]string{"DATABASE_URL"}, "")
	st.MetricsAddr = get([]string{"METRICS_ADDR"}, "")
	st.LogLevel = get([]string{"LOG_LEVEL"}, "info")
	st.LogEnv = get([]string{"LOG_ENV"}, "auto")
	return st
}

// SplitCSV trims and drops empty items.
func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDecimalsMap reads "0xToken:6,0xOther:8". Malformed items are skipped.
func parseDecimalsMap(s string) map[string]int {
	out := map[string]int{}
	for _, item := range SplitCSV(s) {
		addr, dec, ok := strings.Cut(item, ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(dec))
		if err != nil {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(addr))] = n
	}
	return out
}

var ErrMissing = errors.New("missing required setting")

// Params converts the settings into the pipeline configuration.
func (st Settings) Params() (sweepcore.Params, error) {
	p := sweepcore.DefaultParams()

	if st.Destination == "" {
		return p, fmt.Errorf("%w: DESTINATION", ErrMissing)
	}
	dest, err := ParseAddress(st.Destination)
	if err != nil {
		return p, fmt.Errorf("DESTINATION: %w", err)
	}
	p.Destination = dest

	for _, raw := range st.Tokens {
		addr, err := ParseAddress(raw)
		if err != nil {
			return p, fmt.Errorf("TOKENS: %w", err)
		}
		token, err := st.Token(addr)
		if err != nil {
			return p, err
		}
		p.Tokens = append(p.Tokens, token)
	}

	if p.MinTokenUnits, err = uint256.FromDecimal(st.MinTokenUnits); err != nil {
		return p, fmt.Errorf("MIN_TOKEN_UNITS: %w", err)
	}
	if p.MinNative, err = scaleDecimal(st.MinNative, 18); err != nil {
		return p, fmt.Errorf("MIN_NATIVE: %w", err)
	}
	if p.SafetyMargin, err = uint256.FromDecimal(st.SafetyMarginWei); err != nil {
		return p, fmt.Errorf("SAFETY_MARGIN_WEI: %w", err)
	}
	if p.FallbackMaxFee, err = scaleDecimal(st.FallbackMaxFeeGwei, 9); err != nil {
		return p, fmt.Errorf("FALLBACK_MAX_FEE_GWEI: %w", err)
	}
	if p.FallbackTip, err = scaleDecimal(st.FallbackTipGwei, 9); err != nil {
		return p, fmt.Errorf("FALLBACK_TIP_GWEI: %w", err)
	}

	if st.GasLimit <= 0 {
		return p, fmt.Errorf("GAS_LIMIT: %d: %w", st.GasLimit, sweepcore.ErrInvalidGasLimit)
	}
	p.GasLimit = uint64(st.GasLimit)
	p.FilterBatchSize = st.FilterBatchSize
	p.FilterDelay = ms(st.FilterDelayMs)
	p.TransferBatchSize = st.BatchSize
	p.InterBatchDelay = ms(st.DelayMs)
	p.TransferConcurrency = st.TransferConcurrency
	return p, p.Validate()
}

// Token resolves the decimals of addr from TOKEN_DECIMALS_MAP or TOKEN_DECIMALS.
// 10^77 is the largest power of ten a uint256 holds.
func (st Settings) Token(addr common.Address) (sweepcore.Token, error) {
	dec := st.TokenDecimals
	if d, ok := st.TokenDecimalsMap[strings.ToLower(addr.Hex())]; ok {
		dec = d
	}
	if dec < 0 || dec > 77 {
		return sweepcore.Token{}, fmt.Errorf("token %s: decimals %d out of range", addr.Hex(), dec)
	}
	return sweepcore.Token{Address: addr, Decimals: uint8(dec)}, nil
}

// ClientConfig converts the RPC-related settings. Log is left for the caller.
func (st Settings) ClientConfig() (evmclient.Config, error) {
	cfg := evmclient.Config{
		RPCURL:         st.RPCURL,
		BaseFeeMul:     st.BasefeeMul,
		Timeout:        ms(st.RPCTimeoutMs),
		RPS:            st.RPCRPS,
		Burst:          st.RPCBurst,
		Retries:        st.RPCRetries,
		ConfirmTimeout: ms(st.ConfirmTimeoutMs),
		ConfirmPoll:    ms(st.ConfirmPollMs),
	}
	if cfg.RPCURL == "" {
		return cfg, fmt.Errorf("%w: RPC_URL", ErrMissing)
	}
	if st.ChainID != "" {
		id, ok := new(big.Int).SetString(st.ChainID, 0)
		if !ok || id.Sign() <= 0 {
			return cfg, fmt.Errorf("CHAIN_ID: invalid %q", st.ChainID)
		}
		cfg.ChainID = id
	}
	if st.Aggregator != "" {
		agg, err := ParseAddress(st.Aggregator)
		if err != nil {
			return cfg, fmt.Errorf("AGGREGATOR_ADDRESS: %w", err)
		}
		cfg.Aggregator = agg
	}
	return cfg, nil
}

// ParseAddress accepts a 0x-prefixed 20-byte hex address in any case.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) || !strings.HasPrefix(strings.ToLower(s), "0x") {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// scaleDecimal parses a human amount and shifts it into base units.
func scaleDecimal(s string, exp int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %s", s)
	}
	out, overflow := uint256.FromBig(d.Shift(exp).BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %s overflows", s)
	}
	return out, nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
