// Package walletfile reads wallet keypairs from the loosely formatted files
// operators keep around: JSON arrays, one JSON pair per line, or dash
// separated text.
package walletfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/ligun0805/wallet-sweep/internal/sweepcore"
)

type Format string

const (
	FormatJSONArray     Format = "json-array"
	FormatJSONLines     Format = "json-lines"
	FormatDelimitedText Format = "delimited-text"
)

var (
	// ErrNotMatched means the input is not in the parser's format at all.
	ErrNotMatched = errors.New("format not matched")
	ErrNoWallets  = errors.New("no wallets found")
)

const (
	addressLen = 42 // 0x + 40 hex
	keyLen     = 66 // 0x + 64 hex
)

type parser struct {
	format Format
	parse  func(data []byte, log *zap.Logger) ([]sweepcore.WalletRecord, error)
}

var parsers = []parser{
	{FormatJSONArray, parseJSONArray},
	{FormatJSONLines, parseJSONLines},
	{FormatDelimitedText, parseDelimitedText},
}

// Load reads path and parses it with the first format that yields a wallet.
func Load(path string, log *zap.Logger) ([]sweepcore.WalletRecord, Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read wallets: %w", err)
	}
	return Parse(data, log)
}

func Parse(data []byte, log *zap.Logger) ([]sweepcore.WalletRecord, Format, error) {
	if log == nil {
		log = zap.NewNop()
	}
	for _, p := range parsers {
		recs, err := p.parse(data, log)
		if errors.Is(err, ErrNotMatched) {
			continue
		}
		if err != nil {
			return nil, p.format, err
		}
		if len(recs) > 0 {
			return recs, p.format, nil
		}
	}
	return nil, "", ErrNoWallets
}

// walletObject is the {publicKey, privateKey} shape written by wallet generators.
type walletObject struct {
	PublicKey  string `json:"publicKey"`
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey"`
}

func parseJSONArray(data []byte, log *zap.Logger) ([]sweepcore.WalletRecord, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, ErrNotMatched
	}
	out := make([]sweepcore.WalletRecord, 0, len(items))
	for i, raw := range items {
		rec, err := decodeItem(raw)
		if err != nil {
			log.Warn("skipping wallet entry", zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeItem(raw json.RawMessage) (sweepcore.WalletRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var obj walletObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return sweepcore.WalletRecord{}, err
		}
		addr := obj.PublicKey
		if addr == "" {
			addr = obj.Address
		}
		return newRecord(addr, obj.PrivateKey)
	}
	var pair []string
	if err := json.Unmarshal(raw, &pair); err != nil {
		return sweepcore.WalletRecord{}, err
	}
	return pairRecord(pair)
}

// pairRecord tells address from key by length, in either order.
func pairRecord(pair []string) (sweepcore.WalletRecord, error) {
	if len(pair) < 2 {
		return sweepcore.WalletRecord{}, fmt.Errorf("pair has %d items", len(pair))
	}
	a, b := strings.TrimSpace(pair[0]), strings.TrimSpace(pair[1])
	addr, key := b, a
	if len(a) == addressLen {
		addr = a
	}
	if len(a) != keyLen {
		key = b
	}
	return newRecord(addr, key)
}

func parseJSONLines(data []byte, log *zap.Logger) ([]sweepcore.WalletRecord, error) {
	var out []sweepcore.WalletRecord
	for n, line := range lines(data) {
		if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
			return nil, ErrNotMatched
		}
		var pair []string
		if err := json.Unmarshal([]byte(line), &pair); err != nil {
			return nil, ErrNotMatched
		}
		rec, err := pairRecord(pair)
		if err != nil {
			log.Warn("skipping wallet line", zap.Int("line", n+1), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// parseDelimitedText splits each line on " - " and then "-", pairing the
// i-th key with the i-th address. A line with keys only derives addresses.
func parseDelimitedText(data []byte, log *zap.Logger) ([]sweepcore.WalletRecord, error) {
	var out []sweepcore.WalletRecord
	for n, line := range lines(data) {
		var keys, addrs []string
		for _, part := range strings.Split(line, " - ") {
			for _, item := range strings.Split(part, "-") {
				item = strings.TrimSpace(item)
				if !has0x(item) {
					continue
				}
				switch len(item) {
				case keyLen:
					keys = append(keys, item)
				case addressLen:
					addrs = append(addrs, item)
				}
			}
		}
		if len(keys) == 0 {
			log.Warn("skipping line without private key", zap.Int("line", n+1))
			continue
		}
		for i, key := range keys {
			addr := ""
			if len(addrs) > 0 {
				if i >= len(addrs) {
					break
				}
				addr = addrs[i]
			}
			rec, err := newRecord(addr, key)
			if err != nil {
				log.Warn("skipping wallet", zap.Int("line", n+1), zap.Error(err))
				continue
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// newRecord validates key and addr. An empty addr is derived from the key.
func newRecord(addr, key string) (sweepcore.WalletRecord, error) {
	key = strings.TrimSpace(key)
	if len(key) != keyLen || !has0x(key) {
		return sweepcore.WalletRecord{}, errors.New("invalid private key")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		prv, err := gethcrypto.HexToECDSA(key[2:])
		if err != nil {
			return sweepcore.WalletRecord{}, errors.New("invalid private key")
		}
		return sweepcore.WalletRecord{Address: gethcrypto.PubkeyToAddress(prv.PublicKey), PrivateKey: key}, nil
	}
	if !has0x(addr) || !common.IsHexAddress(addr) {
		return sweepcore.WalletRecord{}, fmt.Errorf("invalid address %q", addr)
	}
	return sweepcore.WalletRecord{Address: common.HexToAddress(addr), PrivateKey: key}, nil
}

func has0x(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func lines(data []byte) []string {
	var out []string
	for _, l := range strings.Split(string(data), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
