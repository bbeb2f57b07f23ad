package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ligun0805/wallet-sweep/internal/config"
	"github.com/ligun0805/wallet-sweep/internal/walletfile"
)

type cliOptions struct {
	settings  config.Settings
	rng       walletfile.Range
	scanOnly  bool
	scanToken string
	scanOut   string
	showRun   string
}

// mustLoadOptions layers flags over environment settings. Positional
// arguments are the optional [start [end]] wallet range.
func mustLoadOptions() cliOptions {
	var o cliOptions
	st := config.Load()
	var tokensCSV string

	flag.StringVar(&st.RPCURL, "rpc", st.RPCURL, "RPC endpoint URL (RPC_URL)")
	flag.StringVar(&st.Destination, "destination", st.Destination, "Address receiving swept funds (DESTINATION)")
	flag.StringVar(&st.WalletsFile, "file", st.WalletsFile, "Wallets file (WALLETS_FILE)")
	flag.StringVar(&tokensCSV, "tokens", strings.Join(st.Tokens, ","), "Comma separated token contracts to detect (TOKENS)")
	flag.IntVar(&st.FilterBatchSize, "filter-batch-size", st.FilterBatchSize, "Wallets per balance check call (FILTER_BATCH_SIZE)")
	flag.IntVar(&st.BatchSize, "batch-size", st.BatchSize, "Wallets per transfer batch (BATCH_SIZE)")
	flag.IntVar(&st.DelayMs, "delay-ms", st.DelayMs, "Pause between transfer batches in ms (DELAY_MS)")
	flag.IntVar(&st.TransferConcurrency, "concurrency", st.TransferConcurrency, "Max concurrent transfers per batch, 0 = whole batch (TRANSFER_CONCURRENCY)")
	flag.StringVar(&st.ResultsPath, "results", st.ResultsPath, "Results JSON path (RESULTS_PATH)")
	flag.StringVar(&st.DatabaseURL, "db", st.DatabaseURL, "Postgres DSN for run history (DATABASE_URL)")
	flag.StringVar(&st.MetricsAddr, "metrics-addr", st.MetricsAddr, "Serve Prometheus metrics on this address (METRICS_ADDR)")
	flag.StringVar(&st.LogLevel, "log-level", st.LogLevel, "debug|info|warn|error (LOG_LEVEL)")
	flag.BoolVar(&o.scanOnly, "scan-only", false, "Only list funded wallets, do not transfer")
	flag.StringVar(&o.scanToken, "scan-token", "", "Only list wallets holding this token, do not transfer")
	flag.StringVar(&o.scanOut, "scan-out", "funded_wallets.json", "Scan report JSON path")
	flag.StringVar(&o.showRun, "show-run", "", "Print a stored run by ID from the database and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [start [end]]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	st.Tokens = config.SplitCSV(tokensCSV)

	if o.showRun != "" {
		if st.DatabaseURL == "" {
			fmt.Fprintln(os.Stderr, "missing database: set -db or DATABASE_URL")
			askExitAndQuit(2)
		}
		o.settings = st
		return o
	}

	rng, err := walletfile.ParseRange(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		askExitAndQuit(2)
	}
	if st.RPCURL == "" {
		fmt.Fprintln(os.Stderr, "missing RPC: set -rpc or RPC_URL")
		askExitAndQuit(2)
	}
	if st.Destination == "" {
		fmt.Fprintln(os.Stderr, "missing destination: set -destination or DESTINATION")
		askExitAndQuit(2)
	}
	o.settings = st
	o.rng = rng
	return o
}
