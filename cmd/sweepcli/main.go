package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/ligun0805/wallet-sweep/internal/config"
	"github.com/ligun0805/wallet-sweep/internal/evmclient"
	"github.com/ligun0805/wallet-sweep/internal/logging"
	"github.com/ligun0805/wallet-sweep/internal/report"
	"github.com/ligun0805/wallet-sweep/internal/storage/postgres"
	"github.com/ligun0805/wallet-sweep/internal/sweepcore"
	"github.com/ligun0805/wallet-sweep/internal/walletfile"
)

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	opts := mustLoadOptions()
	runID := uuid.New()

	log, err := logging.New(logging.Config{Level: opts.settings.LogLevel, Env: opts.settings.LogEnv, RunID: runID.String()})
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		askExitAndQuit(2)
	}
	atExit = append(atExit, func() { _ = log.Sync() })
	defer runAtExit()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.showRun != "" {
		if err := showRun(ctx, opts.settings.DatabaseURL, opts.showRun, os.Stdout); err != nil {
			log.Error("show run failed", zap.Error(err))
			stop()
			askExitAndQuit(1)
		}
		return
	}

	if err := run(ctx, opts, runID, log); err != nil {
		log.Error("sweep aborted", zap.Error(err))
		stop()
		askExitAndQuit(1)
	}
}

// atExit hooks run on both the normal return and askExitAndQuit, since
// os.Exit skips deferred calls.
var atExit []func()

func runAtExit() {
	for i := len(atExit) - 1; i >= 0; i-- {
		atExit[i]()
	}
	atExit = nil
}

// askExitAndQuit waits for Enter before exiting when attached to a console,
// so a double-clicked window does not close before the error is read.
func askExitAndQuit(code int) {
	runAtExit()
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "Exit now? Press Enter to close...")
		_, _ = bufio.NewReader(os.Stdin).ReadBytes('\n')
	}
	os.Exit(code)
}

func run(ctx context.Context, opts cliOptions, runID uuid.UUID, log *zap.Logger) error {
	st := opts.settings

	params, err := st.Params()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	params.Log = log

	clientCfg, err := st.ClientConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	clientCfg.Log = log

	all, format, err := walletfile.Load(st.WalletsFile, log)
	if err != nil {
		return err
	}
	wallets := walletfile.Slice(all, opts.rng)
	log.Info("wallets loaded",
		zap.String("file", st.WalletsFile), zap.String("format", string(format)),
		zap.Int("total", len(all)), zap.Int("selected", len(wallets)), zap.Stringer("range", opts.rng))

	if st.MetricsAddr != "" {
		serveMetrics(ctx, st.MetricsAddr, log)
	}

	client, err := evmclient.Dial(ctx, clientCfg)
	if err != nil {
		return err
	}
	defer client.Close()

	sweeper, err := sweepcore.New(client, params)
	if err != nil {
		return err
	}

	switch {
	case opts.scanToken != "":
		return scanToken(ctx, sweeper, opts, wallets)
	case opts.scanOnly:
		funded, err := sweeper.Scan(ctx, wallets)
		if err != nil {
			return err
		}
		return writeScan(opts.scanOut, funded, params.Tokens)
	}

	started := time.Now()
	result, _, err := sweeper.Sweep(ctx, wallets)
	if err != nil {
		return err
	}
	finished := time.Now()

	if err := report.WriteJSON(st.ResultsPath, report.FromRun(runID.String(), result)); err != nil {
		return err
	}
	report.PrintSummary(os.Stdout, result)
	fmt.Printf("Results saved to %s\n", st.ResultsPath)

	if st.DatabaseURL != "" {
		// The run already happened; persist even if the user interrupted it.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := saveRun(saveCtx, st.DatabaseURL, postgres.Run{
			ID:          runID,
			Destination: params.Destination,
			ChainID:     client.ChainID().Int64(),
			StartedAt:   started,
			FinishedAt:  finished,
			Result:      result,
		}); err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		log.Info("run persisted", zap.String("run_id", runID.String()))
	}
	return nil
}

func scanToken(ctx context.Context, s *sweepcore.Sweeper, opts cliOptions, wallets []sweepcore.WalletRecord) error {
	addr, err := config.ParseAddress(opts.scanToken)
	if err != nil {
		return fmt.Errorf("scan-token: %w", err)
	}
	token, err := opts.settings.Token(addr)
	if err != nil {
		return fmt.Errorf("scan-token: %w", err)
	}
	funded, err := s.ScanToken(ctx, wallets, token)
	if err != nil {
		return err
	}
	return writeScan(opts.scanOut, funded, []sweepcore.Token{token})
}

func writeScan(path string, funded []sweepcore.FundedWallet, tokens []sweepcore.Token) error {
	entries := report.FromFunded(funded, tokens)
	report.PrintFunded(os.Stdout, entries)
	if err := report.WriteJSON(path, entries); err != nil {
		return err
	}
	fmt.Printf("Scan saved to %s\n", path)
	return nil
}

func saveRun(ctx context.Context, dsn string, run postgres.Run) error {
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Migrate(ctx); err != nil {
		return err
	}
	err = postgres.NewRunStore(pool).SaveRun(ctx, run)
	if errors.Is(err, postgres.ErrDuplicateKey) {
		return fmt.Errorf("run %s already stored", run.ID)
	}
	return err
}
