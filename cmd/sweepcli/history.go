package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/ligun0805/wallet-sweep/internal/report"
	"github.com/ligun0805/wallet-sweep/internal/storage/postgres"
	"github.com/ligun0805/wallet-sweep/internal/sweepcore"
)

// showRun reads a persisted run back and prints it.
func showRun(ctx context.Context, dsn, rawID string, w io.Writer) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("show-run: %w", err)
	}
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := postgres.NewRunStore(pool)
	run, err := store.GetRun(ctx, id)
	if errors.Is(err, postgres.ErrNotFound) {
		return fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return err
	}
	rows, err := store.ListOutcomes(ctx, id)
	if err != nil {
		return err
	}
	printStoredRun(w, run, rows)
	return nil
}

func printStoredRun(w io.Writer, run postgres.RunSummary, rows []postgres.OutcomeRow) {
	fmt.Fprintf(w, "Run %s  chain=%d  destination=%s\n", run.ID, run.ChainID, run.Destination)
	fmt.Fprintf(w, "Started %s, finished %s\n", run.StartedAt.UTC().Format("2006-01-02 15:04:05"), run.FinishedAt.Sub(run.StartedAt))
	for _, r := range rows {
		switch r.Kind {
		case sweepcore.OutcomeSuccess.String():
			fmt.Fprintf(w, "%4d  %s  %s  tx=%s  amount=%s ETH\n", r.Seq, r.Address, r.Kind, r.TxHash,
				report.FormatUnits(r.Transferred, 18))
		default:
			fmt.Fprintf(w, "%4d  %s  %s  %s\n", r.Seq, r.Address, r.Kind, r.Reason)
		}
	}
	fmt.Fprintf(w, "Successful: %d  Skipped: %d  Failed: %d\n", run.Successful, run.Skipped, run.Failed)
	fmt.Fprintf(w, "Total transferred: %s ETH\n", sweepcore.WeiToEther(run.TotalTransferred).StringFixed(6))
	fmt.Fprintf(w, "Total gas cost: %s ETH\n", sweepcore.WeiToEther(run.TotalGas).StringFixed(6))
}
