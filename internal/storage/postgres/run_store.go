package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"

	"github.com/ligun0805/wallet-sweep/internal/sweepcore"
)

// Run is one finished sweep as persisted.
type Run struct {
	ID          uuid.UUID
	Destination common.Address
	ChainID     int64
	StartedAt   time.Time
	FinishedAt  time.Time
	Result      sweepcore.RunResult
}

// RunSummary is the sweep_runs row.
type RunSummary struct {
	ID               uuid.UUID
	Destination      string
	ChainID          int64
	StartedAt        time.Time
	FinishedAt       time.Time
	Successful       int
	Skipped          int
	Failed           int
	TotalTransferred *uint256.Int
	TotalGas         *uint256.Int
}

// OutcomeRow is one sweep_outcomes row. Amount fields are nil unless Kind is success.
type OutcomeRow struct {
	Seq         int
	Address     string
	Kind        string
	TxHash      string
	Transferred *uint256.Int
	GasCost     *uint256.Int
	Reason      string
}

// RunStore persists sweep runs and their per-wallet outcomes.
type RunStore struct {
	pool *Pool
}

func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// SaveRun writes the run and all outcomes in one transaction. Outcomes are
// numbered successful, then skipped, then failed.
func (s *RunStore) SaveRun(ctx context.Context, run Run) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	r := run.Result
	_, err = tx.Exec(ctx, `
		INSERT INTO sweep_runs (
			run_id, destination, chain_id, started_at, finished_at,
			successful, skipped, failed, total_transferred_wei, total_gas_wei
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::text::numeric, $10::text::numeric)
	`,
		run.ID, run.Destination.Hex(), run.ChainID, run.StartedAt, run.FinishedAt,
		len(r.Successful), len(r.Skipped), len(r.Failed),
		r.TotalTransferred().Dec(), r.TotalGasCost().Dec(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert sweep run: %w", err)
	}

	const insertOutcome = `
		INSERT INTO sweep_outcomes (
			run_id, seq, address, kind, tx_hash, transferred_wei, gas_cost_wei, reason
		) VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7::text::numeric, $8)
	`
	batch := &pgx.Batch{}
	seq := 0
	for _, bucket := range [][]sweepcore.TransferOutcome{r.Successful, r.Skipped, r.Failed} {
		for _, o := range bucket {
			var txHash, transferred, gasCost, reason *string
			if o.Kind == sweepcore.OutcomeSuccess {
				txHash = ptr(o.TxHash.Hex())
				transferred = decOrNil(o.Transferred)
				gasCost = decOrNil(o.GasCost)
			} else {
				reason = ptr(o.ReasonText())
			}
			batch.Queue(insertOutcome, run.ID, seq, o.Address.Hex(), o.Kind.String(), txHash, transferred, gasCost, reason)
			seq++
		}
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert sweep outcomes: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetRun returns the summary row, or ErrNotFound.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (RunSummary, error) {
	var (
		out              RunSummary
		transferred, gas string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT run_id, destination, chain_id, started_at, finished_at,
		       successful, skipped, failed,
		       total_transferred_wei::text, total_gas_wei::text
		FROM sweep_runs WHERE run_id = $1
	`, id).Scan(
		&out.ID, &out.Destination, &out.ChainID, &out.StartedAt, &out.FinishedAt,
		&out.Successful, &out.Skipped, &out.Failed, &transferred, &gas,
	)
	if err != nil {
		if isNotFoundError(err) {
			return RunSummary{}, ErrNotFound
		}
		return RunSummary{}, fmt.Errorf("get sweep run: %w", err)
	}
	if out.TotalTransferred, err = uint256.FromDecimal(transferred); err != nil {
		return RunSummary{}, fmt.Errorf("total transferred: %w", err)
	}
	if out.TotalGas, err = uint256.FromDecimal(gas); err != nil {
		return RunSummary{}, fmt.Errorf("total gas: %w", err)
	}
	return out, nil
}

// ListOutcomes returns a run's outcomes ordered by seq.
func (s *RunStore) ListOutcomes(ctx context.Context, id uuid.UUID) ([]OutcomeRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, address, kind, COALESCE(tx_hash, ''),
		       transferred_wei::text, gas_cost_wei::text, COALESCE(reason, '')
		FROM sweep_outcomes WHERE run_id = $1 ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query sweep outcomes: %w", err)
	}
	defer rows.Close()

	var out []OutcomeRow
	for rows.Next() {
		var (
			row              OutcomeRow
			transferred, gas *string
		)
		if err := rows.Scan(&row.Seq, &row.Address, &row.Kind, &row.TxHash, &transferred, &gas, &row.Reason); err != nil {
			return nil, fmt.Errorf("scan sweep outcome: %w", err)
		}
		if row.Transferred, err = u256OrNil(transferred); err != nil {
			return nil, err
		}
		if row.GasCost, err = u256OrNil(gas); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func ptr[T any](v T) *T {
	return &v
}

func decOrNil(x *uint256.Int) *string {
	if x == nil {
		return nil
	}
	return ptr(x.Dec())
}

func u256OrNil(s *string) (*uint256.Int, error) {
	if s == nil {
		return nil, nil
	}
	return uint256.FromDecimal(*s)
}
