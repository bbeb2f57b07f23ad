package sweepcore

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ligun0805/wallet-sweep/internal/metrics"
)

// BatchOrchestrator drives TransferExecutor over funded wallets in fixed-size
// chunks: concurrent inside a chunk, sequential across chunks.
type BatchOrchestrator struct {
	exec   *TransferExecutor
	params *Params
}

func NewBatchOrchestrator(client ChainClient, p *Params) *BatchOrchestrator {
	return &BatchOrchestrator{exec: NewTransferExecutor(client, p), params: p}
}

// Run produces one outcome per funded wallet. Failed transfers are not retried.
func (o *BatchOrchestrator) Run(ctx context.Context, funded []FundedWallet) RunResult {
	log := o.params.logger()
	bounds := chunkBounds(len(funded), o.params.TransferBatchSize)
	var res RunResult
	for n, b := range bounds {
		chunk := funded[b.lo:b.hi]
		log.Info("transfer batch started",
			zap.Int("batch", n+1), zap.Int("batches", len(bounds)), zap.Int("wallets", len(chunk)))

		for _, oc := range o.runChunk(ctx, chunk) {
			res.add(oc)
		}
		metrics.BatchesProcessed.WithLabelValues("transfer").Inc()

		if n < len(bounds)-1 {
			log.Info("pausing before next batch", zap.Duration("delay", o.params.InterBatchDelay))
			if err := o.params.sleep(ctx, o.params.InterBatchDelay); err != nil {
				log.Warn("pacing interrupted", zap.Error(err))
			}
		}
	}
	log.Info("sweep finished",
		zap.Int("successful", len(res.Successful)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failed)))
	return res
}

// runChunk fans out one goroutine per wallet; each writes only its own slot.
func (o *BatchOrchestrator) runChunk(ctx context.Context, chunk []FundedWallet) []TransferOutcome {
	out := make([]TransferOutcome, len(chunk))
	if err := ctx.Err(); err != nil {
		for i, w := range chunk {
			out[i] = failed(w.Address, "not attempted: "+err.Error())
		}
		return out
	}

	var g errgroup.Group
	if o.params.TransferConcurrency > 0 {
		g.SetLimit(o.params.TransferConcurrency)
	}
	for i := range chunk {
		g.Go(func() error {
			out[i] = o.exec.Execute(ctx, chunk[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}
