package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Balance discovery
	ProbeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sweep",
		Subsystem: "probe",
		Name:      "fallbacks_total",
		Help:      "Aggregator probes that fell back to per-address reads",
	})

	ProbeWalletErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sweep",
		Subsystem: "probe",
		Name:      "wallet_errors_total",
		Help:      "Wallets whose native balance could not be read in fallback mode",
	})

	ProbeTokenErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sweep",
		Subsystem: "probe",
		Name:      "token_errors_total",
		Help:      "Per-wallet token balance reads that failed and were counted as zero",
	})

	FundedWallets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sweep",
		Subsystem: "filter",
		Name:      "funded_wallets_total",
		Help:      "Wallets kept by the balance filter",
	})

	// Fees
	FeeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sweep",
		Subsystem: "fees",
		Name:      "fallbacks_total",
		Help:      "Fee estimates that used the static fallback quote",
	})

	// Transfers
	TransferOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sweep",
		Subsystem: "transfer",
		Name:      "outcomes_total",
		Help:      "Transfer outcomes by kind and reason",
	}, []string{"outcome", "reason"})

	TransferLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sweep",
		Subsystem: "transfer",
		Name:      "duration_seconds",
		Help:      "Time from balance read to confirmed outcome for one wallet",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	BatchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sweep",
		Subsystem: "orchestrator",
		Name:      "batches_total",
		Help:      "Chunks processed by stage",
	}, []string{"stage"})

	// RPC
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sweep",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "RPC calls by method and status class",
	}, []string{"method", "status"})

	RPCRateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sweep",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "RPC calls delayed by the client-side rate limiter",
	})
)
