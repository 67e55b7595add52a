package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LedgerConflicts counts rejected counter mutations, by operation and
	// reason (insufficient_stock, out_of_copies, over_release).
	LedgerConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "librastore_ledger_conflicts_total",
		Help: "Inventory ledger mutations rejected by a guard.",
	}, []string{"op", "reason"})

	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "librastore_sweep_runs_total",
		Help: "Background sweep executions.",
	}, []string{"sweep"})

	SweepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "librastore_sweep_failures_total",
		Help: "Background sweep executions that returned an error.",
	}, []string{"sweep"})

	PaymentCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "librastore_payment_callbacks_total",
		Help: "Gateway callbacks processed, by outcome.",
	}, []string{"outcome"})
)
