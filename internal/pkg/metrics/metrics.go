package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SnapshotRefreshTotal counts completed snapshot computations per chain.
	SnapshotRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "borrow_engine_snapshot_refresh_total",
		Help: "Number of borrowing-power snapshot computations.",
	}, []string{"chain"})

	// ReconciliationMismatchTotal counts refreshes where the on-chain
	// liquidity figure replaced the locally computed one.
	ReconciliationMismatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "borrow_engine_reconciliation_mismatch_total",
		Help: "Number of snapshots where the on-chain liquidity figure overrode the local computation.",
	}, []string{"chain"})

	// OracleFallbackTotal counts price resolutions served from fallback
	// prices instead of the live oracle.
	OracleFallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "borrow_engine_oracle_fallback_total",
		Help: "Number of price resolutions that fell back to static prices.",
	}, []string{"chain"})

	// DegradedSnapshotTotal counts snapshots emitted in degraded mode.
	DegradedSnapshotTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "borrow_engine_degraded_snapshot_total",
		Help: "Number of snapshots emitted degraded or with incomplete data.",
	}, []string{"chain"})

	// BorrowValidationTotal counts borrow validations by outcome.
	BorrowValidationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "borrow_engine_borrow_validation_total",
		Help: "Number of borrow validations by outcome reason.",
	}, []string{"outcome"})
)

// MustRegister registers all engine metrics with the default registry.
// It panics on duplicate registration, so call it once from main.
func MustRegister() {
	prometheus.MustRegister(
		SnapshotRefreshTotal,
		ReconciliationMismatchTotal,
		OracleFallbackTotal,
		DegradedSnapshotTotal,
		BorrowValidationTotal,
	)
}
