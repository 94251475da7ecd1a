package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolMetrics records lending pool activity segmented by action and outcome.
type PoolMetrics struct {
	actions   *prometheus.CounterVec
	flashFees prometheus.Counter
}

var (
	poolMetricsOnce sync.Once
	poolRegistry    *PoolMetrics
)

// LendingPoolMetrics returns the lazily-initialised lending pool metrics
// registry.
func LendingPoolMetrics() *PoolMetrics {
	poolMetricsOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			actions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendpool",
				Subsystem: "pool",
				Name:      "actions_total",
				Help:      "Total lending pool actions segmented by action and outcome.",
			}, []string{"action", "outcome"}),
			flashFees: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lendpool",
				Subsystem: "pool",
				Name:      "flash_loan_fee_units_total",
				Help:      "Cumulative flash loan fees collected, in smallest asset units.",
			}),
		}
		prometheus.MustRegister(
			poolRegistry.actions,
			poolRegistry.flashFees,
		)
	})
	return poolRegistry
}

// RecordAction counts one completed or failed pool action.
func (m *PoolMetrics) RecordAction(action string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.actions.WithLabelValues(action, outcome).Inc()
}

// RecordFlashLoanFee adds a collected flash loan fee to the running total.
func (m *PoolMetrics) RecordFlashLoanFee(feeUnits float64) {
	if m == nil || feeUnits <= 0 {
		return
	}
	m.flashFees.Add(feeUnits)
}
