package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticketcore_reservations_expired_total",
		Help: "Reservations moved to EXPIRED by the expiry sweep",
	})

	reservationsReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticketcore_reservations_reconciled_total",
		Help: "Stuck reservations confirmed by the reconciliation sweep",
	})

	sweepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketcore_sweep_errors_total",
		Help: "Per-item failures skipped by background sweeps",
	}, []string{"sweep"})

	queueAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticketcore_queue_admitted_total",
		Help: "Queue entries promoted to ADMITTED",
	})

	deadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticketcore_dead_lettered_total",
		Help: "Messages redirected to the dead-letter topic",
	})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ticketcore_circuit_breaker_state",
		Help: "Circuit breaker state by component (active state = 1)",
	}, []string{"component", "state"})
)

var circuitStates = []string{"closed", "half-open", "open"}

func RecordExpired(n int)           { reservationsExpired.Add(float64(n)) }
func RecordReconciled()             { reservationsReconciled.Inc() }
func RecordSweepError(sweep string) { sweepErrors.WithLabelValues(sweep).Inc() }
func RecordAdmitted(n int)          { queueAdmitted.Add(float64(n)) }
func RecordDeadLetter()             { deadLettered.Inc() }

// SetCircuitBreakerState records the active breaker state for a component.
func SetCircuitBreakerState(component, state string) {
	for _, s := range circuitStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		circuitBreakerState.WithLabelValues(component, s).Set(value)
	}
}
