package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HeartbeatsProcessed tracks heartbeat ticks by outcome
	HeartbeatsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turfpoints_heartbeats_total",
			Help: "The total number of heartbeats processed",
		},
		[]string{"status"}, // accrued, duplicate, rejected
	)

	// LedgerOperations tracks ledger credits and debits
	LedgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turfpoints_ledger_operations_total",
			Help: "The total number of ledger operations",
		},
		[]string{"operation", "status"}, // credit/debit, success/rejected/failed
	)

	// PointsEarned tracks total points credited to visitors
	PointsEarned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turfpoints_points_earned_total",
		Help: "The total number of points earned from heartbeats",
	})

	// TaxCollected tracks total points withheld for spot owners
	TaxCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turfpoints_tax_collected_total",
		Help: "The total number of points collected as owner tax",
	})

	// ContestRuns tracks contest scheduler invocations
	ContestRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turfpoints_contest_runs_total",
		Help: "The total number of contest scheduler runs",
	})

	// OwnershipTransfers tracks spot ownership changes by the contest
	OwnershipTransfers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turfpoints_ownership_transfers_total",
		Help: "The total number of spot ownership transfers",
	})

	// ContestSpotFailures tracks per-spot contest errors
	ContestSpotFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turfpoints_contest_spot_failures_total",
		Help: "The total number of spots the contest scheduler failed to process",
	})

	// StaleVisitsClosed tracks visits force-closed by the sweep
	StaleVisitsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turfpoints_stale_visits_closed_total",
		Help: "The total number of visits closed by the staleness sweep",
	})

	// NotificationsSent tracks notification pushes by outcome
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turfpoints_notifications_total",
			Help: "The total number of notification deliveries attempted",
		},
		[]string{"status"}, // success, failed
	)

	// OpenVisits tracks the number of currently open visits
	OpenVisits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turfpoints_open_visits",
		Help: "The number of visits currently open",
	})
)

// RecordHeartbeat records a heartbeat with the given status
func RecordHeartbeat(status string) {
	HeartbeatsProcessed.WithLabelValues(status).Inc()
}

// RecordLedgerOperation records a ledger operation with the given status
func RecordLedgerOperation(operation, status string) {
	LedgerOperations.WithLabelValues(operation, status).Inc()
}

// RecordNotification records a notification delivery attempt
func RecordNotification(status string) {
	NotificationsSent.WithLabelValues(status).Inc()
}
