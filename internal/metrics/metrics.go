package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bubble_ledger_build_info",
			Help: "Build information of the bubble ledger",
		},
		[]string{"version"},
	)

	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bubble_ledger_operations_total",
			Help: "Total number of ledger operations by outcome",
		},
		[]string{"operation", "status"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bubble_ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations including contention retries",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"operation"},
	)

	ContentionRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bubble_ledger_contention_retries_total",
			Help: "Total number of operations retried after a lock timeout",
		},
		[]string{"operation"},
	)

	SlotsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bubble_ledger_slots_completed_total",
			Help: "Total number of slots that reached capacity",
		},
	)

	QueueAdvances = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bubble_ledger_queue_advances_total",
			Help: "Total number of accounts that left the queue after their last slot completed",
		},
	)

	SlotProgressRecoveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bubble_ledger_slot_progress_recoveries_total",
			Help: "Total number of corrupted slot progress values reset to empty",
		},
	)

	GiveawayBubbles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bubble_ledger_giveaway_bubbles_total",
			Help: "Bubbles handled by giveaway distributions",
		},
		[]string{"category", "disposition"},
	)

	OutboxDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bubble_ledger_outbox_deliveries_total",
			Help: "Total number of outbox delivery attempts",
		},
		[]string{"topic", "status"},
	)

	OutboxPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bubble_ledger_outbox_purged_total",
			Help: "Total number of settled outbox events removed by cleanup",
		},
	)

	QueueMaintenanceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bubble_ledger_queue_maintenance_total",
			Help: "Total number of queue maintenance runs",
		},
		[]string{"status"},
	)
)
