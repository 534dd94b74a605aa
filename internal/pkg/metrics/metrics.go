// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shopflow"

var (
	Purchases = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "purchases_total",
		Help:      "Purchase requests by outcome (confirmed, shortage, conflict, error).",
	}, []string{"outcome"})

	Reservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_decrements_total",
		Help:      "Conditional stock decrements by source and result.",
	}, []string{"source", "result"})

	Restocks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "restocks_total",
		Help:      "Successful restock operations.",
	})

	Backorders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backorder_notices_total",
		Help:      "Back-order notices recorded and cleared.",
	}, []string{"action"})

	LowStockItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "low_stock_items",
		Help:      "Products at or below the low-stock threshold in the last scan.",
	})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "availability_cache_lookups_total",
		Help:      "Availability cache lookups by result.",
	}, []string{"result"})

	OutboxPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "outbox_pending",
		Help:      "Outbox records fetched as pending in the last relay pass.",
	})

	OutboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_published_total",
		Help:      "Outbox records published by topic and result.",
	}, []string{"topic", "result"})

	MessagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_consumed_total",
		Help:      "Consumed messages by topic and result.",
	}, []string{"topic", "result"})

	DeadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dead_letters_total",
		Help:      "Messages moved to a dead-letter topic.",
	}, []string{"topic"})

	CollaboratorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collaborator_failures_total",
		Help:      "Tolerated failures of synchronous collaborator calls.",
	}, []string{"call"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notifications handled by kind and delivery result.",
	}, []string{"kind", "result"})
)
