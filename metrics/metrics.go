package metrics

import (
	// External Packages
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ObserverOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anchor_observer_operations_total",
		Help: "Ledger operations read by the observer, by outcome",
	}, []string{"source", "outcome"})

	ObserverReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anchor_observer_reconnects_total",
		Help: "Stream reconnects, by reason",
	}, []string{"source", "reason"})

	ObserverState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "anchor_observer_state",
		Help: "1 for the current observer state, 0 otherwise",
	}, []string{"source", "state"})

	DispatchedPayments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anchor_dispatcher_payments_total",
		Help: "Payments handled by the dispatcher, by protocol and outcome",
	}, []string{"protocol", "outcome"})

	ActionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anchor_action_requests_total",
		Help: "State machine action calls, by action and result",
	}, []string{"action", "result"})

	ActionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "anchor_action_duration_seconds",
		Help:    "State machine action latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"action"})

	PublishedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anchor_events_published_total",
		Help: "Transaction events handed to the event session, by outcome",
	}, []string{"outcome"})
)
