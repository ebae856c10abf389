package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts ingestion cycles by outcome (ok, noop, locked, failed, quarantined).
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_cycles_total",
			Help: "Total number of ingestion cycles",
		},
		[]string{"result"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracker_cycle_duration_seconds",
			Help:    "Ingestion cycle duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// EventsTotal counts persisted events by result (inserted, duplicate, failed).
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_events_total",
			Help: "Total number of events handled by the persistence gateway",
		},
		[]string{"result"},
	)

	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_transactions_total",
			Help: "Total number of transactions handled by the persistence gateway",
		},
		[]string{"result"},
	)

	CursorBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_cursor_block",
			Help: "Highest block number fully processed",
		},
	)

	ChainHeadBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_chain_head_block",
			Help: "Latest block height reported by the ledger",
		},
	)

	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_rpc_calls_total",
			Help: "Total number of ledger RPC calls",
		},
		[]string{"method", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_http_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"route", "status"},
	)
)

// RecordRPCCall records an RPC call outcome.
func RecordRPCCall(method string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	RPCCallsTotal.WithLabelValues(method, status).Inc()
}
