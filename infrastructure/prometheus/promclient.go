package promclient

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var OpenOrderBookGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "open_order_books",
		Help: "number of maintained local order books",
	},
)

var GatewayClientsGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "gateway_clients",
		Help: "number of connected dashboard websocket clients",
	},
)

var DepthUpdatesApplied = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "depth_updates_applied_total",
		Help: "depth diffs applied to local order books",
	},
)

var DepthUpdatesDroppedStale = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "depth_updates_dropped_stale_total",
		Help: "depth diffs dropped because their final id was already applied",
	},
)

var DepthUpdatesOutOfSequence = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "depth_updates_out_of_sequence_total",
		Help: "depth diffs applied despite a small sequence mismatch",
	},
)

var MalformedFrames = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "stream frames dropped because they could not be decoded",
	},
)

var OrderBookResyncs = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "order_book_resyncs_total",
		Help: "full snapshot resyncs triggered by sequence gaps",
	},
)

var SnapshotFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "snapshot_failures_total",
		Help: "failed snapshot fetch attempts",
	},
)

// Handler returns the /metrics handler with all service collectors registered.
func Handler() http.Handler {
	reg := prometheus.NewRegistry()

	reg.MustRegister(OpenOrderBookGauge)
	reg.MustRegister(GatewayClientsGauge)
	reg.MustRegister(DepthUpdatesApplied)
	reg.MustRegister(DepthUpdatesDroppedStale)
	reg.MustRegister(DepthUpdatesOutOfSequence)
	reg.MustRegister(MalformedFrames)
	reg.MustRegister(OrderBookResyncs)
	reg.MustRegister(SnapshotFailures)
	reg.MustRegister(collectors.NewGoCollector())

	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
