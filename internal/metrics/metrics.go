// Package metrics centralises the Prometheus collectors exported by
// every RIB and switch process (SPEC_FULL.md §6 "Admin/observability
// surface"). Components increment these directly rather than each
// owning a private registry, mirroring the single promhttp.Handler()
// wired in cmd/qumo-relay/main.go and internal/cli/relay.go: one
// process, one /metrics endpoint, one registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AdStore counters (spec §4.1).
var (
	AdsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "advertisements_received_total",
		Help: "Advertisements received on the AdStore port, before loop suppression.",
	})
	AdsDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "advertisements_duplicate_total",
		Help: "Advertisements that did not improve the stored td_path (spec step 3 'not updated').",
	})
	AdsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advertisements_dropped_total",
		Help: "Advertisements dropped, by reason.",
	}, []string{"reason"})
	AdsFloodedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "advertisements_flooded_total",
		Help: "Advertisement copies scheduled for forwarding to a peer RIB.",
	})
)

// PathComputer (spec §4.3).
var (
	GraphRebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "graph_rebuild_duration_seconds",
		Help:    "Duration of one Floyd-Warshall rebuild pass.",
		Buckets: prometheus.DefBuckets,
	})
	GraphVertices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graph_vertices",
		Help: "Vertex count in the most recently rebuilt trust graph.",
	})
	PathRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "path_requests_total",
		Help: "GIVEPATH requests served, by outcome.",
	}, []string{"outcome"})
)

// ForwardingEngine (spec §4.6).
var (
	ForwardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_datagrams_forwarded_total",
		Help: "Overlay datagrams forwarded to another switch or delivered last-mile, by direction.",
	}, []string{"direction"})
	ForwardingDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_datagrams_dropped_total",
		Help: "Overlay datagrams dropped by the forwarding engine, by reason.",
	}, []string{"reason"})
)

// NeighborProber / client prober (spec §4.7).
var (
	ProbeRTT = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "probe_rtt_seconds",
		Help:    "Measured ECHOREQUEST/ECHOREQUESTCLIENT round-trip time.",
		Buckets: prometheus.DefBuckets,
	}, []string{"scope"})
)

// LinkStateManager (spec §4.4).
var (
	LiveSwitches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_switches",
		Help: "Switches currently considered alive by this RIB's LinkStateManager.",
	})
)
