package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParsingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "phelnav_parsing_seconds",
		Help:    "Time spent reading a source file into a tree.",
		Buckets: prometheus.DefBuckets,
	})

	IndexBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "phelnav_index_build_seconds",
		Help:    "Time spent on a full project index build.",
		Buckets: prometheus.DefBuckets,
	})

	IndexedFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phelnav_indexed_files",
		Help: "Number of source files currently tracked by the symbol index.",
	})

	IndexedSymbols = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phelnav_indexed_symbols",
		Help: "Number of definitions currently held by the symbol index.",
	})

	IndexedNamespaces = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phelnav_indexed_namespaces",
		Help: "Number of namespace buckets in the symbol index.",
	})

	IndexUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phelnav_index_updates_total",
		Help: "Incremental index mutations by operation.",
	}, []string{"op"})

	ScanFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phelnav_scan_failures_total",
		Help: "Files that could not be read or parsed and contributed no definitions.",
	})

	ResolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "phelnav_resolve_seconds",
		Help:    "Time spent resolving one symbol occurrence.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	ResolveRecoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phelnav_resolve_recovered_total",
		Help: "Resolver operations that hit a malformed tree and returned an empty result.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phelnav_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	BridgePending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phelnav_bridge_pending_files",
		Help: "Files waiting in the live-edit debounce queue.",
	})

	BridgeCoalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phelnav_bridge_coalesced_total",
		Help: "Live-edit notifications absorbed by an already pending entry.",
	})

	ReanalysisTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phelnav_reanalysis_total",
		Help: "Downstream re-analysis notifications delivered.",
	})

	RPCRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phelnav_rpc_requests_total",
		Help: "Editor protocol requests by method.",
	}, []string{"method"})
)
