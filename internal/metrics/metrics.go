package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Filter registry metrics
	ActiveFilters = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainfilters_active_filters",
			Help: "Number of currently installed filters by kind",
		},
		[]string{"kind"},
	)

	filtersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainfilters_filters_created_total",
			Help: "Total number of filters created",
		},
		[]string{"kind"},
	)

	filtersUninstalled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainfilters_filters_uninstalled_total",
			Help: "Total number of filters uninstalled",
		},
	)

	pollsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainfilters_polls_total",
			Help: "Total number of filter polls served",
		},
		[]string{"operation", "kind"},
	)

	// Scan metrics
	scansStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainfilters_scans_total",
			Help: "Total number of log range scans",
		},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chainfilters_scan_duration_seconds",
			Help:    "Duration of log range scans",
			Buckets: prometheus.DefBuckets,
		},
	)

	blocksScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainfilters_blocks_scanned_total",
			Help: "Total number of block headers examined by scans",
		},
	)

	bloomSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainfilters_bloom_skips_total",
			Help: "Total number of blocks/receipts skipped by the bloom pre-filter",
		},
		[]string{"granularity"},
	)

	logsMatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainfilters_logs_matched_total",
			Help: "Total number of logs matched by scans",
		},
	)

	dataGaps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainfilters_scan_data_gaps_total",
			Help: "Total number of scans terminated early by missing chain data",
		},
	)

	// Pending bridge metrics
	pendingFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainfilters_pending_fetches_total",
			Help: "Total number of owned-pending fetches by outcome",
		},
		[]string{"outcome"},
	)

	// Upstream client metrics
	rpcRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainfilters_node_requests_total",
			Help: "Total number of upstream node requests",
		},
		[]string{"method"},
	)

	rpcRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainfilters_node_retries_total",
			Help: "Total number of retried upstream node requests",
		},
		[]string{"method"},
	)

	// Chain cache metrics
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainfilters_cache_lookups_total",
			Help: "Total number of chain cache lookups by object kind and outcome",
		},
		[]string{"object", "outcome"},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainfilters_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainfilters_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainfilters_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func FilterCreatedInc(kind string) {
	filtersCreated.WithLabelValues(kind).Inc()
	ActiveFilters.WithLabelValues(kind).Inc()
}

func FilterUninstalledInc(kind string) {
	filtersUninstalled.Inc()
	ActiveFilters.WithLabelValues(kind).Dec()
}

func PollServedInc(operation, kind string) {
	pollsServed.WithLabelValues(operation, kind).Inc()
}

func ScanStartedInc() {
	scansStarted.Inc()
}

func ScanDurationLog(duration time.Duration) {
	scanDuration.Observe(duration.Seconds())
}

func BlocksScannedInc() {
	blocksScanned.Inc()
}

func BloomSkipInc(granularity string) {
	bloomSkips.WithLabelValues(granularity).Inc()
}

func LogsMatchedInc(count int) {
	logsMatched.Add(float64(count))
}

func DataGapInc() {
	dataGaps.Inc()
}

func PendingFetchInc(outcome string) {
	pendingFetches.WithLabelValues(outcome).Inc()
}

func NodeRequestInc(method string) {
	rpcRequests.WithLabelValues(method).Inc()
}

func NodeRetryInc(method string) {
	rpcRetries.WithLabelValues(method).Inc()
}

func CacheLookupInc(object, outcome string) {
	cacheLookups.WithLabelValues(object, outcome).Inc()
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
