package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/station-tasks-api/internal/models"
)

// Submission outcomes recorded by MetricsService.
const (
	OutcomeAwarded  = "awarded"
	OutcomeRepeat   = "repeat"
	OutcomeRejected = "rejected"
)

// MetricsService owns the Prometheus registry for HTTP, cache, store and
// scoring instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	submissions        *prometheus.CounterVec
	pointsAwarded      prometheus.Counter
	reversals          prometheus.Counter
	pointsReversed     prometheus.Counter
	focusChanges       *prometheus.CounterVec
	cooldownRejections prometheus.Counter

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	dbQueryCount         uint64
	dbQueryDurationTotal uint64
	submissionCount      uint64
	pointsTotal          uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "leaderboard_cache_latency_seconds",
			Help:    "Latency for leaderboard cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "leaderboard_cache_write_seconds",
			Help:    "Latency for leaderboard cache writes",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "leaderboard_cache_hit_ratio",
			Help: "Ratio of leaderboard cache hits to lookups",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leaderboard_cache_hits_total",
			Help: "Total leaderboard cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leaderboard_cache_misses_total",
			Help: "Total leaderboard cache misses",
		}),
		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of store operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "task_submissions_total",
			Help: "Submissions by scoring outcome",
		}, []string{"outcome"}),
		pointsAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "task_points_awarded_total",
			Help: "Points awarded to participants",
		}),
		reversals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "task_abnormal_reversals_total",
			Help: "Submissions marked abnormal",
		}),
		pointsReversed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "task_points_reversed_total",
			Help: "Points removed by abnormal reversals",
		}),
		focusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "focus_task_changes_total",
			Help: "Focus designation changes",
		}, []string{"direction"}),
		cooldownRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "focus_cooldown_rejections_total",
			Help: "Focus toggles refused while the invite code was cooling down",
		}),
	}

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite,
		m.cacheHitRatio, m.cacheHits, m.cacheMisses, m.dbQueryDuration,
		m.submissions, m.pointsAwarded, m.reversals, m.pointsReversed, m.focusChanges, m.cooldownRejections,
		collectors.NewGoCollector(),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records store operation timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.dbQueryCount, 1)
	atomic.AddUint64(&m.dbQueryDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordSubmission counts a scored submission.
func (m *MetricsService) RecordSubmission(outcome string, points int) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
	if outcome == OutcomeRejected {
		return
	}
	atomic.AddUint64(&m.submissionCount, 1)
	if points > 0 {
		m.pointsAwarded.Add(float64(points))
		atomic.AddUint64(&m.pointsTotal, uint64(points))
	}
}

// RecordReversal counts an abnormal marking and the points it removed.
func (m *MetricsService) RecordReversal(points int) {
	if m == nil {
		return
	}
	m.reversals.Inc()
	if points > 0 {
		m.pointsReversed.Add(float64(points))
	}
}

// RecordFocusChange counts a focus flip.
func (m *MetricsService) RecordFocusChange(focus bool) {
	if m == nil {
		return
	}
	direction := "unset"
	if focus {
		direction = "set"
	}
	m.focusChanges.WithLabelValues(direction).Inc()
}

// RecordCooldownRejection counts a refused focus toggle.
func (m *MetricsService) RecordCooldownRejection() {
	if m == nil {
		return
	}
	m.cooldownRejections.Inc()
}

// Snapshot returns aggregated metrics for the JSON metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	dbCount := atomic.LoadUint64(&m.dbQueryCount)
	dbDuration := atomic.LoadUint64(&m.dbQueryDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	var avgDBMs float64
	if dbCount > 0 {
		avgDBMs = float64(dbDuration) / float64(dbCount) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		DBQueryCount:             dbCount,
		AverageDBQueryDurationMs: avgDBMs,
		SubmissionsRecorded:      atomic.LoadUint64(&m.submissionCount),
		PointsAwarded:            atomic.LoadUint64(&m.pointsTotal),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
