package metrics

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SourceFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_source_fetches_total",
			Help: "Provider fetch attempts by outcome",
		},
		[]string{"source", "status"},
	)

	SourceRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_source_records_total",
			Help: "Provider records by ingestion outcome (inserted, duplicate, dropped, failed)",
		},
		[]string{"source", "outcome"},
	)

	OracleRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_oracle_requests_total",
			Help: "External oracle calls by outcome",
		},
		[]string{"oracle", "status"},
	)

	OracleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketpulse_oracle_duration_seconds",
			Help:    "External oracle call latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"oracle"},
	)

	ArticlesScored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_articles_scored_total",
			Help: "Articles passed through sentiment scoring by label",
		},
		[]string{"label"},
	)

	ArticlesEnriched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketpulse_articles_enriched_total",
			Help: "Articles that received an impact signal",
		},
	)

	SignalParse = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_signal_parse_total",
			Help: "Generative oracle response parse outcomes",
		},
		[]string{"status"},
	)

	SectorAssignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_sector_assignments_total",
			Help: "Sector resolutions by method",
		},
		[]string{"method"},
	)

	AggregateRows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketpulse_aggregate_rows_total",
			Help: "Sentiment aggregate rows appended",
		},
	)

	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_job_runs_total",
			Help: "Scheduled job runs by outcome (ok, error, skipped)",
		},
		[]string{"job", "status"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketpulse_job_duration_seconds",
			Help:    "Scheduled job duration in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"job"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketpulse_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			SourceFetches,
			SourceRecords,
			OracleRequests,
			OracleDuration,
			ArticlesScored,
			ArticlesEnriched,
			SignalParse,
			SectorAssignments,
			AggregateRows,
			JobRuns,
			JobDuration,
			CacheHits,
			CacheMisses,
			BreakerState,
		)
	})
}

// ObserveOracle records one oracle call started at start.
func ObserveOracle(oracle string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	OracleRequests.WithLabelValues(oracle, status).Inc()
	OracleDuration.WithLabelValues(oracle).Observe(time.Since(start).Seconds())
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
