package obvy

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsInternal owns a private prometheus registry so tests and
// several runs in one process never collide on the default one
type StatsInternal struct {
	Registry *prometheus.Registry

	fetches   *prometheus.CounterVec
	fetchTime prometheus.Histogram
	retries   prometheus.Counter
	zeroFills *prometheus.CounterVec
	cache     *prometheus.CounterVec
	stages    *prometheus.HistogramVec
	www       *prometheus.CounterVec
	lastRun   prometheus.Gauge
	residual  prometheus.Gauge
}

func NewStatsInternal() *StatsInternal {
	reg := prometheus.NewRegistry()
	s := &StatsInternal{
		Registry: reg,
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ringdeform_archiver_fetches_total",
			Help: "Archiver channel fetches, labeled by outcome.",
		}, []string{"outcome"}),
		fetchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ringdeform_archiver_fetch_seconds",
			Help:    "Time to fetch one channel, retries included.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringdeform_archiver_retries_total",
			Help: "Archiver requests retried after a failure.",
		}),
		zeroFills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ringdeform_zero_filled_total",
			Help: "Channels or points replaced by zeros because no data was returned.",
		}, []string{"kind"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ringdeform_cache_lookups_total",
			Help: "Archiver response cache lookups, labeled by result.",
		}, []string{"result"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ringdeform_stage_seconds",
			Help:    "Duration of each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"stage"}),
		www: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ringdeform_http_requests_total",
			Help: "HTTP API requests, labeled by status code and method.",
		}, []string{"code", "method"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ringdeform_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run.",
		}),
		residual: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ringdeform_residual_rms_hz",
			Help: "RMS of the well residual of the last completed run.",
		}),
	}
	reg.MustRegister(
		s.fetches, s.fetchTime, s.retries, s.zeroFills, s.cache,
		s.stages, s.www, s.lastRun, s.residual,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return s
}

// Handler serves the registry in the prometheus text format
func (s *StatsInternal) Handler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{Registry: s.Registry})
}

func (s *StatsInternal) RecFetch(outcome string, d time.Duration) {
	s.fetches.WithLabelValues(outcome).Inc()
	s.fetchTime.Observe(d.Seconds())
}

func (s *StatsInternal) RecRetry() { s.retries.Inc() }

func (s *StatsInternal) RecZeroFill(string) { s.zeroFills.WithLabelValues("channel").Inc() }

// RecMissingPoints counts polygon points zero-filled by the geometry engine
func (s *StatsInternal) RecMissingPoints(n int) {
	s.zeroFills.WithLabelValues("point").Add(float64(n))
}

func (s *StatsInternal) RecCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	s.cache.WithLabelValues(result).Inc()
}

func (s *StatsInternal) RecStage(stage string, d time.Duration) {
	s.stages.WithLabelValues(stage).Observe(d.Seconds())
}

func (s *StatsInternal) RecWWW(code, method string) { s.www.WithLabelValues(code, method).Inc() }

// RecRun marks a completed run and its residual RMS
func (s *StatsInternal) RecRun(at time.Time, residualRMS float64) {
	s.lastRun.Set(float64(at.Unix()))
	s.residual.Set(residualRMS)
}
