// Package metrics exposes pipeline counters in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nirsvault"

// Pipeline holds the collectors for ingest runs and dashboard queries.
// It implements etl.Observer and service.RunObserver.
type Pipeline struct {
	registry *prometheus.Registry

	rowsWritten   *prometheus.CounterVec
	writeSeconds  *prometheus.HistogramVec
	groupFailures *prometheus.CounterVec
	runs          *prometheus.CounterVec
	runSeconds    *prometheus.HistogramVec
	queries       *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Pipeline {
	p := &Pipeline{
		registry: prometheus.NewRegistry(),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows written to the warehouse, by vault table.",
		}, []string{"table"}),
		writeSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "table_write_seconds",
			Help:      "Time spent writing one vault table.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table"}),
		groupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "group_failures_total",
			Help:      "File groups dropped from a run, by source and stage.",
		}, []string{"source", "stage"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished pipeline runs, by job and status.",
		}, []string{"job", "status"}),
		runSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_seconds",
			Help:      "Pipeline run duration.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"job"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_queries_total",
			Help:      "Dashboard metric evaluations, by metric and whether a snapshot served them.",
		}, []string{"metric", "cached"}),
	}
	p.registry.MustRegister(
		p.rowsWritten, p.writeSeconds, p.groupFailures,
		p.runs, p.runSeconds, p.queries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Pipeline) TableWritten(table string, rows int, elapsed time.Duration) {
	p.rowsWritten.WithLabelValues(table).Add(float64(rows))
	p.writeSeconds.WithLabelValues(table).Observe(elapsed.Seconds())
}

func (p *Pipeline) GroupFailed(source, stage string) {
	p.groupFailures.WithLabelValues(source, stage).Inc()
}

func (p *Pipeline) RunFinished(job, status string, elapsed time.Duration) {
	p.runs.WithLabelValues(job, status).Inc()
	p.runSeconds.WithLabelValues(job).Observe(elapsed.Seconds())
}

// QueryServed counts one dashboard metric evaluation.
func (p *Pipeline) QueryServed(metric string, cached bool) {
	c := "false"
	if cached {
		c = "true"
	}
	p.queries.WithLabelValues(metric, c).Inc()
}

// Registry returns the registry the collectors live on.
func (p *Pipeline) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the exposition format.
func (p *Pipeline) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
