package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors. Each server owns its own
// registry so several servers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	jobsCreated  prometheus.Counter
	jobsFinished *prometheus.CounterVec
	jobsRunning  prometheus.Gauge
	generations  prometheus.Counter
	evaluations  prometheus.Counter
	genDuration  prometheus.Histogram
	bestFitness  *prometheus.GaugeVec
}

// NewMetrics creates and registers the job collectors.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.jobsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flw_jobs_created_total",
		Help: "Optimization jobs submitted.",
	})
	m.jobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flw_jobs_finished_total",
		Help: "Optimization jobs that reached a terminal state.",
	}, []string{"state"})
	m.jobsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flw_jobs_running",
		Help: "Optimization jobs currently running.",
	})
	m.generations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flw_generations_total",
		Help: "Generations completed across all jobs.",
	})
	m.evaluations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flw_evaluations_total",
		Help: "Objective evaluations across all jobs.",
	})
	m.genDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flw_generation_duration_seconds",
		Help:    "Wall time of one generation.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})
	m.bestFitness = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flw_best_fitness",
		Help: "Best-known fitness per job.",
	}, []string{"job_id"})

	m.registry.MustRegister(
		m.jobsCreated,
		m.jobsFinished,
		m.jobsRunning,
		m.generations,
		m.evaluations,
		m.genDuration,
		m.bestFitness,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) jobStarted() {
	m.jobsRunning.Inc()
}

func (m *Metrics) jobFinished(state JobState) {
	m.jobsRunning.Dec()
	m.jobsFinished.WithLabelValues(string(state)).Inc()
}

// generationDone records one generation of jobID. evals is the number of
// objective calls the generation made.
func (m *Metrics) generationDone(jobID string, evals int, seconds, best float64) {
	m.generations.Inc()
	m.evaluations.Add(float64(evals))
	m.genDuration.Observe(seconds)
	m.bestFitness.WithLabelValues(jobID).Set(best)
}
