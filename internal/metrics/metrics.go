// Package metrics exposes run progress as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"walkerevo/internal/ga"
)

// Metrics holds the collectors of one run on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	Generation  prometheus.Gauge
	Fitness     *prometheus.GaugeVec
	BestEver    prometheus.Gauge
	Generations prometheus.Counter
	Rounds      *prometheus.CounterVec
	EvolveTime  prometheus.Histogram
	LiveWalkers prometheus.Gauge
	StoreErrors prometheus.Counter
	WSClients   prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "walkerevo_generation",
			Help: "Current generation number.",
		}),
		Fitness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "walkerevo_fitness",
			Help: "Fitness summary of the last ranked generation.",
		}, []string{"stat"}),
		BestEver: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "walkerevo_best_ever_fitness",
			Help: "Highest fitness ranked so far.",
		}),
		Generations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "walkerevo_generations_total",
			Help: "Generations evolved.",
		}),
		Rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walkerevo_rounds_total",
			Help: "Physics rounds by outcome.",
		}, []string{"outcome"}),
		EvolveTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "walkerevo_generation_seconds",
			Help:    "Wall time per generation, evaluation included.",
			Buckets: prometheus.DefBuckets,
		}),
		LiveWalkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "walkerevo_live_walkers",
			Help: "Walkers realized in the current round.",
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "walkerevo_store_errors_total",
			Help: "Failed snapshot or history writes.",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "walkerevo_ws_clients",
			Help: "Connected live feed clients.",
		}),
	}
	m.Registry.MustRegister(
		m.Generation, m.Fitness, m.BestEver, m.Generations, m.Rounds,
		m.EvolveTime, m.LiveWalkers, m.StoreErrors, m.WSClients,
	)
	return m
}

// ObserveRecord updates the gauges from a generation summary. It can be
// passed to ga.WithObserver through a closure.
func (m *Metrics) ObserveRecord(r ga.Record, elapsed time.Duration) {
	m.Generation.Set(float64(r.Generation + 1))
	m.Fitness.WithLabelValues("best").Set(r.Best)
	m.Fitness.WithLabelValues("average").Set(r.Average)
	m.Fitness.WithLabelValues("worst").Set(r.Worst)
	m.Fitness.WithLabelValues("std_dev").Set(r.StdDev)
	m.Generations.Inc()
	if elapsed > 0 {
		m.EvolveTime.Observe(elapsed.Seconds())
	}
}

// ObserveBest records the best-ever fitness.
func (m *Metrics) ObserveBest(fitness float64) {
	m.BestEver.Set(fitness)
}

// RoundDone counts a finished round; err nil means success.
func (m *Metrics) RoundDone(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Rounds.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
