package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "progevo"

// Collectors holds the evolution metrics. A nil *Collectors is valid and
// records nothing.
type Collectors struct {
	registry *prometheus.Registry

	generations        prometheus.Counter
	evaluations        prometheus.Counter
	evaluationFailures prometheus.Counter
	mutations          prometheus.Counter
	crossovers         prometheus.Counter
	bestFitness        *prometheus.GaugeVec
	phaseDuration      *prometheus.HistogramVec
}

// New builds the collectors on a private registry.
func New() (*Collectors, error) {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generations advanced.",
		}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Individual program runs.",
		}),
		evaluationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_failures_total",
			Help:      "Individual runs that failed and kept the sentinel fitness.",
		}),
		mutations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Mutation points changed by mutation.",
		}),
		crossovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crossovers_total",
			Help:      "Crossover tasks executed.",
		}),
		bestFitness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_fitness",
			Help:      "Best fitness of the latest generation.",
		}, []string{"run_id"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall time per generation phase.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"phase"}),
	}
	collectors := []prometheus.Collector{
		c.generations,
		c.evaluations,
		c.evaluationFailures,
		c.mutations,
		c.crossovers,
		c.bestFitness,
		c.phaseDuration,
	}
	for _, collector := range collectors {
		if err := c.registry.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collectors) Generation(runID string, best float64) {
	if c == nil {
		return
	}
	c.generations.Inc()
	c.bestFitness.WithLabelValues(runID).Set(best)
}

func (c *Collectors) Evaluated(failed bool) {
	if c == nil {
		return
	}
	c.evaluations.Inc()
	if failed {
		c.evaluationFailures.Inc()
	}
}

func (c *Collectors) Mutated(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.mutations.Add(float64(n))
}

func (c *Collectors) Crossed(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.crossovers.Add(float64(n))
}

func (c *Collectors) ObservePhase(phase string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.phaseDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}
