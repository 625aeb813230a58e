package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/rps-arena/model"
)

// SimCollector bundles Prometheus metrics for the simulation engine and
// exposes them over HTTP. It satisfies core.MetricsRecorder.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Ticks         prometheus.Counter
	TickDurations prometheus.Histogram
	Conversions   *prometheus.CounterVec
	Population    *prometheus.GaugeVec
	Rounds        *prometheus.CounterVec
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_ticks_total",
		Help: "Total number of executed simulation ticks.",
	}), "sim_ticks_total")
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_duration_seconds",
		Help:    "Wall-clock time spent inside a single tick.",
		Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
	}), "sim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	conversions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_conversions_total",
		Help: "Agents converted by a collision, labeled by winning and losing species.",
	}, []string{"winner", "loser"}), "sim_conversions_total")
	if err != nil {
		return nil, err
	}

	population, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_population",
		Help: "Current number of agents per species.",
	}, []string{"species"}), "sim_population")
	if err != nil {
		return nil, err
	}

	rounds, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_rounds_total",
		Help: "Finished rounds, labeled by winning species and end reason.",
	}, []string{"winner", "reason"}), "sim_rounds_total")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:      gatherer,
		Ticks:         ticks,
		TickDurations: durations,
		Conversions:   conversions,
		Population:    population,
		Rounds:        rounds,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveTick counts one tick and records its duration.
func (c *SimCollector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	c.TickDurations.Observe(d.Seconds())
}

// RecordConversion counts one loser converted to the winner's species.
func (c *SimCollector) RecordConversion(winner, loser model.Species) {
	if c == nil {
		return
	}
	c.Conversions.WithLabelValues(winner.String(), loser.String()).Inc()
}

// SetPopulation publishes the per-species tally. Species missing from counts
// are reported as zero.
func (c *SimCollector) SetPopulation(counts map[model.Species]int) {
	if c == nil {
		return
	}
	for _, s := range model.AllSpecies {
		c.Population.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

// RecordRoundEnd counts a finished round.
func (c *SimCollector) RecordRoundEnd(winner model.Species, reason string) {
	if c == nil {
		return
	}
	c.Rounds.WithLabelValues(winner.String(), reason).Inc()
}

// register adds a collector, reusing an identical one that is already
// registered under the same name.
func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
