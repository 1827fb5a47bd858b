// Package metrics exposes model run progress as prometheus collectors.
package metrics

import (
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Collector counts dated years, initialisation years and runs, and tracks
// the last convergence variance per initialisation phase. Each Collector
// owns its registry so separate models never share series.
type Collector struct {
	registry *prometheus.Registry

	years       prometheus.Counter
	initYears   *prometheus.CounterVec
	variance    *prometheus.GaugeVec
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		years: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cohortsim_years_executed_total",
			Help: "Dated years executed across all runs",
		}),
		initYears: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cohortsim_initialisation_years_total",
			Help: "Virtual years executed by initialisation phase",
		}, []string{"phase"}),
		variance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cohortsim_convergence_variance",
			Help: "Last convergence variance by initialisation phase",
		}, []string{"phase"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cohortsim_runs_total",
			Help: "Model runs by result",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cohortsim_run_duration_seconds",
			Help:    "Model run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
	c.registry.MustRegister(c.years, c.initYears, c.variance, c.runs, c.runDuration)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) YearExecuted(int) { c.years.Inc() }

func (c *Collector) InitialisationYear(phase string) {
	c.initYears.WithLabelValues(phase).Inc()
}

func (c *Collector) ConvergenceVariance(phase string, variance float64) {
	c.variance.WithLabelValues(phase).Set(variance)
}

// RunFinished records one run; err selects the result label.
func (c *Collector) RunFinished(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.runs.WithLabelValues(result).Inc()
	c.runDuration.Observe(d.Seconds())
}

// Handler serves the collector's registry in the prometheus exposition
// format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WriteText writes every metric family in the text exposition format.
func (c *Collector) WriteText(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
