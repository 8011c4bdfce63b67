package locator

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/domlocator/locator/internal/handle"
)

// Metrics holds the Prometheus collectors of a Resolver. Each Metrics owns
// its registry, so several resolvers (and tests) never collide.
type Metrics struct {
	reg *prometheus.Registry

	Resolutions  *prometheus.CounterVec
	Duration     prometheus.Histogram
	Dereferences *prometheus.CounterVec
	Named        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Resolutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "domlocator_resolutions_total",
				Help: "Resolutions by outcome",
			},
			[]string{"outcome"},
		),
		Duration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "domlocator_resolve_duration_seconds",
				Help:    "Time spent resolving a locator against a snapshot",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
		),
		Dereferences: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "domlocator_dereferences_total",
				Help: "Handle dereferences by path (fast, reresolved, lost)",
			},
			[]string{"path"},
		),
		Named: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "domlocator_named_resolutions_total",
				Help: "Resolutions of saved locators by name and outcome",
			},
			[]string{"name", "outcome"},
		),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// watch exports the tracker's cache counters. Registering the same names
// twice (a second Resolver sharing m) keeps the first tracker's view.
func (m *Metrics) watch(t *handle.Tracker) {
	counter := func(name, help string, get func(handle.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, func() float64 {
			return float64(get(t.Stats()))
		})
	}
	cs := []prometheus.Collector{
		counter("domlocator_cache_hits_total", "Resolution cache hits",
			func(s handle.Stats) uint64 { return s.CacheHits }),
		counter("domlocator_cache_misses_total", "Resolution cache misses",
			func(s handle.Stats) uint64 { return s.CacheMisses }),
		counter("domlocator_cache_evictions_total", "Resolution cache evictions",
			func(s handle.Stats) uint64 { return s.CacheEvictions }),
		counter("domlocator_coalesced_total", "Resolutions that shared a concurrent computation",
			func(s handle.Stats) uint64 { return s.Coalesced }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "domlocator_cache_entries",
			Help: "Entries held by the resolution cache",
		}, func() float64 { return float64(t.Stats().CacheSize) }),
	}
	for _, c := range cs {
		_ = m.reg.Register(c)
	}
}

func (m *Metrics) observeResolve(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(outcome).Inc()
	m.Duration.Observe(d.Seconds())
}

func (m *Metrics) observeDereference(path string) {
	if m == nil {
		return
	}
	m.Dereferences.WithLabelValues(path).Inc()
}

func (m *Metrics) observeNamed(name, outcome string) {
	if m == nil {
		return
	}
	m.Named.WithLabelValues(name, outcome).Inc()
}
