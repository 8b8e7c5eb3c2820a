package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	SimulationRunning prometheus.Gauge
	SimulationStarts  prometheus.Counter
	SimulationTicks   prometheus.Counter

	RoutesCommitted *prometheus.CounterVec // mode label: create|edit
	DraftsAbandoned prometheus.Counter
	Incidents       *prometheus.CounterVec // type label
	CatalogRoutes   prometheus.Gauge
	CatalogDrivers  prometheus.Gauge

	Fallbacks       *prometheus.CounterVec   // collaborator label: routing|geocode|narrator
	UpstreamLatency *prometheus.HistogramVec // collaborator label

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	TickDuration    prometheus.Histogram
	PublishDuration prometheus.Histogram

	TickInterval prometheus.Gauge // seconds
}

func NewCollector(tickInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		SimulationRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bustracker_simulation_running",
			Help: "1 while the simulated bus is moving, 0 otherwise.",
		}),
		SimulationStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_simulation_starts_total",
			Help: "Total simulation (re)starts.",
		}),
		SimulationTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_simulation_ticks_total",
			Help: "Total applied simulation ticks.",
		}),
		RoutesCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bustracker_routes_committed_total",
			Help: "Routes committed from the authoring flow.",
		}, []string{"mode"}),
		DraftsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_drafts_abandoned_total",
			Help: "Route commits whose geometry arrived after the draft was abandoned.",
		}),
		Incidents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bustracker_incidents_total",
			Help: "Incidents reported by drivers.",
		}, []string{"type"}),
		CatalogRoutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bustracker_catalog_routes",
			Help: "Routes in the in-memory catalog.",
		}),
		CatalogDrivers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bustracker_catalog_drivers",
			Help: "Drivers in the in-memory catalog.",
		}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bustracker_collaborator_fallbacks_total",
			Help: "External calls that failed and were replaced by their fallback value.",
		}, []string{"collaborator"}),
		UpstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bustracker_collaborator_duration_seconds",
			Help:    "Duration of external collaborator calls.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"collaborator"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bustracker_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bustracker_tick_duration_seconds",
			Help:    "Duration of simulation tick computations.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bustracker_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		TickInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bustracker_tick_interval_seconds",
			Help: "Simulation tick interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.SimulationRunning, c.SimulationStarts, c.SimulationTicks,
		c.RoutesCommitted, c.DraftsAbandoned, c.Incidents,
		c.CatalogRoutes, c.CatalogDrivers,
		c.Fallbacks, c.UpstreamLatency,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.TickDuration, c.PublishDuration, c.TickInterval,
	)

	c.TickInterval.Set(tickInterval.Seconds())

	return c
}

// ObserveCall records the latency of a collaborator call and, when
// fellBack is true, counts a fallback.
func (c *Collector) ObserveCall(collaborator string, d time.Duration, fellBack bool) {
	if c == nil {
		return
	}
	c.UpstreamLatency.WithLabelValues(collaborator).Observe(d.Seconds())
	if fellBack {
		c.Fallbacks.WithLabelValues(collaborator).Inc()
	}
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
