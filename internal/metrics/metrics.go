// Package metrics exports suggester activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rxsuggest"

// Metrics implements suggest.Recorder on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	queries      prometheus.Counter
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	staleDropped prometheus.Counter
	lookups      *prometheus.CounterVec
	latency      prometheus.Histogram
}

// NewMetrics registers the suggester collectors plus the Go runtime collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries accepted by suggestion sessions.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Debounced queries answered from the response cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Debounced queries that needed a remote lookup.",
		}),
		staleDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_lookups_total",
			Help:      "Remote answers discarded because the query had moved on.",
		}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_lookups_total",
			Help:      "Remote lookups by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_lookup_seconds",
			Help:      "Remote lookup latency.",
			Buckets:   []float64{.025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
	}

	m.registry.MustRegister(
		m.queries,
		m.cacheHits,
		m.cacheMisses,
		m.staleDropped,
		m.lookups,
		m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) QueryAccepted() { m.queries.Inc() }
func (m *Metrics) CacheHit()      { m.cacheHits.Inc() }
func (m *Metrics) CacheMiss()     { m.cacheMisses.Inc() }
func (m *Metrics) StaleDropped()  { m.staleDropped.Inc() }

func (m *Metrics) LookupDone(elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.lookups.WithLabelValues(outcome).Inc()
	m.latency.Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Infof("Metrics listening on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
