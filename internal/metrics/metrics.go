// Package metrics exposes Prometheus instrumentation for the generation
// pipeline: lifecycle counters, a processing-duration histogram, and gauges
// sampled from the store, the dispatch queue, the breakers, and the cache.
//
// The collector owns a private registry so tests and multi-binary deployments
// never trip over duplicate registration on the package-global default. All
// methods are safe on a nil *Collector, which lets callers run uninstrumented
// without guarding every call site.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mediagen/internal/breaker"
	"mediagen/internal/domain"
)

// Collector holds every metric the pipeline emits.
type Collector struct {
	reg *prometheus.Registry

	created     *prometheus.CounterVec
	claims      prometheus.Counter
	completions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	requeues    prometheus.Counter
	reaped      prometheus.Counter
	expired     prometheus.Counter
	purged      prometheus.Counter

	genSeconds *prometheus.HistogramVec

	records      *prometheus.GaugeVec
	queueDepth   prometheus.Gauge
	breakerState *prometheus.GaugeVec
	cacheHits    prometheus.Gauge
	cacheMisses  prometheus.Gauge
}

// New builds a collector with all metrics registered on a fresh registry.
func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediagen_records_created_total",
			Help: "Generation records accepted, by content type.",
		}, []string{"content_type"}),
		claims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediagen_claims_total",
			Help: "Records claimed for generation.",
		}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediagen_completions_total",
			Help: "Records completed successfully, by content type.",
		}, []string{"content_type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediagen_failures_total",
			Help: "Generation failures, by content type and error category.",
		}, []string{"content_type", "category"}),
		requeues: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediagen_requeues_total",
			Help: "Failed records sent back to PENDING for another attempt.",
		}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediagen_reaped_total",
			Help: "GENERATING records recovered after their claim deadline passed.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediagen_expired_total",
			Help: "Records moved to EXPIRED by the sweeper.",
		}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediagen_purged_total",
			Help: "Exhausted FAILED records deleted by the retention sweep.",
		}),
		genSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mediagen_generation_seconds",
			Help:    "Wall-clock provider call duration, by content type.",
			Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"content_type"}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mediagen_records",
			Help: "Stored records, by lifecycle status.",
		}, []string{"status"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mediagen_queue_depth",
			Help: "Claim candidates held in the dispatch queue after the last refresh.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mediagen_breaker_state",
			Help: "Provider breaker state: 0 closed, 1 half-open, 2 open.",
		}, []string{"provider"}),
		cacheHits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mediagen_cache_hits",
			Help: "Cumulative record cache hits, sampled from the cache.",
		}),
		cacheMisses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mediagen_cache_misses",
			Help: "Cumulative record cache misses, sampled from the cache.",
		}),
	}
	c.reg.MustRegister(
		c.created, c.claims, c.completions, c.failures, c.requeues,
		c.reaped, c.expired, c.purged, c.genSeconds,
		c.records, c.queueDepth, c.breakerState, c.cacheHits, c.cacheMisses,
	)
	return c
}

// Handler serves the collector's registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// RecordCreated counts an accepted generation request.
func (c *Collector) RecordCreated(ct domain.ContentType) {
	if c == nil {
		return
	}
	c.created.WithLabelValues(string(ct)).Inc()
}

// RecordClaim counts a won claim.
func (c *Collector) RecordClaim() {
	if c == nil {
		return
	}
	c.claims.Inc()
}

// RecordCompletion counts a successful generation and observes its duration.
func (c *Collector) RecordCompletion(ct domain.ContentType, seconds float64) {
	if c == nil {
		return
	}
	c.completions.WithLabelValues(string(ct)).Inc()
	c.genSeconds.WithLabelValues(string(ct)).Observe(seconds)
}

// RecordFailure counts a failed generation attempt.
func (c *Collector) RecordFailure(ct domain.ContentType, cat domain.ErrorCategory) {
	if c == nil {
		return
	}
	c.failures.WithLabelValues(string(ct), string(cat)).Inc()
}

// RecordRequeue counts a failed record that won another attempt.
func (c *Collector) RecordRequeue() {
	if c == nil {
		return
	}
	c.requeues.Inc()
}

// RecordReaped counts records recovered from missed claim deadlines.
func (c *Collector) RecordReaped(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.reaped.Add(float64(n))
}

// RecordSweep counts one sweeper cycle's expirations and purges.
func (c *Collector) RecordSweep(expired, purged int) {
	if c == nil {
		return
	}
	if expired > 0 {
		c.expired.Add(float64(expired))
	}
	if purged > 0 {
		c.purged.Add(float64(purged))
	}
}

// SetQueueDepth records the dispatch queue size after a refresh.
func (c *Collector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(n))
}

// SetBreakerStates mirrors the current state of every provider breaker.
func (c *Collector) SetBreakerStates(states map[string]breaker.State) {
	if c == nil {
		return
	}
	for provider, st := range states {
		c.breakerState.WithLabelValues(provider).Set(stateValue(st))
	}
}

// SetCacheStats mirrors the record cache's cumulative hit and miss counts.
func (c *Collector) SetCacheStats(hits, misses uint64) {
	if c == nil {
		return
	}
	c.cacheHits.Set(float64(hits))
	c.cacheMisses.Set(float64(misses))
}

// ObservePopulation refreshes the per-status record gauge from the store.
// Statuses with no records are reset to zero so drained states do not hold
// their last sampled value.
func (c *Collector) ObservePopulation(ctx context.Context, store domain.RecordStore) error {
	if c == nil {
		return nil
	}
	counts, err := store.CountByStatus(ctx)
	if err != nil {
		return err
	}
	for _, st := range domain.Statuses() {
		c.records.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
	return nil
}

func stateValue(s breaker.State) float64 {
	switch s {
	case breaker.StateHalfOpen:
		return 1
	case breaker.StateOpen:
		return 2
	}
	return 0
}
