// Package metrics exposes Prometheus collectors for the settlement engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "batchsettle"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	batchesCommitted prometheus.Counter
	claims           *prometheus.CounterVec
	claimedAmount    *prometheus.CounterVec
	disputes         prometheus.Counter
	reversedAmount   *prometheus.CounterVec
	settlements      prometheus.Counter
	limitRejections  *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	rpcDuration      *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry
// together with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		batchesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_committed_total",
			Help:      "Batches recorded in the journal.",
		}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Claim attempts by result.",
		}, []string{"result"}),
		claimedAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claimed_amount_total",
			Help:      "Base units credited through claims.",
		}, []string{"asset"}),
		disputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disputes_total",
			Help:      "Disputes raised against payouts.",
		}),
		reversedAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reversed_amount_total",
			Help:      "Base units debited back by reversals.",
		}, []string{"asset"}),
		settlements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Payouts settled.",
		}),
		limitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "limit_rejections_total",
			Help:      "Spends rejected by the limit guard.",
		}, []string{"asset", "reason"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Outbox events handed to the publisher by result.",
		}, []string{"result"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "RPC handling time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.batchesCommitted,
		m.claims,
		m.claimedAmount,
		m.disputes,
		m.reversedAmount,
		m.settlements,
		m.limitRejections,
		m.eventsPublished,
		m.rpcDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) BatchCommitted() {
	if m == nil {
		return
	}
	m.batchesCommitted.Inc()
}

// Claim records a claim attempt. amount is only counted for successful claims.
func (m *Metrics) Claim(result, asset string, amount int64) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(result).Inc()
	if result == "ok" && amount > 0 {
		m.claimedAmount.WithLabelValues(asset).Add(float64(amount))
	}
}

func (m *Metrics) Dispute() {
	if m == nil {
		return
	}
	m.disputes.Inc()
}

func (m *Metrics) Reversed(asset string, amount int64) {
	if m == nil {
		return
	}
	m.reversedAmount.WithLabelValues(asset).Add(float64(amount))
}

func (m *Metrics) Settled() {
	if m == nil {
		return
	}
	m.settlements.Inc()
}

func (m *Metrics) LimitRejected(asset, reason string) {
	if m == nil {
		return
	}
	m.limitRejections.WithLabelValues(asset, reason).Inc()
}

func (m *Metrics) EventsPublished(result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.eventsPublished.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) ObserveRPC(procedure, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcDuration.WithLabelValues(procedure, code).Observe(d.Seconds())
}
