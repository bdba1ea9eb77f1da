// Package metrics exposes Prometheus instrumentation for the invitation saga.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "inviteguard"

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Recorder records saga outcomes. The zero value is not usable; use New.
type Recorder struct {
	registry      *prometheus.Registry
	invitations   *prometheus.CounterVec
	compensations *prometheus.CounterVec
	notifier      *prometheus.HistogramVec
	expired       prometheus.Counter
}

// New creates a Recorder backed by its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		registry: reg,
		invitations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invitations_total",
			Help:      "Invitation operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensations_total",
			Help:      "Compensating writes after a notifier failure, by operation and result.",
		}, []string{"operation", "result"}),
		notifier: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notifier_duration_seconds",
			Help:      "Time spent waiting on the invitation notifier.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invitations_expired_total",
			Help:      "Invitations moved to EXPIRED by accept or the expiry sweep.",
		}),
	}

	reg.MustRegister(
		r.invitations,
		r.compensations,
		r.notifier,
		r.expired,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Operation records the outcome of a saga operation.
func (r *Recorder) Operation(operation, outcome string) {
	r.invitations.WithLabelValues(operation, outcome).Inc()
}

// Compensation records a compensating write.
func (r *Recorder) Compensation(operation string, err error) {
	result := OutcomeSuccess
	if err != nil {
		result = OutcomeFailed
	}
	r.compensations.WithLabelValues(operation, result).Inc()
}

// NotifierCall records how long a notifier call took.
func (r *Recorder) NotifierCall(started time.Time, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailed
	}
	r.notifier.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
}

// Expired records invitations moved to EXPIRED.
func (r *Recorder) Expired(n int64) {
	if n > 0 {
		r.expired.Add(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
